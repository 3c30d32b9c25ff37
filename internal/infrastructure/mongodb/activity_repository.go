package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cit-platform/crewtask-service/internal/domain"
	"github.com/cit-platform/crewtask-service/pkg/metrics"
)

const activityCollection = "task_activities"

// ActivityRepository implements domain.ActivityRepository using MongoDB.
// The collection is append-only: records are inserted once and never
// updated or deleted.
type ActivityRepository struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *mongo.Database, m *metrics.Metrics) *ActivityRepository {
	collection := db.Collection(activityCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "taskId", Value: 1},
				{Key: "recordedAt", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "actorUserId", Value: 1}},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &ActivityRepository{
		collection: collection,
		metrics:    m,
	}
}

// Save appends an activity record
func (r *ActivityRepository) Save(ctx context.Context, activity *domain.TaskActivity) error {
	start := time.Now()

	_, err := r.collection.InsertOne(ctx, activity)

	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(activityCollection, "insertOne", err == nil, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("failed to save activity for task %s: %w", activity.TaskID, err)
	}
	return nil
}

// FindByTaskID retrieves all activities for a task, oldest first
func (r *ActivityRepository) FindByTaskID(ctx context.Context, taskID string) ([]*domain.TaskActivity, error) {
	start := time.Now()

	opts := options.Find().SetSort(bson.D{{Key: "recordedAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"taskId": taskID}, opts)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordMongoDBOperation(activityCollection, "find", false, time.Since(start))
		}
		return nil, fmt.Errorf("failed to find activities for task %s: %w", taskID, err)
	}
	defer cursor.Close(ctx)

	var activities []*domain.TaskActivity
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(activityCollection, "find", true, time.Since(start))
	}

	return activities, nil
}
