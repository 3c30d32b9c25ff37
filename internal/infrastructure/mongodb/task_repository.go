package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cit-platform/crewtask-service/internal/domain"
	"github.com/cit-platform/crewtask-service/pkg/cloudevents"
	"github.com/cit-platform/crewtask-service/pkg/kafka"
	"github.com/cit-platform/crewtask-service/pkg/metrics"
	"github.com/cit-platform/crewtask-service/pkg/outbox"
	outboxMongo "github.com/cit-platform/crewtask-service/pkg/outbox/mongodb"
)

const taskCollection = "crew_tasks"

// TaskRepository implements domain.CrewTaskRepository using MongoDB
type TaskRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	activities   *ActivityRepository
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
	metrics      *metrics.Metrics
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *mongo.Database, activities *ActivityRepository, eventFactory *cloudevents.EventFactory, m *metrics.Metrics) *TaskRepository {
	collection := db.Collection(taskCollection)
	outboxRepo := outboxMongo.NewOutboxRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "taskId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "crewCommanderId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "statusLabel", Value: 1},
				{Key: "taskType", Value: 1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)
	_ = outboxRepo.EnsureIndexes(ctx)

	return &TaskRepository{
		collection:   collection,
		db:           db,
		activities:   activities,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
		metrics:      m,
	}
}

// FindByTaskID retrieves a task by its TaskID
func (r *TaskRepository) FindByTaskID(ctx context.Context, taskID string) (*domain.CrewTask, error) {
	start := time.Now()

	var task domain.CrewTask
	err := r.collection.FindOne(ctx, bson.M{"taskId": taskID}).Decode(&task)

	r.recordOp("findOne", err == nil || errors.Is(err, mongo.ErrNoDocuments), start)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task %s: %w", taskID, err)
	}

	return &task, nil
}

// FindAll retrieves tasks matching the filter
func (r *TaskRepository) FindAll(ctx context.Context, filter domain.TaskFilter, pagination domain.Pagination) ([]*domain.CrewTask, error) {
	start := time.Now()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(pagination.Skip()).
		SetLimit(pagination.Limit())

	cursor, err := r.collection.Find(ctx, buildTaskFilter(filter), opts)
	if err != nil {
		r.recordOp("find", false, start)
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*domain.CrewTask
	if err := cursor.All(ctx, &tasks); err != nil {
		r.recordOp("find", false, start)
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	r.recordOp("find", true, start)
	return tasks, nil
}

// Count returns the total number of tasks matching the filter
func (r *TaskRepository) Count(ctx context.Context, filter domain.TaskFilter) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, buildTaskFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// Save persists a new task
func (r *TaskRepository) Save(ctx context.Context, task *domain.CrewTask) error {
	start := time.Now()

	task.UpdatedAt = time.Now().UTC()
	_, err := r.collection.InsertOne(ctx, task)

	r.recordOp("insertOne", err == nil, start)

	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.TaskID, err)
	}
	return nil
}

// ApplyTransition persists a validated transition in one transaction: a
// conditional update on the task document guarded by the pre-transition
// screen and the owning crew commander, the appended activity record, and
// the outbox events. A MatchedCount of zero means a concurrent writer
// advanced the task first; the transaction is abandoned and (false, nil)
// is returned without any mutation.
func (r *TaskRepository) ApplyTransition(ctx context.Context, task *domain.CrewTask, expectedScreen domain.Screen, activity *domain.TaskActivity) (bool, error) {
	start := time.Now()

	session, err := r.db.Client().StartSession()
	if err != nil {
		r.recordOp("transaction", false, start)
		return false, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	errStaleScreen := errors.New("stale screen")

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		filter := bson.M{
			"taskId":          task.TaskID,
			"crewCommanderId": task.CrewCommanderID,
			"screen":          expectedScreen,
		}
		update := bson.M{"$set": bson.M{
			"screen":          task.Screen,
			"statusLabel":     task.StatusLabel,
			"loadedParcels":   task.LoadedParcels,
			"unloadedParcels": task.UnloadedParcels,
			"pickupReceipt":   task.PickupReceipt,
			"deliveryReceipt": task.DeliveryReceipt,
			"amount":          task.Amount,
			"denominations":   task.Denominations,
			"failedReason":    task.FailedReason,
			"updatedAt":       task.UpdatedAt,
		}}

		result, err := r.collection.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to update task %s: %w", task.TaskID, err)
		}

		if result.MatchedCount == 0 {
			return nil, errStaleScreen
		}

		if err := r.activities.Save(sessCtx, activity); err != nil {
			return nil, err
		}

		outboxEvents, err := r.outboxEventsFor(sessCtx, task)
		if err != nil {
			return nil, err
		}
		if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
			return nil, fmt.Errorf("failed to save outbox events: %w", err)
		}

		return nil, nil
	})

	if err != nil {
		if errors.Is(err, errStaleScreen) {
			r.recordOp("transaction", true, start)
			return false, nil
		}
		r.recordOp("transaction", false, start)
		return false, err
	}

	task.ClearDomainEvents()
	r.recordOp("transaction", true, start)
	return true, nil
}

func (r *TaskRepository) outboxEventsFor(ctx context.Context, task *domain.CrewTask) ([]*outbox.OutboxEvent, error) {
	domainEvents := task.DomainEvents()
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))

	for _, event := range domainEvents {
		transitioned, ok := event.(*domain.TaskTransitionedEvent)
		if !ok {
			continue
		}

		cloudEvent := r.eventFactory.CreateTaskTransitionEvent(ctx, transitioned.EventType(), cloudevents.TaskTransitionData{
			TaskID:       transitioned.TaskID,
			TaskType:     string(transitioned.TaskType),
			Activity:     string(transitioned.Activity),
			FromScreen:   string(transitioned.FromScreen),
			ToScreen:     string(transitioned.ToScreen),
			CrewUserID:   transitioned.CrewUserID,
			OccurredAt:   transitioned.OccurredAt(),
			FailedReason: transitioned.FailedReason,
		})

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(
			task.TaskID,
			"CrewTask",
			kafka.Topics.TaskEvents,
			cloudEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}

		outboxEvents = append(outboxEvents, outboxEvent)
	}

	return outboxEvents, nil
}

func (r *TaskRepository) recordOp(operation string, success bool, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordMongoDBOperation(taskCollection, operation, success, time.Since(start))
	}
}

func buildTaskFilter(filter domain.TaskFilter) bson.M {
	query := bson.M{}

	if filter.Family != nil {
		query["taskType"] = *filter.Family
	}
	if filter.StatusLabel != nil {
		query["statusLabel"] = *filter.StatusLabel
	}
	if filter.CrewCommanderID != nil {
		query["crewCommanderId"] = *filter.CrewCommanderID
	}
	if filter.OrderID != nil {
		query["orderId"] = *filter.OrderID
	}

	return query
}
