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
	"github.com/cit-platform/crewtask-service/pkg/metrics"
)

const crewCollection = "crew_members"

// crewMemberDoc is the stored identity binding between a badge UUID and a
// numeric user id. Ownership assignment happens outside this service; the
// collection is read-only here.
type crewMemberDoc struct {
	BadgeID string `bson:"badgeId"`
	UserID  int64  `bson:"userId"`
}

// CrewRepository implements domain.CrewDirectory using MongoDB
type CrewRepository struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

// NewCrewRepository creates a new CrewRepository
func NewCrewRepository(db *mongo.Database, m *metrics.Metrics) *CrewRepository {
	collection := db.Collection(crewCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "badgeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &CrewRepository{
		collection: collection,
		metrics:    m,
	}
}

// ResolveUserIDByBadge resolves the numeric user id bound to a badge UUID
func (r *CrewRepository) ResolveUserIDByBadge(ctx context.Context, badgeID string) (int64, error) {
	start := time.Now()

	var doc crewMemberDoc
	err := r.collection.FindOne(ctx, bson.M{"badgeId": badgeID}).Decode(&doc)

	if r.metrics != nil {
		ok := err == nil || errors.Is(err, mongo.ErrNoDocuments)
		r.metrics.RecordMongoDBOperation(crewCollection, "findOne", ok, time.Since(start))
	}

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrCrewMemberNotFound
		}
		return 0, fmt.Errorf("failed to resolve badge %s: %w", badgeID, err)
	}

	return doc.UserID, nil
}
