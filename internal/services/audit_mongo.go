package services

import (
	"context"
	"fmt"
	"time"

	"github.com/travelhub/booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditCollection is the MongoDB collection holding audit entries
const AuditCollection = "audit_logs"

// auditDocument is the stored form of an audit entry
type auditDocument struct {
	UserID     string    `bson:"user_id,omitempty"`
	Action     string    `bson:"action"`
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id,omitempty"`
	IPAddress  string    `bson:"ip_address"`
	UserAgent  string    `bson:"user_agent"`
	Details    bson.M    `bson:"details"`
	CreatedAt  time.Time `bson:"created_at"`
}

// MongoAuditSink writes audit entries to a MongoDB collection
type MongoAuditSink struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoAuditSink creates a sink writing to collection
func NewMongoAuditSink(collection *mongo.Collection) *MongoAuditSink {
	return &MongoAuditSink{collection: collection, now: time.Now}
}

// EnsureIndexes creates the lookup indexes used by audit queries
func (s *MongoAuditSink) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("user_created_at_idx"),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("error creating audit indexes: %w", err)
	}
	return nil
}

// Insert stores one entry. Details is parsed from its JSON form so it can be
// queried as a sub-document.
func (s *MongoAuditSink) Insert(ctx context.Context, entry *models.AuditLog) error {
	details := bson.M{}
	if entry.Details != "" {
		if err := bson.UnmarshalExtJSON([]byte(entry.Details), false, &details); err != nil {
			return fmt.Errorf("failed to decode audit details: %w", err)
		}
	}

	entry.CreatedAt = s.now().UTC()
	doc := auditDocument{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Details:    details,
		CreatedAt:  entry.CreatedAt,
	}
	if entry.UserID.Valid {
		doc.UserID = entry.UserID.UUID.String()
	}
	if entry.EntityID.Valid {
		doc.EntityID = entry.EntityID.UUID.String()
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// DeleteOlderThan removes entries created before the cutoff
func (s *MongoAuditSink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}
	return result.DeletedCount, nil
}
