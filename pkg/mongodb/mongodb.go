package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	UsersCollection     = "users"
	CVRecordsCollection = "cv_records"
)

// DB wraps a connected mongo database handle.
type DB struct {
	*mongo.Database
	client *mongo.Client
	logger *logger.Logger
}

// Connect dials MongoDB, verifies the connection with a ping and returns the
// configured database.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(uint64(max(cfg.MaxOpenConns, 1))).
		SetMinPoolSize(1)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info().
		Str("uri", config.RedactURL(cfg.MongoURI)).
		Str("database", cfg.MongoDatabase).
		Msg("connected to mongo")

	return &DB{
		Database: client.Database(cfg.MongoDatabase),
		client:   client,
		logger:   log,
	}, nil
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// (owner_id, storage_path) index enforces upload deduplication.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = db.Collection(CVRecordsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "storage_path", Value: 1}},
			Options: options.Index().SetName("uniq_owner_path").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_owner_active_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("create cv record indexes: %w", err)
	}

	db.logger.Info().Msg("mongo indexes ensured")
	return nil
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{"status": "up"}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.client.Ping(ctx, nil); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}
	return status
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}
