package database

import (
	"context"
	"fmt"
	"time"

	"garage-backend/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultDatabase = "garage"

// IndexCreator is implemented by every repository that owns a collection.
type IndexCreator interface {
	CreateIndexes(ctx context.Context) error
}

// Connect opens and pings a client. The database name comes from dbName,
// then from the URI path, then the default.
func Connect(ctx context.Context, mongoURI, dbName string, log *logger.Logger) (*mongo.Database, error) {
	if log == nil {
		log = logger.Discard()
	}

	cs, err := connstring.ParseAndValidate(mongoURI)
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := dbName
	if name == "" {
		name = cs.Database
	}
	if name == "" {
		name = defaultDatabase
	}

	log.WithField("database", name).Info("Connected to MongoDB")
	return client.Database(name), nil
}

// EnsureIndexes creates the indexes of every collection. A failure is logged
// and the remaining collections are still attempted; the history query falls
// back to an in-memory sort while its index is missing.
func EnsureIndexes(ctx context.Context, log *logger.Logger, creators ...IndexCreator) error {
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var failed int
	for _, c := range creators {
		if err := c.CreateIndexes(ctx); err != nil {
			failed++
			log.WithError(err).WithField("repository", fmt.Sprintf("%T", c)).Warn("Failed to create indexes")
		}
	}

	if failed > 0 {
		return fmt.Errorf("index creation failed for %d of %d collections", failed, len(creators))
	}
	log.Info("Database indexes ensured")
	return nil
}

func Disconnect(client *mongo.Client, log *logger.Logger) error {
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	log.Info("Disconnected from MongoDB")
	return nil
}
