package mongo

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Error is the error class of the mongo repositories.
var Error = errs.Class("mongo")

// Default connection timeout
const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI and
// verifies it with a ping against the primary.
func ConnectDB(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// The initial connect can succeed against an unresponsive server.
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, Error.Wrap(err)
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return Error.Wrap(client.Disconnect(ctx))
}

// EnsureIndexes creates the indexes of every collection used by the server.
// Failures are logged and do not stop startup.
func EnsureIndexes(ctx context.Context, log *zap.Logger, db *mongo.Database) {
	ensure := func(collection *mongo.Collection, indexes []mongo.IndexModel) {
		if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
			log.Warn("failed to create indexes",
				zap.String("collection", collection.Name()), zap.Error(err))
		}
	}
	ensure(db.Collection(userCollectionName), userIndexes())
	ensure(db.Collection(folderCollectionName), folderIndexes())
	ensure(db.Collection(itemCollectionName), itemIndexes())
	ensure(db.Collection(fileCollectionName), fileIndexes())
	ensure(db.Collection(annotationCollectionName), annotationIndexes())
	ensure(db.Collection(settingCollectionName), settingIndexes())
}
