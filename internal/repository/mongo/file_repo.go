package mongo

import (
	"context"
	"errors"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const fileCollectionName = "file"

// mongoFileRepository implements repository.FileRepository
type mongoFileRepository struct {
	collection *mongo.Collection
}

// NewMongoFileRepository creates a new File repository backed by MongoDB.
func NewMongoFileRepository(db *mongo.Database) repository.FileRepository {
	return &mongoFileRepository{
		collection: db.Collection(fileCollectionName),
	}
}

// Create inserts new file metadata into the database.
func (r *mongoFileRepository) Create(ctx context.Context, file *domain.File) (primitive.ObjectID, error) {
	if file.ItemID == primitive.NilObjectID || file.ObjectKey == "" {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}

	file.ID = primitive.NewObjectID()
	file.CreatedAt = time.Now().UTC()

	if _, err := r.collection.InsertOne(ctx, file); err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}
	return file.ID, nil
}

// GetByID retrieves file metadata by its ID.
func (r *mongoFileRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.File, error) {
	var file domain.File
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, Error.Wrap(err)
	}
	return &file, nil
}

// ListByItem returns the files of an item, oldest first.
func (r *mongoFileRepository) ListByItem(ctx context.Context, itemID primitive.ObjectID, limit int) ([]domain.File, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"itemId": itemID}, findOptions)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer cursor.Close(ctx)

	var files []domain.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, Error.Wrap(err)
	}
	return files, nil
}

// DeleteByItem removes every file record of an item.
func (r *mongoFileRepository) DeleteByItem(ctx context.Context, itemID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"itemId": itemID})
	return Error.Wrap(err)
}

func fileIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "itemId", Value: 1}, {Key: "created", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "objectKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
}
