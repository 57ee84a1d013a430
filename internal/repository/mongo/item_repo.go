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

const itemCollectionName = "item"

// mongoItemRepository implements repository.ItemRepository
type mongoItemRepository struct {
	collection *mongo.Collection
}

// NewMongoItemRepository creates a new Item repository backed by MongoDB.
func NewMongoItemRepository(db *mongo.Database) repository.ItemRepository {
	return &mongoItemRepository{
		collection: db.Collection(itemCollectionName),
	}
}

// Create inserts a new item into the database.
func (r *mongoItemRepository) Create(ctx context.Context, item *domain.Item) (primitive.ObjectID, error) {
	if item.Name == "" || item.FolderID == primitive.NilObjectID {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}

	item.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, item)
	if err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, Error.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves an item by its ID.
func (r *mongoItemRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Item, error) {
	var item domain.Item
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, Error.Wrap(err)
	}
	return &item, nil
}

// SetMetadata sets each supplied key under the item's meta document in a
// single update.
func (r *mongoItemRepository) SetMetadata(ctx context.Context, id primitive.ObjectID, meta map[string]interface{}) error {
	set := bson.M{"updated": time.Now().UTC()}
	for key, value := range meta {
		set["meta."+key] = value
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return Error.Wrap(err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetLargeImage records the large-image backing of an item.
func (r *mongoItemRepository) SetLargeImage(ctx context.Context, id primitive.ObjectID, largeImage *domain.LargeImage) error {
	update := bson.M{
		"$set": bson.M{
			"largeImage": largeImage,
			"updated":    time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return Error.Wrap(err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an item record. Files are removed separately.
func (r *mongoItemRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return Error.Wrap(err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func itemIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "folderId", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "largeImage.fileId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
}
