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

const annotationCollectionName = "annotation"

type mongoAnnotationRepository struct {
	collection *mongo.Collection
}

// NewMongoAnnotationRepository creates a new Annotation repository backed by MongoDB.
func NewMongoAnnotationRepository(db *mongo.Database) repository.AnnotationRepository {
	return &mongoAnnotationRepository{
		collection: db.Collection(annotationCollectionName),
	}
}

// Create inserts a new annotation.
func (r *mongoAnnotationRepository) Create(ctx context.Context, annotation *domain.Annotation) (primitive.ObjectID, error) {
	if annotation.ItemID == primitive.NilObjectID || annotation.CreatorID == primitive.NilObjectID {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}

	annotation.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	annotation.CreatedAt = now
	annotation.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, annotation); err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}
	return annotation.ID, nil
}

// GetByID retrieves an annotation by its ID.
func (r *mongoAnnotationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Annotation, error) {
	var annotation domain.Annotation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&annotation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, Error.Wrap(err)
	}
	return &annotation, nil
}

// GetByItemID retrieves the annotations of an item, oldest first.
func (r *mongoAnnotationRepository) GetByItemID(ctx context.Context, itemID primitive.ObjectID) ([]domain.Annotation, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"itemId": itemID}, findOptions)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer cursor.Close(ctx)

	var annotations []domain.Annotation
	if err = cursor.All(ctx, &annotations); err != nil {
		return nil, Error.Wrap(err)
	}
	return annotations, nil
}

// ExistsForSource reports whether the sidecar position was already ingested.
func (r *mongoAnnotationRepository) ExistsForSource(ctx context.Context, itemID, sourceFileID primitive.ObjectID, index int) (bool, error) {
	filter := bson.M{
		"itemId":       itemID,
		"sourceFileId": sourceFileID,
		"sourceIndex":  index,
	}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

func annotationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "itemId", Value: 1}, {Key: "created", Value: 1}},
			Options: options.Index(),
		},
		{
			// One annotation per sidecar position and item.
			Keys: bson.D{
				{Key: "itemId", Value: 1},
				{Key: "sourceFileId", Value: 1},
				{Key: "sourceIndex", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"sourceFileId": bson.M{"$exists": true}}),
		},
	}
}
