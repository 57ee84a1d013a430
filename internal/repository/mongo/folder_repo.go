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

const folderCollectionName = "folder"

type mongoFolderRepository struct {
	collection *mongo.Collection
}

// NewMongoFolderRepository creates a new Folder repository backed by MongoDB.
func NewMongoFolderRepository(db *mongo.Database) repository.FolderRepository {
	return &mongoFolderRepository{
		collection: db.Collection(folderCollectionName),
	}
}

// Create inserts a new folder into the database.
func (r *mongoFolderRepository) Create(ctx context.Context, folder *domain.Folder) (primitive.ObjectID, error) {
	if folder.Name == "" {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}

	folder.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	folder.CreatedAt = now
	folder.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, folder); err != nil {
		return primitive.NilObjectID, Error.Wrap(err)
	}
	return folder.ID, nil
}

// GetByID retrieves a folder by its ID.
func (r *mongoFolderRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&folder)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, Error.Wrap(err)
	}
	return &folder, nil
}

func folderIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "parentId", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index(),
		},
	}
}
