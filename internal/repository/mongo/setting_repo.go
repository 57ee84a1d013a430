package mongo

import (
	"context"
	"errors"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const settingCollectionName = "setting"

type mongoSettingRepository struct {
	collection *mongo.Collection
}

// NewMongoSettingRepository creates a settings store backed by MongoDB.
func NewMongoSettingRepository(db *mongo.Database) repository.SettingRepository {
	return &mongoSettingRepository{
		collection: db.Collection(settingCollectionName),
	}
}

// Get returns the stored setting, or repository.ErrNotFound.
func (r *mongoSettingRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := r.collection.FindOne(ctx, bson.M{"key": key}).Decode(&setting)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, Error.Wrap(err)
	}
	return &setting, nil
}

// Set upserts a setting by key.
func (r *mongoSettingRepository) Set(ctx context.Context, setting *domain.Setting) error {
	if setting.Key == "" {
		return repository.ErrInvalidInput
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"key": setting.Key},
		bson.M{"$set": bson.M{"value": setting.Value}},
		options.Update().SetUpsert(true))
	return Error.Wrap(err)
}

// Unset removes a setting so its default applies again.
func (r *mongoSettingRepository) Unset(ctx context.Context, key string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"key": key})
	return Error.Wrap(err)
}

func settingIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
}
