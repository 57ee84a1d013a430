package repository

import (
	"context"
	"histomicsui/hui-server/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
	ErrInvalidInput = RepositoryError("invalid input")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByLogin(ctx context.Context, login string) (*domain.User, error)
}

// FolderRepository defines the interface for interacting with folders.
type FolderRepository interface {
	Create(ctx context.Context, folder *domain.Folder) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Folder, error)
}

// ItemRepository defines the interface for interacting with items.
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Item, error)
	// SetMetadata sets every key of meta inside the item's meta map, leaving
	// other keys untouched.
	SetMetadata(ctx context.Context, id primitive.ObjectID, meta map[string]interface{}) error
	SetLargeImage(ctx context.Context, id primitive.ObjectID, largeImage *domain.LargeImage) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// FileRepository defines the interface for interacting with file metadata.
type FileRepository interface {
	Create(ctx context.Context, file *domain.File) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.File, error)
	// ListByItem returns up to limit files of the item, oldest first. A
	// non-positive limit returns every file.
	ListByItem(ctx context.Context, itemID primitive.ObjectID, limit int) ([]domain.File, error)
	DeleteByItem(ctx context.Context, itemID primitive.ObjectID) error
}

// AnnotationRepository defines the interface for interacting with annotations.
type AnnotationRepository interface {
	Create(ctx context.Context, annotation *domain.Annotation) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Annotation, error)
	GetByItemID(ctx context.Context, itemID primitive.ObjectID) ([]domain.Annotation, error)
	// ExistsForSource reports whether an annotation was already created on
	// the item from the given sidecar file position.
	ExistsForSource(ctx context.Context, itemID, sourceFileID primitive.ObjectID, index int) (bool, error)
}

// SettingRepository defines the interface for the key/value settings store.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	Set(ctx context.Context, setting *domain.Setting) error
	Unset(ctx context.Context, key string) error
}
