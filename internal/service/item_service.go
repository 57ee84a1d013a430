package service

import (
	"context"
	"errors"
	"histomicsui/hui-server/internal/repository"
	"histomicsui/hui-server/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ItemService removes items along with everything stored for them.
type ItemService interface {
	RemoveItem(ctx context.Context, itemID primitive.ObjectID) error
}

type itemService struct {
	log         *zap.Logger
	itemRepo    repository.ItemRepository
	fileRepo    repository.FileRepository
	fileStorage storage.FileStorage
}

// NewItemService creates a new instance of itemService.
func NewItemService(log *zap.Logger, itemRepo repository.ItemRepository, fileRepo repository.FileRepository, fileStorage storage.FileStorage) ItemService {
	return &itemService{
		log:         log,
		itemRepo:    itemRepo,
		fileRepo:    fileRepo,
		fileStorage: fileStorage,
	}
}

// RemoveItem deletes the stored content of every file of the item, the
// file records, and then the item. Objects already missing from storage
// are skipped.
func (s *itemService) RemoveItem(ctx context.Context, itemID primitive.ObjectID) error {
	files, err := s.fileRepo.ListByItem(ctx, itemID, 0)
	if err != nil {
		return err
	}
	for _, file := range files {
		err := s.fileStorage.DeleteObject(ctx, file.ObjectKey)
		if err != nil && !storage.ErrObjectNotFound.Has(err) {
			return err
		}
	}
	if err := s.fileRepo.DeleteByItem(ctx, itemID); err != nil {
		return err
	}
	if err := s.itemRepo.Delete(ctx, itemID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.log.Debug("removed item", zap.String("item_id", itemID.Hex()), zap.Int("files", len(files)))
	return nil
}
