package ingest

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Applier persists decoded sidecar payloads.
type Applier struct {
	log         *zap.Logger
	items       repository.ItemRepository
	annotations repository.AnnotationRepository
}

// NewApplier constructs an Applier.
func NewApplier(log *zap.Logger, items repository.ItemRepository, annotations repository.AnnotationRepository) *Applier {
	return &Applier{log: log, items: items, annotations: annotations}
}

// ApplyAnnotations creates one annotation on item per object of list,
// owned by user. Positions of list already created from the same source
// file are skipped, so re-applying a payload never duplicates annotations.
// The first failure stops the remaining objects and is returned. It
// returns the number of annotations created.
func (a *Applier) ApplyAnnotations(ctx context.Context, item *domain.Item, user *domain.User, sourceFileID primitive.ObjectID, list []interface{}) (int, error) {
	created := 0
	for index, raw := range list {
		body, ok := raw.(map[string]interface{})
		if !ok {
			return created, ErrDecode.New("annotation %d is not an object", index)
		}

		exists, err := a.annotations.ExistsForSource(ctx, item.ID, sourceFileID, index)
		if err != nil {
			return created, Error.Wrap(err)
		}
		if exists {
			a.log.Debug("annotation already ingested",
				zap.String("item_id", item.ID.Hex()),
				zap.String("file_id", sourceFileID.Hex()),
				zap.Int("index", index))
			continue
		}

		annotation := &domain.Annotation{
			ItemID:       item.ID,
			CreatorID:    user.ID,
			Body:         body,
			SourceFileID: sourceFileID,
			SourceIndex:  index,
		}
		if _, err := a.annotations.Create(ctx, annotation); err != nil {
			return created, Error.New("create annotation %d: %v", index, err)
		}
		created++
	}
	return created, nil
}

// ApplyMetadata merges meta into the item's metadata. Null values are
// rejected rather than treated as deletions, as are keys that cannot be
// stored as document fields. The item is left unchanged on rejection.
func (a *Applier) ApplyMetadata(ctx context.Context, item *domain.Item, meta map[string]interface{}) error {
	for key, value := range meta {
		switch {
		case value == nil:
			return ErrInvalidMetadata.New("null value for key %q", key)
		case key == "":
			return ErrInvalidMetadata.New("empty key")
		case strings.Contains(key, "."):
			return ErrInvalidMetadata.New("key %q must not contain '.'", key)
		case strings.HasPrefix(key, "$"):
			return ErrInvalidMetadata.New("key %q must not start with '$'", key)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return Error.Wrap(a.items.SetMetadata(ctx, item.ID, meta))
}
