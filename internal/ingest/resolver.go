package ingest

import (
	"context"
	"histomicsui/hui-server/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Outcome is the result of resolving the references of a payload.
type Outcome int

const (
	// Resolved means the payload may be applied now.
	Resolved Outcome = iota
	// Deferred means a retry was registered and the payload must not be
	// applied yet.
	Deferred
)

func (o Outcome) String() string {
	if o == Deferred {
		return "deferred"
	}
	return "resolved"
}

// girderIDKey is the element field holding a foreign item reference.
const girderIDKey = "girderId"

// Promoter turns an item into a large image when its content allows it.
type Promoter interface {
	Promote(ctx context.Context, itemID primitive.ObjectID) error
}

// Resolver rewrites placeholder item references inside annotation payloads
// to the items uploaded under the same correlation id.
type Resolver struct {
	log       *zap.Logger
	items     repository.ItemRepository
	files     repository.FileRepository
	cache     *PendingCache
	promoter  Promoter
	scanLimit int
}

// NewResolver constructs a Resolver. promoter may be nil.
func NewResolver(log *zap.Logger, items repository.ItemRepository, files repository.FileRepository, cache *PendingCache, promoter Promoter, scanLimit int) *Resolver {
	if scanLimit <= 0 {
		scanLimit = 100
	}
	return &Resolver{
		log:       log,
		items:     items,
		files:     files,
		cache:     cache,
		promoter:  promoter,
		scanLimit: scanLimit,
	}
}

// placeholder is an element whose girderId does not name a stored item.
type placeholder struct {
	element map[string]interface{}
	key     string
}

// Resolve inspects the first elements of every annotation for references
// that are not real items. When every such placeholder names an identifier
// already recorded for correlationID, the references are rewritten in place
// and Resolved is returned. Otherwise a retry of task is attached to the
// cache and Deferred is returned.
func (r *Resolver) Resolve(ctx context.Context, annotations []interface{}, correlationID string, task Task) (Outcome, error) {
	placeholders := r.placeholders(ctx, annotations)
	if len(placeholders) == 0 || correlationID == "" {
		return Resolved, nil
	}

	keys := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		keys = append(keys, p.key)
	}

	records, ready := r.cache.Await(correlationID, keys, task.Retry())
	if !ready {
		r.log.Debug("deferring annotation until referenced uploads arrive",
			zap.String("uuid", correlationID),
			zap.Strings("identifiers", keys),
			zap.Int("attempt", task.Attempt))
		return Deferred, nil
	}

	resolved := map[string]primitive.ObjectID{}
	for _, p := range placeholders {
		itemID, ok := resolved[p.key]
		if !ok {
			var err error
			itemID, err = r.recordedItem(ctx, records[p.key].File.ID, records[p.key].File.ItemID)
			if err != nil {
				return Resolved, err
			}
			resolved[p.key] = itemID
		}
		p.element[girderIDKey] = itemID.Hex()
	}

	promoted := map[primitive.ObjectID]bool{}
	for key, itemID := range resolved {
		if promoted[itemID] {
			continue
		}
		promoted[itemID] = true
		r.promote(ctx, key, itemID)
	}
	return Resolved, nil
}

// placeholders returns the candidate elements whose girderId does not load
// as an item.
func (r *Resolver) placeholders(ctx context.Context, annotations []interface{}) []placeholder {
	var found []placeholder
	for _, annotation := range annotations {
		object, ok := annotation.(map[string]interface{})
		if !ok {
			continue
		}
		elements, _ := object["elements"].([]interface{})
		if len(elements) > r.scanLimit {
			elements = elements[:r.scanLimit]
		}
		for _, raw := range elements {
			element, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			key, ok := element[girderIDKey].(string)
			if !ok {
				continue
			}
			if r.isItem(ctx, key) {
				continue
			}
			found = append(found, placeholder{element: element, key: key})
		}
	}
	return found
}

func (r *Resolver) isItem(ctx context.Context, id string) bool {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false
	}
	_, err = r.items.GetByID(ctx, objectID)
	return err == nil
}

// recordedItem returns the item of a recorded upload, loading its file when
// the event did not carry the item id.
func (r *Resolver) recordedItem(ctx context.Context, fileID, itemID primitive.ObjectID) (primitive.ObjectID, error) {
	if itemID != primitive.NilObjectID {
		return itemID, nil
	}
	file, err := r.files.GetByID(ctx, fileID)
	if err != nil {
		return primitive.NilObjectID, ErrLookup.New("recorded file %s: %v", fileID.Hex(), err)
	}
	return file.ItemID, nil
}

func (r *Resolver) promote(ctx context.Context, key string, itemID primitive.ObjectID) {
	if r.promoter == nil {
		return
	}
	if err := r.promoter.Promote(ctx, itemID); err != nil {
		r.log.Debug("large image promotion failed",
			zap.String("identifier", key),
			zap.String("item_id", itemID.Hex()),
			zap.Error(err))
	}
}
