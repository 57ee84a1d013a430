package service

import (
	"bytes"
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository/memory"
	"histomicsui/hui-server/internal/storage"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

func TestItemService_RemoveItem(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	store := storage.NewMemoryStorage()
	items := NewItemService(zaptest.NewLogger(t), db.Items(), db.Files(), store)

	item := &domain.Item{Name: "sample.anot", FolderID: primitive.NewObjectID()}
	_, err := db.Items().Create(ctx, item)
	require.NoError(t, err)

	var keys []string
	for _, name := range []string{"a.anot", "b.anot"} {
		key := storage.NewObjectKey(item.ID.Hex())
		require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("{}")), 2, "application/json"))
		_, err := db.Files().Create(ctx, &domain.File{ItemID: item.ID, Name: name, ObjectKey: key, Size: 2})
		require.NoError(t, err)
		keys = append(keys, key)
	}

	require.NoError(t, items.RemoveItem(ctx, item.ID))

	_, err = db.Items().GetByID(ctx, item.ID)
	assert.Error(t, err)
	files, err := db.Files().ListByItem(ctx, item.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, files)
	for _, key := range keys {
		assert.False(t, store.Has(key))
	}

	// Removing again is harmless.
	require.NoError(t, items.RemoveItem(ctx, item.ID))
}
