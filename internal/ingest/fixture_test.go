package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/largeimage"
	"histomicsui/hui-server/internal/repository/memory"
	"histomicsui/hui-server/internal/service"
	"histomicsui/hui-server/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSettings struct {
	values map[string]bool
}

func (s *fakeSettings) GetBool(ctx context.Context, key string) (bool, error) {
	return s.values[key], nil
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	db         *memory.DB
	store      *storage.MemoryStorage
	clock      *fakeClock
	cache      *PendingCache
	settings   *fakeSettings
	dispatcher *Dispatcher

	admin  *domain.User
	folder *domain.Folder
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       memory.New(),
		store:    storage.NewMemoryStorage(),
		clock:    newFakeClock(),
		settings: &fakeSettings{values: map[string]bool{}},
	}
	f.cache = NewPendingCache(CacheOptions{Capacity: 100, Expiration: 24 * time.Hour, Now: f.clock.Now})
	f.dispatcher = NewDispatcher(log, Deps{
		Users:       f.db.Users(),
		Folders:     f.db.Folders(),
		Items:       f.db.Items(),
		Files:       f.db.Files(),
		Annotations: f.db.Annotations(),
		Storage:     f.store,
		Cache:       f.cache,
		Promoter:    largeimage.NewPromoter(log, f.db.Items(), f.db.Files()),
		Settings:    f.settings,
		Remover:     service.NewItemService(log, f.db.Items(), f.db.Files(), f.store),
	}, config)

	f.admin = f.user("admin", true)
	f.folder = f.newFolder("Collection", f.admin, false)
	return f
}

func (f *fixture) user(login string, admin bool) *domain.User {
	f.t.Helper()
	user := &domain.User{Login: login, Email: login + "@example.com", Admin: admin}
	_, err := f.db.Users().Create(f.ctx, user)
	require.NoError(f.t, err)
	return user
}

func (f *fixture) newFolder(name string, creator *domain.User, public bool, access ...domain.AccessEntry) *domain.Folder {
	f.t.Helper()
	folder := &domain.Folder{Name: name, CreatorID: creator.ID, Public: public, Access: access}
	_, err := f.db.Folders().Create(f.ctx, folder)
	require.NoError(f.t, err)
	return folder
}

func (f *fixture) item(name string, folder *domain.Folder) *domain.Item {
	f.t.Helper()
	item := &domain.Item{Name: name, FolderID: folder.ID, CreatorID: folder.CreatorID}
	_, err := f.db.Items().Create(f.ctx, item)
	require.NoError(f.t, err)
	return item
}

// upload stores content as a new file of item.
func (f *fixture) upload(item *domain.Item, name, mimeType string, content []byte) *domain.File {
	f.t.Helper()
	key := storage.NewObjectKey(item.ID.Hex())
	require.NoError(f.t, f.store.Put(f.ctx, key, bytes.NewReader(content), int64(len(content)), mimeType))

	file := &domain.File{
		ItemID:    item.ID,
		CreatorID: f.admin.ID,
		Name:      name,
		MimeType:  mimeType,
		Size:      int64(len(content)),
		ObjectKey: key,
	}
	_, err := f.db.Files().Create(f.ctx, file)
	require.NoError(f.t, err)
	return file
}

// sidecar uploads a JSON payload into an item of its own.
func (f *fixture) sidecar(name string, payload string) *domain.File {
	f.t.Helper()
	return f.upload(f.item(name, f.folder), name, "application/json", []byte(payload))
}

func (f *fixture) event(file *domain.File, reference map[string]string) domain.UploadEvent {
	f.t.Helper()
	event := domain.UploadEvent{File: domain.FileRef{ID: file.ID, ItemID: file.ItemID}}
	if reference != nil {
		encoded, err := json.Marshal(reference)
		require.NoError(f.t, err)
		value := string(encoded)
		event.Reference = &value
	}
	return event
}

func (f *fixture) process(event domain.UploadEvent) error {
	return f.dispatcher.Process(f.ctx, NewTask(event))
}

func (f *fixture) annotations(item *domain.Item) []domain.Annotation {
	f.t.Helper()
	annotations, err := f.db.Annotations().GetByItemID(f.ctx, item.ID)
	require.NoError(f.t, err)
	return annotations
}

func (f *fixture) reload(item *domain.Item) *domain.Item {
	f.t.Helper()
	stored, err := f.db.Items().GetByID(f.ctx, item.ID)
	require.NoError(f.t, err)
	return stored
}

func ref(identifier string, fields ...string) map[string]string {
	reference := map[string]string{"identifier": identifier}
	for i := 0; i+1 < len(fields); i += 2 {
		reference[fields[i]] = fields[i+1]
	}
	return reference
}
