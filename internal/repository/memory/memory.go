// Package memory implements every repository on top of process memory. It
// backs `database.backend: memory` for local runs and is what the package
// tests run against.
package memory

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DB holds the collections. The zero value is not usable; use New.
type DB struct {
	mu          sync.Mutex
	users       map[primitive.ObjectID]domain.User
	folders     map[primitive.ObjectID]domain.Folder
	items       map[primitive.ObjectID]domain.Item
	files       map[primitive.ObjectID]domain.File
	annotations map[primitive.ObjectID]domain.Annotation
	settings    map[string]domain.Setting
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:       map[primitive.ObjectID]domain.User{},
		folders:     map[primitive.ObjectID]domain.Folder{},
		items:       map[primitive.ObjectID]domain.Item{},
		files:       map[primitive.ObjectID]domain.File{},
		annotations: map[primitive.ObjectID]domain.Annotation{},
		settings:    map[string]domain.Setting{},
	}
}

// Users returns the user repository.
func (db *DB) Users() repository.UserRepository { return (*userRepo)(db) }

// Folders returns the folder repository.
func (db *DB) Folders() repository.FolderRepository { return (*folderRepo)(db) }

// Items returns the item repository.
func (db *DB) Items() repository.ItemRepository { return (*itemRepo)(db) }

// Files returns the file repository.
func (db *DB) Files() repository.FileRepository { return (*fileRepo)(db) }

// Annotations returns the annotation repository.
func (db *DB) Annotations() repository.AnnotationRepository { return (*annotationRepo)(db) }

// Settings returns the settings repository.
func (db *DB) Settings() repository.SettingRepository { return (*settingRepo)(db) }

type userRepo DB

func (r *userRepo) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Login == "" || user.Email == "" {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return user.ID, nil
}

func (r *userRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *userRepo) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Login == login {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

type folderRepo DB

func (r *folderRepo) Create(ctx context.Context, folder *domain.Folder) (primitive.ObjectID, error) {
	if folder.Name == "" {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	folder.ID = primitive.NewObjectID()
	folder.CreatedAt = time.Now().UTC()
	folder.UpdatedAt = folder.CreatedAt
	stored := *folder
	stored.Access = append([]domain.AccessEntry(nil), folder.Access...)
	r.folders[folder.ID] = stored
	return folder.ID, nil
}

func (r *folderRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	folder, ok := r.folders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	folder.Access = append([]domain.AccessEntry(nil), folder.Access...)
	return &folder, nil
}

type itemRepo DB

func (r *itemRepo) Create(ctx context.Context, item *domain.Item) (primitive.ObjectID, error) {
	if item.Name == "" || item.FolderID == primitive.NilObjectID {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	r.items[item.ID] = cloneItem(*item)
	return item.ID, nil
}

func (r *itemRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	item = cloneItem(item)
	return &item, nil
}

func (r *itemRepo) SetMetadata(ctx context.Context, id primitive.ObjectID, meta map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	item = cloneItem(item)
	if item.Meta == nil {
		item.Meta = map[string]interface{}{}
	}
	for key, value := range meta {
		item.Meta[key] = value
	}
	item.UpdatedAt = time.Now().UTC()
	r.items[id] = item
	return nil
}

func (r *itemRepo) SetLargeImage(ctx context.Context, id primitive.ObjectID, largeImage *domain.LargeImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	if largeImage != nil {
		copied := *largeImage
		largeImage = &copied
	}
	item.LargeImage = largeImage
	item.UpdatedAt = time.Now().UTC()
	r.items[id] = item
	return nil
}

func (r *itemRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func cloneItem(item domain.Item) domain.Item {
	if item.Meta != nil {
		meta := make(map[string]interface{}, len(item.Meta))
		for key, value := range item.Meta {
			meta[key] = value
		}
		item.Meta = meta
	}
	if item.LargeImage != nil {
		largeImage := *item.LargeImage
		item.LargeImage = &largeImage
	}
	return item
}

type fileRepo DB

func (r *fileRepo) Create(ctx context.Context, file *domain.File) (primitive.ObjectID, error) {
	if file.ItemID == primitive.NilObjectID || file.ObjectKey == "" {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	file.ID = primitive.NewObjectID()
	file.CreatedAt = time.Now().UTC()
	r.files[file.ID] = *file
	return file.ID, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &file, nil
}

func (r *fileRepo) ListByItem(ctx context.Context, itemID primitive.ObjectID, limit int) ([]domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var files []domain.File
	for _, file := range r.files {
		if file.ItemID == itemID {
			files = append(files, file)
		}
	}
	// ObjectIDs embed their creation time, so they order like "created".
	sort.Slice(files, func(i, j int) bool {
		return files[i].ID.Hex() < files[j].ID.Hex()
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (r *fileRepo) DeleteByItem(ctx context.Context, itemID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, file := range r.files {
		if file.ItemID == itemID {
			delete(r.files, id)
		}
	}
	return nil
}

type annotationRepo DB

func (r *annotationRepo) Create(ctx context.Context, annotation *domain.Annotation) (primitive.ObjectID, error) {
	if annotation.ItemID == primitive.NilObjectID || annotation.CreatorID == primitive.NilObjectID {
		return primitive.NilObjectID, repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	annotation.ID = primitive.NewObjectID()
	annotation.CreatedAt = time.Now().UTC()
	annotation.UpdatedAt = annotation.CreatedAt
	r.annotations[annotation.ID] = *annotation
	return annotation.ID, nil
}

func (r *annotationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	annotation, ok := r.annotations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &annotation, nil
}

func (r *annotationRepo) GetByItemID(ctx context.Context, itemID primitive.ObjectID) ([]domain.Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var annotations []domain.Annotation
	for _, annotation := range r.annotations {
		if annotation.ItemID == itemID {
			annotations = append(annotations, annotation)
		}
	}
	sort.Slice(annotations, func(i, j int) bool {
		return annotations[i].ID.Hex() < annotations[j].ID.Hex()
	})
	return annotations, nil
}

func (r *annotationRepo) ExistsForSource(ctx context.Context, itemID, sourceFileID primitive.ObjectID, index int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, annotation := range r.annotations {
		if annotation.ItemID == itemID && annotation.SourceFileID == sourceFileID && annotation.SourceIndex == index {
			return true, nil
		}
	}
	return false, nil
}

type settingRepo DB

func (r *settingRepo) Get(ctx context.Context, key string) (*domain.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	setting, ok := r.settings[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &setting, nil
}

func (r *settingRepo) Set(ctx context.Context, setting *domain.Setting) error {
	if setting.Key == "" {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[setting.Key] = *setting
	return nil
}

func (r *settingRepo) Unset(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.settings, key)
	return nil
}
