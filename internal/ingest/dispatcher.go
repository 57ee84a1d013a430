package ingest

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"histomicsui/hui-server/internal/storage"
	"io"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultMaxFileSize is the largest sidecar buffered when none is
// configured.
const DefaultMaxFileSize int64 = 1 << 30

// Settings reads server-wide settings.
type Settings interface {
	GetBool(ctx context.Context, key string) (bool, error)
}

// ItemRemover deletes an item together with its files and stored content.
type ItemRemover interface {
	RemoveItem(ctx context.Context, itemID primitive.ObjectID) error
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Users       repository.UserRepository
	Folders     repository.FolderRepository
	Items       repository.ItemRepository
	Files       repository.FileRepository
	Annotations repository.AnnotationRepository
	Storage     storage.FileStorage
	Cache       *PendingCache
	Promoter    Promoter
	Settings    Settings
	Remover     ItemRemover
}

// Config tunes a Dispatcher.
type Config struct {
	MaxFileSize int64
	ScanLimit   int
}

// Dispatcher is the entry point of the ingestion pipeline. Every completed
// upload is submitted to it; sidecar uploads are decoded and applied to the
// item their reference names.
type Dispatcher struct {
	log      *zap.Logger
	deps     Deps
	cache    *PendingCache
	resolver *Resolver
	applier  *Applier
	runner   TaskRunner

	maxFileSize int64
}

// NewDispatcher constructs a Dispatcher. Tasks run inline until another
// runner is installed with SetRunner.
func NewDispatcher(log *zap.Logger, deps Deps, config Config) *Dispatcher {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if deps.Cache == nil {
		deps.Cache = NewPendingCache(CacheOptions{})
	}
	d := &Dispatcher{
		log:         log,
		deps:        deps,
		cache:       deps.Cache,
		resolver:    NewResolver(log.Named("resolver"), deps.Items, deps.Files, deps.Cache, deps.Promoter, config.ScanLimit),
		applier:     NewApplier(log.Named("applier"), deps.Items, deps.Annotations),
		maxFileSize: config.MaxFileSize,
	}
	d.runner = NewInlineRunner(log, d.Process)
	return d
}

// SetRunner replaces the runner used for new and released tasks.
func (d *Dispatcher) SetRunner(runner TaskRunner) {
	d.runner = runner
}

// Cache returns the pending upload cache.
func (d *Dispatcher) Cache() *PendingCache {
	return d.cache
}

// Submit schedules ingestion of a completed upload.
func (d *Dispatcher) Submit(ctx context.Context, event domain.UploadEvent) error {
	return d.runner.Submit(ctx, NewTask(event))
}

// Process runs one ingestion attempt. Uploads that are not sidecars, and
// sidecars whose target cannot be loaded, are ignored. Oversized, malformed
// or unstorable payloads fail the task.
func (d *Dispatcher) Process(ctx context.Context, task Task) error {
	ref, ok := ParseReference(task.Event)
	if !ok || ref.Identifier == "" {
		d.log.Debug("upload carries no reference", zap.String("file_id", task.Event.File.ID.Hex()))
		return nil
	}

	if ref.CorrelationID != "" {
		released := d.cache.Record(ref.CorrelationID, ref.Identifier, task.Event)
		d.resubmit(ctx, released)
	}

	var err error
	switch Classify(ref.Identifier) {
	case PayloadAnnotation:
		err = d.processAnnotations(ctx, task, ref)
	case PayloadMetadata:
		err = d.processMetadata(ctx, task, ref)
	default:
		d.log.Debug("reference is not a sidecar", zap.String("identifier", ref.Identifier))
		return nil
	}

	if ErrLookup.Has(err) {
		d.log.Error("could not load models for sidecar",
			zap.String("identifier", ref.Identifier),
			zap.String("file_id", task.Event.File.ID.Hex()),
			zap.Error(err))
		return nil
	}
	return err
}

// resubmit hands released waiters back to the runner. A waiter the runner
// refuses is run on the current goroutine instead of being lost.
func (d *Dispatcher) resubmit(ctx context.Context, tasks []Task) {
	for _, task := range tasks {
		d.log.Debug("reprocessing deferred upload",
			zap.String("task_id", task.ID),
			zap.String("file_id", task.Event.File.ID.Hex()),
			zap.Int("attempt", task.Attempt))
		err := d.runner.Submit(ctx, task)
		if ErrQueueFull.Has(err) || ErrRejected.Has(err) {
			d.log.Warn("runner refused reprocess task, running inline",
				zap.String("task_id", task.ID), zap.Error(err))
			_ = runTask(ctx, d.log, d.Process, task)
		}
	}
}

func (d *Dispatcher) processAnnotations(ctx context.Context, task Task, ref *domain.UploadReference) error {
	target, err := d.loadTarget(ctx, ref, domain.AccessRead)
	if err != nil {
		return err
	}
	sidecar, err := d.loadSidecar(ctx, task.Event, target.user)
	if err != nil {
		return err
	}

	data, err := d.readPayload(ctx, sidecar)
	if err != nil {
		d.log.Error("could not parse annotation file", zap.String("file_id", sidecar.ID.Hex()), zap.Error(err))
		return err
	}
	list, ok := data.([]interface{})
	if !ok {
		list = []interface{}{data}
	}

	if ref.CorrelationID != "" {
		outcome, err := d.resolver.Resolve(ctx, list, ref.CorrelationID, task)
		if err != nil {
			return err
		}
		if outcome == Deferred {
			return nil
		}
	}

	created, err := d.applier.ApplyAnnotations(ctx, target.item, target.user, sidecar.ID, list)
	if err != nil {
		d.log.Error("could not create annotation object from data",
			zap.String("item_id", target.item.ID.Hex()),
			zap.Int("created", created),
			zap.Error(err))
		return err
	}
	d.log.Info("ingested annotation file",
		zap.String("item_id", target.item.ID.Hex()),
		zap.String("file_id", sidecar.ID.Hex()),
		zap.Int("created", created))

	return d.cleanup(ctx, sidecar)
}

func (d *Dispatcher) processMetadata(ctx context.Context, task Task, ref *domain.UploadReference) error {
	target, err := d.loadTarget(ctx, ref, domain.AccessWrite)
	if err != nil {
		return err
	}
	sidecar, err := d.loadSidecar(ctx, task.Event, target.user)
	if err != nil {
		return err
	}

	data, err := d.readPayload(ctx, sidecar)
	if err != nil {
		d.log.Error("could not parse metadata file", zap.String("file_id", sidecar.ID.Hex()), zap.Error(err))
		return err
	}
	meta, ok := data.(map[string]interface{})
	if !ok {
		err := ErrDecode.New("metadata file %s is not an object", sidecar.ID.Hex())
		d.log.Error("could not parse metadata file", zap.Error(err))
		return err
	}

	if err := d.applier.ApplyMetadata(ctx, target.item, meta); err != nil {
		d.log.Error("could not set item metadata", zap.String("item_id", target.item.ID.Hex()), zap.Error(err))
		return err
	}
	d.log.Info("ingested metadata file",
		zap.String("item_id", target.item.ID.Hex()),
		zap.String("file_id", sidecar.ID.Hex()),
		zap.Int("keys", len(meta)))
	return nil
}

// target is the resource a sidecar is applied to.
type target struct {
	item  *domain.Item
	user  *domain.User
	image *domain.File
}

// loadTarget resolves the item, user and image file named by a reference
// and checks the user holds level on the item.
func (d *Dispatcher) loadTarget(ctx context.Context, ref *domain.UploadReference, level domain.AccessLevel) (*target, error) {
	if !ref.Actionable() {
		return nil, ErrLookup.New("reference %q names neither an item nor a file", ref.Identifier)
	}

	t := &target{}
	itemHex := ref.ItemID
	if ref.FileID != "" {
		image, err := d.loadFile(ctx, ref.FileID)
		if err != nil {
			return nil, err
		}
		t.image = image
		itemHex = image.ItemID.Hex()
	}

	itemID, err := primitive.ObjectIDFromHex(itemHex)
	if err != nil {
		return nil, ErrLookup.New("item id %q: %v", itemHex, err)
	}
	t.item, err = d.deps.Items.GetByID(ctx, itemID)
	if err != nil {
		return nil, ErrLookup.New("item %s: %v", itemHex, err)
	}

	if t.image == nil && t.item.IsLargeImage() {
		// The image file is informational; a missing one is not fatal.
		t.image, _ = d.deps.Files.GetByID(ctx, t.item.LargeImage.FileID)
	}

	folder, err := d.deps.Folders.GetByID(ctx, t.item.FolderID)
	if err != nil {
		return nil, ErrLookup.New("folder %s: %v", t.item.FolderID.Hex(), err)
	}

	if ref.UserID != "" {
		t.user, err = d.loadUser(ctx, ref.UserID)
	} else {
		t.user, err = d.loadUser(ctx, folder.CreatorID.Hex())
	}
	if err != nil {
		return nil, err
	}

	if !folder.HasAccess(t.user, level) {
		return nil, ErrLookup.New("user %s lacks %s access on item %s", t.user.ID.Hex(), level, t.item.ID.Hex())
	}
	return t, nil
}

// loadSidecar loads the uploaded file of the event and checks user may
// read it.
func (d *Dispatcher) loadSidecar(ctx context.Context, event domain.UploadEvent, user *domain.User) (*domain.File, error) {
	sidecar, err := d.deps.Files.GetByID(ctx, event.File.ID)
	if err != nil {
		return nil, ErrLookup.New("sidecar file %s: %v", event.File.ID.Hex(), err)
	}
	item, err := d.deps.Items.GetByID(ctx, sidecar.ItemID)
	if err != nil {
		return nil, ErrLookup.New("sidecar item %s: %v", sidecar.ItemID.Hex(), err)
	}
	folder, err := d.deps.Folders.GetByID(ctx, item.FolderID)
	if err != nil {
		return nil, ErrLookup.New("sidecar folder %s: %v", item.FolderID.Hex(), err)
	}
	if !folder.HasAccess(user, domain.AccessRead) {
		return nil, ErrLookup.New("user %s cannot read sidecar file %s", user.ID.Hex(), sidecar.ID.Hex())
	}
	return sidecar, nil
}

func (d *Dispatcher) loadFile(ctx context.Context, hex string) (*domain.File, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, ErrLookup.New("file id %q: %v", hex, err)
	}
	file, err := d.deps.Files.GetByID(ctx, id)
	if err != nil {
		return nil, ErrLookup.New("file %s: %v", hex, err)
	}
	return file, nil
}

func (d *Dispatcher) loadUser(ctx context.Context, hex string) (*domain.User, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, ErrLookup.New("user id %q: %v", hex, err)
	}
	user, err := d.deps.Users.GetByID(ctx, id)
	if err != nil {
		return nil, ErrLookup.New("user %s: %v", hex, err)
	}
	return user, nil
}

// readPayload reads and decodes a sidecar. Files above the size cap are
// refused before any byte is read.
func (d *Dispatcher) readPayload(ctx context.Context, file *domain.File) (interface{}, error) {
	if file.Size > d.maxFileSize {
		return nil, ErrPayloadTooLarge.New("file %s is %d bytes, limit is %d", file.ID.Hex(), file.Size, d.maxFileSize)
	}

	reader, err := d.deps.Storage.Open(ctx, file.ObjectKey)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = reader.Close() }()

	// The recorded size may be stale; never buffer past the cap.
	content, err := io.ReadAll(io.LimitReader(reader, d.maxFileSize+1))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if int64(len(content)) > d.maxFileSize {
		return nil, ErrPayloadTooLarge.New("file %s exceeds limit of %d bytes", file.ID.Hex(), d.maxFileSize)
	}

	data, err := decodeJSON(content)
	if err != nil {
		return nil, ErrDecode.Wrap(err)
	}
	return data, nil
}

// cleanup removes the sidecar's item once it holds nothing but the sidecar,
// when the server is configured to do so.
func (d *Dispatcher) cleanup(ctx context.Context, sidecar *domain.File) error {
	if d.deps.Settings == nil || d.deps.Remover == nil {
		return nil
	}
	enabled, err := d.deps.Settings.GetBool(ctx, domain.SettingDeleteAnnotationsAfterIngest)
	if err != nil {
		d.log.Error("could not read setting", zap.String("key", domain.SettingDeleteAnnotationsAfterIngest), zap.Error(err))
		return Error.Wrap(err)
	}
	if !enabled {
		return nil
	}

	files, err := d.deps.Files.ListByItem(ctx, sidecar.ItemID, 2)
	if err != nil {
		d.log.Error("could not list sidecar item files", zap.String("item_id", sidecar.ItemID.Hex()), zap.Error(err))
		return Error.Wrap(err)
	}
	if len(files) != 1 || files[0].ID != sidecar.ID {
		return nil
	}

	if err := d.deps.Remover.RemoveItem(ctx, sidecar.ItemID); err != nil {
		d.log.Error("could not remove sidecar item", zap.String("item_id", sidecar.ItemID.Hex()), zap.Error(err))
		return Error.Wrap(err)
	}
	d.log.Info("removed ingested sidecar item", zap.String("item_id", sidecar.ItemID.Hex()))
	return nil
}
