package ingest

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const girderIDAnnotation = `[{
	"name": "regions",
	"elements": [
		{"type": "rectangle", "center": [10, 10, 0], "width": 5, "height": 5},
		{"type": "point", "center": [1, 2, 0], "girderId": "ImageRecordX"}
	]
}]`

// scenario is an image uploaded with a reference and an annotation file
// pointing at it through a correlation id.
type scenario struct {
	image      *domain.Item
	imageFile  *domain.File
	imageEvent domain.UploadEvent
	anotEvent  domain.UploadEvent
}

func newScenario(f *fixture, uuid string) scenario {
	image := f.item("Easy1.png", f.folder)
	imageFile := f.upload(image, "Easy1.png", "image/png", []byte("png content"))
	sidecar := f.sidecar("sample_girder_id.anot", girderIDAnnotation)

	return scenario{
		image:     image,
		imageFile: imageFile,
		imageEvent: f.event(imageFile, ref("ImageRecordX",
			"uuid", uuid,
			"userId", f.admin.ID.Hex(),
			"itemId", image.ID.Hex(),
			"fileId", imageFile.ID.Hex())),
		anotEvent: f.event(sidecar, ref("IsAnAnnotationFile",
			"uuid", uuid,
			"userId", f.admin.ID.Hex(),
			"itemId", image.ID.Hex(),
			"fileId", imageFile.ID.Hex())),
	}
}

func TestDispatcher_DefaultCacheBounds(t *testing.T) {
	dispatcher := NewDispatcher(zaptest.NewLogger(t), Deps{}, Config{})
	assert.Equal(t, DefaultCacheCapacity, dispatcher.Cache().opts.Capacity)
	assert.Equal(t, DefaultCacheExpiration, dispatcher.Cache().opts.Expiration)
}

func (s scenario) assertIngested(t *testing.T, f *fixture) {
	t.Helper()
	annotations := f.annotations(s.image)
	require.Len(t, annotations, 1)
	assert.Equal(t, f.admin.ID, annotations[0].CreatorID)
	assert.Equal(t, "regions", annotations[0].Body["name"])

	elements := annotations[0].Elements()
	require.Len(t, elements, 2)
	assert.Equal(t, s.image.ID.Hex(), elements[1].(map[string]interface{})["girderId"])

	assert.True(t, f.reload(s.image).IsLargeImage())
}

func TestDispatcher_ImageBeforeAnnotation(t *testing.T) {
	f := newFixture(t, Config{})
	s := newScenario(f, "U1")

	require.NoError(t, f.process(s.imageEvent))
	assert.Empty(t, f.annotations(s.image))

	require.NoError(t, f.process(s.anotEvent))
	s.assertIngested(t, f)
	assert.Equal(t, 0, f.cache.Waiting("U1"))
}

func TestDispatcher_AnnotationBeforeImage(t *testing.T) {
	f := newFixture(t, Config{})
	s := newScenario(f, "U2")

	require.NoError(t, f.process(s.anotEvent))
	assert.Empty(t, f.annotations(s.image))
	assert.Equal(t, 1, f.cache.Waiting("U2"))

	// The image releases the deferred annotation, which runs inline.
	require.NoError(t, f.process(s.imageEvent))
	s.assertIngested(t, f)
	assert.Equal(t, 0, f.cache.Waiting("U2"))
}

func TestDispatcher_RetryIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	s := newScenario(f, "U3")

	require.NoError(t, f.process(s.imageEvent))
	require.NoError(t, f.process(s.anotEvent))
	require.NoError(t, f.process(s.anotEvent))
	require.NoError(t, f.dispatcher.Process(f.ctx, NewTask(s.anotEvent).Retry()))

	s.assertIngested(t, f)
}

func TestDispatcher_PoolRunnerEitherOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, Config{})
		s := newScenario(f, "U-pool")

		runner := NewPoolRunner(zaptest.NewLogger(t), f.dispatcher.Process, 4, 16)
		f.dispatcher.SetRunner(runner)

		ctx, cancel := context.WithCancel(f.ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.Run(ctx)
		}()

		require.NoError(t, f.dispatcher.Submit(f.ctx, s.anotEvent))
		require.NoError(t, f.dispatcher.Submit(f.ctx, s.imageEvent))

		require.Eventually(t, func() bool {
			annotations, err := f.db.Annotations().GetByItemID(f.ctx, s.image.ID)
			return err == nil && len(annotations) == 1
		}, 5*time.Second, 5*time.Millisecond)

		cancel()
		wg.Wait()
		s.assertIngested(t, f)
	}
}

func TestDispatcher_NotAReference(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.anot", `{"name": "x"}`)

	for _, reference := range []string{"not json", "[1]", `"IsAnAnnotationFile"`, "42", ""} {
		event := f.event(sidecar, nil)
		value := reference
		event.Reference = &value
		require.NoError(t, f.process(event))
	}
	require.NoError(t, f.process(f.event(sidecar, nil)))

	assert.Empty(t, f.annotations(image))
	assert.Equal(t, 0, f.cache.Len())
}

func TestDispatcher_IrrelevantIdentifierIsRecorded(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	file := f.upload(image, "Easy1.png", "image/png", []byte("png"))

	event := f.event(file, ref("ImageRecord1", "uuid", "U1", "itemId", image.ID.Hex()))
	require.NoError(t, f.process(event))

	records, ok := f.cache.Lookup("U1")
	require.True(t, ok)
	assert.Equal(t, event, records["ImageRecord1"])
	assert.Empty(t, f.annotations(image))
}

func TestDispatcher_BareObject(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.anot", `{"name": "x"}`)

	event := f.event(sidecar, ref("IsAnAnnotationFile", "itemId", image.ID.Hex(), "userId", f.admin.ID.Hex()))
	require.NoError(t, f.process(event))

	annotations := f.annotations(image)
	require.Len(t, annotations, 1)
	assert.Equal(t, map[string]interface{}{"name": "x"}, annotations[0].Body)
	assert.Equal(t, sidecar.ID, annotations[0].SourceFileID)
}

func TestDispatcher_AnnotationList(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.anot", `[{"name": "a"}, {"name": "b"}, {"name": "c"}]`)

	event := f.event(sidecar, ref("IsAnAnnotationFile", "itemId", image.ID.Hex()))
	require.NoError(t, f.process(event))

	annotations := f.annotations(image)
	require.Len(t, annotations, 3)
	for i, annotation := range annotations {
		assert.Equal(t, i, annotation.SourceIndex)
		// Without a userId the owner of the item's folder is used.
		assert.Equal(t, f.admin.ID, annotation.CreatorID)
	}
}

func TestDispatcher_SizeCap(t *testing.T) {
	f := newFixture(t, Config{MaxFileSize: 16})
	image := f.item("image", f.folder)

	large := f.sidecar("large.anot", `{"name": "a name longer than sixteen bytes"}`)
	err := f.process(f.event(large, ref("IsAnAnnotationFile", "itemId", image.ID.Hex())))
	assert.True(t, ErrPayloadTooLarge.Has(err))

	// A stale recorded size does not bypass the cap.
	stale := f.sidecar("stale.anot", `{"name": "another long annotation"}`)
	stale.Size = 2
	_, err = f.db.Files().Create(f.ctx, stale)
	require.NoError(t, err)
	err = f.process(f.event(stale, ref("IsAnAnnotationFile", "itemId", image.ID.Hex())))
	assert.True(t, ErrPayloadTooLarge.Has(err))

	assert.Empty(t, f.annotations(image))
}

func TestDispatcher_DecodeFailure(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("broken.anot", `[{"name": "x"`)

	err := f.process(f.event(sidecar, ref("IsAnAnnotationFile", "itemId", image.ID.Hex())))
	assert.True(t, ErrDecode.Has(err))
	assert.Empty(t, f.annotations(image))
}

func TestDispatcher_LookupFailures(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.anot", `{"name": "x"}`)

	references := []map[string]string{
		ref("IsAnAnnotationFile"),
		ref("IsAnAnnotationFile", "itemId", "not-an-id"),
		ref("IsAnAnnotationFile", "fileId", sidecar.ItemID.Hex()),
		ref("IsAnAnnotationFile", "itemId", image.ID.Hex(), "userId", image.FolderID.Hex()),
	}
	for _, reference := range references {
		require.NoError(t, f.process(f.event(sidecar, reference)))
	}
	assert.Empty(t, f.annotations(image))
}

func TestDispatcher_AccessLevels(t *testing.T) {
	f := newFixture(t, Config{})
	reader := f.user("reader", false)
	shared := f.newFolder("Shared", f.admin, false, domain.AccessEntry{UserID: reader.ID, Level: domain.AccessRead})
	image := f.item("image", shared)

	anot := f.upload(f.item("sample.anot", shared), "sample.anot", "application/json", []byte(`{"name": "x"}`))
	meta := f.upload(f.item("sample.meta", shared), "sample.meta", "application/json", []byte(`{"stain": "HE"}`))

	// Reading is enough to annotate.
	require.NoError(t, f.process(f.event(anot, ref("IsAnAnnotationFile", "itemId", image.ID.Hex(), "userId", reader.ID.Hex()))))
	assert.Len(t, f.annotations(image), 1)

	// Metadata needs write access.
	require.NoError(t, f.process(f.event(meta, ref("ItemMetadata", "itemId", image.ID.Hex(), "userId", reader.ID.Hex()))))
	assert.Empty(t, f.reload(image).Meta)

	// A private sidecar cannot be read.
	stranger := f.user("stranger", false)
	private := f.newFolder("Private", f.admin, false)
	hidden := f.upload(f.item("hidden.anot", private), "hidden.anot", "application/json", []byte(`{"name": "y"}`))
	open := f.newFolder("Open", f.admin, true)
	target := f.item("target", open)
	require.NoError(t, f.process(f.event(hidden, ref("IsAnAnnotationFile", "itemId", target.ID.Hex(), "userId", stranger.ID.Hex()))))
	assert.Empty(t, f.annotations(target))
}

func TestDispatcher_Metadata(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	imageFile := f.upload(image, "Easy1.png", "image/png", []byte("png"))
	require.NoError(t, f.db.Items().SetMetadata(f.ctx, image.ID, map[string]interface{}{"existing": "kept"}))

	sidecar := f.sidecar("sample.meta", `{"sample": "value", "complex": {"key1": "value1"}}`)

	// A reference that does not end with the metadata suffix is ignored.
	require.NoError(t, f.process(f.event(sidecar, ref("ItemMetadataNot", "fileId", imageFile.ID.Hex()))))
	assert.Nil(t, f.reload(image).Meta["sample"])

	require.NoError(t, f.process(f.event(sidecar, ref("NotItemMetadata", "fileId", imageFile.ID.Hex(), "userId", f.admin.ID.Hex()))))
	meta := f.reload(image).Meta
	assert.Equal(t, "value", meta["sample"])
	assert.Equal(t, map[string]interface{}{"key1": "value1"}, meta["complex"])
	assert.Equal(t, "kept", meta["existing"])
}

func TestDispatcher_MetadataKeepsIntegers(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("counts.meta", `{"count": 9007199254740993, "small": 3, "ratio": 0.5, "nested": {"levels": [1, 2.5]}}`)

	require.NoError(t, f.process(f.event(sidecar, ref("ItemMetadata", "itemId", image.ID.Hex()))))
	meta := f.reload(image).Meta
	assert.Equal(t, int64(9007199254740993), meta["count"])
	assert.Equal(t, int64(3), meta["small"])
	assert.Equal(t, 0.5, meta["ratio"])
	assert.Equal(t, map[string]interface{}{"levels": []interface{}{int64(1), 2.5}}, meta["nested"])
}

func TestDispatcher_TrailingDataIsDecodeFailure(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("twice.meta", `{"sample": "value"} {"other": "value"}`)

	err := f.process(f.event(sidecar, ref("ItemMetadata", "itemId", image.ID.Hex())))
	assert.True(t, ErrDecode.Has(err))
	assert.Empty(t, f.reload(image).Meta)
}

func TestDispatcher_MetadataRejectsNull(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.meta", `{"sample": "value", "removed": null}`)

	err := f.process(f.event(sidecar, ref("ItemMetadata", "itemId", image.ID.Hex())))
	assert.True(t, ErrInvalidMetadata.Has(err))
	assert.Empty(t, f.reload(image).Meta)

	list := f.sidecar("list.meta", `[{"sample": "value"}]`)
	err = f.process(f.event(list, ref("ItemMetadata", "itemId", image.ID.Hex())))
	assert.True(t, ErrDecode.Has(err))
}

func TestDispatcher_DeleteAfterIngest(t *testing.T) {
	f := newFixture(t, Config{})
	f.settings.values[domain.SettingDeleteAnnotationsAfterIngest] = true
	image := f.item("image", f.folder)

	sidecar := f.sidecar("sample.anot", `{"name": "x"}`)
	require.NoError(t, f.process(f.event(sidecar, ref("IsAnAnnotationFile", "itemId", image.ID.Hex()))))
	assert.Len(t, f.annotations(image), 1)

	_, err := f.db.Items().GetByID(f.ctx, sidecar.ItemID)
	assert.Error(t, err)
	assert.False(t, f.store.Has(sidecar.ObjectKey))

	// A sidecar sharing its item with other files is kept.
	shared := f.item("shared", f.folder)
	f.upload(shared, "other.txt", "text/plain", []byte("other"))
	kept := f.upload(shared, "kept.anot", "application/json", []byte(`{"name": "y"}`))
	require.NoError(t, f.process(f.event(kept, ref("IsAnAnnotationFile", "itemId", image.ID.Hex()))))
	assert.Len(t, f.annotations(image), 2)

	_, err = f.db.Items().GetByID(f.ctx, shared.ID)
	assert.NoError(t, err)
	assert.True(t, f.store.Has(kept.ObjectKey))
}

func TestDispatcher_KeepsSidecarByDefault(t *testing.T) {
	f := newFixture(t, Config{})
	image := f.item("image", f.folder)
	sidecar := f.sidecar("sample.anot", `{"name": "x"}`)

	require.NoError(t, f.process(f.event(sidecar, ref("IsAnAnnotationFile", "itemId", image.ID.Hex()))))
	_, err := f.db.Items().GetByID(f.ctx, sidecar.ItemID)
	assert.NoError(t, err)
}
