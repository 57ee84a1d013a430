package ingest

import "github.com/zeebo/errs"

var (
	// Error is the generic error class of the ingestion pipeline.
	Error = errs.Class("ingest")

	// ErrLookup marks a resource that could not be loaded or accessed. Such
	// failures abort the event without failing the upload.
	ErrLookup = errs.Class("ingest lookup")

	// ErrPayloadTooLarge is returned for sidecar files above the size cap.
	ErrPayloadTooLarge = errs.Class("ingest payload too large")

	// ErrDecode is returned when a sidecar is not valid JSON of the expected
	// shape.
	ErrDecode = errs.Class("ingest decode")

	// ErrInvalidMetadata is returned when a metadata sidecar contains a null
	// value or a key that cannot be stored.
	ErrInvalidMetadata = errs.Class("ingest metadata")

	// ErrQueueFull is returned by PoolRunner.Submit when no slot is free.
	ErrQueueFull = errs.Class("ingest queue full")

	// ErrRejected is returned by runners that could not hand a task over
	// to their transport.
	ErrRejected = errs.Class("ingest task rejected")
)
