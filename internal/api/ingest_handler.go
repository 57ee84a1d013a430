package api

import (
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/ingest"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestHandler exposes the ingestion pipeline over HTTP.
type IngestHandler struct {
	log        *zap.Logger
	dispatcher *ingest.Dispatcher
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(log *zap.Logger, dispatcher *ingest.Dispatcher) *IngestHandler {
	return &IngestHandler{log: log, dispatcher: dispatcher}
}

// PendingUpload is one upload recorded under a correlation id.
type PendingUpload struct {
	Identifier string `json:"identifier"`
	FileID     string `json:"fileId"`
}

// PendingResponse describes the uploads recorded for a correlation id,
// ordered by identifier.
type PendingResponse struct {
	UUID    string          `json:"uuid"`
	Uploads []PendingUpload `json:"uploads"`
	Waiting int             `json:"waiting"`
}

// UploadCompleted godoc
// @Summary Notify the server that an upload finished
// @Description Queues the upload for sidecar ingestion. Uploads that are not sidecars are accepted and ignored.
// @Tags Ingest
// @Accept json
// @Param event body domain.UploadEvent true "Upload completion event"
// @Success 202
// @Failure 400 {object} gin.H "Invalid event"
// @Failure 503 {object} gin.H "Ingestion queue is full"
// @Router /hui/upload-events [post]
func (h *IngestHandler) UploadCompleted(c *gin.Context) {
	var event domain.UploadEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid upload event: "+err.Error())
		return
	}
	if event.File.ID.IsZero() {
		abortWithError(c, http.StatusBadRequest, "Upload event has no file id")
		return
	}

	err := h.dispatcher.Submit(c.Request.Context(), event)
	switch {
	case ingest.ErrQueueFull.Has(err), ingest.ErrRejected.Has(err):
		abortWithError(c, http.StatusServiceUnavailable, "Ingestion is busy, retry later")
		return
	case err != nil:
		// Inline ingestion failures are logged by the runner; the upload
		// itself succeeded.
		h.log.Debug("inline ingestion failed", zap.String("file_id", event.File.ID.Hex()), zap.Error(err))
	}
	c.Status(http.StatusAccepted)
}

// GetPending godoc
// @Summary Inspect the uploads recorded for a correlation id
// @Tags Ingest
// @Produce json
// @Param uuid path string true "Correlation id"
// @Success 200 {object} PendingResponse
// @Failure 404 {object} gin.H "Unknown or expired correlation id"
// @Router /hui/pending/{uuid} [get]
func (h *IngestHandler) GetPending(c *gin.Context) {
	uuid := c.Param("uuid")
	cache := h.dispatcher.Cache()

	records, ok := cache.Lookup(uuid)
	if !ok {
		abortWithError(c, http.StatusNotFound, "No pending uploads for this uuid")
		return
	}

	identifiers := make([]string, 0, len(records))
	for identifier := range records {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	resp := PendingResponse{
		UUID:    uuid,
		Uploads: make([]PendingUpload, 0, len(identifiers)),
		Waiting: cache.Waiting(uuid),
	}
	for _, identifier := range identifiers {
		resp.Uploads = append(resp.Uploads, PendingUpload{
			Identifier: identifier,
			FileID:     records[identifier].File.ID.Hex(),
		})
	}
	c.JSON(http.StatusOK, resp)
}
