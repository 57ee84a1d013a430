package ingest

import (
	"context"
	"histomicsui/hui-server/internal/domain"

	"github.com/google/uuid"
)

// Task reasons.
const (
	ReasonUpload    = "upload"
	ReasonReprocess = "reprocess"
)

// Task is one ingestion attempt for an upload event. It is plain data so
// it can be queued in memory or serialized onto a message topic.
type Task struct {
	ID      string             `json:"id"`
	Event   domain.UploadEvent `json:"event"`
	Attempt int                `json:"attempt"`
	Reason  string             `json:"reason"`
}

// NewTask returns the first attempt for an upload event.
func NewTask(event domain.UploadEvent) Task {
	return Task{
		ID:      uuid.NewString(),
		Event:   event,
		Attempt: 1,
		Reason:  ReasonUpload,
	}
}

// Retry returns the follow-up attempt used when the task is deferred.
func (t Task) Retry() Task {
	return Task{
		ID:      uuid.NewString(),
		Event:   t.Event,
		Attempt: t.Attempt + 1,
		Reason:  ReasonReprocess,
	}
}

// Handler processes a single task.
type Handler func(ctx context.Context, task Task) error

// TaskRunner schedules tasks for a Handler.
type TaskRunner interface {
	Submit(ctx context.Context, task Task) error
}
