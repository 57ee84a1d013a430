package events

import (
	"context"
	"encoding/json"
	"histomicsui/hui-server/internal/ingest"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaRunner schedules ingestion tasks by publishing them to the task
// topic. A Consumer with a TaskHandler runs them.
type KafkaRunner struct {
	log    *zap.Logger
	writer MessageWriter
}

// NewKafkaRunner constructs a KafkaRunner.
func NewKafkaRunner(log *zap.Logger, writer MessageWriter) *KafkaRunner {
	return &KafkaRunner{log: log, writer: writer}
}

// Submit publishes the task, keyed by the uploaded file so attempts of the
// same upload stay ordered.
func (r *KafkaRunner) Submit(ctx context.Context, task ingest.Task) error {
	value, err := json.Marshal(task)
	if err != nil {
		return Error.Wrap(err)
	}
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Event.File.ID.Hex()),
		Value: value,
	})
	if err != nil {
		return ingest.ErrRejected.Wrap(err)
	}
	r.log.Debug("task published",
		zap.String("task_id", task.ID),
		zap.String("reason", task.Reason),
		zap.Int("attempt", task.Attempt))
	return nil
}

// Close closes the underlying writer.
func (r *KafkaRunner) Close() error {
	return Error.Wrap(r.writer.Close())
}
