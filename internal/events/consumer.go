package events

import (
	"context"
	"encoding/json"
	"errors"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/ingest"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Submitter accepts completed uploads.
type Submitter interface {
	Submit(ctx context.Context, event domain.UploadEvent) error
}

// Processor runs ingestion tasks.
type Processor interface {
	Process(ctx context.Context, task ingest.Task) error
}

// MessageHandler handles one consumed message.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer feeds the messages of a reader to a handler until its context is
// canceled.
type Consumer struct {
	log        *zap.Logger
	reader     MessageReader
	handle     MessageHandler
	pollWait   time.Duration
	retryDelay time.Duration
}

// NewConsumer constructs a Consumer.
func NewConsumer(log *zap.Logger, reader MessageReader, handle MessageHandler) *Consumer {
	return &Consumer{
		log:        log,
		reader:     reader,
		handle:     handle,
		pollWait:   5 * time.Second,
		retryDelay: time.Second,
	}
}

// Run reads messages until ctx is canceled. Handler failures are logged and
// the message is skipped; read failures are retried after a delay.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("closing reader", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		readCtx, cancel := context.WithTimeout(ctx, c.pollWait)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				continue
			}
			c.log.Error("reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.log.Debug("message received",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		if err := c.handle(ctx, msg); err != nil {
			c.log.Error("handling message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// UploadHandler decodes upload completion events and submits them.
func UploadHandler(submitter Submitter) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.UploadEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return Error.New("decoding upload event: %v", err)
		}
		return submitter.Submit(ctx, event)
	}
}

// TaskHandler decodes ingestion tasks and runs them.
func TaskHandler(processor Processor) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var task ingest.Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			return Error.New("decoding task: %v", err)
		}
		return processor.Process(ctx, task)
	}
}
