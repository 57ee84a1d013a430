// Package events connects the ingestion pipeline to Kafka. Upload
// completions are consumed from one topic; ingestion tasks, including
// deferred retries, travel through another.
package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/zeebo/errs"
)

// Error is the error class of the event transport.
var Error = errs.Class("events")

// MessageReader is the consuming side of a topic.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter is the producing side of a topic.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader returns a consumer group reader of topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// NewWriter returns a producer of topic. Messages with the same key land on
// the same partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}
