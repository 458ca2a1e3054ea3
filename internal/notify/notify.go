package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventRunCompleted     = "run.completed"
	EventConversionFailed = "conversion.failed"
)

type Event struct {
	Type        string    `json:"type"`
	SourceTable string    `json:"source_table,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	Processed   int       `json:"processed,omitempty"`
	Succeeded   int       `json:"succeeded,omitempty"`
	Failed      int       `json:"failed,omitempty"`
	SavedBytes  int64     `json:"saved_bytes,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Notifier interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
			Topic:                  topic,
			MaxAttempts:            3,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *KafkaNotifier) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("gagal serialisasi event: %w", err)
	}

	key := e.Type
	if e.SourceID != "" {
		key = e.SourceTable + "-" + e.SourceID
	}

	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.OccurredAt,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
