// Package tap mirrors journal appends onto a Kafka topic for downstream
// consumers. The journal stays the source of truth: publishing is always
// fail-soft and the Service logs rather than surfaces tap errors.
package tap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tradetape/tradetape/internal/config"
	"github.com/tradetape/tradetape/internal/journal"
)

// messageWriter is the slice of kafka.Writer the publisher needs; a fake
// stands in for it in tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to the tap topic with RequireOne acks. A disabled
// tap yields a publisher whose Publish is a no-op, so callers can wire it
// unconditionally.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher builds the publisher for the configured tap. With the tap
// disabled or no brokers configured, the returned publisher does nothing.
func NewPublisher(cfg config.TapConfig) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		topic: cfg.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Enabled reports whether events actually leave the process.
func (p *Publisher) Enabled() bool { return p.writer != nil }

// Publish sends the event in its flat JSON form, keyed by event id so all
// records for one event land on one partition. Transient leader errors are
// retried briefly; anything else is returned to the caller.
func (p *Publisher) Publish(ctx context.Context, ev journal.Event) error {
	if p.writer == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: value,
		Time:  ev.TS,
	}

	var writeErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
		writeErr = p.writer.WriteMessages(ctx, msg)
		if writeErr == nil {
			return nil
		}
		if errors.Is(writeErr, kafka.NotLeaderForPartition) || errors.Is(writeErr, kafka.LeaderNotAvailable) {
			continue
		}
		break
	}
	return fmt.Errorf("publish event %s: %w", ev.ID, writeErr)
}

// Close flushes and releases the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
