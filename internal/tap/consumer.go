package tap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tradetape/tradetape/internal/config"
	"github.com/tradetape/tradetape/internal/journal"
)

// ErrDisabled is returned when a consumer is requested but the tap is not
// configured.
var ErrDisabled = errors.New("event tap is not enabled")

// Consumer tails the tap topic and yields events. With a group id the broker
// tracks progress across restarts; without one the consumer reads partition
// zero from the chosen end.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer opens a reader on the tap topic.
func NewConsumer(cfg config.TapConfig, group string, fromBeginning bool) (*Consumer, error) {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil, ErrDisabled
	}

	offset := kafka.LastOffset
	if fromBeginning {
		offset = kafka.FirstOffset
	}

	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if group != "" {
		rc.GroupID = group
		rc.StartOffset = offset
	}

	r := kafka.NewReader(rc)
	if group == "" {
		if err := r.SetOffset(offset); err != nil {
			r.Close()
			return nil, err
		}
	}
	return &Consumer{reader: r}, nil
}

// Next blocks for the next event on the topic. Messages that do not decode
// as events are skipped with a warning; read errors are returned.
func (c *Consumer) Next(ctx context.Context) (journal.Event, error) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return journal.Event{}, err
		}
		var ev journal.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			slog.Warn("Skipping undecodable tap message", "offset", msg.Offset, "error", err)
			continue
		}
		if ev.ID == "" {
			slog.Warn("Skipping tap message without event id", "offset", msg.Offset)
			continue
		}
		return ev, nil
	}
}

// Close stops the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
