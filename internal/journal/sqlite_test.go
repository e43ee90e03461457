package journal

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteShadowUpsertKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	id, err := s.Append(ctx, map[string]any{"ticker": "AAPL"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.UpdateOutcome(ctx, id, map[string]any{"label": "A"}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := s.UpdateOutcome(ctx, id, map[string]any{"label": "B"}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	// The derived shadow id upserts, so only the survivor row exists.
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE id = ?`, id+updateSuffix).Scan(&count); err != nil {
		t.Fatalf("count shadows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one shadow row, got %d", count)
	}

	events, err := s.Events(ctx, true)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected base + surviving shadow, got %d", len(events))
	}
	for _, ev := range events {
		if ev.IsUpdate() {
			if oc := ev.Outcome(); oc["label"] != "B" {
				t.Errorf("surviving shadow holds %v, want label B", oc)
			}
		}
	}
}

func TestSQLitePromotesTypeAndCorrelation(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"), 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	id, err := s.Append(ctx, map[string]any{
		"event_type":     "blended_decision",
		"correlation_id": "run-7",
		"p_blend":        0.55,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var eventType, correlationID string
	if err := s.db.QueryRow(`SELECT event_type, correlation_id FROM events WHERE id = ?`, id).Scan(&eventType, &correlationID); err != nil {
		t.Fatalf("query columns: %v", err)
	}
	if eventType != "blended_decision" {
		t.Errorf("expected promoted event_type, got %q", eventType)
	}
	if correlationID != "run-7" {
		t.Errorf("expected promoted correlation_id, got %q", correlationID)
	}
}

func TestSQLiteMetricsExposeTuning(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"), 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	m := s.Metrics()
	if m["backend"] != "sqlite" {
		t.Errorf("expected backend sqlite, got %v", m["backend"])
	}
	if m["journal_mode"] != "WAL" {
		t.Errorf("expected WAL journal mode, got %v", m["journal_mode"])
	}
	if m["busy_timeout_ms"] != 5000 {
		t.Errorf("expected busy timeout 5000, got %v", m["busy_timeout_ms"])
	}
	if m["pool_size"] != 3 {
		t.Errorf("expected pool size 3, got %v", m["pool_size"])
	}
}

func TestSQLiteBatchRollsBackOnDuplicate(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Append(ctx, map[string]any{"id": "exists"}); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	_, err = s.AppendBatch(ctx, []map[string]any{
		{"id": "fresh"},
		{"id": "exists"},
	})
	if err == nil {
		t.Fatal("expected batch failure on duplicate")
	}

	// The transaction rolled back, so the batch's first record is absent too.
	events, err := s.Events(ctx, false)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].ID != "exists" {
		t.Fatalf("expected only the seeded event after rollback, got %+v", events)
	}
}
