package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradetape/tradetape/internal/config"
	"github.com/tradetape/tradetape/internal/embedding"
	"github.com/tradetape/tradetape/internal/journal"
	"github.com/tradetape/tradetape/internal/vindex"
)

// Publisher mirrors appended events onto an external stream. Implementations
// must tolerate being called on the hot path: Record treats publish failures
// as fail-soft.
type Publisher interface {
	Publish(ctx context.Context, ev journal.Event) error
}

// Tracker observes service operations for telemetry. The returned func is
// called once with the operation's error (nil on success).
type Tracker interface {
	Track(ctx context.Context, op string) func(err error)
}

// Advice is the result of one full record/retrieve/blend loop.
type Advice struct {
	EventID   string     `json:"event_id"`
	PModel    float64    `json:"p_model"`
	PPrior    *float64   `json:"p_prior,omitempty"`
	PBlend    float64    `json:"p_blend"`
	Neighbors []Neighbor `json:"neighbors"`
}

// Service is the orchestration facade over journal, embedding builder,
// vector index and the optional tap. The journal append is the only
// fail-fast step in every operation; indexing and publishing degrade with a
// warning so a vector or broker outage never loses a decision record.
type Service struct {
	store   journal.Store
	builder *embedding.Builder
	index   *vindex.Index
	pub     Publisher
	tracker Tracker
	weight  float64
	k       int
}

// New wires the facade. pub and tracker may be nil.
func New(store journal.Store, builder *embedding.Builder, index *vindex.Index, pub Publisher, tracker Tracker, cfg config.BlendConfig) *Service {
	weight := cfg.Weight
	if weight < 0 || weight > 1 {
		weight = 0.25
	}
	k := cfg.Neighbors
	if k <= 0 {
		k = 10
	}
	return &Service{
		store:   store,
		builder: builder,
		index:   index,
		pub:     pub,
		tracker: tracker,
		weight:  weight,
		k:       k,
	}
}

// Weight returns the configured blend weight.
func (s *Service) Weight() float64 { return s.weight }

// Neighbors returns the configured default neighbor count.
func (s *Service) Neighbors() int { return s.k }

// Record appends one decision event, then indexes and publishes it.
func (s *Service) Record(ctx context.Context, fields map[string]any) (string, error) {
	done := s.track(ctx, "record")

	id, err := s.store.Append(ctx, fields)
	if err != nil {
		done(err)
		return "", err
	}

	ev, err := s.store.Get(ctx, id)
	if err != nil {
		slog.Warn("Recorded event not readable, skipping index", "id", id, "error", err)
		done(nil)
		return id, nil
	}
	s.indexEvent(ctx, ev, s.builder.Embed(ctx, ev.Fields))
	s.publish(ctx, ev)
	done(nil)
	return id, nil
}

// RecordBatch appends the batch under one durability barrier, then indexes
// and publishes each event.
func (s *Service) RecordBatch(ctx context.Context, batch []map[string]any) ([]string, error) {
	done := s.track(ctx, "record_batch")

	ids, err := s.store.AppendBatch(ctx, batch)
	if err != nil {
		done(err)
		return nil, err
	}

	events := make([]journal.Event, 0, len(ids))
	payloads := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		ev, err := s.store.Get(ctx, id)
		if err != nil {
			slog.Warn("Recorded event not readable, skipping index", "id", id, "error", err)
			continue
		}
		events = append(events, ev)
		payloads = append(payloads, ev.Fields)
	}

	embeddings := s.builder.EmbedBatch(ctx, payloads)
	for i, ev := range events {
		s.indexEvent(ctx, ev, embeddings[i])
		s.publish(ctx, ev)
	}
	done(nil)
	return ids, nil
}

// UpdateOutcome appends the outcome shadow record for id and mirrors it onto
// the tap. The journal itself accepts orphan updates; the service checks the
// target exists so a mistyped id fails loudly.
func (s *Service) UpdateOutcome(ctx context.Context, id string, outcome map[string]any) error {
	done := s.track(ctx, "update_outcome")

	if _, err := s.store.Get(ctx, id); err != nil {
		done(err)
		return fmt.Errorf("outcome target: %w", err)
	}

	if err := s.store.UpdateOutcome(ctx, id, outcome); err != nil {
		done(err)
		return err
	}

	// Re-stamp the index entry so metadata-only backends see the fresh
	// outcome too.
	if ev, err := s.store.Get(ctx, id); err == nil {
		s.indexEvent(ctx, ev, s.builder.Embed(ctx, ev.Fields))
	}

	if upd, err := s.store.Get(ctx, journal.UpdateID(id)); err == nil {
		s.publish(ctx, upd)
	}
	done(nil)
	return nil
}

// SimilarResults embeds the context and returns the raw index hits.
func (s *Service) SimilarResults(ctx context.Context, fields map[string]any, k int, filter map[string]any) []vindex.Result {
	done := s.track(ctx, "similar")
	if k <= 0 {
		k = s.k
	}
	emb := s.builder.Embed(ctx, fields)
	results := s.index.Search(ctx, emb.Vector, k, filter)
	done(nil)
	return results
}

// Match pairs an index hit with its journal-resolved outcome.
type Match struct {
	Result   vindex.Result
	POutcome *float64
}

// Matches returns the raw hits with each POutcome resolved: the reconciled
// journal outcome wins over stale index metadata.
func (s *Service) Matches(ctx context.Context, fields map[string]any, k int, filter map[string]any) []Match {
	results := s.SimilarResults(ctx, fields, k, filter)
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{Result: r, POutcome: s.resolveOutcome(ctx, r)})
	}
	return matches
}

// Similar returns the hits as referential neighbors, dropping scores and
// payload metadata.
func (s *Service) Similar(ctx context.Context, fields map[string]any, k int, filter map[string]any) []Neighbor {
	matches := s.Matches(ctx, fields, k, filter)
	neighbors := make([]Neighbor, 0, len(matches))
	for _, m := range matches {
		neighbors = append(neighbors, Neighbor{ID: m.Result.ID, POutcome: m.POutcome})
	}
	return neighbors
}

// Advise runs the full loop: embed the context, fetch neighbors, blend, and
// append the blended decision as a new event (closing the loop). The blend
// record carries referential neighbor pairs only.
func (s *Service) Advise(ctx context.Context, fields map[string]any, pModel float64) (Advice, error) {
	done := s.track(ctx, "advise")

	neighbors := s.Similar(ctx, fields, s.k, nil)
	blended := Blend(pModel, neighbors, s.weight)

	record := map[string]any{
		"event_type": "blended_decision",
		"p_model":    pModel,
		"p_blend":    blended.PBlend,
		"neighbors":  neighborRefs(neighbors),
	}
	if blended.PPrior != nil {
		record["p_prior"] = *blended.PPrior
	}
	for _, key := range []string{"ticker", "regime"} {
		if v, ok := fields[key]; ok {
			record[key] = v
		}
	}

	id, err := s.Record(ctx, record)
	if err != nil {
		done(err)
		return Advice{}, fmt.Errorf("record blended decision: %w", err)
	}
	done(nil)
	return Advice{
		EventID:   id,
		PModel:    pModel,
		PPrior:    blended.PPrior,
		PBlend:    blended.PBlend,
		Neighbors: neighbors,
	}, nil
}

// Reindex re-embeds every reconciled event and upserts it into the vector
// backend. With reset the collection is cleared first. Returns the number of
// events processed.
func (s *Service) Reindex(ctx context.Context, reset bool) (int, error) {
	done := s.track(ctx, "reindex")

	if s.index.Disabled() {
		err := errors.New("vector backend is disabled")
		done(err)
		return 0, err
	}
	if reset {
		if err := s.index.Clear(ctx); err != nil {
			done(err)
			return 0, fmt.Errorf("clear index: %w", err)
		}
	}

	events, err := s.store.Events(ctx, false)
	if err != nil {
		done(err)
		return 0, err
	}
	for _, ev := range events {
		s.indexEvent(ctx, ev, s.builder.Embed(ctx, ev.Fields))
	}
	done(nil)
	return len(events), nil
}

func (s *Service) indexEvent(ctx context.Context, ev journal.Event, emb embedding.Embedding) {
	meta := vectorMetadata(ev)
	meta["embed_method"] = emb.Method
	s.index.Upsert(ctx, ev.ID, emb.Vector, meta)
}

func (s *Service) publish(ctx context.Context, ev journal.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		slog.Warn("Event tap publish failed", "id", ev.ID, "error", err)
	}
}

func (s *Service) track(ctx context.Context, op string) func(error) {
	if s.tracker == nil {
		return func(error) {}
	}
	return s.tracker.Track(ctx, op)
}

func (s *Service) resolveOutcome(ctx context.Context, r vindex.Result) *float64 {
	if ev, err := s.store.Get(ctx, r.ID); err == nil {
		if p := outcomeProbability(ev.Fields); p != nil {
			return p
		}
	}
	return toFloat(r.Metadata["p_outcome"])
}

// vectorMetadata picks the salient scalar fields carried alongside the
// vector, enough for equality filters and for resolving outcomes without a
// journal read.
func vectorMetadata(ev journal.Event) map[string]any {
	meta := map[string]any{"ts": ev.TS.UTC().Format(time.RFC3339)}
	for _, key := range []string{"ticker", "regime", "decision", "event_type"} {
		if v, ok := ev.Fields[key]; ok {
			meta[key] = v
		}
	}
	if v, ok := ev.Fields["p_up"]; ok {
		meta["p_up"] = v
	}
	if p := outcomeProbability(ev.Fields); p != nil {
		meta["p_outcome"] = *p
	}
	return meta
}

func neighborRefs(neighbors []Neighbor) []map[string]any {
	refs := make([]map[string]any, 0, len(neighbors))
	for _, n := range neighbors {
		ref := map[string]any{"id": n.ID}
		if n.POutcome != nil {
			ref["p_outcome"] = *n.POutcome
		}
		refs = append(refs, ref)
	}
	return refs
}

// outcomeProbability extracts outcome.p_outcome from a reconciled payload.
func outcomeProbability(fields map[string]any) *float64 {
	outcome, ok := fields["outcome"].(map[string]any)
	if !ok {
		return nil
	}
	return toFloat(outcome["p_outcome"])
}

func toFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
