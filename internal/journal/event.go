package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// tsLayout is RFC 3339 with microsecond precision, always UTC.
const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

// updateSuffix derives a shadow record id from its target event id.
const updateSuffix = "_outcome_update"

// Event is one immutable record in the journal. ID and TS are promoted out
// of the open field map; everything else lives in Fields.
type Event struct {
	ID     string
	TS     time.Time
	Fields map[string]any
}

// MarshalJSON renders the event as a single flat JSON object with id and ts
// merged into the open fields.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["id"] = e.ID
	m["ts"] = e.TS.UTC().Format(tsLayout)
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flat object form produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if id, ok := m["id"].(string); ok {
		e.ID = id
	}
	if raw, ok := m["ts"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.TS = ts.UTC()
		}
	}
	delete(m, "id")
	delete(m, "ts")
	e.Fields = m
	return nil
}

// newEvent builds an Event from caller-supplied fields, assigning a fresh id
// and the current UTC time unless the fields carry their own. The field map
// is copied so later caller mutations cannot reach the stored record.
func newEvent(fields map[string]any) Event {
	ev := Event{Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		ev.Fields[k] = v
	}
	if id, ok := ev.Fields["id"].(string); ok && id != "" {
		ev.ID = id
	} else {
		ev.ID = uuid.NewString()
	}
	delete(ev.Fields, "id")

	switch ts := ev.Fields["ts"].(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.TS = parsed.UTC()
		}
	case time.Time:
		ev.TS = ts.UTC()
	}
	delete(ev.Fields, "ts")
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	return ev
}

// UpdateID derives the shadow record id for a target event id.
func UpdateID(targetID string) string {
	return targetID + updateSuffix
}

// newUpdateRecord builds the shadow record carrying an outcome for targetID.
func newUpdateRecord(targetID string, outcome map[string]any) Event {
	now := time.Now().UTC()
	return Event{
		ID: UpdateID(targetID),
		TS: now,
		Fields: map[string]any{
			"_update_type":     "outcome",
			"_target_event_id": targetID,
			"outcome":          outcome,
			"updated_at":       now.Format(tsLayout),
		},
	}
}

// IsUpdate reports whether the event is an outcome shadow record.
func (e Event) IsUpdate() bool {
	t, _ := e.Fields["_update_type"].(string)
	return t == "outcome"
}

// TargetID returns the id the shadow record applies to, or "".
func (e Event) TargetID() string {
	t, _ := e.Fields["_target_event_id"].(string)
	return t
}

// Outcome returns the event's outcome map, or nil.
func (e Event) Outcome() map[string]any {
	oc, _ := e.Fields["outcome"].(map[string]any)
	return oc
}

// EventType returns the event_type field, or "".
func (e Event) EventType() string {
	t, _ := e.Fields["event_type"].(string)
	return t
}

// CorrelationID returns the correlation_id field, or "".
func (e Event) CorrelationID() string {
	c, _ := e.Fields["correlation_id"].(string)
	return c
}

// withOutcome returns a copy of the event whose outcome field is replaced.
// The original field map is left untouched.
func (e Event) withOutcome(outcome map[string]any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["outcome"] = outcome
	e.Fields = fields
	return e
}
