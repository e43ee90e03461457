package journal

import (
	"sync/atomic"
	"time"
)

// metrics holds the per-handle write counters and latency gauges. Durations
// are stored as microseconds and reported as fractional milliseconds.
type metrics struct {
	writes       atomic.Int64
	errors       atomic.Int64
	batchWrites  atomic.Int64
	batchEvents  atomic.Int64
	lastWriteUS  atomic.Int64
	lastBatchUS  atomic.Int64
	lastBatchLen atomic.Int64
}

func (m *metrics) recordWrite(d time.Duration) {
	m.writes.Add(1)
	m.lastWriteUS.Store(d.Microseconds())
}

func (m *metrics) recordBatch(n int, d time.Duration) {
	m.batchWrites.Add(1)
	m.batchEvents.Add(int64(n))
	m.lastBatchUS.Store(d.Microseconds())
	m.lastBatchLen.Store(int64(n))
}

func (m *metrics) recordError() {
	m.errors.Add(1)
}

// snapshot merges the counter values with backend identity fields.
func (m *metrics) snapshot(backend map[string]any) map[string]any {
	out := map[string]any{
		"writes_total":       m.writes.Load(),
		"errors_total":       m.errors.Load(),
		"batch_writes_total": m.batchWrites.Load(),
		"batch_events_total": m.batchEvents.Load(),
		"last_write_ms":      float64(m.lastWriteUS.Load()) / 1000.0,
		"last_batch_ms":      float64(m.lastBatchUS.Load()) / 1000.0,
		"last_batch_size":    m.lastBatchLen.Load(),
	}
	for k, v := range backend {
		out[k] = v
	}
	return out
}
