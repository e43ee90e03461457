package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore is the flat append-file backend: one JSON record per line.
// Every append opens the file, writes, fsyncs and closes; no long-lived
// handle is shared. A companion in-memory index maps each id to its byte
// offset, so Get is a seek instead of a scan.
//
// Writers within one process are serialized by a mutex. There is no
// cross-process lock: the backend assumes a single writer process.
type FileStore struct {
	path string

	mu      sync.Mutex
	size    int64
	bases   map[string]int64 // base event id -> line offset
	updates map[string]int64 // target id -> offset of the latest shadow record
	stats   metrics
}

// OpenFile opens or creates the append-file journal at path and builds the
// id index from the existing log. A torn final record (crash before the
// terminal fsync of a batch) is truncated away with a warning; everything
// before it is kept.
func OpenFile(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	s := &FileStore{
		path:    path,
		bases:   make(map[string]int64),
		updates: make(map[string]int64),
	}
	if err := s.buildIndex(); err != nil {
		return nil, fmt.Errorf("index journal %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) buildIndex() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 256*1024)
	var off int64
	torn := false
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if err == nil {
				s.indexLine(line, off)
				off += int64(len(line))
			} else {
				// No trailing newline: interrupted write.
				torn = true
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	if torn {
		slog.Warn("Truncating torn tail record", "path", s.path, "offset", off)
		if err := os.Truncate(s.path, off); err != nil {
			return fmt.Errorf("truncate torn tail: %w", err)
		}
	}
	s.size = off
	return nil
}

func (s *FileStore) indexLine(line []byte, off int64) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}
	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		slog.Warn("Skipping unreadable journal line", "path", s.path, "offset", off, "error", err)
		return
	}
	if ev.IsUpdate() {
		if target := ev.TargetID(); target != "" {
			s.updates[target] = off
		}
		return
	}
	s.bases[ev.ID] = off
}

// Append persists one event: open, write, fsync, close.
func (s *FileStore) Append(ctx context.Context, fields map[string]any) (string, error) {
	ev := newEvent(fields)
	if err := s.appendOne(ev); err != nil {
		return "", err
	}
	return ev.ID, nil
}

func (s *FileStore) appendOne(ev Event) error {
	line, err := encodeLine(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ev.IsUpdate() {
		if _, dup := s.bases[ev.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
	}

	start := time.Now()
	if err := s.writeDurable(line); err != nil {
		s.stats.recordError()
		return &DurabilityError{Op: "append", Backend: "file", Err: err}
	}
	s.index(ev, s.size)
	s.size += int64(len(line))
	s.stats.recordWrite(time.Since(start))
	return nil
}

// AppendBatch persists all records with one terminal fsync. A crash before
// that fsync may lose any suffix of the batch; the torn tail is detected and
// dropped on the next open.
func (s *FileStore) AppendBatch(ctx context.Context, batch []map[string]any) ([]string, error) {
	events := make([]Event, len(batch))
	lines := make([][]byte, len(batch))
	ids := make([]string, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for i, fields := range batch {
		ev := newEvent(fields)
		line, err := encodeLine(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		if !ev.IsUpdate() {
			if _, dup := seen[ev.ID]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
			}
			seen[ev.ID] = struct{}{}
		}
		events[i] = ev
		lines[i] = line
		ids[i] = ev.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if ev.IsUpdate() {
			continue
		}
		if _, dup := s.bases[ev.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
	}

	start := time.Now()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.stats.recordError()
		return nil, &DurabilityError{Op: "append batch", Backend: "file", Err: err}
	}
	written := int64(0)
	for _, line := range lines {
		if _, err := f.Write(line); err != nil {
			f.Close()
			s.stats.recordError()
			return nil, &DurabilityError{Op: "append batch", Backend: "file", Err: err}
		}
		written += int64(len(line))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.stats.recordError()
		return nil, &DurabilityError{Op: "append batch", Backend: "file", Err: err}
	}
	if err := f.Close(); err != nil {
		s.stats.recordError()
		return nil, &DurabilityError{Op: "append batch", Backend: "file", Err: err}
	}

	off := s.size
	for i, ev := range events {
		s.index(ev, off)
		off += int64(len(lines[i]))
	}
	s.size += written
	s.stats.recordBatch(len(batch), time.Since(start))
	return ids, nil
}

// UpdateOutcome appends the outcome shadow record for id. The base record is
// never touched.
func (s *FileStore) UpdateOutcome(ctx context.Context, id string, outcome map[string]any) error {
	return s.appendOne(newUpdateRecord(id, outcome))
}

// Events reads the whole log, skipping unreadable lines with a warning, and
// returns the reconciled view. The full log is buffered before reconciliation
// because updates may arrive after their target; this is the documented
// scalability ceiling of the append-file design.
func (s *FileStore) Events(ctx context.Context, includeUpdates bool) ([]Event, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("Skipping unreadable journal line", "path", s.path, "line", lineNo, "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return reconcile(events, includeUpdates), nil
}

// Get returns the reconciled event for id via the offset index. A shadow
// record id resolves to the latest shadow for its target, mirroring the
// sqlite backend where only the survivor row exists.
func (s *FileStore) Get(ctx context.Context, id string) (Event, error) {
	if target, isShadow := strings.CutSuffix(id, updateSuffix); isShadow {
		s.mu.Lock()
		off, ok := s.updates[target]
		s.mu.Unlock()
		if !ok {
			return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return s.readAt(off)
	}

	s.mu.Lock()
	baseOff, ok := s.bases[id]
	updOff, hasUpdate := s.updates[id]
	s.mu.Unlock()
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ev, err := s.readAt(baseOff)
	if err != nil {
		return Event{}, err
	}
	if hasUpdate {
		upd, err := s.readAt(updOff)
		if err != nil {
			return Event{}, err
		}
		ev = ev.withOutcome(upd.Outcome())
	}
	return ev, nil
}

func (s *FileStore) readAt(off int64) (Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Event{}, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return Event{}, fmt.Errorf("seek journal: %w", err)
	}
	line, err := bufio.NewReaderSize(f, 64*1024).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return Event{}, fmt.Errorf("read journal record: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(line), &ev); err != nil {
		return Event{}, fmt.Errorf("decode journal record at %d: %w", off, err)
	}
	return ev, nil
}

// Metrics reports the write counters plus backend identity.
func (s *FileStore) Metrics() map[string]any {
	return s.stats.snapshot(map[string]any{
		"backend":    "file",
		"path":       s.path,
		"durability": "fsync-per-append",
	})
}

// Close releases nothing: the store keeps no long-lived file handle.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) index(ev Event, off int64) {
	if ev.IsUpdate() {
		if target := ev.TargetID(); target != "" {
			s.updates[target] = off
		}
		return
	}
	s.bases[ev.ID] = off
}

func (s *FileStore) writeDurable(line []byte) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeLine(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
