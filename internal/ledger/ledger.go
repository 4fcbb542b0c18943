// Package ledger records the progress of each pipeline run. The summary and metadata writes
// are not atomic as a pair; a run only counts as finished once its ledger entry reaches a
// terminal status.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusStarted         Status = "started"
	StatusSummaryWritten  Status = "summary_written"
	StatusCompleted       Status = "completed"
	StatusMetadataSkipped Status = "metadata_skipped"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusMetadataSkipped, StatusFailed:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned by Get for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Entry is the latest state of one run.
type Entry struct {
	RunID       string
	Container   string
	SourceKey   string
	SummaryKey  string
	MetadataKey string
	Status      Status
	Detail      string
	UpdatedAt   time.Time
}

// Ledger stores run entries. Record overwrites the previous state of the same RunID.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Get(ctx context.Context, runID string) (Entry, error)
}

// Nop discards everything. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Get(context.Context, string) (Entry, error) { return Entry{}, ErrNotFound }

// Memory keeps entries in process, along with every transition in order.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]Entry
	history []Entry
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]Entry)}
}

func (m *Memory) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = m.now()
	}
	m.entries[e.RunID] = e
	m.history = append(m.history, e)
	return nil
}

func (m *Memory) Get(_ context.Context, runID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[runID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Statuses returns the status transitions recorded for runID, oldest first.
func (m *Memory) Statuses(runID string) []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Status
	for _, e := range m.history {
		if e.RunID == runID {
			out = append(out, e.Status)
		}
	}
	return out
}

// RunIDs returns every known run ID, sorted.
func (m *Memory) RunIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
