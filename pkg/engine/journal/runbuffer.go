package journal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState tracks a pipeline invocation through its phases.
type RunState string

const (
	StateAcquiring  RunState = "acquiring"
	StateExtracting RunState = "extracting"
	StatePersisting RunState = "persisting"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

// RunRecord is a point-in-time copy of one pipeline run, exposed for
// operator visibility. Detached runs have no caller to report to; this
// buffer is where their outcome lands.
type RunRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Detached   bool      `json:"detached"`
	State      RunState  `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// RunBuffer is a bounded in-memory record of recent runs with a TTL.
type RunBuffer struct {
	mu       sync.Mutex
	items    []*runItem
	capacity int
	ttl      time.Duration
}

type runItem struct {
	rec RunRecord
}

// Run is a live handle the pipeline updates as it advances.
type Run struct {
	buf  *RunBuffer
	item *runItem
}

func NewRunBuffer(capacity int, ttl time.Duration) *RunBuffer {
	if capacity <= 0 {
		capacity = 128
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunBuffer{capacity: capacity, ttl: ttl}
}

// Start registers a new run, evicting the oldest if capacity is exceeded.
func (b *RunBuffer) Start(userID string, detached bool) *Run {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := &runItem{rec: RunRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Detached:  detached,
		State:     StateAcquiring,
		StartedAt: time.Now(),
	}}
	b.items = append(b.items, item)
	if len(b.items) > b.capacity {
		b.items = b.items[len(b.items)-b.capacity:]
	}
	return &Run{buf: b, item: item}
}

// Snapshot returns copies of the non-expired run records, newest first.
func (b *RunBuffer) Snapshot() []RunRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.ttl)
	var kept []*runItem
	for _, item := range b.items {
		if item.rec.StartedAt.After(cutoff) {
			kept = append(kept, item)
		}
	}
	b.items = kept

	out := make([]RunRecord, len(kept))
	for i, item := range kept {
		out[len(kept)-1-i] = item.rec
	}
	return out
}

func (r *Run) setState(s RunState) {
	if r == nil {
		return
	}
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	r.item.rec.State = s
	if s == StateDone {
		r.item.rec.FinishedAt = time.Now()
	}
}

func (r *Run) fail(err error) {
	if r == nil {
		return
	}
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	r.item.rec.State = StateFailed
	r.item.rec.Error = err.Error()
	r.item.rec.FinishedAt = time.Now()
}

// Record returns a copy of the run's current state.
func (r *Run) Record() RunRecord {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return r.item.rec
}
