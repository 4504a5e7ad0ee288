package journal

import (
	"testing"
	"time"
)

func TestRunBuffer_CapacityEvictsOldest(t *testing.T) {
	buf := NewRunBuffer(2, time.Minute)
	first := buf.Start("u1", false)
	buf.Start("u2", false)
	buf.Start("u3", false)

	records := buf.Snapshot()
	if len(records) != 2 {
		t.Fatalf("got %d records, want capacity 2", len(records))
	}
	for _, rec := range records {
		if rec.ID == first.Record().ID {
			t.Error("oldest run must be evicted")
		}
	}
}

func TestRunBuffer_SnapshotNewestFirst(t *testing.T) {
	buf := NewRunBuffer(10, time.Minute)
	buf.Start("u1", false)
	second := buf.Start("u2", true)

	records := buf.Snapshot()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != second.Record().ID {
		t.Error("snapshot not newest-first")
	}
	if !records[0].Detached {
		t.Error("detached flag lost")
	}
}

func TestRun_StateTransitions(t *testing.T) {
	buf := NewRunBuffer(10, time.Minute)
	run := buf.Start("u1", false)
	if run.Record().State != StateAcquiring {
		t.Errorf("initial state = %q, want acquiring", run.Record().State)
	}

	run.setState(StateExtracting)
	run.setState(StatePersisting)
	run.setState(StateDone)
	rec := run.Record()
	if rec.State != StateDone {
		t.Errorf("state = %q, want done", rec.State)
	}
	if rec.FinishedAt.IsZero() {
		t.Error("finished timestamp not set")
	}
}
