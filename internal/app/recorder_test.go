package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/storage"
	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	recs []storage.Record
}

func (m *memStore) Append(_ context.Context, r storage.Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, r)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.recs) {
		limit = len(m.recs)
	}
	return append([]storage.Record(nil), m.recs[len(m.recs)-limit:]...), nil
}

func (m *memStore) Close() error { return nil }

func TestRecordFromEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	started := at.Add(time.Minute)
	snap := task.Snapshot{
		ID:          task.ID("0123456789abcdef"),
		ScriptRef:   "backup.ps1",
		ScheduledAt: at,
		Status:      task.Done,
		LastOutcome: &task.Outcome{
			Kind:     task.Failure,
			ExitCode: 2,
			Reason:   "exit status 2",
			Started:  started,
			Finished: started.Add(1500 * time.Millisecond),
		},
	}

	r, ok := recordFromEvent(eventbus.Event{Type: eventbus.TaskFinished, Time: started, Data: snap})
	if !ok {
		t.Fatalf("snapshot event skipped")
	}
	if r.TaskID != string(snap.ID) || r.Script != "backup.ps1" || r.Status != task.Done.String() {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Outcome != task.Failure.String() || r.ExitCode != 2 || r.DurationMS != 1500 {
		t.Fatalf("outcome not flattened: %+v", r)
	}

	// A removal after completion does not repeat the outcome.
	r, _ = recordFromEvent(eventbus.Event{Type: eventbus.TaskRemoved, Time: started, Data: snap})
	if r.Outcome != "" || r.ExitCode != 0 {
		t.Fatalf("outcome copied onto non-terminal event: %+v", r)
	}

	if _, ok := recordFromEvent(eventbus.Event{Type: "other", Data: "x"}); ok {
		t.Fatalf("non-snapshot event recorded")
	}
}

func TestRecordDrainsOnCancel(t *testing.T) {
	t.Parallel()

	events := make(chan eventbus.Event, 4)
	for i := 0; i < 3; i++ {
		events <- eventbus.Event{Type: eventbus.TaskAdded, Time: time.Now(), Data: task.Snapshot{ID: task.ID("id"), ScriptRef: "a.sh"}}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &memStore{}
	record(ctx, events, st, logx.Nop())

	recs, _ := st.Recent(context.Background(), 10)
	if len(recs) != 3 {
		t.Fatalf("recorded %d events, want 3", len(recs))
	}
}
