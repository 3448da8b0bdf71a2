package app

import (
	"context"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/storage"
	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

const recordTimeout = 2 * time.Second

// recordFromEvent flattens a lifecycle event into a history row.
// Events that do not carry a task snapshot are skipped.
func recordFromEvent(ev eventbus.Event) (storage.Record, bool) {
	snap, ok := ev.Data.(task.Snapshot)
	if !ok {
		return storage.Record{}, false
	}
	r := storage.Record{
		At:          ev.Time,
		Event:       ev.Type,
		TaskID:      string(snap.ID),
		Script:      snap.ScriptRef,
		ScheduledAt: snap.ScheduledAt,
		Status:      snap.Status.String(),
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	// Only terminal events describe the outcome of the current run.
	if o := snap.LastOutcome; o != nil && (ev.Type == eventbus.TaskFinished || ev.Type == eventbus.TaskCancelled) {
		r.Outcome = o.Kind.String()
		r.ExitCode = o.ExitCode
		r.Error = o.Reason
		r.DurationMS = o.Duration().Milliseconds()
	}
	return r, true
}

// record appends every task event to the store until ctx is done, then
// drains what is already buffered. Failures are logged and never reach the
// scheduler.
func record(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	write := func(ev eventbus.Event) {
		r, ok := recordFromEvent(ev)
		if !ok {
			return
		}
		c, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		err := store.Append(c, r)
		cancel()
		if err != nil {
			log.Warn("history append failed", logx.String("event", r.Event), logx.String("task", r.TaskID), logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			write(ev)
		}
	}
}
