package scheduler

import (
	"context"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/executor"
	"scriptsched/internal/runtime/supervisor"
	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

// launch is a task that left the heap and must be handed to the executor.
type launch struct {
	ctx  context.Context
	snap task.Snapshot
}

// dispatchLoop sleeps until the earliest deadline, fires everything due and
// re-arms. A wake signal re-evaluates the head of the heap.
func (s *Service) dispatchLoop(ctx context.Context, sup *supervisor.Supervisor) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		due, next, ok := s.takeDue(ctx)
		for _, l := range due {
			s.publish(eventbus.TaskStarted, l.snap)
			s.log.Info("task started", logx.String("id", string(l.snap.ID)), logx.String("script", l.snap.ScriptRef),
				logx.Duration("late", l.snap.StartedAt.Sub(l.snap.ScheduledAt)))
			l := l
			sup.Go("task.run", func(context.Context) error {
				s.run(l)
				return nil
			})
		}

		var fire <-chan time.Time
		if ok {
			timer.Reset(time.Until(next))
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			timer.Stop()
		case <-fire:
		}
	}
}

// takeDue pops every expired deadline and moves those tasks to RUNNING.
// It returns the next deadline still armed, if any.
func (s *Service) takeDue(ctx context.Context) (due []launch, next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil, time.Time{}, false
	}
	now := time.Now()
	for {
		d := s.queue.peek()
		if d == nil {
			return due, time.Time{}, false
		}
		if d.at.After(now) {
			return due, d.at, true
		}
		s.queue.remove(d)
		delete(s.armed, d.id)

		t := s.tasks[d.id]
		if t == nil || t.Status() != task.Waiting {
			continue
		}
		runCtx, abort := context.WithCancel(ctx)
		if err := t.Start(now, abort); err != nil {
			abort()
			s.log.Warn("task not started", logx.String("id", string(t.ID())), logx.Err(err))
			continue
		}
		due = append(due, launch{ctx: runCtx, snap: t.Snapshot()})
	}
}

// run executes one task and records its outcome. Executor panics are turned
// into Failure outcomes by executor.Recover.
func (s *Service) run(l launch) {
	o := executor.Recover(l.ctx, s.exec, l.snap.ScriptRef)
	s.complete(l.snap.ID, o)
}

func (s *Service) complete(id task.ID, o task.Outcome) {
	s.mu.Lock()
	t := s.tasks[id]
	if t == nil {
		s.mu.Unlock()
		s.log.Warn("completed task no longer registered", logx.String("id", string(id)))
		return
	}
	status, err := t.Complete(o)
	removed := false
	if err == nil && t.RemoveOnAck() {
		s.deleteLocked(id)
		removed = true
	}
	snap := t.Snapshot()
	s.mu.Unlock()

	if err != nil {
		s.log.Error("task completion rejected", logx.String("id", string(id)), logx.Err(err))
		return
	}

	fields := []logx.Field{
		logx.String("id", string(id)),
		logx.String("script", snap.ScriptRef),
		logx.String("status", status.String()),
		logx.String("outcome", o.Kind.String()),
		logx.Int("exit_code", o.ExitCode),
		logx.Duration("dur", o.Duration()),
	}
	switch {
	case status == task.Cancelled:
		s.log.Info("task cancelled", fields...)
		s.publish(eventbus.TaskCancelled, snap)
	case o.Kind == task.Success:
		s.log.Info("task finished", fields...)
		s.publish(eventbus.TaskFinished, snap)
	default:
		s.log.Warn("task failed", append(fields, logx.String("reason", o.Reason))...)
		s.publish(eventbus.TaskFinished, snap)
	}
	if removed {
		s.publish(eventbus.TaskRemoved, snap)
	}
}
