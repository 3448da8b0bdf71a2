package scheduler

import (
	"container/heap"
	"strings"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/executor"
	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

// minPrefixLen is the shortest ID prefix accepted as an identifier.
const minPrefixLen = 4

// AddTask registers a WAITING task that fires at scheduledAt.
// scheduledAt must be strictly after now; otherwise ErrPastTime is returned
// and the registry is unchanged.
func (s *Service) AddTask(scriptRef string, scheduledAt time.Time) (task.ID, error) {
	if strings.TrimSpace(scriptRef) == "" {
		return "", ErrEmptyScript
	}
	now := time.Now()
	if !scheduledAt.After(now) {
		return "", ErrPastTime
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return "", ErrStopped
	}
	t := task.New(scriptRef, scheduledAt, now)
	s.tasks[t.ID()] = t
	s.order = append(s.order, t.ID())
	s.armLocked(t)
	head := s.queue.peek()
	first := head != nil && head.id == t.ID()
	snap := t.Snapshot()
	s.mu.Unlock()

	if first {
		s.kick()
	}
	s.publish(eventbus.TaskAdded, snap)
	s.log.Info("task scheduled",
		logx.String("id", string(snap.ID)),
		logx.String("script", snap.ScriptRef),
		logx.Time("at", snap.ScheduledAt),
		logx.Duration("in", snap.ScheduledAt.Sub(now)),
	)
	return snap.ID, nil
}

// armLocked pushes the deadline and installs the disarm hook.
func (s *Service) armLocked(t *task.Task) {
	s.seq++
	d := &deadline{id: t.ID(), at: t.ScheduledAt(), seq: s.seq}
	heap.Push(&s.queue, d)
	s.armed[t.ID()] = d
	id := t.ID()
	t.Arm(func() {
		if d := s.armed[id]; d != nil {
			s.queue.remove(d)
			delete(s.armed, id)
		}
	})
}

// ListTasks returns snapshots in insertion order.
func (s *Service) ListTasks() []task.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Snapshot())
	}
	return out
}

// Get resolves identifier like RemoveTask does.
func (s *Service) Get(identifier string) (task.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.resolveLocked(identifier)
	if t == nil {
		return task.Snapshot{}, false
	}
	return t.Snapshot(), true
}

// RemoveTask removes a WAITING, DONE or CANCELLED task. RUNNING tasks are
// refused and left untouched.
func (s *Service) RemoveTask(identifier string) RemoveResult {
	return s.RemoveTaskOpt(identifier, RemoveOptions{})
}

func (s *Service) RemoveTaskOpt(identifier string, opt RemoveOptions) RemoveResult {
	s.mu.Lock()
	t := s.resolveLocked(identifier)
	if t == nil {
		s.mu.Unlock()
		return NotFound
	}
	now := time.Now()
	var res RemoveResult
	switch t.Status() {
	case task.Running:
		if !opt.AbortRunning {
			s.mu.Unlock()
			return CannotRemoveRunning
		}
		if t.RequestRemoval(now, executor.CanAbort(s.exec)) == task.CancelAbortUnsupported {
			res = AbortUnsupported
		} else {
			res = AbortRequested
		}
	case task.Waiting:
		t.Cancel(now, false)
		s.deleteLocked(t.ID())
		res = Removed
	default:
		s.deleteLocked(t.ID())
		res = Removed
	}
	snap := t.Snapshot()
	s.mu.Unlock()

	fields := []logx.Field{logx.String("id", string(snap.ID)), logx.String("script", snap.ScriptRef), logx.String("result", res.String())}
	switch res {
	case Removed:
		s.log.Info("task removed", fields...)
		s.publish(eventbus.TaskRemoved, snap)
	case AbortRequested:
		s.log.Info("task abort requested", fields...)
		s.publish(eventbus.TaskAbortRequested, snap)
	default:
		s.log.Warn("task abort unsupported", fields...)
	}
	return res
}

// CancelTask cancels without removing; the task stays listed.
func (s *Service) CancelTask(identifier string) (task.CancelResult, error) {
	s.mu.Lock()
	t := s.resolveLocked(identifier)
	if t == nil {
		s.mu.Unlock()
		return task.CancelNoOp, ErrNotFound
	}
	res := t.Cancel(time.Now(), executor.CanAbort(s.exec))
	snap := t.Snapshot()
	s.mu.Unlock()

	fields := []logx.Field{logx.String("id", string(snap.ID)), logx.String("script", snap.ScriptRef), logx.String("result", res.String())}
	switch res {
	case task.CancelDisarmed:
		s.log.Info("task cancelled", fields...)
		s.publish(eventbus.TaskCancelled, snap)
	case task.CancelAbortRequested:
		s.log.Info("task abort requested", fields...)
		s.publish(eventbus.TaskAbortRequested, snap)
	case task.CancelAbortUnsupported:
		s.log.Warn("task abort unsupported", fields...)
	default:
		s.log.Debug("task cancel no-op", fields...)
	}
	return res, nil
}

// resolveLocked finds a task by exact ID, unique ID prefix, or the first
// task (in insertion order) whose script path equals identifier.
func (s *Service) resolveLocked(identifier string) *task.Task {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return nil
	}
	if t, ok := s.tasks[task.ID(ident)]; ok {
		return t
	}
	if len(ident) >= minPrefixLen {
		var match *task.Task
		n := 0
		for _, id := range s.order {
			if strings.HasPrefix(string(id), ident) {
				match = s.tasks[id]
				n++
			}
		}
		if n == 1 {
			return match
		}
	}
	for _, id := range s.order {
		if t := s.tasks[id]; t.ScriptRef() == ident {
			return t
		}
	}
	return nil
}

// deleteLocked drops a task from the registry and disarms any leftover
// deadline.
func (s *Service) deleteLocked(id task.ID) {
	if d := s.armed[id]; d != nil {
		s.queue.remove(d)
		delete(s.armed, id)
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
