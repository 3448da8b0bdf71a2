package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/executor"
	"scriptsched/internal/runtime/supervisor"
	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	bus  eventbus.Bus
	exec executor.Executor

	tasks map[task.ID]*task.Task
	order []task.ID
	queue deadlineQueue
	armed map[task.ID]*deadline
	seq   uint64

	wake     chan struct{}
	sup      *supervisor.Supervisor
	stopping bool
}

func New(cfg Config, exec executor.Executor, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		exec:  exec,
		tasks: map[task.ID]*task.Task{},
		armed: map[task.ID]*deadline{},
		wake:  make(chan struct{}, 1),
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Apply updates the timezone used for wall-clock input. Armed deadlines are
// absolute instants and are not affected.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.loc = s.loadLocationLocked()
		s.log.Info("timezone changed", logx.String("tz", s.loc.String()))
	}
}

// Location is the timezone the console should parse dates in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Start launches the dispatcher. Tasks added before Start, or left armed by
// a previous Stop, fire as soon as their deadline is reached.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup = sup
	sup.GoRestart("scheduler.dispatch", func(ctx context.Context) error {
		return s.dispatchLoop(ctx, sup)
	}, 100*time.Millisecond, 5*time.Second)
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("armed", s.queue.Len()))
}

// Stop halts the dispatcher, aborts in-flight executions and waits for them
// until ctx is done. WAITING tasks stay armed.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	sup := s.sup
	if sup == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	now := time.Now()
	canAbort := executor.CanAbort(s.exec)
	aborted := 0
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status() == task.Running && t.Cancel(now, canAbort) == task.CancelAbortRequested {
			aborted++
		}
	}
	s.mu.Unlock()
	s.log.Info("stop requested", logx.Int("aborting", aborted))

	err := sup.Stop(ctx)

	s.mu.Lock()
	s.sup = nil
	s.stopping = false
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("service stopped with error", logx.Duration("took", time.Since(start)), logx.Err(err))
		return err
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Running:  s.sup != nil,
		Timezone: s.loc.String(),
		Total:    len(s.order),
		Armed:    s.queue.Len(),
	}
	for _, id := range s.order {
		switch s.tasks[id].Status() {
		case task.Waiting:
			st.Waiting++
		case task.Running:
			st.Active++
		case task.Done:
			st.Done++
		case task.Cancelled:
			st.Cancelled++
		}
	}
	if s.sup != nil {
		st.Routines = s.sup.Counters()
	}
	return st
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) publish(typ string, snap task.Snapshot) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: snap})
}

func (s *Service) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
