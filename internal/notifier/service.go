package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/runtime/supervisor"
	logx "scriptsched/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

// Config controls event forwarding.
type Config struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
	RatePerSec    int
}

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON payload of every forwarded event.
type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Task any       `json:"task,omitempty"`
}

// Stats counts forwarded and dropped events since New.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

type Option func(*Service)

// WithPublisher bypasses dialing NATS; Stop does not close p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	pub   Publisher
	conn  *nats.Conn
	sup   *supervisor.Supervisor
	unsub func()

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	for _, o := range opts {
		o(s)
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

// Apply swaps rate and subject settings. A changed URL takes effect on the
// next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = nats.DefaultURL
	}
	cfg.SubjectPrefix = strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "scriptsched"
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec so a same-deadline burst is forwarded whole.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start connects (unless a Publisher was injected) and begins forwarding.
// It is idempotent. The connection retries in the background, so a NATS
// server that is down at startup only costs dropped events.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if s.bus == nil {
		return errors.New("notifier requires an event bus")
	}

	pub := s.pub
	if pub == nil {
		nc, err := nats.Connect(s.cfg.URL,
			nats.Name("scriptsched"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				s.log.Warn("nats disconnected", logx.Err(err))
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				s.log.Info("nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
			}),
		)
		if err != nil {
			return err
		}
		s.conn = nc
		pub = nc
	}

	events, unsub := s.bus.Subscribe(256, "task.")
	s.unsub = unsub
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.Go("notifier.forward", func(c context.Context) error {
		s.forward(c, events, pub)
		return nil
	})
	s.log.Info("notifier started", logx.String("prefix", s.cfg.SubjectPrefix), logx.Int("rate_per_sec", s.cfg.RatePerSec))
	return nil
}

// forward sends events until ctx is done, then flushes what is already
// buffered so events published during shutdown still go out.
func (s *Service) forward(ctx context.Context, events <-chan eventbus.Event, pub Publisher) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.send(ev, pub)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.send(ev, pub)
		}
	}
}

func (s *Service) send(ev eventbus.Event, pub Publisher) {
	s.mu.Lock()
	lim := s.limiter
	subject := s.cfg.SubjectPrefix + "." + ev.Type
	s.mu.Unlock()

	if !lim.Allow() {
		s.dropped.Add(1)
		s.log.Debug("event dropped (rate limited)", logx.String("type", ev.Type))
		return
	}
	payload, err := json.Marshal(Message{Type: ev.Type, Time: ev.Time, Task: ev.Data})
	if err != nil {
		s.dropped.Add(1)
		s.log.Warn("event encode failed", logx.String("type", ev.Type), logx.Err(err))
		return
	}
	if err := pub.Publish(subject, payload); err != nil {
		s.dropped.Add(1)
		s.log.Warn("event publish failed", logx.String("subject", subject), logx.Err(err))
		return
	}
	s.sent.Add(1)
}

// Stop ends forwarding and flushes the connection until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, unsub, nc := s.sup, s.unsub, s.conn
	s.sup, s.unsub, s.conn = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	_ = sup.Stop(ctx)
	if nc != nil {
		if dl, ok := ctx.Deadline(); ok {
			_ = nc.FlushTimeout(time.Until(dl))
		}
		nc.Close()
	}
	st := s.Stats()
	s.log.Info("notifier stopped", logx.Uint64("sent", st.Sent), logx.Uint64("dropped", st.Dropped))
}
