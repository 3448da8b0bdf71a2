package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

// Process runs scripts as OS processes, one process per Execute call.
// It is safe for concurrent use; Apply may run concurrently with Execute.
type Process struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger
}

func NewProcess(cfg Config, log logx.Logger) *Process {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Process{log: log}
	p.Apply(cfg)
	return p
}

// Apply swaps the executor settings; in-flight runs keep their old settings.
func (p *Process) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	p.mu.Lock()
	p.cfg = cfg
	// Token bucket: burst = rate per sec so a same-deadline burst still starts promptly.
	p.limiter = rate.NewLimiter(rate.Limit(cfg.SpawnRatePerSec), cfg.SpawnRatePerSec)
	p.mu.Unlock()
}

func (p *Process) CanAbort() bool { return true }

func (p *Process) Execute(ctx context.Context, scriptRef string) task.Outcome {
	p.mu.Lock()
	cfg := p.cfg
	lim := p.limiter
	p.mu.Unlock()

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return OutcomeFromError(ctx, fmt.Errorf("spawn throttled: %w", err), start, time.Now())
	}

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	argv := cfg.commandFor(scriptRef)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cfg.WorkDir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	out := newTailBuffer(cfg.OutputLimit)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second
	killProcessGroup(cmd)

	p.log.Debug("process starting", logx.String("script", scriptRef), logx.Any("argv", argv))
	err := cmd.Run()
	end := time.Now()

	o := OutcomeFromError(ctx, err, start, end)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		o.Kind = task.Failure
		o.Reason = fmt.Sprintf("timeout after %s", cfg.Timeout)
	}
	o.Output = out.String()

	fields := []logx.Field{
		logx.String("script", scriptRef),
		logx.String("outcome", o.Kind.String()),
		logx.Int("exit_code", o.ExitCode),
		logx.Duration("dur", end.Sub(start)),
	}
	if cmd.Process != nil {
		fields = append(fields, logx.Int("pid", cmd.Process.Pid))
	}
	if o.Kind == task.Failure {
		p.log.Warn("process failed", append(fields, logx.String("reason", o.Reason))...)
	} else {
		p.log.Debug("process exited", fields...)
	}
	return o
}
