// Package console is the interactive text menu used to add, list, cancel
// and remove scheduled scripts.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"scriptsched/internal/eventbus"
	"scriptsched/internal/storage"
	"scriptsched/internal/task"
	"scriptsched/internal/task/scheduler"
	logx "scriptsched/pkg/logx"
)

// Scheduler is the subset of *scheduler.Service the console drives.
type Scheduler interface {
	AddTask(scriptRef string, scheduledAt time.Time) (task.ID, error)
	ListTasks() []task.Snapshot
	Get(identifier string) (task.Snapshot, bool)
	RemoveTaskOpt(identifier string, opt scheduler.RemoveOptions) scheduler.RemoveResult
	CancelTask(identifier string) (task.CancelResult, error)
	Location() *time.Location
	Stats() scheduler.Stats
}

// History is satisfied by storage.Store.
type History interface {
	Recent(ctx context.Context, limit int) ([]storage.Record, error)
}

const historyLimit = 20

type Option func(*Console)

// WithEvents prints task start and completion notices as they happen.
func WithEvents(events <-chan eventbus.Event) Option {
	return func(c *Console) { c.events = events }
}

// WithClock overrides time.Now for relative input and rendering.
func WithClock(now func() time.Time) Option {
	return func(c *Console) { c.now = now }
}

type Console struct {
	in    io.Reader
	outMu sync.Mutex
	out   io.Writer

	sched  Scheduler
	hist   History
	events <-chan eventbus.Event
	log    logx.Logger
	now    func() time.Time
}

// New builds a console. hist may be nil when storage is disabled.
func New(in io.Reader, out io.Writer, sched Scheduler, hist History, log logx.Logger, opts ...Option) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{in: in, out: out, sched: sched, hist: hist, log: log, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run serves the menu until "0", end of input or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	if c.events != nil {
		go c.printEvents(ctx)
	}

	read := func(prompt string) (string, error) {
		c.printf("%s", prompt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return strings.TrimSpace(line), nil
		}
	}

	for {
		choice, err := read(menu)
		if err != nil {
			return endOfInput(err)
		}
		switch choice {
		case "1":
			err = c.add(read)
		case "2":
			c.show()
		case "3":
			err = c.remove(read, false)
		case "4":
			err = c.cancel(read)
		case "5":
			err = c.remove(read, true)
		case "6":
			c.history(ctx)
		case "0":
			return nil
		default:
			c.printf("Invalid choice. Please try again.\n")
		}
		if err != nil {
			return endOfInput(err)
		}
	}
}

const menu = `
Options:
1. Add new task
2. Show tasks
3. Remove task
4. Cancel task
5. Abort running task
6. Show history
0. Exit
Choose an option: `

func endOfInput(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

type reader func(prompt string) (string, error)

func (c *Console) add(read reader) error {
	path, err := read("Enter script path: ")
	if err != nil {
		return err
	}
	raw, err := read("Enter date and time (yyyy-MM-dd HH:mm, HH:mm, +10m or cron:<expr>): ")
	if err != nil {
		return err
	}
	at, _, err := scheduler.ParseWhen(raw, c.now(), c.sched.Location())
	if err != nil {
		c.log.Debug("date rejected", logx.String("input", raw), logx.Err(err))
		c.printf("Invalid date format.\n")
		return nil
	}
	id, err := c.sched.AddTask(path, at)
	switch {
	case errors.Is(err, scheduler.ErrPastTime):
		c.printf("Error: The specified time is in the past. Please enter a future date and time.\n")
	case errors.Is(err, scheduler.ErrEmptyScript):
		c.printf("Error: script path required.\n")
	case err != nil:
		c.printf("Error: %v\n", err)
	default:
		c.printf("Task added: %s at %s (id %s, %s)\n", strings.TrimSpace(path), formatTime(at, c.sched.Location()), id.Short(), relative(at, c.now()))
	}
	return nil
}

func (c *Console) remove(read reader, abort bool) error {
	prompt := "Enter task ID or script path to remove: "
	if abort {
		prompt = "Enter task ID or script path to abort and remove: "
	}
	ident, err := read(prompt)
	if err != nil {
		return err
	}
	snap, ok := c.sched.Get(ident)
	if !ok {
		c.printf("Task not found.\n")
		return nil
	}
	switch c.sched.RemoveTaskOpt(string(snap.ID), scheduler.RemoveOptions{AbortRunning: abort}) {
	case scheduler.Removed:
		c.printf("Task %s removed.\n", snap.ScriptRef)
	case scheduler.CannotRemoveRunning:
		c.printf("Cannot remove a running task.\n")
	case scheduler.AbortRequested:
		c.printf("Abort requested; task %s will be removed when it stops.\n", snap.ScriptRef)
	case scheduler.AbortUnsupported:
		c.printf("Running task %s cannot be aborted.\n", snap.ScriptRef)
	default:
		c.printf("Task not found.\n")
	}
	return nil
}

func (c *Console) cancel(read reader) error {
	ident, err := read("Enter task ID or script path to cancel: ")
	if err != nil {
		return err
	}
	snap, ok := c.sched.Get(ident)
	if !ok {
		c.printf("Task not found.\n")
		return nil
	}
	res, err := c.sched.CancelTask(string(snap.ID))
	if err != nil {
		c.printf("Task not found.\n")
		return nil
	}
	switch res {
	case task.CancelDisarmed:
		c.printf("Task %s cancelled.\n", snap.ScriptRef)
	case task.CancelAbortRequested:
		c.printf("Abort requested for running task %s.\n", snap.ScriptRef)
	case task.CancelAbortUnsupported:
		c.printf("Running task %s cannot be aborted.\n", snap.ScriptRef)
	default:
		c.printf("Task %s is already %s.\n", snap.ScriptRef, strings.ToLower(snap.Status.String()))
	}
	return nil
}

func (c *Console) printEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			snap, ok := ev.Data.(task.Snapshot)
			if !ok {
				continue
			}
			switch ev.Type {
			case eventbus.TaskStarted:
				c.printf("\nRunning task: %s\n", snap.ScriptRef)
			case eventbus.TaskFinished:
				if o := snap.LastOutcome; o != nil && o.Kind != task.Success {
					c.printf("\nTask %s failed: %s\n", snap.ScriptRef, o.Reason)
					continue
				}
				c.printf("\nTask %s finished.\n", snap.ScriptRef)
			case eventbus.TaskCancelled:
				// Waiting tasks cancelled from the menu were already reported.
				if snap.LastOutcome != nil {
					c.printf("\nTask %s aborted.\n", snap.ScriptRef)
				}
			}
		}
	}
}
