package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newWaiting(t *testing.T) (*Task, *int) {
	t.Helper()
	now := time.Now()
	tk := New("  a.ps1 ", now.Add(time.Minute), now)
	disarmed := 0
	tk.Arm(func() { disarmed++ })
	return tk, &disarmed
}

func TestNewTaskIsWaiting(t *testing.T) {
	t.Parallel()
	tk, _ := newWaiting(t)
	if tk.Status() != Waiting {
		t.Fatalf("status = %s, want WAITING", tk.Status())
	}
	if tk.ScriptRef() != "a.ps1" {
		t.Fatalf("scriptRef = %q", tk.ScriptRef())
	}
	if len(tk.ID()) != 36 || len(tk.ID().Short()) != 8 {
		t.Fatalf("unexpected id %q", tk.ID())
	}
}

func TestCancelWaitingIsIdempotent(t *testing.T) {
	t.Parallel()
	tk, disarmed := newWaiting(t)
	now := time.Now()

	if r := tk.Cancel(now, true); r != CancelDisarmed {
		t.Fatalf("first cancel = %s, want cancelled", r)
	}
	if r := tk.Cancel(now, true); r != CancelNoOp {
		t.Fatalf("second cancel = %s, want no-op", r)
	}
	if tk.Status() != Cancelled {
		t.Fatalf("status = %s, want CANCELLED", tk.Status())
	}
	if *disarmed != 1 {
		t.Fatalf("disarm called %d times, want 1", *disarmed)
	}
}

func TestLifecycleWaitingRunningDone(t *testing.T) {
	t.Parallel()
	tk, _ := newWaiting(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := tk.Start(time.Now(), cancel); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tk.Status() != Running {
		t.Fatalf("status = %s, want RUNNING", tk.Status())
	}
	st, err := tk.Complete(Outcome{Kind: Failure, ExitCode: 2, Finished: time.Now()})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if st != Done {
		t.Fatalf("failure outcome should still end DONE, got %s", st)
	}
	if ctx.Err() == nil {
		t.Fatal("abort handle should be released on completion")
	}
	snap := tk.Snapshot()
	if snap.LastOutcome == nil || snap.LastOutcome.ExitCode != 2 {
		t.Fatalf("outcome not recorded: %+v", snap)
	}
}

func TestCancelRunning(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		canAbort  bool
		outcome   OutcomeKind
		want      CancelResult
		wantFinal Status
	}{
		{name: "abort acknowledged", canAbort: true, outcome: Aborted, want: CancelAbortRequested, wantFinal: Cancelled},
		{name: "finished before abort", canAbort: true, outcome: Success, want: CancelAbortRequested, wantFinal: Done},
		{name: "unsupported", canAbort: false, outcome: Success, want: CancelAbortUnsupported, wantFinal: Done},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tk, _ := newWaiting(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_ = tk.Start(time.Now(), cancel)

			if r := tk.Cancel(time.Now(), tt.canAbort); r != tt.want {
				t.Fatalf("Cancel = %s, want %s", r, tt.want)
			}
			if tk.Status() != Running {
				t.Fatalf("status must stay RUNNING until acknowledged, got %s", tk.Status())
			}
			if tt.canAbort && ctx.Err() == nil {
				t.Fatal("abort signal not delivered")
			}
			if tt.canAbort {
				if r := tk.Cancel(time.Now(), true); r != CancelNoOp {
					t.Fatalf("repeated cancel = %s, want no-op", r)
				}
			}
			st, _ := tk.Complete(Outcome{Kind: tt.outcome})
			if st != tt.wantFinal {
				t.Fatalf("final status = %s, want %s", st, tt.wantFinal)
			}
		})
	}
}

func TestNoTransitionOutOfFinal(t *testing.T) {
	t.Parallel()
	tk, _ := newWaiting(t)
	tk.Cancel(time.Now(), true)

	if err := tk.Start(time.Now(), func() {}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Start from CANCELLED = %v, want ErrInvalidTransition", err)
	}
	if _, err := tk.Complete(Outcome{Kind: Success}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete from CANCELLED = %v, want ErrInvalidTransition", err)
	}
	if tk.Status() != Cancelled {
		t.Fatalf("status changed to %s", tk.Status())
	}
}

func TestRequestRemovalMarksRunningTask(t *testing.T) {
	t.Parallel()
	tk, _ := newWaiting(t)
	_, cancel := context.WithCancel(context.Background())
	_ = tk.Start(time.Now(), cancel)

	if r := tk.RequestRemoval(time.Now(), true); r != CancelAbortRequested {
		t.Fatalf("RequestRemoval = %s", r)
	}
	if !tk.RemoveOnAck() || !tk.AbortRequested() {
		t.Fatal("expected removal-on-ack and abort flags")
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{Waiting, Running, Done, Cancelled} {
		got, ok := ParseStatus(s.String())
		if !ok || got != s {
			t.Fatalf("ParseStatus(%s) = %v, %v", s, got, ok)
		}
	}
	if _, ok := ParseStatus("paused"); ok {
		t.Fatal("expected unknown status")
	}
}
