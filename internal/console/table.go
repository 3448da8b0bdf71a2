package console

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"scriptsched/internal/task"
	logx "scriptsched/pkg/logx"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(timeLayout)
}

// relative renders t against now, e.g. "3 minutes from now".
func relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func lastResult(s task.Snapshot) string {
	o := s.LastOutcome
	if o == nil {
		if s.AbortReq {
			return "abort requested"
		}
		return "-"
	}
	switch o.Kind {
	case task.Success:
		return fmt.Sprintf("ok in %s", o.Duration().Round(time.Millisecond))
	case task.Aborted:
		return "aborted"
	default:
		if o.ExitCode > 0 {
			return fmt.Sprintf("exit %d", o.ExitCode)
		}
		return truncate(o.Reason, 40)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (c *Console) show() {
	snaps := c.sched.ListTasks()
	loc := c.sched.Location()
	now := c.now()

	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, "\nCurrent tasks:")
	if len(snaps) == 0 {
		fmt.Fprintln(c.out, "No tasks.")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT\tSCHEDULED\tSTATUS\tWHEN\tLAST RESULT")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID.Short(), s.ScriptRef, formatTime(s.ScheduledAt, loc), s.Status, relative(s.ScheduledAt, now), lastResult(s))
	}
	_ = tw.Flush()

	st := c.sched.Stats()
	fmt.Fprintf(c.out, "waiting=%d running=%d done=%d cancelled=%d tz=%s\n", st.Waiting, st.Active, st.Done, st.Cancelled, st.Timezone)
}

func (c *Console) history(ctx context.Context) {
	if c.hist == nil {
		c.printf("History is disabled (set storage.driver to file or sqlite).\n")
		return
	}
	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	recs, err := c.hist.Recent(qctx, historyLimit)
	if err != nil {
		c.log.Warn("history query failed", logx.Err(err))
		c.printf("Error: %v\n", err)
		return
	}
	loc := c.sched.Location()

	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, "\nRecent history:")
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No history yet.")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tEVENT\tID\tSCRIPT\tSTATUS\tOUTCOME\tEXIT")
	for _, r := range recs {
		id := r.TaskID
		if len(id) > 8 {
			id = id[:8]
		}
		outcome := r.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			formatTime(r.At, loc), strings.TrimPrefix(r.Event, "task."), id, r.Script, r.Status, outcome, r.ExitCode)
	}
	_ = tw.Flush()
}
