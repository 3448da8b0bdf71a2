package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "scriptsched/pkg/logx"
)

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver string
		file   string
	}{
		{driver: "file", file: "history"},
		{driver: "sqlite", file: "history.db"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			st, err := Open(Config{Driver: tt.driver, Path: filepath.Join(t.TempDir(), "sub", tt.file)}, logx.Nop())
			if err != nil {
				t.Fatalf("Open error: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				r := Record{
					At:          base.Add(time.Duration(i) * time.Second),
					Event:       "task.finished",
					TaskID:      fmt.Sprintf("id-%d", i),
					Script:      "a.ps1",
					ScheduledAt: base,
					Status:      "DONE",
					Outcome:     "FAILURE",
					ExitCode:    i,
					Error:       "exit status",
					DurationMS:  int64(i * 10),
				}
				if err := st.Append(ctx, r); err != nil {
					t.Fatalf("Append error: %v", err)
				}
			}

			got, err := st.Recent(ctx, 3)
			if err != nil {
				t.Fatalf("Recent error: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d, want 3", len(got))
			}
			for i, r := range got {
				want := fmt.Sprintf("id-%d", i+2)
				if r.TaskID != want {
					t.Fatalf("got[%d].TaskID = %s, want %s", i, r.TaskID, want)
				}
			}
			last := got[2]
			if last.ExitCode != 4 || last.DurationMS != 40 || last.Outcome != "FAILURE" || !last.ScheduledAt.Equal(base) {
				t.Fatalf("last = %+v", last)
			}
		})
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "h.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Append(ctx, Record{TaskID: "a"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()
	if err := st.Append(ctx, Record{TaskID: "b"}); err != nil {
		t.Fatal(err)
	}

	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 || got[0].TaskID != "a" || got[1].TaskID != "b" {
		t.Fatalf("got %+v", got)
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if err := st.Append(context.Background(), Record{}); err != ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestSQLiteReportsUnreadableTimestamps(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")}, logx.New(&logs, "warn"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"good", "bad"} {
		if err := st.Append(ctx, Record{At: at, Event: "task.added", TaskID: id, ScheduledAt: at, Status: "WAITING"}); err != nil {
			t.Fatal(err)
		}
	}
	db := st.(*sqliteStore).db
	if _, err := db.ExecContext(ctx, `UPDATE history SET at = 'garbage' WHERE task_id = 'bad'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 || !got[0].At.Equal(at) || !got[1].At.IsZero() {
		t.Fatalf("got %+v", got)
	}
	if n := strings.Count(logs.String(), "unreadable timestamps"); n != 1 {
		t.Fatalf("warning logged %d times, want once:\n%s", n, logs.String())
	}
}
