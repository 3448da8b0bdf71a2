package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestParseWhenVariants(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Time
		kind WhenKind
	}{
		{name: "date minute", raw: "2024-05-01 14:30", want: time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC), kind: WhenAbsolute},
		{name: "date seconds", raw: "2024-05-01T14:30:05", want: time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC), kind: WhenAbsolute},
		{name: "rfc3339", raw: "2024-05-01T14:30:00+02:00", want: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), kind: WhenAbsolute},
		{name: "clock", raw: " 14:30 ", want: time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC), kind: WhenAbsolute},
		{name: "plus", raw: "+90s", want: now.Add(90 * time.Second), kind: WhenRelative},
		{name: "in", raw: "in 5m", want: now.Add(5 * time.Minute), kind: WhenRelative},
		{name: "bare duration", raw: "1h30m", want: now.Add(90 * time.Minute), kind: WhenRelative},
		{name: "prefixed cron", raw: "cron:0 9 * * *", want: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), kind: WhenCron},
		{name: "bare cron", raw: "*/15 * * * *", want: time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), kind: WhenCron},
		{name: "descriptor", raw: "@daily", want: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), kind: WhenCron},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, kind, err := ParseWhen(tt.raw, now, time.UTC)
			if err != nil {
				t.Fatalf("ParseWhen(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseWhen(%q) = %s, want %s", tt.raw, got, tt.want)
			}
			if kind != tt.kind {
				t.Fatalf("kind = %s, want %s", kind, tt.kind)
			}
		})
	}
}

func TestParseWhenUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got, _, err := ParseWhen("2024-05-01 15:00", now, loc)
	if err != nil {
		t.Fatalf("ParseWhen error: %v", err)
	}
	if want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got.UTC(), want)
	}
}

func TestParseWhenInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "tomorrow", "25:00", "2024-13-01 10:00", "cron:", "cron:not a cron"} {
		_, _, err := ParseWhen(raw, time.Now(), time.UTC)
		if !errors.Is(err, ErrInvalidWhen) {
			t.Fatalf("ParseWhen(%q) err = %v, want ErrInvalidWhen", raw, err)
		}
	}
}
