package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// WhenKind tells how ParseWhen interpreted its input.
type WhenKind int

const (
	WhenAbsolute WhenKind = iota + 1
	WhenRelative
	WhenCron
)

func (k WhenKind) String() string {
	switch k {
	case WhenAbsolute:
		return "absolute"
	case WhenRelative:
		return "relative"
	case WhenCron:
		return "cron"
	default:
		return "unknown"
	}
}

// ErrInvalidWhen is returned for input no layout accepts.
var ErrInvalidWhen = errors.New("invalid date format")

// absoluteLayouts are tried in order, in the scheduler timezone.
var absoluteLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04",
	"02.01.2006 15:04",
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var whenParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseWhen turns operator input into an instant.
//
// Supported forms:
//   - absolute: "2024-05-01 14:30", "2024-05-01 14:30:00", "2024-05-01T14:30", RFC3339
//   - clock today: "14:30", "14:30:15"
//   - relative: "+90s", "in 5m", "1h30m"
//   - cron, next occurrence after now: "cron:0 9 * * 1", "*/5 * * * *", "@daily"
//
// The result is not checked against now; AddTask rejects past times.
func ParseWhen(raw string, now time.Time, loc *time.Location) (time.Time, WhenKind, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, 0, fmt.Errorf("%w: empty input", ErrInvalidWhen)
	}
	low := strings.ToLower(s)

	if strings.HasPrefix(low, "cron:") {
		return nextCron(strings.TrimSpace(s[len("cron:"):]), now, loc)
	}
	if strings.HasPrefix(s, "@") {
		return nextCron(s, now, loc)
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, WhenAbsolute, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, WhenAbsolute, nil
		}
	}
	if m := reClock.FindStringSubmatch(s); m != nil {
		return clockToday(m, now, loc)
	}

	rel := s
	switch {
	case strings.HasPrefix(rel, "+"):
		rel = rel[1:]
	case strings.HasPrefix(low, "in "):
		rel = strings.TrimSpace(rel[3:])
	}
	if d, err := time.ParseDuration(rel); err == nil {
		return now.Add(d), WhenRelative, nil
	}

	if fields := strings.Fields(s); len(fields) == 5 || len(fields) == 6 {
		return nextCron(s, now, loc)
	}
	return time.Time{}, 0, fmt.Errorf("%w: %q (use 'YYYY-MM-DD HH:MM', 'HH:MM', '+10m' or 'cron:<expr>')", ErrInvalidWhen, raw)
}

func clockToday(m []string, now time.Time, loc *time.Location) (time.Time, WhenKind, error) {
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || sec > 59 {
		return time.Time{}, 0, fmt.Errorf("%w: clock out of range", ErrInvalidWhen)
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), h, mi, sec, 0, loc), WhenAbsolute, nil
}

func nextCron(expr string, now time.Time, loc *time.Location) (time.Time, WhenKind, error) {
	if expr == "" {
		return time.Time{}, 0, fmt.Errorf("%w: cron expression required after 'cron:'", ErrInvalidWhen)
	}
	sched, err := whenParser.Parse(expr)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %v", ErrInvalidWhen, err)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, 0, fmt.Errorf("%w: cron %q never fires", ErrInvalidWhen, expr)
	}
	return next, WhenCron, nil
}
