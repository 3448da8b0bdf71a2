package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ParseDurationField parses a config duration; path names the field in
// error messages. Empty input is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def when raw is empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// Validate checks values the strict decoder cannot: durations, ranges,
// timezone names and enum strings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := ParseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout); err != nil {
		return err
	}

	ex := cfg.Executor
	if _, err := ParseDurationField("executor.timeout", ex.Timeout); err != nil {
		return err
	}
	if ex.SpawnRatePerSec < 0 {
		return fmt.Errorf("executor.spawn_rate_per_sec must be >= 0")
	}
	if ex.OutputLimit < 0 {
		return fmt.Errorf("executor.output_limit must be >= 0")
	}
	for ext, argv := range ex.Interpreters {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("executor.interpreters: extension %q must start with '.'", ext)
		}
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return fmt.Errorf("executor.interpreters[%s]: command required", ext)
		}
	}
	for _, kv := range ex.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("executor.env: %q is not KEY=VALUE", kv)
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=sqlite")
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 {
			return fmt.Errorf("notifier.rate_per_sec must be >= 0")
		}
		if raw := strings.TrimSpace(n.URL); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				if _, err := url.Parse(strings.TrimSpace(part)); err != nil {
					return fmt.Errorf("notifier.nats_url: %w", err)
				}
			}
		}
		if strings.ContainsAny(n.SubjectPrefix, " \t*>") {
			return fmt.Errorf("notifier.subject_prefix %q must not contain spaces or wildcards", n.SubjectPrefix)
		}
	}

	if d := cfg.Debug; d != nil && d.Enabled {
		if addr := strings.TrimSpace(d.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("debug.addr: %w", err)
			}
		}
	}
	return nil
}
