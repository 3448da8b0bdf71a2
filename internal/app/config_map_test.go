package app

import (
	"strings"
	"testing"
	"time"

	"scriptsched/internal/config"
)

func TestMapExecutorConfigMergesInterpreters(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Executor.Interpreters = map[string][]string{
		".PS1": {"powershell", "-File"},
		".rb":  {"ruby"},
	}
	cfg.Executor.Timeout = "90s"

	ec, err := mapExecutorConfig(cfg)
	if err != nil {
		t.Fatalf("mapExecutorConfig: %v", err)
	}
	if got := ec.Interpreters[".ps1"]; len(got) != 2 || got[0] != "powershell" {
		t.Fatalf(".ps1 = %v, want override", got)
	}
	if got := ec.Interpreters[".rb"]; len(got) != 1 || got[0] != "ruby" {
		t.Fatalf(".rb = %v", got)
	}
	if got := ec.Interpreters[".sh"]; len(got) == 0 {
		t.Fatalf("built-in .sh interpreter lost")
	}
	if ec.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v", ec.Timeout)
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		stop    string
		want    time.Duration
		wantErr bool
	}{
		{name: "default", stop: "", want: defaultStopTimeout},
		{name: "explicit", stop: "3s", want: 3 * time.Second},
		{name: "bad", stop: "soon", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Scheduler.StopTimeout = tc.stop
			cfg.Scheduler.Timezone = " UTC "
			sc, err := mapSchedulerConfig(cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sc.StopTimeout != tc.want {
				t.Fatalf("stop timeout = %v, want %v", sc.StopTimeout, tc.want)
			}
			if sc.Timezone != "UTC" {
				t.Fatalf("timezone = %q", sc.Timezone)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		driver  string
		errSub  string
	}{
		{name: "nil", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "file default path", in: &config.StorageConfig{Driver: "file"}, enabled: true, driver: "file"},
		{name: "sqlite", in: &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, enabled: true, driver: "sqlite"},
		{name: "sqlite no path", in: &config.StorageConfig{Driver: "sqlite"}, errSub: "storage.path"},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, errSub: "unknown storage.driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Storage = tc.in
			sc, enabled, err := mapStorageConfig(cfg)
			if tc.errSub != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errSub) {
					t.Fatalf("err = %v, want containing %q", err, tc.errSub)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enabled != tc.enabled || sc.Driver != tc.driver {
				t.Fatalf("got (%+v, %v), want driver %q enabled %v", sc, enabled, tc.driver, tc.enabled)
			}
			if tc.driver == "sqlite" && sc.BusyTimeout != 2*time.Second {
				t.Fatalf("busy timeout = %v", sc.BusyTimeout)
			}
		})
	}
}

func TestMapNotifierConfigNilIsDisabled(t *testing.T) {
	t.Parallel()

	if nc := mapNotifierConfig(config.Default()); nc.Enabled {
		t.Fatalf("notifier enabled without config: %+v", nc)
	}
	cfg := config.Default()
	cfg.Notifier = &config.NotifierConfig{Enabled: true, URL: " nats://h:4222 ", SubjectPrefix: "ops"}
	nc := mapNotifierConfig(cfg)
	if !nc.Enabled || nc.URL != "nats://h:4222" || nc.SubjectPrefix != "ops" {
		t.Fatalf("unexpected mapping: %+v", nc)
	}
}

func TestValidateConfigRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected timezone error")
	}
}
