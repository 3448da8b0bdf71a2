package app

import (
	"fmt"
	"strings"
	"time"

	"scriptsched/internal/config"
	"scriptsched/internal/executor"
	"scriptsched/internal/notifier"
	"scriptsched/internal/observability/debugsrv"
	"scriptsched/internal/storage"
	"scriptsched/internal/task/scheduler"
	logx "scriptsched/pkg/logx"
)

const defaultStopTimeout = 10 * time.Second

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	stop, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, defaultStopTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:    strings.TrimSpace(cfg.Scheduler.Timezone),
		StopTimeout: stop,
	}, nil
}

// mapExecutorConfig merges configured interpreters over the built-in table.
// Extensions are matched case-insensitively.
func mapExecutorConfig(cfg *config.Config) (executor.Config, error) {
	ex := cfg.Executor
	timeout, err := config.ParseDurationField("executor.timeout", ex.Timeout)
	if err != nil {
		return executor.Config{}, err
	}
	interp := executor.DefaultInterpreters()
	for ext, argv := range ex.Interpreters {
		if len(argv) == 0 {
			return executor.Config{}, fmt.Errorf("executor.interpreters[%s]: command required", ext)
		}
		interp[strings.ToLower(ext)] = append([]string(nil), argv...)
	}
	return executor.Config{
		Interpreters:    interp,
		WorkDir:         strings.TrimSpace(ex.WorkDir),
		Env:             append([]string(nil), ex.Env...),
		Timeout:         timeout,
		SpawnRatePerSec: ex.SpawnRatePerSec,
		OutputLimit:     ex.OutputLimit,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./data/history"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	if cfg == nil || cfg.Notifier == nil {
		return notifier.Config{}
	}
	n := cfg.Notifier
	return notifier.Config{
		Enabled:       n.Enabled,
		URL:           strings.TrimSpace(n.URL),
		SubjectPrefix: n.SubjectPrefix,
		RatePerSec:    n.RatePerSec,
	}
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	if cfg == nil || cfg.Debug == nil {
		return debugsrv.Config{}
	}
	d := cfg.Debug
	return debugsrv.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Prefix:        d.Prefix,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
	}
}

// validateConfig is installed on the config manager so a bad reload is
// rejected before it is committed.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapExecutorConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
