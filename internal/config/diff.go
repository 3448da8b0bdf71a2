package config

import (
	"reflect"
	"sort"
	"strings"

	logx "scriptsched/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between oldCfg and
// newCfg plus structured fields describing the new values. Credentials in
// URLs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.StopTimeout) != strings.TrimSpace(newCfg.Scheduler.StopTimeout) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.stop_timeout", strings.TrimSpace(newCfg.Scheduler.StopTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Executor, newCfg.Executor) {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.Int("executor.interpreters", len(newCfg.Executor.Interpreters)),
			logx.String("executor.work_dir", newCfg.Executor.WorkDir),
			logx.Int("executor.env_count", len(newCfg.Executor.Env)),
			logx.String("executor.timeout", strings.TrimSpace(newCfg.Executor.Timeout)),
			logx.Int("executor.spawn_rate_per_sec", newCfg.Executor.SpawnRatePerSec),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	var oldN, newN NotifierConfig
	if oldCfg.Notifier != nil {
		oldN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		newN = *newCfg.Notifier
	}
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Bool("notifier.url_set", strings.TrimSpace(newN.URL) != ""),
			logx.String("notifier.subject_prefix", newN.SubjectPrefix),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
		)
	}

	var oldD, newD DebugConfig
	if oldCfg.Debug != nil {
		oldD = *oldCfg.Debug
	}
	if newCfg.Debug != nil {
		newD = *newCfg.Debug
	}
	if oldD != newD {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newD.Addr)),
			logx.Bool("debug.token_set", newD.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
