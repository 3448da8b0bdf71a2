package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"); an empty string means the component default.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Executor  ExecutorConfig  `json:"executor"`

	// Storage, Notifier and Debug are optional; nil means disabled.
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Debug    *DebugConfig    `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	// Timezone used to read wall-clock input such as "2024-05-01 14:30".
	// Empty means the host's local zone.
	Timezone    string `json:"timezone,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// ExecutorConfig controls how scripts are launched.
//
// Interpreters maps a file extension to the command prefix, e.g.
//
//	"interpreters": { ".ps1": ["pwsh", "-NoProfile", "-File"] }
//
// Entries are merged over the built-in table.
type ExecutorConfig struct {
	Interpreters    map[string][]string `json:"interpreters,omitempty"`
	WorkDir         string              `json:"work_dir,omitempty"`
	Env             []string            `json:"env,omitempty"`
	Timeout         string              `json:"timeout,omitempty"`
	SpawnRatePerSec int                 `json:"spawn_rate_per_sec,omitempty"`
	OutputLimit     int                 `json:"output_limit,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/history.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig controls forwarding of task events to NATS.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the local HTTP endpoint serving /healthz, /status
// and pprof.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback addr requires Token or AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Default is used when no config file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./scriptsched.log"},
		},
		Scheduler: SchedulerConfig{StopTimeout: "10s"},
	}
}
