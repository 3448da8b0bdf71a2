package executor

import (
	"path/filepath"
	"strings"
	"time"
)

// Config controls the process executor.
type Config struct {
	// Interpreters maps a lowercase file extension (".ps1") to the command
	// prefix used to run it. Unknown extensions are executed directly.
	Interpreters map[string][]string
	WorkDir      string
	Env          []string

	// Timeout bounds one run; 0 means no timeout.
	Timeout time.Duration

	SpawnRatePerSec int
	OutputLimit     int
}

// DefaultInterpreters covers the script kinds operators usually schedule.
func DefaultInterpreters() map[string][]string {
	return map[string][]string{
		".ps1": {"pwsh", "-NoProfile", "-NonInteractive", "-File"},
		".sh":  {"/bin/sh"},
		".py":  {"python3"},
	}
}

func (c Config) withDefaults() Config {
	if c.Interpreters == nil {
		c.Interpreters = DefaultInterpreters()
	}
	if c.SpawnRatePerSec <= 0 {
		c.SpawnRatePerSec = 8
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = 4096
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}

// commandFor returns argv for scriptRef.
func (c Config) commandFor(scriptRef string) []string {
	ext := strings.ToLower(filepath.Ext(scriptRef))
	if prefix, ok := c.Interpreters[ext]; ok && len(prefix) > 0 {
		argv := make([]string, 0, len(prefix)+1)
		argv = append(argv, prefix...)
		return append(argv, scriptRef)
	}
	return []string{scriptRef}
}
