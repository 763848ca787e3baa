package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".anonymityengine"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File mirrors the YAML configuration file.
//
// Design decision: Every field is a pointer (or slice) so that an absent
// key is distinguishable from a zero value. Only keys that are present in
// the file override defaults; unknown keys are ignored by the YAML decoder.
// Durations are plain integers interpreted as seconds, matching how the
// tool is configured in practice ("timeout: 30").
type File struct {
	SocksPort         *int        `yaml:"socks_port"`
	ControlPort       *int        `yaml:"control_port"`
	Timeout           *int        `yaml:"timeout"`
	RetryAttempts     *int        `yaml:"retry_attempts"`
	MinInterval       *int        `yaml:"min_interval"`
	MaxInterval       *int        `yaml:"max_interval"`
	CheckServices     []string    `yaml:"ip_check_services"`
	RestartStrategies []string    `yaml:"restart_strategies"`
	TorService        *string     `yaml:"tor_service"`
	UserAgent         *string     `yaml:"user_agent"`
	ControlPassword   *string     `yaml:"control_password"`
	ControlCookiePath *string     `yaml:"control_cookie_path"`
	Logging           LoggingFile `yaml:"logging"`
}

// LoggingFile mirrors the logging section of the configuration file.
type LoggingFile struct {
	Level     *string `yaml:"level"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
}

// LoadFile loads rotation configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error based on whether the config file path
// was explicitly specified by the user.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .anonymityengine in the current directory
// 3. Look for .anonymityengine in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}

	return ""
}

// knownStrategies are the restart strategy names the invoker understands.
var knownStrategies = map[string]bool{
	"systemctl": true,
	"service":   true,
	"signal":    true,
	"newnym":    true,
}

// Apply merges file values into the config. Invalid values are skipped and
// the matching default kept; each skipped value produces a warning string
// that the caller is expected to log. Apply never fails: a malformed value
// in the file must not stop the tool (spec: ConfigInvalid is recovered by
// falling back to the default).
func (c *Config) Apply(f *File) []string {
	if f == nil {
		return nil
	}

	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if f.SocksPort != nil {
		if *f.SocksPort >= 1 && *f.SocksPort <= 65535 {
			c.SocksPort = *f.SocksPort
		} else {
			warnf("ignoring invalid socks_port %d, keeping %d", *f.SocksPort, c.SocksPort)
		}
	}
	if f.ControlPort != nil {
		if *f.ControlPort >= 1 && *f.ControlPort <= 65535 {
			c.ControlPort = *f.ControlPort
		} else {
			warnf("ignoring invalid control_port %d, keeping %d", *f.ControlPort, c.ControlPort)
		}
	}
	if f.Timeout != nil {
		if *f.Timeout > 0 {
			c.Timeout = time.Duration(*f.Timeout) * time.Second
		} else {
			warnf("ignoring invalid timeout %d, keeping %s", *f.Timeout, c.Timeout)
		}
	}
	if f.RetryAttempts != nil {
		if *f.RetryAttempts >= 1 {
			c.RetryAttempts = *f.RetryAttempts
		} else {
			warnf("ignoring invalid retry_attempts %d, keeping %d", *f.RetryAttempts, c.RetryAttempts)
		}
	}
	if f.MinInterval != nil {
		if *f.MinInterval > 0 {
			c.MinInterval = time.Duration(*f.MinInterval) * time.Second
		} else {
			warnf("ignoring invalid min_interval %d, keeping %s", *f.MinInterval, c.MinInterval)
		}
	}
	if f.MaxInterval != nil {
		if time.Duration(*f.MaxInterval)*time.Second >= c.MinInterval {
			c.MaxInterval = time.Duration(*f.MaxInterval) * time.Second
		} else {
			warnf("ignoring invalid max_interval %d, keeping %s", *f.MaxInterval, c.MaxInterval)
		}
	}
	if len(f.CheckServices) > 0 {
		services := make([]string, 0, len(f.CheckServices))
		for _, s := range f.CheckServices {
			if s == "" {
				warnf("ignoring empty ip_check_services entry")
				continue
			}
			services = append(services, s)
		}
		if len(services) > 0 {
			c.CheckServices = services
		} else {
			warnf("ip_check_services has no usable entries, keeping defaults")
		}
	}
	if len(f.RestartStrategies) > 0 {
		strategies := make([]string, 0, len(f.RestartStrategies))
		for _, s := range f.RestartStrategies {
			if !knownStrategies[s] {
				warnf("ignoring unknown restart strategy %q", s)
				continue
			}
			strategies = append(strategies, s)
		}
		if len(strategies) > 0 {
			c.RestartStrategies = strategies
		} else {
			warnf("restart_strategies has no usable entries, keeping defaults")
		}
	}
	if f.TorService != nil && *f.TorService != "" {
		c.TorService = *f.TorService
	}
	if f.UserAgent != nil && *f.UserAgent != "" {
		c.UserAgent = *f.UserAgent
	}
	if f.ControlPassword != nil {
		c.ControlPassword = *f.ControlPassword
	}
	if f.ControlCookiePath != nil {
		c.ControlCookiePath = *f.ControlCookiePath
	}

	if f.Logging.Level != nil {
		switch *f.Logging.Level {
		case "debug", "info", "warn", "error":
			c.Logging.Level = *f.Logging.Level
		default:
			warnf("ignoring invalid logging.level %q, keeping %q", *f.Logging.Level, c.Logging.Level)
		}
	}
	if f.Logging.File != nil {
		c.Logging.File = *f.Logging.File
	}
	if f.Logging.MaxSizeMB != nil {
		if *f.Logging.MaxSizeMB > 0 {
			c.Logging.MaxSizeMB = *f.Logging.MaxSizeMB
		} else {
			warnf("ignoring invalid logging.max_size_mb %d, keeping %d", *f.Logging.MaxSizeMB, c.Logging.MaxSizeMB)
		}
	}

	return warnings
}
