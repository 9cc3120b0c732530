package config

import (
	"embed"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	apperrors "jardownloader/internal/errors"
)

// DefaultDependencyFile is the list name looked up on disk and inside jars.
const DefaultDependencyFile = "dependencies.txt"

// Config holds every tunable of the tool.
type Config struct {
	DownloadDir       string        `yaml:"download_dir"`
	DependencyFile    string        `yaml:"dependency_file"`
	Concurrency       int           `yaml:"concurrency"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MinFreeSpace      int64         `yaml:"min_free_space"`
	MaxListSize       int64         `yaml:"max_list_size"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	History           HistoryConfig `yaml:"history"`
}

// HistoryConfig controls the download history database.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether history recording is on; unset means on.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

//go:embed defaults.yaml
var embeddedDefaults embed.FS

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	data, err := embeddedDefaults.ReadFile("defaults.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded defaults")
	}
	return decodeConfig(data)
}

// LoadFile loads a configuration file from disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes configuration data from bytes.
func ParseConfig(data []byte) (*Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Config{}, nil
	}
	return decodeConfig(data)
}

// Load assembles the effective configuration: embedded defaults, then the
// optional file at path, then .env and JARDL_* environment overrides.
func Load(path string) (*Config, error) {
	base, err := Defaults()
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to load default configuration", err).
			WithModule("config").
			WithOperation("Load")
	}

	layers := []*Config{base}
	if strings.TrimSpace(path) != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to load configuration file", err).
				WithModule("config").
				WithOperation("Load").
				WithField("path", path)
		}
		layers = append(layers, fileCfg)
	}

	merged, err := MergeConfigs(layers...)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to merge configuration", err).
			WithModule("config").
			WithOperation("Load")
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to load .env file", err).
			WithModule("config").
			WithOperation("Load")
	}

	if err := ApplyEnv(merged, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}

// MergeConfigs merges multiple configurations together, later entries overriding earlier ones.
func MergeConfigs(cfgs ...*Config) (*Config, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no configurations provided")
	}

	var result Config
	seeded := false

	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		if !seeded {
			result = *cfg
			seeded = true
			continue
		}

		if v := strings.TrimSpace(cfg.DownloadDir); v != "" {
			result.DownloadDir = v
		}
		if v := strings.TrimSpace(cfg.DependencyFile); v != "" {
			result.DependencyFile = v
		}
		if cfg.Concurrency > 0 {
			result.Concurrency = cfg.Concurrency
		}
		if cfg.Timeout > 0 {
			result.Timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			result.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			result.RetryDelay = cfg.RetryDelay
		}
		if v := strings.TrimSpace(cfg.UserAgent); v != "" {
			result.UserAgent = v
		}
		if cfg.RequestsPerSecond > 0 {
			result.RequestsPerSecond = cfg.RequestsPerSecond
		}
		if cfg.MinFreeSpace != 0 {
			result.MinFreeSpace = cfg.MinFreeSpace
		}
		if cfg.MaxListSize > 0 {
			result.MaxListSize = cfg.MaxListSize
		}
		if v := strings.TrimSpace(cfg.LogLevel); v != "" {
			result.LogLevel = v
		}
		if v := strings.TrimSpace(cfg.LogFormat); v != "" {
			result.LogFormat = v
		}
		if cfg.WatchDebounce > 0 {
			result.WatchDebounce = cfg.WatchDebounce
		}
		if cfg.History.Enabled != nil {
			enabled := *cfg.History.Enabled
			result.History.Enabled = &enabled
		}
		if v := strings.TrimSpace(cfg.History.Path); v != "" {
			result.History.Path = v
		}
	}

	if !seeded {
		return nil, errors.New("no configurations provided")
	}

	if strings.TrimSpace(result.DownloadDir) == "" {
		result.DownloadDir = "."
	}
	if strings.TrimSpace(result.DependencyFile) == "" {
		result.DependencyFile = DefaultDependencyFile
	}
	if result.Concurrency <= 0 {
		result.Concurrency = 1
	}
	if result.Timeout == 0 {
		result.Timeout = 300 * time.Second
	}
	if result.MaxRetries <= 0 {
		result.MaxRetries = 3
	}
	if result.MaxListSize <= 0 {
		result.MaxListSize = 1 << 20
	}

	return &result, nil
}

// Validate checks value ranges that the rest of the program relies on.
func (c *Config) Validate() error {
	invalid := func(field string, value interface{}, message string) error {
		return apperrors.ConfigError(apperrors.CodeConfigValue, message, nil).
			WithModule("config").
			WithOperation("Validate").
			WithFields(apperrors.Metadata{"field": field, "value": value})
	}

	if c.Concurrency < 1 || c.Concurrency > 64 {
		return invalid("concurrency", c.Concurrency, "concurrency must be between 1 and 64")
	}
	if c.MaxRetries < 1 {
		return invalid("max_retries", c.MaxRetries, "max_retries must be at least 1")
	}
	if c.Timeout <= 0 {
		return invalid("timeout", c.Timeout, "timeout must be positive")
	}
	if c.RetryDelay < 0 {
		return invalid("retry_delay", c.RetryDelay, "retry_delay must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return invalid("requests_per_second", c.RequestsPerSecond, "requests_per_second must not be negative")
	}
	if c.MinFreeSpace < 0 {
		return invalid("min_free_space", c.MinFreeSpace, "min_free_space must not be negative")
	}
	if strings.ContainsAny(c.DependencyFile, `/\`) {
		return invalid("dependency_file", c.DependencyFile, "dependency_file must be a bare file name")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format", c.LogFormat, "log_format must be text or json")
	}
	return nil
}

// HistoryPath resolves the history database location, defaulting to the
// user cache directory. An empty result means history is disabled.
func (c *Config) HistoryPath() string {
	if !c.History.IsEnabled() {
		return ""
	}
	if p := strings.TrimSpace(c.History.Path); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "jardownloader", "history.db")
}

func decodeConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	return stdErrors.Is(err, os.ErrNotExist)
}
