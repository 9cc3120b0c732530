package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "jardownloader/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JARDL_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// loadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win; a missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides cfg fields from JARDL_* variables.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("DOWNLOAD_DIR", &cfg.DownloadDir)
	str("DEPENDENCY_FILE", &cfg.DependencyFile)
	str("USER_AGENT", &cfg.UserAgent)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("HISTORY_DB", &cfg.History.Path)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if v, ok := lookup(EnvPrefix + "CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("CONCURRENCY", v, err)
		}
		cfg.Concurrency = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError("MAX_RETRIES", v, err)
		}
		cfg.MaxRetries = n
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return envError("TIMEOUT", v, err)
		}
		cfg.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "HISTORY"); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return envError("HISTORY", v, err)
		}
		cfg.History.Enabled = &enabled
	}

	return nil
}

func envError(name, value string, err error) error {
	return apperrors.ConfigError(apperrors.CodeConfigValue, "invalid environment override", err).
		WithModule("config").
		WithOperation("ApplyEnv").
		WithFields(apperrors.Metadata{"variable": EnvPrefix + name, "value": value})
}
