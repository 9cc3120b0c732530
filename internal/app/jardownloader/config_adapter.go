package jardownloader

import (
	"io"

	"jardownloader/internal/config"
	"jardownloader/internal/downloader/core"
	"jardownloader/internal/logger"
)

// applyOptions layers command line flags over the loaded configuration.
func applyOptions(cfg *config.Config, opts *Options) error {
	if opts.DownloadDir != "" {
		cfg.DownloadDir = opts.DownloadDir
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if opts.JSON {
		cfg.LogFormat = logger.FormatJSON
	}
	if opts.NoHistory {
		disabled := false
		cfg.History.Enabled = &disabled
	}
	return cfg.Validate()
}

// downloadConfigFromConfig converts the file/env configuration into engine settings.
func downloadConfigFromConfig(cfg *config.Config) core.DownloadConfig {
	return core.DownloadConfig{
		Concurrency:       cfg.Concurrency,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MinFreeSpace:      cfg.MinFreeSpace,
	}
}

// newLogger builds the run logger from the effective configuration.
func newLogger(cfg *config.Config, out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(level, cfg.LogFormat, out), nil
}
