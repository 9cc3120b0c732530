package core

import "time"

// Defaults applied by NewRepository to zero-valued DownloadConfig fields.
const (
	DefaultConcurrency = 4
	DefaultTimeout     = 300 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultUserAgent   = "jardownloader/0.2 (Go downloader)"
)

// DownloadConfig describes download behaviour.
type DownloadConfig struct {
	Concurrency       int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	UserAgent         string
	RequestsPerSecond float64
	// MinFreeSpace is the number of bytes that must be available in every
	// destination directory before a batch starts. Zero disables the check.
	MinFreeSpace int64
}

func (c DownloadConfig) withDefaults() DownloadConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}
