package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/logger"
)

const copyBufferSize = 32 * 1024

// HTTPClient represents the subset of http.Client methods required by the repository.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Target describes a single downloadable file.
type Target struct {
	Name         string
	URL          string
	ExpectedHash string
	LocalPath    string
	MinSize      int64
	// Source names the dependency list the target came from.
	Source string
}

// Repository downloads targets into the local filesystem.
type Repository struct {
	cfg      DownloadConfig
	logger   Logger
	client   HTTPClient
	fs       FileSystem
	reporter ProgressReporter
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

// RepositoryOption customises Repository construction.
type RepositoryOption func(*Repository)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client HTTPClient) RepositoryOption {
	return func(r *Repository) {
		r.client = client
	}
}

// WithFileSystem overrides the filesystem implementation.
func WithFileSystem(fs FileSystem) RepositoryOption {
	return func(r *Repository) {
		r.fs = fs
	}
}

// WithProgressReporter overrides the progress reporter implementation.
func WithProgressReporter(reporter ProgressReporter) RepositoryOption {
	return func(r *Repository) {
		r.reporter = reporter
	}
}

// WithLimiter shares a request rate limiter across repositories.
func WithLimiter(limiter *rate.Limiter) RepositoryOption {
	return func(r *Repository) {
		r.limiter = limiter
	}
}

// NewRepository constructs a Repository using the provided configuration, logger and options.
func NewRepository(cfg DownloadConfig, log Logger, opts ...RepositoryOption) (*Repository, error) {
	if log == nil {
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "logger must not be nil", nil).
			WithModule("downloader.core").
			WithOperation("NewRepository")
	}

	cfg = cfg.withDefaults()

	repo := &Repository{
		cfg:      cfg,
		logger:   log,
		client:   defaultHTTPClient(cfg.Timeout),
		fs:       OSFileSystem{},
		reporter: &NoopProgressReporter{},
		sleep:    sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		repo.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	for _, opt := range opts {
		opt(repo)
	}

	if repo.reporter == nil {
		repo.reporter = &NoopProgressReporter{}
	}
	if repo.fs == nil {
		repo.fs = OSFileSystem{}
	}
	if repo.client == nil {
		repo.client = defaultHTTPClient(cfg.Timeout)
	}

	return repo, nil
}

// Config returns the effective configuration after defaults.
func (r *Repository) Config() DownloadConfig {
	return r.cfg
}

// Download fetches all targets using up to cfg.Concurrency workers.
// A failing target is recorded in the report and does not stop the others;
// the returned error is non-nil only when the batch itself could not run
// (preflight failure or ctx cancellation).
func (r *Repository) Download(ctx context.Context, targets []Target) (*Report, error) {
	report := &Report{Results: make([]Result, len(targets))}
	if len(targets) == 0 {
		return report, nil
	}

	if err := r.preflight(targets); err != nil {
		for i, t := range targets {
			report.Results[i] = Result{Target: t, Status: StatusFailed, Reason: "preflight failed", Err: err}
		}
		return report, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, target := range targets {
		if err := gctx.Err(); err != nil {
			report.Results[i] = Result{Target: target, Status: StatusFailed, Reason: "cancelled", Err: err}
			continue
		}
		g.Go(func() error {
			report.Results[i] = r.downloadTarget(gctx, target)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Repository) preflight(targets []Target) error {
	dirs := make(map[string]struct{})
	for _, t := range targets {
		dirs[filepath.Dir(t.LocalPath)] = struct{}{}
	}

	for dir := range dirs {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to create download directory", err).
				WithModule("downloader.core").
				WithOperation("preflight").
				WithField("path", dir)
		}
		if err := CheckFreeSpace(dir, r.cfg.MinFreeSpace); err != nil {
			return err
		}
	}
	return nil
}

// CheckFreeSpace fails when dir has less than min bytes available.
func CheckFreeSpace(dir string, min int64) error {
	if min <= 0 {
		return nil
	}
	free, supported, err := FreeSpace(dir)
	if !supported {
		return nil
	}
	if err != nil {
		return apperrors.SystemError(apperrors.CodeDiskSpace, "failed to query free disk space", err).
			WithModule("downloader.core").
			WithOperation("CheckFreeSpace").
			WithField("path", dir)
	}
	if free < uint64(min) {
		return apperrors.SystemError(apperrors.CodeDiskSpace, "not enough free disk space", nil).
			WithModule("downloader.core").
			WithOperation("CheckFreeSpace").
			WithFields(apperrors.Metadata{"path": dir, "free": free, "required": min})
	}
	return nil
}

func (r *Repository) downloadTarget(ctx context.Context, target Target) Result {
	start := time.Now()
	res := Result{Target: target}
	finish := func(status Status, reason string, err error) Result {
		res.Status = status
		res.Reason = reason
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	if err := ctx.Err(); err != nil {
		return finish(StatusFailed, "cancelled", err)
	}
	if target.Source != "" {
		ctx = logger.WithSource(ctx, target.Source)
	}

	needed, reason, err := r.needsDownload(ctx, target)
	if err != nil {
		return finish(StatusFailed, "local file check failed", err)
	}
	if !needed {
		r.logger.InfoContext(ctx, "[SKIPPED] "+reason+": "+target.Name)
		return finish(StatusSkipped, reason, nil)
	}

	r.logger.InfoContext(ctx, "Downloading: "+target.URL)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			r.logger.InfoContext(ctx, fmt.Sprintf("Retrying download (attempt %d/%d): %s", attempt, r.cfg.MaxRetries, target.URL))
			if err := r.sleep(ctx, time.Duration(attempt-1)*r.cfg.RetryDelay); err != nil {
				return finish(StatusFailed, "cancelled", err)
			}
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return finish(StatusFailed, "cancelled", err)
			}
		}

		n, sum, err := r.doDownload(ctx, target)
		if err == nil {
			res.Bytes = n
			res.SHA256 = sum
			r.logger.InfoContext(ctx, "Download complete → "+target.Name,
				logger.Int64("bytes", n),
				logger.Duration("elapsed", time.Since(start)))
			return finish(StatusDownloaded, "", nil)
		}

		lastErr = err
		if ctx.Err() != nil {
			return finish(StatusFailed, "cancelled", ctx.Err())
		}
		if !apperrors.IsRecoverable(err) {
			break
		}
		r.logger.WarnContext(ctx, fmt.Sprintf("Download attempt %d failed", attempt), logger.Error(err))
	}

	appErr := apperrors.Annotate(lastErr, apperrors.ErrCategoryNetwork, apperrors.CodeNetworkGeneric,
		"download failed", "downloader.core", "downloadTarget")
	appErr.WithFields(apperrors.Metadata{"url": target.URL, "attempts": res.Attempts})
	r.logger.WarnContext(ctx, "[FAILED] "+target.URL, logger.Error(lastErr))
	return finish(StatusFailed, "download failed", appErr)
}

// needsDownload reports whether target must be fetched; when not, reason says why.
func (r *Repository) needsDownload(ctx context.Context, target Target) (bool, string, error) {
	info, err := r.fs.Stat(target.LocalPath)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return true, "", nil
		}
		return true, "", apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to inspect local file", err).
			WithModule("downloader.core").
			WithOperation("needsDownload").
			WithField("path", target.LocalPath)
	}
	if info.IsDir() {
		return true, "", apperrors.ValidationError(apperrors.CodeNameConflict, "destination is a directory", nil).
			WithModule("downloader.core").
			WithOperation("needsDownload").
			WithField("path", target.LocalPath)
	}

	if err := ValidateFileSize(r.fs, target.LocalPath, target.MinSize); err != nil {
		r.logger.WarnContext(ctx, "Existing file is incomplete, downloading again: "+target.LocalPath, logger.Error(err))
		return true, "", nil
	}

	if target.ExpectedHash == "" {
		return false, "Already exists", nil
	}

	if err := ValidateChecksum(r.fs, target.LocalPath, target.ExpectedHash); err != nil {
		r.logger.WarnContext(ctx, "Existing file does not match its checksum, downloading again: "+target.LocalPath, logger.Error(err))
		return true, "", nil
	}

	return false, "Checksum verified", nil
}

func (r *Repository) doDownload(ctx context.Context, target Target) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return 0, "", apperrors.ValidationError(apperrors.CodeValidationGeneric, "failed to create download request", err).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithField("url", target.URL)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, "", apperrors.NetworkError(apperrors.CodeNetworkGeneric, "download request failed", err).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithField("url", target.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, "", apperrors.NetworkError(apperrors.CodeHTTPStatus, "download failed with unexpected status", nil).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithRecoverable(retryableStatus(resp.StatusCode)).
			WithFields(apperrors.Metadata{
				"url":    target.URL,
				"status": resp.StatusCode,
			})
	}

	pending, err := r.fs.CreatePending(target.LocalPath)
	if err != nil {
		return 0, "", apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to create local file", err).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithField("path", target.LocalPath)
	}
	defer pending.Cleanup()

	hasher := sha256.New()
	progressReader := NewProgressReader(resp.Body, resp.ContentLength, r.reporter, target.Name)

	buf := make([]byte, copyBufferSize)
	n, err := io.CopyBuffer(io.MultiWriter(pending, hasher), progressReader, buf)
	progressReader.Finish()
	if err != nil {
		return n, "", apperrors.NetworkError(apperrors.CodeNetworkGeneric, "failed while receiving file", err).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithFields(apperrors.Metadata{"url": target.URL, "path": target.LocalPath})
	}

	if target.MinSize > 0 && n < target.MinSize {
		return n, "", apperrors.DependencyError(apperrors.CodeFileSize, "downloaded file is smaller than expected", nil).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithFields(apperrors.Metadata{"url": target.URL, "size": n, "min_size": target.MinSize})
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if expected := normalizeHash(target.ExpectedHash); expected != "" && expected != sum {
		return n, sum, apperrors.DependencyError(apperrors.CodeChecksum, "downloaded file checksum mismatch", nil).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithFields(apperrors.Metadata{"url": target.URL, "expected": expected, "actual": sum})
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, sum, apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to move downloaded file into place", err).
			WithModule("downloader.core").
			WithOperation("doDownload").
			WithField("path", target.LocalPath)
	}

	return n, sum, nil
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
