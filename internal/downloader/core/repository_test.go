package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/logger"
)

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func newTestRepository(t *testing.T, cfg DownloadConfig, opts ...RepositoryOption) (*Repository, *logger.MockLogger) {
	t.Helper()
	log := logger.NewMockLogger()
	repo, err := NewRepository(cfg, log, opts...)
	require.NoError(t, err)
	repo.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return repo, log
}

func target(srv *httptest.Server, dir, name string) Target {
	return Target{
		Name:      name,
		URL:       srv.URL + "/" + name,
		LocalPath: filepath.Join(dir, name),
	}
}

func TestNewRepositoryRequiresLogger(t *testing.T) {
	_, err := NewRepository(DownloadConfig{}, nil)
	assert.Error(t, err)
}

func TestNewRepositoryAppliesDefaults(t *testing.T) {
	repo, _ := newTestRepository(t, DownloadConfig{})
	cfg := repo.Config()
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Nil(t, repo.limiter)

	limited, _ := newTestRepository(t, DownloadConfig{RequestsPerSecond: 0.5})
	require.NotNil(t, limited.limiter)
	assert.Equal(t, 1, limited.limiter.Burst())
}

func TestDownloadWritesFilesInOrder(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		_, _ = w.Write([]byte("content of " + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer srv.Close()

	dir := t.TempDir()
	repo, log := newTestRepository(t, DownloadConfig{Concurrency: 2, UserAgent: "test-agent"})

	names := []string{"a.jar", "b.jar", "c.jar", "d.jar", "e.jar"}
	targets := make([]Target, 0, len(names))
	for _, n := range names {
		targets = append(targets, target(srv, dir, n))
	}

	report, err := repo.Download(context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, report.Results, len(names))

	for i, res := range report.Results {
		assert.Equal(t, names[i], res.Target.Name)
		assert.Equal(t, StatusDownloaded, res.Status)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, sum("content of "+names[i]), res.SHA256)

		data, err := os.ReadFile(filepath.Join(dir, names[i]))
		require.NoError(t, err)
		assert.Equal(t, "content of "+names[i], string(data))
	}
	assert.Equal(t, len(names), report.Count(StatusDownloaded))
	assert.Equal(t, "test-agent", agent.Load())
	assert.True(t, log.HasEntry(logger.LevelInfo, "Downloading: "+srv.URL+"/a.jar"))
	assert.True(t, log.HasEntry(logger.LevelInfo, "Download complete → a.jar"))
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jar"), []byte("old"), 0o644))

	repo, log := newTestRepository(t, DownloadConfig{})
	report, err := repo.Download(context.Background(), []Target{target(srv, dir, "a.jar")})
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, report.Results[0].Status)
	assert.Equal(t, "Already exists", report.Results[0].Reason)
	assert.Zero(t, atomic.LoadInt32(&hits))
	assert.True(t, log.HasEntry(logger.LevelInfo, "[SKIPPED] Already exists: a.jar"))

	data, err := os.ReadFile(filepath.Join(dir, "a.jar"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestDownloadReplacesExistingFileWithWrongChecksum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jar"), []byte("stale"), 0o644))

	tgt := target(srv, dir, "a.jar")
	tgt.ExpectedHash = sum("fresh")

	repo, _ := newTestRepository(t, DownloadConfig{})
	report, err := repo.Download(context.Background(), []Target{tgt})
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, report.Results[0].Status)

	data, err := os.ReadFile(tgt.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	// a second run sees the verified file and skips it
	report, err = repo.Download(context.Background(), []Target{tgt})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Results[0].Status)
	assert.Equal(t, "Checksum verified", report.Results[0].Reason)
}

func TestDownloadChecksumMismatchLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	tgt := target(srv, dir, "a.jar")
	tgt.ExpectedHash = sum("genuine")

	repo, _ := newTestRepository(t, DownloadConfig{})
	report, err := repo.Download(context.Background(), []Target{tgt})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.CodeChecksum))
	assert.Equal(t, 1, res.Attempts)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial or temporary files should remain")
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	repo, log := newTestRepository(t, DownloadConfig{MaxRetries: 3})
	report, err := repo.Download(context.Background(), []Target{target(srv, dir, "a.jar")})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusDownloaded, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, 2, log.CountEntries(logger.LevelWarn))
}

func TestDownloadDoesNotRetryNotFound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	repo, _ := newTestRepository(t, DownloadConfig{MaxRetries: 5})
	report, err := repo.Download(context.Background(), []Target{
		target(srv, dir, "missing.jar"),
	})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, apperrors.HasCode(res.Err, apperrors.CodeHTTPStatus))

	status, ok := mustAppError(t, res.Err).Field("status")
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, status)

	_, statErr := os.Stat(filepath.Join(dir, "missing.jar"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadFailureDoesNotStopBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.jar" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	repo, _ := newTestRepository(t, DownloadConfig{Concurrency: 1})
	report, err := repo.Download(context.Background(), []Target{
		target(srv, dir, "bad.jar"),
		target(srv, dir, "good.jar"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, StatusDownloaded, report.Results[1].Status)
	assert.Len(t, report.Failed(), 1)
	assert.Equal(t, int64(2), report.Bytes())
}

func TestDownloadEnforcesMinSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	dir := t.TempDir()
	tgt := target(srv, dir, "empty.jar")
	tgt.MinSize = 1

	repo, _ := newTestRepository(t, DownloadConfig{})
	report, err := repo.Download(context.Background(), []Target{tgt})
	require.NoError(t, err)
	assert.True(t, apperrors.HasCode(report.Results[0].Err, apperrors.CodeFileSize))

	_, statErr := os.Stat(tgt.LocalPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	dir := t.TempDir()
	repo, _ := newTestRepository(t, DownloadConfig{Concurrency: 1}, WithHTTPClient(client))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	report, err := repo.Download(ctx, []Target{
		target(srv, dir, "slow.jar"),
		target(srv, dir, "never.jar"),
	})
	srv.Close()

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.Equal(t, StatusFailed, res.Status)
	}
	assert.Equal(t, "cancelled", report.Results[1].Reason)
}

func TestDownloadEmptyBatch(t *testing.T) {
	repo, _ := newTestRepository(t, DownloadConfig{})
	report, err := repo.Download(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckFreeSpace(dir, 0))
	assert.NoError(t, CheckFreeSpace(dir, 1))

	if _, supported, _ := FreeSpace(dir); !supported {
		t.Skip("free space query not supported on this platform")
	}
	err := CheckFreeSpace(dir, 1<<62)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDiskSpace))
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(http.StatusInternalServerError))
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.True(t, retryableStatus(http.StatusRequestTimeout))
	assert.False(t, retryableStatus(http.StatusNotFound))
	assert.False(t, retryableStatus(http.StatusUnauthorized))
}

func mustAppError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %T", err)
	return appErr
}

type failingFS struct {
	OSFileSystem
	creates atomic.Int32
}

func (f *failingFS) CreatePending(string) (PendingFile, error) {
	f.creates.Add(1)
	return nil, os.ErrPermission
}

func TestDownloadUsesInjectedFileSystemAndLimiter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	fs := &failingFS{}
	limiter := rate.NewLimiter(rate.Inf, 1)
	repo, _ := newTestRepository(t, DownloadConfig{MaxRetries: 3}, WithFileSystem(fs), WithLimiter(limiter))
	assert.Same(t, limiter, repo.limiter)

	report, err := repo.Download(context.Background(), []Target{target(srv, t.TempDir(), "a.jar")})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, os.ErrPermission)
	assert.Equal(t, 1, res.Attempts, "filesystem errors are not retried")
	assert.Equal(t, int32(1), fs.creates.Load())
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadLogsCarryRunAndListSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	repo, log := newTestRepository(t, DownloadConfig{})

	a := target(srv, dir, "a.jar")
	a.Source = "plugins/x.jar!dependencies.txt"
	b := target(srv, dir, "b.jar")
	b.Source = "deps.txt"

	ctx := logger.ContextWithRun(context.Background(), logger.RunContext{RunID: "run-7", Command: "scan"})
	_, err := repo.Download(ctx, []Target{a, b})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{a.Source, b.Source}, log.SourcesOf("Downloading: "))
	for _, e := range log.GetEntries() {
		assert.Equal(t, "run-7", e.Run.RunID, e.Message)
	}

	var completed int
	for _, e := range log.GetEntries() {
		if strings.HasPrefix(e.Message, "Download complete → ") {
			completed++
			assert.Contains(t, e.Fields, logger.Int64("bytes", int64(len("payload"))))
		}
	}
	assert.Equal(t, 2, completed)
}

func TestDownloadLogsFinalFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	repo, log := newTestRepository(t, DownloadConfig{})
	tg := target(srv, t.TempDir(), "gone.jar")
	tg.Source = "deps.txt"

	_, err := repo.Download(context.Background(), []Target{tg})
	require.NoError(t, err)

	assert.True(t, log.HasEntry(logger.LevelWarn, "[FAILED] "+tg.URL))
	assert.Equal(t, []string{"deps.txt"}, log.SourcesOf("[FAILED]"))
}

func TestBarProgressReporterRendersDownload(t *testing.T) {
	body := strings.Repeat("x", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	var out bytes.Buffer
	bar := NewBarProgressReporter(&out)
	repo, _ := newTestRepository(t, DownloadConfig{Concurrency: 1}, WithProgressReporter(bar))

	dir := t.TempDir()
	report, err := repo.Download(context.Background(), []Target{target(srv, dir, "big.jar")})
	require.NoError(t, err)

	assert.Equal(t, StatusDownloaded, report.Results[0].Status)
	assert.EqualValues(t, len(body), report.Results[0].Bytes)
	assert.NotEmpty(t, out.String())
	assert.Empty(t, bar.bars, "finished bars are released")
}
