package downloader

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jardownloader/internal/data/history"
	"jardownloader/internal/deps"
	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/jarscan"
	"jardownloader/internal/logger"
)

func writeJar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func newFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jar bytes of " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	svc     *Service
	log     *logger.MockLogger
	history *history.SQLiteRepository
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	log := logger.NewMockLogger()

	engine, err := core.NewRepository(core.DownloadConfig{Concurrency: 2, MaxRetries: 1}, log)
	require.NoError(t, err)

	hist, err := history.OpenSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	svc, err := NewService(engine, jarscan.New("dependencies.txt", log), log, WithHistory(hist))
	require.NoError(t, err)
	return testEnv{svc: svc, log: log, history: hist}
}

func TestFromFileDownloadsListedFiles(t *testing.T) {
	srv := newFileServer(t)
	env := newTestEnv(t)

	dir := t.TempDir()
	list := filepath.Join(dir, "dependencies.txt")
	content := "# test list\n\n" + srv.URL + "/file1.jar\n" + srv.URL + "/file2.jar\nnot a url\n"
	require.NoError(t, os.WriteFile(list, []byte(content), 0o644))

	out := filepath.Join(dir, "libs")
	ctx := logger.ContextWithRun(context.Background(), logger.RunContext{RunID: "run-1"})
	summary, err := env.svc.FromFile(ctx, list, out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Report.Count(core.StatusDownloaded))
	assert.Equal(t, 1, summary.Invalid)
	assert.False(t, summary.HasFailures())
	assert.Equal(t, "run-1", summary.RunID)

	for _, name := range []string{"file1.jar", "file2.jar"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, "jar bytes of /"+name, string(data))
	}

	assert.True(t, env.log.HasEntry(logger.LevelInfo, "Reading dependencies from file: "+list))
	assert.True(t, env.log.HasEntry(logger.LevelWarn, "[IGNORED] Invalid line: not a url"))

	records, err := env.history.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "run-1", rec.RunID)
		assert.Equal(t, "downloaded", rec.Status)
		assert.Equal(t, list, rec.Source)
	}
}

func TestFromFileMissingList(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.FromFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), t.TempDir())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDepFileAbsent))
}

func TestFromFileSecondRunSkips(t *testing.T) {
	srv := newFileServer(t)
	env := newTestEnv(t)

	dir := t.TempDir()
	list := filepath.Join(dir, "dependencies.txt")
	require.NoError(t, os.WriteFile(list, []byte(srv.URL+"/file1.jar\n"), 0o644))

	_, err := env.svc.FromFile(context.Background(), list, dir)
	require.NoError(t, err)
	summary, err := env.svc.FromFile(context.Background(), list, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Report.Count(core.StatusSkipped))
	found, err := env.history.FindByURL(context.Background(), srv.URL+"/file1.jar")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "skipped", found[0].Status)
}

func TestFromDirectoryFindsNestedList(t *testing.T) {
	srv := newFileServer(t)
	env := newTestEnv(t)

	search := t.TempDir()
	writeJar(t, filepath.Join(search, "plugins", "testjar.jar"), map[string]string{
		"META-INF/MANIFEST.MF":    "Manifest-Version: 1.0\n",
		"config/dependencies.txt": srv.URL + "/jarinside.jar\n",
		"de/example/Plugin.class": "cafebabe",
	})
	writeJar(t, filepath.Join(search, "plain.jar"), map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(search, "broken.jar"), []byte("not a zip"), 0o644))

	out := t.TempDir()
	summary, err := env.svc.FromDirectory(context.Background(), search, out)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.JarsScanned)
	assert.Equal(t, 1, summary.JarsWithList)
	require.Len(t, summary.JarErrors, 1)
	assert.Equal(t, filepath.Join(search, "broken.jar"), summary.JarErrors[0].Path)
	assert.True(t, summary.HasFailures())

	_, err = os.Stat(filepath.Join(out, "jarinside.jar"))
	assert.NoError(t, err)

	assert.True(t, env.log.HasEntry(logger.LevelInfo, "→ Inspecting JAR: testjar.jar"))
	assert.True(t, env.log.HasEntry(logger.LevelInfo, "   Found dependencies.txt"))
	assert.True(t, env.log.HasEntry(logger.LevelInfo, "   No dependencies.txt found."))
	assert.True(t, env.log.HasEntry(logger.LevelInfo, "Searching for .jar files in: "))

	testjar := filepath.Join(search, "plugins", "testjar.jar")
	assert.Equal(t, []string{
		filepath.Join(search, "broken.jar"),
		filepath.Join(search, "plain.jar"),
		testjar,
	}, env.log.SourcesOf("→ Inspecting JAR: "))
	assert.Equal(t, []string{filepath.Join(search, "broken.jar")}, env.log.SourcesOf("Error parsing JAR"))
	assert.Equal(t, []string{testjar + "!config/dependencies.txt"}, env.log.SourcesOf("Downloading: "))
}

func TestFromDirectoryRejectsMissingSearchDir(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.FromDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"), t.TempDir())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSearchPath))
}

func TestFromJarRecordsFailures(t *testing.T) {
	srv := newFileServer(t)
	env := newTestEnv(t)

	jar := filepath.Join(t.TempDir(), "addon.jar")
	writeJar(t, jar, map[string]string{
		"dependencies.txt": srv.URL + "/missing.jar\n" + srv.URL + "/ok.jar\n",
	})

	summary, err := env.svc.FromJar(context.Background(), jar, t.TempDir())
	require.NoError(t, err)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, 1, summary.Report.Count(core.StatusFailed))

	found, err := env.history.FindByURL(context.Background(), srv.URL+"/missing.jar")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "failed", found[0].Status)
	assert.Contains(t, found[0].Error, apperrors.CodeHTTPStatus)
	assert.Equal(t, jar+"!dependencies.txt", found[0].Source)
}

type recordingEngine struct {
	got []core.Target
}

func (e *recordingEngine) Download(_ context.Context, targets []core.Target) (*core.Report, error) {
	e.got = append(e.got, targets...)
	report := &core.Report{}
	for _, t := range targets {
		report.Results = append(report.Results, core.Result{Target: t, Status: core.StatusDownloaded})
	}
	return report, nil
}

type stubScanner struct {
	jars  []string
	lists map[string]*deps.List
}

func (s stubScanner) FindJars(context.Context, string) ([]string, error) {
	return s.jars, nil
}

func (s stubScanner) ReadList(jar string) (*deps.List, bool, error) {
	l, ok := s.lists[jar]
	return l, ok, nil
}

func TestFromDirectoryWarnsOnConflicts(t *testing.T) {
	first, err := deps.Parse(strings.NewReader("https://a.example/lib.jar\n"), "a.jar!dependencies.txt")
	require.NoError(t, err)
	second, err := deps.Parse(strings.NewReader("https://b.example/lib.jar\nhttps://a.example/lib.jar\n"), "b.jar!dependencies.txt")
	require.NoError(t, err)

	log := logger.NewMockLogger()
	engine := &recordingEngine{}
	scanner := stubScanner{
		jars:  []string{"a.jar", "b.jar"},
		lists: map[string]*deps.List{"a.jar": first, "b.jar": second},
	}
	svc, err := NewService(engine, scanner, log)
	require.NoError(t, err)

	summary, err := svc.FromDirectory(context.Background(), t.TempDir(), "out")
	require.NoError(t, err)

	require.Len(t, engine.got, 1)
	assert.Equal(t, "https://a.example/lib.jar", engine.got[0].URL)
	require.Len(t, summary.Conflicts, 1)
	assert.Equal(t, "b.jar!dependencies.txt", summary.Conflicts[0].Dropped.Source)
	assert.True(t, log.HasEntry(logger.LevelWarn, "lib.jar is already provided by https://a.example/lib.jar"))
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, stubScanner{}, logger.NewMockLogger())
	assert.Error(t, err)
}

func TestPlanDedupesByFileName(t *testing.T) {
	a, err := deps.Parse(strings.NewReader(
		"https://one.example/lib.jar sha256:"+strings.Repeat("ab", 32)+"\nhttps://one.example/other.jar\n"), "a")
	require.NoError(t, err)
	b, err := deps.Parse(strings.NewReader(
		"https://one.example/lib.jar\nhttps://two.example/lib.jar\nhttps://two.example/extra.jar\n"), "b")
	require.NoError(t, err)

	targets, conflicts := Plan([]*deps.List{a, nil, b}, "out")

	want := []core.Target{
		{Name: "lib.jar", URL: "https://one.example/lib.jar", ExpectedHash: strings.Repeat("ab", 32), LocalPath: filepath.Join("out", "lib.jar"), MinSize: 1, Source: "a"},
		{Name: "other.jar", URL: "https://one.example/other.jar", LocalPath: filepath.Join("out", "other.jar"), MinSize: 1, Source: "a"},
		{Name: "extra.jar", URL: "https://two.example/extra.jar", LocalPath: filepath.Join("out", "extra.jar"), MinSize: 1, Source: "b"},
	}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Errorf("Plan() targets mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, conflicts, 1)
	assert.Equal(t, "lib.jar", conflicts[0].FileName)
	assert.Equal(t, "https://two.example/lib.jar", conflicts[0].Dropped.URL)
	assert.True(t, apperrors.HasCode(conflicts[0].Err(), apperrors.CodeNameConflict))
}
