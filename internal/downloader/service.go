// Package downloader turns dependency lists, found on disk or inside jars,
// into download batches and records their outcome.
package downloader

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"

	"jardownloader/internal/data/history"
	"jardownloader/internal/deps"
	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
	errlog "jardownloader/internal/errors/logging"
	"jardownloader/internal/logger"
)

// Engine downloads a batch of targets.
type Engine interface {
	Download(ctx context.Context, targets []core.Target) (*core.Report, error)
}

// ListScanner finds jars and reads the dependency list embedded in them.
type ListScanner interface {
	FindJars(ctx context.Context, root string) ([]string, error)
	ReadList(jarPath string) (*deps.List, bool, error)
}

// JarError is a jar that could not be inspected.
type JarError struct {
	Path string
	Err  error
}

// Summary describes one FromFile, FromDirectory or FromJar call.
type Summary struct {
	RunID        string
	Lists        []*deps.List
	JarsScanned  int
	JarsWithList int
	JarErrors    []JarError
	Invalid      int
	Conflicts    []Conflict
	Report       *core.Report
}

// HasFailures reports whether any download failed or any jar was unreadable.
func (s *Summary) HasFailures() bool {
	if s == nil {
		return false
	}
	return len(s.JarErrors) > 0 || s.Report.Count(core.StatusFailed) > 0
}

// Service wires the parser, the jar scanner, the download engine and the
// optional history store together.
type Service struct {
	engine   Engine
	scanner  ListScanner
	history  history.Repository
	logger   logger.Logger
	listName string
}

// Option customises a Service.
type Option func(*Service)

// WithHistory records every result in repo.
func WithHistory(repo history.Repository) Option {
	return func(s *Service) {
		s.history = repo
	}
}

// WithListName overrides the dependency list name reported in scan logs.
func WithListName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.listName = name
		}
	}
}

// NewService constructs a Service.
func NewService(engine Engine, scanner ListScanner, log logger.Logger, opts ...Option) (*Service, error) {
	if engine == nil || scanner == nil || log == nil {
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "engine, scanner and logger are required", nil).
			WithModule("downloader").
			WithOperation("NewService")
	}
	s := &Service{
		engine:   engine,
		scanner:  scanner,
		logger:   log,
		listName: "dependencies.txt",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FromFile downloads every dependency of the list at file into downloadDir.
func (s *Service) FromFile(ctx context.Context, file, downloadDir string) (*Summary, error) {
	s.logger.Info("Reading dependencies from file: %s", file)

	list, err := deps.ParseFile(file)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, &Summary{Lists: []*deps.List{list}}, downloadDir)
}

// FromDirectory walks searchDir for jars and downloads the dependencies listed
// inside them into downloadDir. Jars that cannot be read are reported in the
// summary and do not stop the scan.
func (s *Service) FromDirectory(ctx context.Context, searchDir, downloadDir string) (*Summary, error) {
	info, err := os.Stat(searchDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = stdErrors.New("not a directory")
		}
		return nil, apperrors.ValidationError(apperrors.CodeSearchPath, "search directory is not usable", err).
			WithModule("downloader").
			WithOperation("FromDirectory").
			WithField("path", searchDir)
	}

	s.logger.Info("Searching for .jar files in: %s", absPath(searchDir))
	s.logger.Info("Downloading dependencies into: %s", absPath(downloadDir))

	jars, err := s.scanner.FindJars(ctx, searchDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, jar := range jars {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		s.inspect(ctx, summary, jar)
	}
	if len(jars) == 0 {
		s.logger.Info("No .jar files found in %s", searchDir)
	}

	return s.run(ctx, summary, downloadDir)
}

// FromJar downloads the dependencies listed inside a single jar.
func (s *Service) FromJar(ctx context.Context, jarPath, downloadDir string) (*Summary, error) {
	summary := &Summary{}
	s.inspect(ctx, summary, jarPath)
	return s.run(ctx, summary, downloadDir)
}

func (s *Service) inspect(ctx context.Context, summary *Summary, jar string) {
	ctx = logger.WithSource(ctx, jar)
	summary.JarsScanned++
	s.logger.InfoContext(ctx, "→ Inspecting JAR: "+filepath.Base(jar))

	list, found, err := s.scanner.ReadList(jar)
	switch {
	case err != nil:
		summary.JarErrors = append(summary.JarErrors, JarError{Path: jar, Err: err})
		errlog.Warn(ctx, s.logger, "Error parsing JAR: "+jar, err)
	case !found:
		s.logger.InfoContext(ctx, "   No "+s.listName+" found.")
	default:
		summary.JarsWithList++
		summary.Lists = append(summary.Lists, list)
		s.logger.InfoContext(ctx, "   Found "+s.listName)
	}
}

func (s *Service) run(ctx context.Context, summary *Summary, downloadDir string) (*Summary, error) {
	summary.RunID = logger.RunFromContext(ctx).RunID

	for _, list := range summary.Lists {
		listCtx := logger.WithSource(ctx, list.Source)
		for _, inv := range list.Invalid {
			s.logger.WarnContext(listCtx, "[IGNORED] Invalid line: "+inv.Text,
				logger.Int("line", inv.Line),
				logger.String("reason", inv.Reason))
		}
		summary.Invalid += len(list.Invalid)
	}

	targets, conflicts := Plan(summary.Lists, downloadDir)
	summary.Conflicts = conflicts
	for _, c := range conflicts {
		errlog.Warn(ctx, s.logger, "[IGNORED] "+c.FileName+" is already provided by "+c.Kept.URL, c.Err())
	}

	report, err := s.engine.Download(ctx, targets)
	summary.Report = report
	s.record(ctx, summary.RunID, report)

	return summary, err
}

// record writes the report to the history store. Failures are logged and
// never change the outcome of the run.
func (s *Service) record(ctx context.Context, runID string, report *core.Report) {
	if s.history == nil || report == nil || len(report.Results) == 0 {
		return
	}

	records := make([]history.Record, 0, len(report.Results))
	for _, res := range report.Results {
		rec := history.Record{
			RunID:    runID,
			URL:      res.Target.URL,
			FileName: res.Target.Name,
			Path:     res.Target.LocalPath,
			SHA256:   res.SHA256,
			Size:     res.Bytes,
			Source:   res.Target.Source,
			Status:   string(res.Status),
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		records = append(records, rec)
	}

	// a cancelled run still gets its results written
	if err := s.history.Record(context.WithoutCancel(ctx), records...); err != nil {
		errlog.Warn(ctx, s.logger, "Failed to record download history", err)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
