// Package jardownloader wires configuration, logging, the download service
// and the terminal UI into the command line tool.
package jardownloader

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"

	"jardownloader/internal/config"
	"jardownloader/internal/data/history"
	"jardownloader/internal/downloader"
	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
	errlog "jardownloader/internal/errors/logging"
	"jardownloader/internal/jarscan"
	"jardownloader/internal/logger"
	"jardownloader/internal/menu"
	"jardownloader/internal/ui"
	"jardownloader/internal/watch"
)

// Version is printed in the banner. Overridden at build time with -ldflags "-X".
var Version = "0.2.0"

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrDownloadsFailed reports a run that finished with failed downloads or
// unreadable jars. The details have already been printed in the summary.
var ErrDownloadsFailed = stdErrors.New("some dependencies could not be downloaded")

// App holds everything one invocation needs.
type App struct {
	cfg     *config.Config
	opts    *Options
	logger  logger.Logger
	console *ui.Console
	printer *ui.Printer
	service *downloader.Service
	history history.Repository
}

// Run executes one invocation with args (without the program name) and
// returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	printer := ui.NewPrinter(stdout)
	printer.PrintBanner(Version)

	opts, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n\n", errorMessage(err))
		PrintUsage(stderr)
		return ExitUsage
	}

	switch opts.Command {
	case CommandHelp:
		PrintUsage(stdout)
		return ExitOK
	case CommandVersion:
		return ExitOK
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err == nil {
		err = applyOptions(cfg, opts)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return ExitFailure
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return ExitFailure
	}

	ctx = logger.ContextWithRun(ctx, logger.NewRunContext(string(opts.Command)))
	log.DebugContext(ctx, "configuration loaded",
		logger.String("download_dir", cfg.DownloadDir),
		logger.Int("concurrency", cfg.Concurrency),
		logger.String("history", cfg.HistoryPath()))

	application, err := NewApp(ctx, cfg, opts, log, printer, ui.NewConsole(log, stdout))
	if err != nil {
		return exitCode(ctx, log, err)
	}
	defer application.Close()

	return exitCode(ctx, log, application.Execute(ctx))
}

// NewApp builds the download service and opens the history store.
func NewApp(ctx context.Context, cfg *config.Config, opts *Options, log logger.Logger, printer *ui.Printer, console *ui.Console) (*App, error) {
	a := &App{
		cfg:     cfg,
		opts:    opts,
		logger:  log,
		console: console,
		printer: printer,
	}

	steps := []Step{
		{Name: "Open download history", Operation: "openHistory", Category: apperrors.ErrCategoryDatabase, Fn: a.openHistory},
		{Name: "Prepare download engine", Operation: "buildService", Category: apperrors.ErrCategorySystem, Fn: a.buildService},
	}
	if err := NewPipeline(console, log, steps).Execute(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Execute runs the parsed command.
func (a *App) Execute(ctx context.Context) error {
	switch a.opts.Command {
	case CommandDirect:
		return a.Direct(ctx, a.opts.ListFile, a.cfg.DownloadDir)
	case CommandScan:
		return a.Scan(ctx, a.opts.SearchDir, a.cfg.DownloadDir)
	case CommandWatch:
		return a.Watch(ctx, a.opts.SearchDir, a.cfg.DownloadDir)
	case CommandHistory:
		return a.History(ctx, a.opts.HistoryLimit)
	case CommandMenu:
		return menu.NewMenu(a.console, a.printer, a, Version, a.cfg.DownloadDir).ShowMainMenu(ctx)
	default:
		return usageError(fmt.Sprintf("unknown command %q", a.opts.Command))
	}
}

// Close releases the history store.
func (a *App) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("Failed to close history database: %v", err)
		}
		a.history = nil
	}
}

// Direct downloads the dependencies listed in file.
func (a *App) Direct(ctx context.Context, file, downloadDir string) error {
	if err := a.validateDownloadDir(ctx, downloadDir); err != nil {
		return err
	}
	summary, err := a.service.FromFile(logger.WithSource(ctx, file), file, downloadDir)
	return a.finish(summary, err)
}

// Scan downloads the dependencies listed inside every jar below searchDir.
func (a *App) Scan(ctx context.Context, searchDir, downloadDir string) error {
	if err := a.validateDownloadDir(ctx, downloadDir); err != nil {
		return err
	}
	summary, err := a.service.FromDirectory(ctx, searchDir, downloadDir)
	return a.finish(summary, err)
}

// Watch scans searchDir once and then handles every jar dropped into it
// until ctx is cancelled.
func (a *App) Watch(ctx context.Context, searchDir, downloadDir string) error {
	if err := a.Scan(ctx, searchDir, downloadDir); err != nil && !stdErrors.Is(err, ErrDownloadsFailed) {
		return err
	}

	handler := func(ctx context.Context, jar string) {
		summary, err := a.service.FromJar(ctx, jar, downloadDir)
		if summary != nil {
			a.printer.PrintSummary(summary)
		}
		if err != nil && ctx.Err() == nil {
			errlog.Warn(ctx, a.logger, "Failed to process "+jar, err)
		}
	}

	w := watch.New(searchDir, handler, a.logger,
		watch.WithDebounce(a.cfg.WatchDebounce),
		watch.WithIgnore(downloadDir))
	return w.Run(ctx)
}

// History prints the most recent downloads.
func (a *App) History(ctx context.Context, limit int) error {
	if a.history == nil {
		return apperrors.ConfigError(apperrors.CodeConfigValue, "download history is disabled", nil).
			WithModule("app").
			WithOperation("History")
	}
	records, err := a.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	a.printer.PrintHistory(records)
	return nil
}

func (a *App) openHistory(ctx context.Context) error {
	path := a.cfg.HistoryPath()
	if path == "" {
		a.logger.Debug("Download history disabled")
		return nil
	}

	repo, err := history.OpenSQLiteRepository(ctx, path)
	if err != nil {
		if a.opts.Command == CommandHistory {
			return err
		}
		errlog.Warn(ctx, a.logger, "Download history unavailable, continuing without it", err)
		return nil
	}
	a.history = repo
	return nil
}

func (a *App) buildService(_ context.Context) error {
	var reporter core.ProgressReporter = &core.NoopProgressReporter{}
	if a.cfg.Concurrency == 1 && a.cfg.LogFormat != logger.FormatJSON && ui.IsTerminal(a.console.Output()) {
		reporter = core.NewBarProgressReporter(a.console.Output())
	}

	engine, err := core.NewRepository(downloadConfigFromConfig(a.cfg), a.logger, core.WithProgressReporter(reporter))
	if err != nil {
		return err
	}

	scanner := jarscan.New(a.cfg.DependencyFile, a.logger, jarscan.WithMaxEntrySize(a.cfg.MaxListSize))

	opts := []downloader.Option{downloader.WithListName(a.cfg.DependencyFile)}
	if a.history != nil {
		opts = append(opts, downloader.WithHistory(a.history))
	}

	a.service, err = downloader.NewService(engine, scanner, a.logger, opts...)
	return err
}

func (a *App) validateDownloadDir(ctx context.Context, dir string) error {
	return NewDownloadDirValidator(dir, a.cfg.MinFreeSpace, a.logger).Validate(ctx)
}

func (a *App) finish(summary *downloader.Summary, err error) error {
	if summary != nil {
		a.printer.PrintSummary(summary)
	}
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return ErrDownloadsFailed
	}
	return nil
}

func exitCode(ctx context.Context, log logger.Logger, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stdErrors.Is(err, ErrDownloadsFailed):
		return ExitFailure
	case stdErrors.Is(err, context.Canceled):
		log.Warn("Interrupted")
		return ExitFailure
	case apperrors.HasCode(err, apperrors.CodeUsage):
		log.Error("%s", errorMessage(err))
		return ExitUsage
	}

	if appErr, ok := apperrors.As(err); ok {
		errlog.Error(ctx, log, appErr.Message, appErr)
	} else {
		log.Error("%v", err)
	}

	switch apperrors.CategoryOf(err) {
	case apperrors.ErrCategoryConfig:
		log.Info("Check the -c file and the %s* environment variables", config.EnvPrefix)
	case apperrors.ErrCategoryDatabase:
		log.Info("Run with -no-history to download without the history database")
	}
	return ExitFailure
}

// errorMessage returns the human part of err without category and code.
func errorMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		if appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return appErr.Message
	}
	return err.Error()
}

var _ menu.Actions = (*App)(nil)
