package jardownloader

import (
	stdErrors "errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	apperrors "jardownloader/internal/errors"
)

// Command selects what a run does.
type Command string

const (
	CommandScan    Command = "scan"
	CommandDirect  Command = "direct"
	CommandWatch   Command = "watch"
	CommandHistory Command = "history"
	CommandMenu    Command = "menu"
	CommandHelp    Command = "help"
	CommandVersion Command = "version"
)

const defaultHistoryLimit = 20

// Options is the parsed command line.
type Options struct {
	Command      Command
	ListFile     string
	SearchDir    string
	DownloadDir  string
	ConfigPath   string
	Concurrency  int
	Verbose      bool
	JSON         bool
	NoHistory    bool
	HistoryLimit int
}

// ParseArgs parses args (without the program name). Errors are usage errors
// carrying apperrors.CodeUsage.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{HistoryLimit: defaultHistoryLimit}

	fs := flag.NewFlagSet("jardownloader", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.ListFile, "i", "", "read a single dependency `file` and download its URLs")
	fs.StringVar(&opts.DownloadDir, "o", "", "download `dir` (overrides configuration)")
	fs.StringVar(&opts.ConfigPath, "c", "", "YAML configuration `file`")
	fs.IntVar(&opts.Concurrency, "j", 0, "number of parallel downloads")
	fs.BoolVar(&opts.Verbose, "v", false, "verbose (debug) logging")
	fs.BoolVar(&opts.JSON, "json", false, "write logs as JSON")
	fs.BoolVar(&opts.NoHistory, "no-history", false, "do not record downloads in the history database")

	if err := fs.Parse(args); err != nil {
		if stdErrors.Is(err, flag.ErrHelp) {
			opts.Command = CommandHelp
			return opts, nil
		}
		return nil, usageError(err.Error())
	}
	if opts.Concurrency < 0 {
		return nil, usageError("-j must not be negative")
	}

	rest := fs.Args()

	if opts.ListFile != "" {
		if len(rest) > 0 {
			return nil, usageError(fmt.Sprintf("unexpected arguments after -i: %v (use -o to choose the download directory)", rest))
		}
		opts.Command = CommandDirect
		return opts, nil
	}

	if len(rest) > 0 {
		switch Command(rest[0]) {
		case CommandHelp, CommandVersion, CommandMenu:
			if len(rest) > 1 {
				return nil, usageError(fmt.Sprintf("%s takes no arguments", rest[0]))
			}
			opts.Command = Command(rest[0])
			return opts, nil
		case CommandHistory:
			opts.Command = CommandHistory
			return opts, parseHistoryArgs(opts, rest[1:])
		case CommandWatch:
			opts.Command = CommandWatch
			return opts, parseDirs(opts, rest[1:])
		}
	}

	opts.Command = CommandScan
	return opts, parseDirs(opts, rest)
}

// parseDirs reads the optional [search-dir] [download-dir] pair.
func parseDirs(opts *Options, rest []string) error {
	if len(rest) > 2 {
		return usageError(fmt.Sprintf("too many arguments: %v", rest))
	}
	opts.SearchDir = "."
	if len(rest) > 0 {
		opts.SearchDir = rest[0]
	}
	if len(rest) > 1 {
		if opts.DownloadDir != "" && opts.DownloadDir != rest[1] {
			return usageError("download directory given both with -o and as argument")
		}
		opts.DownloadDir = rest[1]
	}
	return nil
}

func parseHistoryArgs(opts *Options, rest []string) error {
	fs := flag.NewFlagSet("jardownloader history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&opts.HistoryLimit, "n", defaultHistoryLimit, "number of entries to show")

	if err := fs.Parse(rest); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() > 0 {
		return usageError(fmt.Sprintf("unexpected arguments: %v", fs.Args()))
	}
	if opts.HistoryLimit <= 0 {
		return usageError("-n must be positive, got " + strconv.Itoa(opts.HistoryLimit))
	}
	return nil
}

func usageError(msg string) error {
	return apperrors.ValidationError(apperrors.CodeUsage, msg, nil).
		WithModule("app").
		WithOperation("ParseArgs")
}

// PrintUsage writes the command line help.
func PrintUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  jardownloader [flags] -i <dependencies.txt>")
	_, _ = fmt.Fprintln(w, "  jardownloader [flags] [search-dir] [download-dir]")
	_, _ = fmt.Fprintln(w, "  jardownloader [flags] watch [search-dir] [download-dir]")
	_, _ = fmt.Fprintln(w, "  jardownloader [flags] history [-n N]")
	_, _ = fmt.Fprintln(w, "  jardownloader menu | help | version")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Without -i, search-dir (default .) is searched recursively for .jar files;")
	_, _ = fmt.Fprintln(w, "every dependencies.txt found inside them is downloaded into download-dir.")
	_, _ = fmt.Fprintln(w, "Files that already exist are skipped. To scan a directory named like a")
	_, _ = fmt.Fprintln(w, "command, write it as ./watch, ./history and so on.")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Flags:")
	_, _ = fmt.Fprintln(w, "  -i file       read a single dependency file")
	_, _ = fmt.Fprintln(w, "  -o dir        download directory (default from configuration, .)")
	_, _ = fmt.Fprintln(w, "  -c file       YAML configuration file")
	_, _ = fmt.Fprintln(w, "  -j N          number of parallel downloads")
	_, _ = fmt.Fprintln(w, "  -v            verbose logging")
	_, _ = fmt.Fprintln(w, "  -json         JSON log output")
	_, _ = fmt.Fprintln(w, "  -no-history   do not record downloads")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Exit status: 0 success, 1 failure, 2 usage error.")
}
