package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"jardownloader/internal/data/history"
	"jardownloader/internal/downloader"
	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
)

const separatorWidth = 32

// Printer renders rich terminal UI fragments used by the CLI.
type Printer struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	info         *color.Color
	warn         *color.Color
	error        *color.Color
	plain        *color.Color
}

// NewPrinter constructs a Printer writing to out, with colour automatically
// enabled for TTY outputs.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	enabled := IsTerminal(out) && os.Getenv("NO_COLOR") == ""

	p := &Printer{
		out:          out,
		colorEnabled: enabled,
		success:      color.New(color.FgGreen, color.Bold),
		info:         color.New(color.FgBlue, color.Bold),
		warn:         color.New(color.FgYellow, color.Bold),
		error:        color.New(color.FgRed, color.Bold),
		plain:        color.New(color.Reset),
	}

	if !enabled {
		p.success.DisableColor()
		p.info.DisableColor()
		p.warn.DisableColor()
		p.error.DisableColor()
		p.plain.DisableColor()
	}

	return p
}

// PrintBanner renders the application banner.
func (p *Printer) PrintBanner(version string) {
	p.success.Fprintln(p.out, "JAR-DOWNLOADER v"+version)
	p.PrintSeparator("=", separatorWidth)
	fmt.Fprintln(p.out)
}

// PrintSeparator prints a repeated character separator.
func (p *Printer) PrintSeparator(char string, length int) {
	if length <= 0 {
		return
	}
	fmt.Fprintln(p.out, strings.Repeat(char, length))
}

// PrintSummary renders the per-file outcome of a run followed by totals.
func (p *Printer) PrintSummary(s *downloader.Summary) {
	if s == nil {
		return
	}

	fmt.Fprintln(p.out)
	if s.Report != nil && len(s.Report.Results) > 0 {
		t := newTable("STATUS", "FILE", "SIZE", "DETAIL")
		for _, res := range s.Report.Results {
			t.addRow(p.statusCell(res.Status), res.Target.Name, formatBytes(res.Bytes), resultDetail(res))
		}
		t.render(p.out)
		fmt.Fprintln(p.out)
	}

	report := s.Report
	line := fmt.Sprintf("%d downloaded, %d skipped, %d failed (%s)",
		report.Count(core.StatusDownloaded),
		report.Count(core.StatusSkipped),
		report.Count(core.StatusFailed),
		formatBytes(report.Bytes()))
	if s.JarsScanned > 0 {
		line += fmt.Sprintf(", %d of %d jars had a dependency list", s.JarsWithList, s.JarsScanned)
	}
	if s.Invalid > 0 {
		line += fmt.Sprintf(", %d invalid lines", s.Invalid)
	}
	if len(s.Conflicts) > 0 {
		line += fmt.Sprintf(", %d name conflicts", len(s.Conflicts))
	}

	if s.HasFailures() {
		p.error.Fprintln(p.out, "✕ "+line)
		for _, je := range s.JarErrors {
			fmt.Fprintf(p.out, "  %s %s: %v\n", p.error.Sprint("!"), je.Path, je.Err)
		}
		return
	}
	p.success.Fprintln(p.out, "✓ "+line)
}

// PrintHistory renders stored download records, newest first.
func (p *Printer) PrintHistory(records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(p.out, "No downloads recorded yet.")
		return
	}

	t := newTable("TIME", "STATUS", "FILE", "SIZE", "URL")
	for _, rec := range records {
		t.addRow(
			rec.CreatedAt.Local().Format(time.DateTime),
			p.statusCell(core.Status(rec.Status)),
			rec.FileName,
			formatBytes(rec.Size),
			rec.URL,
		)
	}
	t.render(p.out)
}

func (p *Printer) statusCell(status core.Status) string {
	switch status {
	case core.StatusDownloaded:
		return p.success.Sprint("✓ downloaded")
	case core.StatusSkipped:
		return p.warn.Sprint("- skipped")
	case core.StatusFailed:
		return p.error.Sprint("✕ failed")
	default:
		return string(status)
	}
}

// resultDetail is the DETAIL cell: HTTP status or error message with its
// code for failures, the skip reason, or the download time.
func resultDetail(res core.Result) string {
	if res.Err != nil {
		appErr, ok := apperrors.As(res.Err)
		if !ok {
			return res.Err.Error()
		}
		if status, ok := appErr.Field("status"); ok {
			return fmt.Sprintf("HTTP %v [%s]", status, appErr.Code)
		}
		return fmt.Sprintf("%s [%s]", appErr.Message, appErr.Code)
	}
	if res.Reason != "" {
		return res.Reason
	}
	if res.Attempts > 1 {
		return fmt.Sprintf("after %d attempts", res.Attempts)
	}
	return res.Duration.Round(time.Millisecond).String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
