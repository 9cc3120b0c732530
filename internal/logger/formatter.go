package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Formatter turns an Entry into the bytes written to the log output.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Entry is one log line before formatting. Run is empty for the printf
// style methods, which have no context.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Run     RunContext
	Fields  []Field
}

// TextFormatter renders one line per entry for people reading a terminal:
//
//	14:03:22 [WARN] [3f9c1a2e guava.jar] [IGNORED] Invalid line: foo
//
// The bracketed prefix holds the short run id and the jar or list being
// processed. Fields follow the message as key=value pairs.
type TextFormatter struct {
	// TimeFormat is passed to time.Format; empty omits the timestamp.
	TimeFormat string
	Color      bool
}

var levelColors = map[Level][]color.Attribute{
	LevelDebug: {color.FgCyan},
	LevelInfo:  {color.FgBlue},
	LevelWarn:  {color.FgYellow},
	LevelError: {color.FgRed, color.Bold},
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if f.TimeFormat != "" {
		buf.WriteString(entry.Time.Format(f.TimeFormat))
		buf.WriteByte(' ')
	}

	buf.WriteByte('[')
	buf.WriteString(f.paint(levelColors[entry.Level], entry.Level.String()))
	buf.WriteString("] ")

	if prefix := runPrefix(entry.Run); prefix != "" {
		buf.WriteString(f.faint("[" + prefix + "]"))
		buf.WriteByte(' ')
	}

	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		buf.WriteByte(' ')
		buf.WriteString(f.faint(fmt.Sprintf("%s=%v", field.Key, field.Value)))
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (f *TextFormatter) paint(attrs []color.Attribute, text string) string {
	if !f.Color || len(attrs) == 0 {
		return text
	}
	// fatih/color checks stdout, not the log writer; Color already says
	// whether the writer is a terminal.
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func (f *TextFormatter) faint(text string) string {
	return f.paint([]color.Attribute{color.Faint}, text)
}

// runPrefix returns "<short run id> <source name>", either part may be absent.
func runPrefix(run RunContext) string {
	parts := make([]string, 0, 2)
	if id := run.RunID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, id)
	}
	if run.Source != "" {
		parts = append(parts, sourceName(run.Source))
	}
	return strings.Join(parts, " ")
}

// sourceName shortens "plugins/a.jar!META-INF/dependencies.txt" to "a.jar"
// and a plain list path to its file name.
func sourceName(source string) string {
	if i := strings.Index(source, "!"); i >= 0 {
		source = source[:i]
	}
	return filepath.Base(source)
}

// JSONFormatter renders one JSON object per line. Run metadata is written as
// the run_id, command and source keys.
type JSONFormatter struct {
	TimeFormat string
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	timeFormat := f.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}

	data := make(map[string]interface{}, len(entry.Fields)+6)
	for _, field := range entry.Fields {
		data[field.Key] = field.Value
	}
	for _, field := range entry.Run.fields() {
		data[field.Key] = field.Value
	}
	data["time"] = entry.Time.Format(timeFormat)
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// supportsColor reports whether w is a terminal and NO_COLOR is unset.
func supportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
