// Package deps parses dependency lists: plain text files holding one
// http(s) URL per line, optionally followed by the file's SHA-256.
//
//	# comment
//	https://example.org/libs/gson-2.10.jar
//	https://example.org/libs/guava.jar  sha256:3f1c...  # pinned
package deps

import (
	"bufio"
	"encoding/hex"
	stdErrors "errors"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"

	apperrors "jardownloader/internal/errors"
)

// MaxLineLength bounds a single line of a dependency list.
const MaxLineLength = 1 << 20

// Reasons attached to InvalidLine.
const (
	ReasonNotURL      = "not an http(s) URL"
	ReasonBadURL      = "malformed URL"
	ReasonNoHost      = "URL has no host"
	ReasonNoFileName  = "URL has no file name"
	ReasonBadChecksum = "malformed sha256 checksum"
	ReasonExtraFields = "unexpected text after checksum"
)

// Dependency is one downloadable entry of a list.
type Dependency struct {
	URL      string
	FileName string
	SHA256   string
	Line     int
	Source   string
}

// InvalidLine is a non-empty, non-comment line that could not be used.
type InvalidLine struct {
	Line   int
	Text   string
	Reason string
}

// List is the parsed content of one dependency list.
type List struct {
	Source       string
	Dependencies []Dependency
	Invalid      []InvalidLine
	Duplicates   int
}

// Len returns the number of usable dependencies.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Dependencies)
}

// Parse reads a dependency list from r. source names the list in results and logs.
func Parse(r io.Reader, source string) (*List, error) {
	list := &List{Source: source}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		dep, reason := parseLine(line)
		if reason != "" {
			list.Invalid = append(list.Invalid, InvalidLine{Line: lineNo, Text: line, Reason: reason})
			continue
		}

		if _, dup := seen[dep.URL]; dup {
			list.Duplicates++
			continue
		}
		seen[dep.URL] = struct{}{}

		dep.Line = lineNo
		dep.Source = source
		list.Dependencies = append(list.Dependencies, dep)
	}

	if err := scanner.Err(); err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidLine, "failed to read dependency list", err).
			WithModule("deps").
			WithOperation("Parse").
			WithFields(apperrors.Metadata{"source": source, "line": lineNo + 1})
	}

	return list, nil
}

// ParseFile opens path and parses it as a dependency list.
func ParseFile(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ValidationError(apperrors.CodeDepFileAbsent, "dependency file not found", err).
				WithModule("deps").
				WithOperation("ParseFile").
				WithField("path", path)
		}
		return nil, apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to open dependency file", err).
			WithModule("deps").
			WithOperation("ParseFile").
			WithField("path", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		return nil, apperrors.ValidationError(apperrors.CodeDepFileAbsent, "dependency file is a directory", nil).
			WithModule("deps").
			WithOperation("ParseFile").
			WithField("path", path)
	}

	return Parse(f, path)
}

func parseLine(line string) (Dependency, string) {
	if i := strings.Index(line, " #"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	} else if i := strings.Index(line, "\t#"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	fields := strings.Fields(line)
	raw := fields[0]

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return Dependency{}, ReasonNotURL
	}

	name, reason := fileName(raw)
	if reason != "" {
		return Dependency{}, reason
	}

	dep := Dependency{URL: raw, FileName: name}

	switch len(fields) {
	case 1:
	case 2:
		sum, ok := normalizeChecksum(fields[1])
		if !ok {
			return Dependency{}, ReasonBadChecksum
		}
		dep.SHA256 = sum
	default:
		return Dependency{}, ReasonExtraFields
	}

	return dep, ""
}

// FileNameFromURL returns the last path segment of raw, unescaped.
func FileNameFromURL(raw string) (string, error) {
	name, reason := fileName(raw)
	if reason != "" {
		return "", errors.Errorf("%s: %s", reason, raw)
	}
	return name, nil
}

func fileName(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ReasonBadURL
	}
	if u.Host == "" {
		return "", ReasonNoHost
	}

	escaped := u.EscapedPath()
	if escaped == "" || strings.HasSuffix(escaped, "/") {
		return "", ReasonNoFileName
	}

	name, err := url.PathUnescape(path.Base(escaped))
	if err != nil {
		return "", ReasonBadURL
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ReasonNoFileName
	}
	return name, ""
}

func normalizeChecksum(field string) (string, bool) {
	sum := strings.ToLower(strings.TrimSpace(field))
	sum = strings.TrimPrefix(sum, "sha256:")
	sum = strings.TrimPrefix(sum, "sha256=")
	if len(sum) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return "", false
	}
	return sum, true
}
