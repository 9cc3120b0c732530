// Package jarscan finds .jar archives below a directory and reads the
// dependency list embedded in them.
package jarscan

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"jardownloader/internal/deps"
	apperrors "jardownloader/internal/errors"
)

// DefaultMaxEntrySize caps how much of an embedded list is read.
const DefaultMaxEntrySize = 1 << 20

// Logger is the subset of logging used while walking directories.
type Logger interface {
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// Scanner locates and reads embedded dependency lists.
type Scanner struct {
	listName     string
	maxEntrySize int64
	logger       Logger
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithMaxEntrySize overrides the size cap for embedded lists.
func WithMaxEntrySize(n int64) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxEntrySize = n
		}
	}
}

// New returns a Scanner looking for entries named listName.
func New(listName string, log Logger, opts ...Option) *Scanner {
	s := &Scanner{
		listName:     listName,
		maxEntrySize: DefaultMaxEntrySize,
		logger:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsJar reports whether name has a .jar extension, ignoring case.
func IsJar(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".jar")
}

// FindJars walks root recursively and returns every .jar file, sorted.
// Unreadable subdirectories are skipped with a warning; an unreadable root is an error.
func (s *Scanner) FindJars(ctx context.Context, root string) ([]string, error) {
	var jars []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("Skipping unreadable path %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsJar(d.Name()) {
			jars = append(jars, p)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ValidationError(apperrors.CodeSearchPath, "failed to search for jar files", err).
			WithModule("jarscan").
			WithOperation("FindJars").
			WithField("root", root)
	}

	sort.Strings(jars)
	return jars, nil
}

// FindEntry returns the entry called name at the archive root, otherwise the
// first non-directory entry in archive order whose base name is name.
// Signature files are never returned.
func FindEntry(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if f.Name == name && !f.FileInfo().IsDir() {
			return f
		}
	}
	for _, f := range files {
		if f.FileInfo().IsDir() || isSignatureEntry(f.Name) {
			continue
		}
		if path.Base(f.Name) == name {
			return f
		}
	}
	return nil
}

// ReadList opens jarPath and parses its embedded dependency list.
// found is false when the archive holds no such entry.
func (s *Scanner) ReadList(jarPath string) (list *deps.List, found bool, err error) {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, false, apperrors.ArchiveError(apperrors.CodeArchiveOpen, "failed to open jar", err).
			WithModule("jarscan").
			WithOperation("ReadList").
			WithField("jar", jarPath)
	}
	defer zr.Close()

	entry := FindEntry(zr.File, s.listName)
	if entry == nil {
		return nil, false, nil
	}
	s.logger.Debug("Found %s in %s at %s", s.listName, jarPath, entry.Name)

	if entry.UncompressedSize64 > uint64(s.maxEntrySize) {
		return nil, true, apperrors.ArchiveError(apperrors.CodeEntryTooLong, "embedded dependency list is too large", nil).
			WithModule("jarscan").
			WithOperation("ReadList").
			WithFields(apperrors.Metadata{"jar": jarPath, "entry": entry.Name, "size": entry.UncompressedSize64})
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, true, apperrors.ArchiveError(apperrors.CodeArchiveOpen, "failed to open embedded dependency list", err).
			WithModule("jarscan").
			WithOperation("ReadList").
			WithFields(apperrors.Metadata{"jar": jarPath, "entry": entry.Name})
	}
	defer rc.Close()

	// the header size can lie; never read past the cap
	list, err = deps.Parse(io.LimitReader(rc, s.maxEntrySize), jarPath+"!"+entry.Name)
	if err != nil {
		return nil, true, apperrors.Annotate(err, apperrors.ErrCategoryArchive, apperrors.CodeArchiveGeneric,
			"failed to parse embedded dependency list", "jarscan", "ReadList")
	}
	return list, true, nil
}

func isSignatureEntry(name string) bool {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "META-INF/") {
		return false
	}
	switch path.Ext(upper) {
	case ".SF", ".DSA", ".RSA", ".EC":
		return true
	}
	return false
}
