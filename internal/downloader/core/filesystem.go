package core

import (
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// PendingFile is a file being written that only becomes visible at its
// destination once CloseAtomicallyReplace succeeds.
type PendingFile interface {
	io.Writer
	Name() string
	Cleanup() error
	CloseAtomicallyReplace() error
}

// FileSystem abstracts filesystem operations to improve testability.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	CreatePending(path string) (PendingFile, error)
}

// OSFileSystem implements FileSystem using the local OS.
type OSFileSystem struct{}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (OSFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// CreatePending writes to a temporary file next to path; renameio fsyncs and
// renames it over path on commit and removes it on Cleanup.
func (OSFileSystem) CreatePending(path string) (PendingFile, error) {
	return renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
}
