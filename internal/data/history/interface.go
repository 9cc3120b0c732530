package history

import (
	"context"
	"time"
)

// Record is one download outcome as stored in the history database.
type Record struct {
	ID        int64
	RunID     string
	URL       string
	FileName  string
	Path      string
	SHA256    string
	Size      int64
	Source    string
	Status    string
	Error     string
	CreatedAt time.Time
}

// Repository describes the persistence contract for download history.
type Repository interface {
	// Bootstrap prepares the backing store (schema creation).
	Bootstrap(ctx context.Context) error
	// Record stores the given outcomes in one transaction.
	Record(ctx context.Context, records ...Record) error
	// Recent returns the newest records first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// FindByURL returns every record for url, newest first.
	FindByURL(ctx context.Context, url string) ([]Record, error)
	Close() error
}
