package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "jardownloader/internal/errors"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultRecentLimit = 20
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	url        TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	path       TEXT NOT NULL,
	sha256     TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL DEFAULT 0,
	source     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL CHECK(status IN ('downloaded', 'skipped', 'failed')),
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_url ON downloads(url);
CREATE INDEX IF NOT EXISTS idx_downloads_run ON downloads(run_id);
`

// SQLiteRepository persists download history using a SQLite database file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory of path if needed and opens a SQLite
// database with WAL journaling and a busy timeout applied to every connection.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to create history directory", err).
				WithModule("data.history").
				WithOperation("Open").
				WithField("path", dir)
		}
	}

	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "invalid history database path", err).
			WithModule("data.history").
			WithOperation("Open").
			WithField("path", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to open history database", err).
			WithModule("data.history").
			WithOperation("Open").
			WithField("path", path)
	}

	// a single writer keeps concurrent Record calls from racing for the lock
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to connect to history database", err).
			WithModule("data.history").
			WithOperation("Open").
			WithField("path", path)
	}

	return db, nil
}

// sqliteDSN builds a file: URI for path. The path is made absolute and
// escaped so that '?', '#' and '%' in directory names reach SQLite intact.
func sqliteDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme: "file",
		Path:   p,
		RawQuery: fmt.Sprintf("_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
			defaultBusyTimeout.Milliseconds()),
	}
	return u.String(), nil
}

// NewSQLiteRepository wires a SQLite-backed implementation of Repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: time.Now,
	}
}

// OpenSQLiteRepository opens path and bootstraps the schema.
func OpenSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	repo := NewSQLiteRepository(db)
	if err := repo.Bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Bootstrap creates the schema and prepares the store for use.
func (r *SQLiteRepository) Bootstrap(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, "failed to create history schema", err).
			WithModule("data.history").
			WithOperation("Bootstrap")
	}
	return nil
}

// Record inserts records in a single transaction. Records without a
// CreatedAt are stamped with the current time.
func (r *SQLiteRepository) Record(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.wrap(err, "Record", "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO downloads (run_id, url, file_name, path, sha256, size, source, status, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return r.wrap(err, "Record", "failed to prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		created := rec.CreatedAt
		if created.IsZero() {
			created = r.now()
		}
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, rec.URL, rec.FileName, rec.Path, rec.SHA256, rec.Size,
			rec.Source, rec.Status, rec.Error, created.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return r.wrap(err, "Record", "failed to insert history record").WithField("url", rec.URL)
		}
	}

	if err := tx.Commit(); err != nil {
		return r.wrap(err, "Record", "failed to commit history records")
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// falls back to 20.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return r.query(ctx, "Recent", `
	SELECT id, run_id, url, file_name, path, sha256, size, source, status, error, created_at
	FROM downloads
	ORDER BY id DESC
	LIMIT ?
	`, limit)
}

// FindByURL returns the history of a single URL, newest first.
func (r *SQLiteRepository) FindByURL(ctx context.Context, url string) ([]Record, error) {
	return r.query(ctx, "FindByURL", `
	SELECT id, run_id, url, file_name, path, sha256, size, source, status, error, created_at
	FROM downloads
	WHERE url = ?
	ORDER BY id DESC
	`, url)
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.wrap(err, op, "failed to query history")
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var created string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.URL, &rec.FileName, &rec.Path, &rec.SHA256,
			&rec.Size, &rec.Source, &rec.Status, &rec.Error, &created); err != nil {
			return nil, r.wrap(err, op, "failed to read history row")
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(err, op, "failed to iterate history rows")
	}
	return records, nil
}

func (r *SQLiteRepository) wrap(err error, op, msg string) *apperrors.AppError {
	return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, msg, err).
		WithModule("data.history").
		WithOperation(op)
}

var _ Repository = (*SQLiteRepository)(nil)
