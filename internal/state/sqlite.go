package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
)

// Schema creates the progress, format hint and mirror history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS reading_progress (
	book_id        INTEGER PRIMARY KEY,
	current_page   INTEGER NOT NULL,
	total_pages    INTEGER NOT NULL,
	last_read_date TEXT    NOT NULL,
	format         TEXT    NOT NULL,
	locator        TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS book_formats (
	book_id INTEGER PRIMARY KEY,
	format  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reading_history (
	book_id         INTEGER PRIMARY KEY,
	last_page       INTEGER NOT NULL,
	read_percentage REAL    NOT NULL,
	completed       INTEGER NOT NULL DEFAULT 0,
	last_read_date  TEXT    NOT NULL
);
`

// SQLiteStore keeps state in an SQLite database. It serves both as the
// device-local store and as the backing store of the progress mirror.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path with WAL
// journaling and a busy timeout, and applies Schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: %s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init applies Schema. It is idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("state: exec schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadProgress(ctx context.Context, bookID int64) (progress.Progress, bool, error) {
	var (
		p        progress.Progress
		lastRead string
		format   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT current_page, total_pages, last_read_date, format, locator
		 FROM reading_progress WHERE book_id = ?`, bookID,
	).Scan(&p.CurrentPage, &p.TotalPages, &lastRead, &format, &p.Locator)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Progress{}, false, nil
	}
	if err != nil {
		return progress.Progress{}, false, fmt.Errorf("state: load progress %d: %w", bookID, err)
	}
	p.BookID = bookID
	p.Format = reader.ParseFormat(format)
	if p.LastReadDate, err = time.Parse(time.RFC3339Nano, lastRead); err != nil {
		return progress.Progress{}, false, fmt.Errorf("state: load progress %d: %w", bookID, err)
	}
	return p, true, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, p progress.Progress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_progress (book_id, current_page, total_pages, last_read_date, format, locator)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET
			current_page = excluded.current_page,
			total_pages = excluded.total_pages,
			last_read_date = excluded.last_read_date,
			format = excluded.format,
			locator = excluded.locator`,
		p.BookID, p.CurrentPage, p.TotalPages, p.LastReadDate.UTC().Format(time.RFC3339Nano), p.Format.String(), p.Locator)
	if err != nil {
		return fmt.Errorf("state: save progress %d: %w", p.BookID, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, bookID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reading_progress WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("state: clear %d: %w", bookID, err)
	}
	return nil
}

func (s *SQLiteStore) BookFormat(ctx context.Context, bookID int64) (reader.Format, error) {
	var format string
	err := s.db.QueryRowContext(ctx, `SELECT format FROM book_formats WHERE book_id = ?`, bookID).Scan(&format)
	if errors.Is(err, sql.ErrNoRows) {
		return reader.FormatUnknown, nil
	}
	if err != nil {
		return reader.FormatUnknown, fmt.Errorf("state: book format %d: %w", bookID, err)
	}
	return reader.ParseFormat(format), nil
}

func (s *SQLiteStore) SetBookFormat(ctx context.Context, bookID int64, f reader.Format) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO book_formats (book_id, format) VALUES (?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET format = excluded.format`,
		bookID, f.String())
	if err != nil {
		return fmt.Errorf("state: set book format %d: %w", bookID, err)
	}
	return nil
}

// PushProgress records a mirrored update, last write wins.
func (s *SQLiteStore) PushProgress(ctx context.Context, u progress.Update) error {
	completed := 0
	if u.Completed {
		completed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_history (book_id, last_page, read_percentage, completed, last_read_date)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET
			last_page = excluded.last_page,
			read_percentage = excluded.read_percentage,
			completed = excluded.completed,
			last_read_date = excluded.last_read_date`,
		u.BookID, u.LastPage, u.ReadPercentage, completed, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("state: push history %d: %w", u.BookID, err)
	}
	return nil
}

// History returns the mirrored record for bookID.
func (s *SQLiteStore) History(ctx context.Context, bookID int64) (progress.History, bool, error) {
	var (
		h         progress.History
		completed int
		lastRead  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_page, read_percentage, completed, last_read_date
		 FROM reading_history WHERE book_id = ?`, bookID,
	).Scan(&h.LastPage, &h.ReadPercentage, &completed, &lastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.History{}, false, nil
	}
	if err != nil {
		return progress.History{}, false, fmt.Errorf("state: history %d: %w", bookID, err)
	}
	h.BookID = bookID
	h.Completed = completed != 0
	if h.LastReadDate, err = time.Parse(time.RFC3339Nano, lastRead); err != nil {
		return progress.History{}, false, fmt.Errorf("state: history %d: %w", bookID, err)
	}
	return h, true, nil
}
