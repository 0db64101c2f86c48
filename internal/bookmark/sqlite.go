package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	chapter_id    TEXT PRIMARY KEY,
	chapter_index INTEGER NOT NULL,
	position      REAL NOT NULL,
	duration      REAL NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_updated_at ON bookmarks(updated_at);
`

// SQLiteStore keeps bookmarks in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bookmark: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bookmark: migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save implements Store.Save.
func (s *SQLiteStore) Save(ctx context.Context, b Bookmark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (chapter_id, chapter_index, position, duration, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chapter_id) DO UPDATE SET
			chapter_index=excluded.chapter_index,
			position=excluded.position,
			duration=excluded.duration,
			updated_at=excluded.updated_at
	`, b.ChapterID, b.ChapterIndex, b.Position, b.Duration, b.UpdatedAt.UnixNano())
	return err
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, chapterID string) (Bookmark, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chapter_id, chapter_index, position, duration, updated_at
		FROM bookmarks
		WHERE chapter_id = ?
	`, chapterID)
	return scanOne(row)
}

// Latest implements Store.Latest.
func (s *SQLiteStore) Latest(ctx context.Context) (Bookmark, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chapter_id, chapter_index, position, duration, updated_at
		FROM bookmarks
		ORDER BY updated_at DESC, chapter_id
		LIMIT 1
	`)
	return scanOne(row)
}

// List implements Store.List.
func (s *SQLiteStore) List(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter_id, chapter_index, position, duration, updated_at
		FROM bookmarks
		ORDER BY updated_at DESC, chapter_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Bookmark, error) {
	var (
		b       Bookmark
		updated int64
	)
	if err := sc.Scan(&b.ChapterID, &b.ChapterIndex, &b.Position, &b.Duration, &updated); err != nil {
		return Bookmark{}, err
	}
	b.UpdatedAt = time.Unix(0, updated).UTC()
	return b, nil
}

func scanOne(row *sql.Row) (Bookmark, bool, error) {
	b, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, false, nil
		}
		return Bookmark{}, false, err
	}
	return b, true, nil
}
