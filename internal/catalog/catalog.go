// Package catalog keeps a SQLite history of captured photos.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/media"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var columns = []string{"id", "ref", "captured_at", "width", "height", "size_bytes", "camera_make", "camera_model"}

// Entry is one recorded capture.
type Entry struct {
	ID          int64     `json:"id"`
	Ref         string    `json:"ref"`
	CapturedAt  time.Time `json:"captured_at"`
	Width       *int      `json:"width,omitempty"`
	Height      *int      `json:"height,omitempty"`
	SizeBytes   *int64    `json:"size_bytes,omitempty"`
	CameraMake  *string   `json:"camera_make,omitempty"`
	CameraModel *string   `json:"camera_model,omitempty"`
}

// Catalog records captures in a SQLite database.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		debug.Errorf(err, "Catalog: failed to set WAL mode")
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	debug.Verbose("Catalog: opened %s", path)
	return &Catalog{db: db, now: time.Now}, nil
}

// Record stores ref with whatever metadata can be read from the file.
// Recording the same ref twice keeps the first entry.
func (c *Catalog) Record(ctx context.Context, ref string) error {
	var (
		width, height  *int
		size           *int64
		camMake, model *string
	)
	if meta, err := media.ReadMetadata(ref); err == nil {
		width, height, size = &meta.Width, &meta.Height, &meta.SizeBytes
		camMake, model = meta.CameraMake, meta.CameraModel
	} else {
		debug.Verbose("Catalog: no metadata for %s: %v", ref, err)
	}

	query, args, err := psql.Insert("captures").
		Options("OR IGNORE").
		Columns("ref", "captured_at", "width", "height", "size_bytes", "camera_make", "camera_model").
		Values(ref, c.now().UnixMilli(), width, height, size, camMake, model).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for Record: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s: %w", ref, err)
	}
	debug.Trace("Catalog: recorded %s", ref)
	return nil
}

// Latest returns up to limit entries, newest first. limit <= 0 means all.
func (c *Catalog) Latest(ctx context.Context, limit int) ([]Entry, error) {
	b := psql.Select(columns...).From("captures").OrderBy("captured_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for Latest: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Ref, &ms, &e.Width, &e.Height, &e.SizeBytes, &e.CameraMake, &e.CameraModel); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		e.CapturedAt = time.UnixMilli(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded captures.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("captures").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for Count: %w", err)
	}
	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count captures: %w", err)
	}
	return n, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
