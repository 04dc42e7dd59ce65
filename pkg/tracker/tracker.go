package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hausgeist-ai/hausgeist/pkg/models"
)

// Tracker records and queries generation usage.
type Tracker interface {
	// Record stores one generation attempt.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Summary returns aggregated usage grouped by style.
	Summary(ctx context.Context) ([]models.UsageSummary, error)
	// TotalCost returns the summed estimated cost since a given time.
	TotalCost(ctx context.Context, since time.Time) (float64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS generation_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	style_id TEXT NOT NULL,
	success INTEGER NOT NULL,
	fallback INTEGER NOT NULL DEFAULT 0,
	street_view_cached INTEGER NOT NULL DEFAULT 0,
	aerial_cached INTEGER NOT NULL DEFAULT 0,
	identity_cached INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	estimated_cost REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generation_style_time ON generation_records(style_id, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores one generation attempt.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO generation_records
		 (request_id, style_id, success, fallback, street_view_cached, aerial_cached, identity_cached, duration_ms, estimated_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.StyleID, boolInt(rec.Success), boolInt(rec.Fallback),
		boolInt(rec.CacheHits.StreetView), boolInt(rec.CacheHits.Aerial), boolInt(rec.CacheHits.Identity),
		rec.DurationMs, rec.EstimatedCost, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Summary returns aggregated usage grouped by style.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.UsageSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT style_id, COUNT(*), COALESCE(SUM(success), 0), COALESCE(SUM(estimated_cost), 0), COALESCE(AVG(duration_ms), 0)
		 FROM generation_records GROUP BY style_id ORDER BY style_id`)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		var avg float64
		if err := rows.Scan(&s.StyleID, &s.RequestCount, &s.SuccessCount, &s.TotalCost, &avg); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.AvgDurationMs = int64(avg)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TotalCost returns the summed estimated cost since a given time.
func (t *SQLiteTracker) TotalCost(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(estimated_cost), 0) FROM generation_records WHERE created_at >= ?`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
