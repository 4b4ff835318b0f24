// Package sqlite persists analysis results: area-weighted time series and
// divergence summaries keyed by region, field and cycle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"go.ngs.io/awap/internal/stats"
)

// SeriesKey identifies one stored time series.
type SeriesKey struct {
	Region   string
	Field    string
	Interval string
}

// SeriesPoint is one dated value of a series.
type SeriesPoint struct {
	Date  int     `json:"date"`
	Value float64 `json:"value"`
}

// DivergenceRecord is a stored divergence summary.
type DivergenceRecord struct {
	Region    string `json:"region"`
	Field     string `json:"field"`
	Cycle     string `json:"cycle"`
	Policy    string `json:"policy"`
	StartDate int    `json:"start_date"`
	EndDate   int    `json:"end_date"`
	stats.DivergenceSummary
}

// Store is a SQLite-backed results store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and ensures the
// schema exists.
func Open(dsn string) (*Store, error) {
	path := dsn
	if idx := strings.Index(dsn, "?"); idx != -1 {
		path = dsn[:idx]
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS series (
		region   TEXT NOT NULL,
		field    TEXT NOT NULL,
		interval TEXT NOT NULL,
		date     INTEGER NOT NULL,
		value    REAL NOT NULL,
		PRIMARY KEY (region, field, interval, date)
	);
	CREATE TABLE IF NOT EXISTS divergence (
		region     TEXT NOT NULL,
		field      TEXT NOT NULL,
		cycle      TEXT NOT NULL,
		policy     TEXT NOT NULL,
		start_date INTEGER NOT NULL,
		end_date   INTEGER NOT NULL,
		windows    INTEGER NOT NULL,
		mean_kld   REAL NOT NULL,
		max_kld    REAL NOT NULL,
		max_row    INTEGER NOT NULL,
		max_col    INTEGER NOT NULL,
		PRIMARY KEY (region, field, cycle, policy)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSeries replaces the stored values of key at the given dates.
func (s *Store) SaveSeries(ctx context.Context, key SeriesKey, dates []int, values []float64) error {
	if len(dates) != len(values) {
		return fmt.Errorf("%w: %d dates, %d values", stats.ErrLengthMismatch, len(dates), len(values))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO series (region, field, interval, date, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, d := range dates {
		if _, err := stmt.ExecContext(ctx, key.Region, key.Field, key.Interval, d, values[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store %s/%s at %d: %w", key.Region, key.Field, d, err)
		}
	}
	return tx.Commit()
}

// Series returns the stored points of key in date order.
func (s *Store) Series(ctx context.Context, key SeriesKey) ([]SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date, value FROM series WHERE region = ? AND field = ? AND interval = ? ORDER BY date",
		key.Region, key.Field, key.Interval)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveDivergence inserts or replaces a divergence summary.
func (s *Store) SaveDivergence(ctx context.Context, r DivergenceRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO divergence
		(region, field, cycle, policy, start_date, end_date, windows, mean_kld, max_kld, max_row, max_col)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Region, r.Field, r.Cycle, r.Policy, r.StartDate, r.EndDate,
		r.Windows, r.Mean, r.Max, r.MaxRow, r.MaxCol)
	if err != nil {
		return fmt.Errorf("failed to store divergence for %s/%s: %w", r.Region, r.Field, err)
	}
	return nil
}

// Divergences returns the summaries stored for region, or for every region
// when region is empty.
func (s *Store) Divergences(ctx context.Context, region string) ([]DivergenceRecord, error) {
	q := `SELECT region, field, cycle, policy, start_date, end_date, windows, mean_kld, max_kld, max_row, max_col
		FROM divergence`
	var args []any
	if region != "" {
		q += " WHERE region = ?"
		args = append(args, region)
	}
	q += " ORDER BY region, field, cycle, policy"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query divergence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DivergenceRecord
	for rows.Next() {
		var r DivergenceRecord
		if err := rows.Scan(&r.Region, &r.Field, &r.Cycle, &r.Policy, &r.StartDate, &r.EndDate,
			&r.Windows, &r.Mean, &r.Max, &r.MaxRow, &r.MaxCol); err != nil {
			return nil, fmt.Errorf("failed to scan divergence row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
