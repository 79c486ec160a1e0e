// Package store archives finished capture runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/aluiziolira/marketplace-capture/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a run archive backed by SQLite.
type Store struct {
	db *sql.DB
}

// Run is one archived run as read back from the database.
type Run struct {
	ID             int64
	TargetDate     string
	StopReason     string
	SuccessCount   int
	AttemptedCount int
	ErrorCount     int
	Elapsed        time.Duration
}

// Open opens or creates the archive at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) (uint, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a finalized run with its listings and ledger rows in one
// transaction and returns the run id.
func (s *Store) SaveRun(ctx context.Context, m *models.RunMetrics, reason string, listings []models.ListingRecord, errs []models.ErrorRecord) (int64, error) {
	if m == nil || !m.Finalized() {
		return 0, errors.New("archive: run metrics not finalized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO runs
		(target_date, start_time, end_time, stop_reason, success_count, attempted_count, error_count, elapsed_seconds, per_minute, per_minute_real)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TargetDate.Format(time.DateOnly),
		m.StartTime.Format(time.RFC3339),
		m.EndTime.Format(time.RFC3339),
		reason,
		m.SuccessCount,
		m.AttemptedCount,
		m.ErrorCount,
		m.Elapsed.Seconds(),
		m.PerMinute,
		m.PerMinuteReal,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	if err := insertListings(ctx, tx, runID, listings); err != nil {
		return 0, err
	}
	if err := insertErrors(ctx, tx, runID, errs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return runID, nil
}

func insertListings(ctx context.Context, tx *sql.Tx, runID int64, listings []models.ListingRecord) error {
	if len(listings) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO listings
		(run_id, extraction_date, title, creation_time, delivery_type, description, is_live, is_sold,
		 seller_join_time, inventory_quantity, price_amount, price_currency, price_amount_with_offset,
		 latitude, longitude, location_text, location_id, seller_name, seller_type, seller_id, listing_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare listing insert: %w", err)
	}
	defer stmt.Close()

	for i := range listings {
		args := append([]any{runID}, listings[i].Values()...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert listing %d: %w", i, err)
		}
	}
	return nil
}

func insertErrors(ctx context.Context, tx *sql.Tx, runID int64, errs []models.ErrorRecord) error {
	for i, e := range errs {
		_, err := tx.ExecContext(ctx, `INSERT INTO errors
			(run_id, kind, message, source_location, source_snippet, listing_url, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, e.Kind, e.Message, e.SourceLocation, e.SourceSnippet, e.ListingURL, e.RecordedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert error row %d: %w", i, err)
		}
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, target_date, stop_reason, success_count, attempted_count, error_count, elapsed_seconds
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var seconds float64
		if err := rows.Scan(&r.ID, &r.TargetDate, &r.StopReason, &r.SuccessCount, &r.AttemptedCount, &r.ErrorCount, &seconds); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Elapsed = time.Duration(seconds * float64(time.Second))
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Listings returns the archived listings of a run in insertion order.
func (s *Store) Listings(ctx context.Context, runID int64) ([]models.ListingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT extraction_date, title, creation_time, delivery_type, description, is_live, is_sold,
		seller_join_time, inventory_quantity, price_amount, price_currency, price_amount_with_offset,
		latitude, longitude, location_text, location_id, seller_name, seller_type, seller_id, listing_url
		FROM listings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []models.ListingRecord
	for rows.Next() {
		var r models.ListingRecord
		err := rows.Scan(&r.ExtractionDate, &r.Title, &r.CreationTime, &r.DeliveryType, &r.Description, &r.IsLive, &r.IsSold,
			&r.SellerJoinTime, &r.InventoryQuantity, &r.PriceAmount, &r.PriceCurrency, &r.PriceAmountWithOffset,
			&r.Latitude, &r.Longitude, &r.LocationText, &r.LocationID, &r.SellerName, &r.SellerType, &r.SellerID, &r.ListingURL)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrorKinds returns the ledger kinds archived for a run with their counts.
func (s *Store) ErrorKinds(ctx context.Context, runID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM errors WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("query error kinds: %w", err)
	}
	defer rows.Close()

	kinds := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan error kind: %w", err)
		}
		kinds[kind] = n
	}
	return kinds, rows.Err()
}
