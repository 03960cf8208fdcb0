package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"market-monitor/models"
	"market-monitor/utils"
)

const batchSize = 50

var _ SnapshotStore = (*PostgresStore)(nil)

// PostgresStore keeps a snapshot of the last successfully loaded tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, waits for the server with retry
// and runs the schema migration.
func NewPostgresStore(ctx context.Context, dsn string, retry *utils.RetryConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id             SERIAL PRIMARY KEY,
			brokered_by    TEXT             NOT NULL DEFAULT '',
			status         TEXT             NOT NULL,
			zip_code       TEXT             NOT NULL,
			street         TEXT             NOT NULL DEFAULT '',
			city           TEXT             NOT NULL DEFAULT '',
			price          DOUBLE PRECISION NOT NULL DEFAULT 0,
			house_size     DOUBLE PRECISION NOT NULL DEFAULT 0,
			bed            INTEGER          NOT NULL DEFAULT 0,
			bath           INTEGER          NOT NULL DEFAULT 0,
			acre_lot       DOUBLE PRECISION NOT NULL DEFAULT 0,
			date_sold      DATE,
			date_published DATE,
			link           TEXT             NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_zip    ON listings(zip_code);
		CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);

		CREATE TABLE IF NOT EXISTS market_stats (
			postal_code             TEXT             NOT NULL,
			month_date              DATE             NOT NULL,
			median_listing_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
			median_listing_price_mm DOUBLE PRECISION NOT NULL DEFAULT 0,
			median_listing_price_yy DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_listing_count     DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_listing_count_mm  DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_listing_count_yy  DOUBLE PRECISION NOT NULL DEFAULT 0,
			zip_name                TEXT             NOT NULL DEFAULT '',
			PRIMARY KEY (postal_code, month_date)
		);
	`)
	return err
}

// WriteListings replaces the listings snapshot in one transaction.
func (ps *PostgresStore) WriteListings(ctx context.Context, listings []models.Listing) error {
	return ps.replace(ctx, "listings", len(listings), func(tx *sql.Tx, lo, hi int) error {
		return insertListings(ctx, tx, listings[lo:hi])
	})
}

// WriteStats replaces the market statistics snapshot in one transaction.
func (ps *PostgresStore) WriteStats(ctx context.Context, stats []models.MarketStat) error {
	return ps.replace(ctx, "market_stats", len(stats), func(tx *sql.Tx, lo, hi int) error {
		return insertStats(ctx, tx, stats[lo:hi])
	})
}

// replace clears table and inserts n rows in batches. An empty load leaves
// the previous snapshot untouched.
func (ps *PostgresStore) replace(ctx context.Context, table string, n int, insert func(tx *sql.Tx, lo, hi int) error) error {
	if n == 0 {
		return nil
	}

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", table, err)
	}
	for i := 0; i < n; i += batchSize {
		end := min(i+batchSize, n)
		if err := insert(tx, i, end); err != nil {
			return fmt.Errorf("postgres: insert %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", table, err)
	}
	return nil
}

// placeholders renders "($1,...,$cols),(...)" for rows rows.
func placeholders(rows, cols int) string {
	groups := make([]string, rows)
	for r := range groups {
		ph := make([]string, cols)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", r*cols+c+1)
		}
		groups[r] = "(" + strings.Join(ph, ",") + ")"
	}
	return strings.Join(groups, ",")
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func insertListings(ctx context.Context, tx *sql.Tx, batch []models.Listing) error {
	const cols = 13
	args := make([]any, 0, len(batch)*cols)
	for _, l := range batch {
		args = append(args,
			l.BrokeredBy, string(l.Status), l.ZipCode, l.Street, l.City,
			l.Price, l.HouseSize, l.Bed, l.Bath, l.AcreLot,
			nullDate(l.DateSold), nullDate(l.DatePublished), l.Link)
	}
	query := `INSERT INTO listings (brokered_by, status, zip_code, street, city,
		price, house_size, bed, bath, acre_lot, date_sold, date_published, link)
		VALUES ` + placeholders(len(batch), cols)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func insertStats(ctx context.Context, tx *sql.Tx, batch []models.MarketStat) error {
	const cols = 9
	args := make([]any, 0, len(batch)*cols)
	for _, s := range batch {
		args = append(args,
			s.PostalCode, s.MonthDate,
			s.MedianListingPrice, s.MedianListingPriceMM, s.MedianListingPriceYY,
			s.TotalListingCount, s.TotalListingCountMM, s.TotalListingCountYY,
			s.ZipName)
	}
	query := `INSERT INTO market_stats (postal_code, month_date,
		median_listing_price, median_listing_price_mm, median_listing_price_yy,
		total_listing_count, total_listing_count_mm, total_listing_count_yy, zip_name)
		VALUES ` + placeholders(len(batch), cols) + `
		ON CONFLICT (postal_code, month_date) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// FetchListings returns the listings snapshot in insertion order.
func (ps *PostgresStore) FetchListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT brokered_by, status, zip_code, street, city, price, house_size,
		       bed, bath, acre_lot, date_sold, date_published, link
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var (
			l               models.Listing
			status          string
			sold, published sql.NullTime
		)
		if err := rows.Scan(
			&l.BrokeredBy, &status, &l.ZipCode, &l.Street, &l.City, &l.Price, &l.HouseSize,
			&l.Bed, &l.Bath, &l.AcreLot, &sold, &published, &l.Link,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		l.Status = models.Status(status)
		l.DateSold = calendarDay(sold)
		l.DatePublished = calendarDay(published)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// FetchStats returns the statistics snapshot ordered by code and month.
func (ps *PostgresStore) FetchStats(ctx context.Context) ([]models.MarketStat, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT postal_code, month_date,
		       median_listing_price, median_listing_price_mm, median_listing_price_yy,
		       total_listing_count, total_listing_count_mm, total_listing_count_yy, zip_name
		FROM market_stats
		ORDER BY postal_code, month_date
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch stats: %w", err)
	}
	defer rows.Close()

	var stats []models.MarketStat
	for rows.Next() {
		var (
			s     models.MarketStat
			month time.Time
		)
		if err := rows.Scan(
			&s.PostalCode, &month,
			&s.MedianListingPrice, &s.MedianListingPriceMM, &s.MedianListingPriceYY,
			&s.TotalListingCount, &s.TotalListingCountMM, &s.TotalListingCountYY, &s.ZipName,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan stat: %w", err)
		}
		s.MonthDate = calendarDay(sql.NullTime{Time: month, Valid: true})
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// calendarDay drops the zone the driver attaches to DATE values.
func calendarDay(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.Date(t.Time.Year(), t.Time.Month(), t.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
