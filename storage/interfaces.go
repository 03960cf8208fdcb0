package storage

import (
	"context"

	"market-monitor/models"
)

// TableWriter is the interface any table export backend must satisfy.
type TableWriter interface {
	WriteTable(t models.Table) error
}

// SnapshotStore persists the loaded tables and reads them back when a
// source file is unavailable.
type SnapshotStore interface {
	WriteListings(ctx context.Context, listings []models.Listing) error
	WriteStats(ctx context.Context, stats []models.MarketStat) error
	FetchListings(ctx context.Context) ([]models.Listing, error)
	FetchStats(ctx context.Context) ([]models.MarketStat, error)
	Close() error
}
