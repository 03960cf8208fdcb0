package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-monitor/models"
	"market-monitor/utils"
)

var (
	listingRequired = []string{"zip_code", "status", "price", "bed", "bath", "date_sold", "date_published"}
	statsRequired   = []string{
		"postal_code", "month_date_yyyymm", "zip_name",
		"median_listing_price", "median_listing_price_mm", "median_listing_price_yy",
		"total_listing_count", "total_listing_count_mm", "total_listing_count_yy",
	}
	headerAliases = map[string]string{
		"links":      "link",
		"month_date": "month_date_yyyymm",
	}
)

// RawTable is a delimited file read as strings, with a header index.
type RawTable struct {
	File   string
	Header map[string]int
	Rows   [][]string
}

// ReadRawCSV reads a comma-delimited file with a header row. Header names are
// matched case-insensitively.
func ReadRawCSV(r io.Reader, name string) (*RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedInputError{File: name, Reason: "file is empty"}
		}
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	t := &RawTable{File: name, Header: make(map[string]int, len(headers))}
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := headerAliases[key]; ok {
			key = alias
		}
		if _, dup := t.Header[key]; !dup {
			t.Header[key] = i
		}
	}

	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedInputError{File: name, Row: line, Reason: err.Error()}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (t *RawTable) require(cols []string) error {
	for _, col := range cols {
		if _, ok := t.Header[col]; !ok {
			return &MalformedInputError{File: t.File, Column: col, Reason: "required column missing"}
		}
	}
	return nil
}

// cell returns the raw value of col, or "" when the column or cell is absent.
func (t *RawTable) cell(row []string, col string) string {
	i, ok := t.Header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// AllowSet is the fixed, ordered set of region codes analysis is restricted to.
type AllowSet struct {
	codes []string
	set   map[string]struct{}
}

// NewAllowSet canonicalises codes and drops duplicates, keeping first-seen order.
func NewAllowSet(codes []string) AllowSet {
	a := AllowSet{set: make(map[string]struct{}, len(codes))}
	for _, raw := range codes {
		code, ok := NormalizeRegionCode(raw)
		if !ok {
			continue
		}
		if _, dup := a.set[code]; dup {
			continue
		}
		a.set[code] = struct{}{}
		a.codes = append(a.codes, code)
	}
	return a
}

// Contains reports whether code (already canonical) is allowed.
func (a AllowSet) Contains(code string) bool {
	_, ok := a.set[code]
	return ok
}

// Codes returns a copy of the allowed codes in configured order.
func (a AllowSet) Codes() []string {
	out := make([]string, len(a.codes))
	copy(out, a.codes)
	return out
}

// Len returns the number of allowed codes.
func (a AllowSet) Len() int { return len(a.codes) }

// Dataset is the process-wide, read-only context every view is computed from.
// It is built once by Loader.LoadDataset; nothing mutates it afterwards.
type Dataset struct {
	Listings []models.Listing
	Stats    []models.MarketStat
	AllowSet AllowSet
	BrokerID string
	LoadedAt time.Time
}

// Own returns a copy of the listings brokered by the configured broker.
// An empty BrokerID means every listing.
func (d *Dataset) Own() []models.Listing {
	if d.BrokerID == "" {
		return cloneListings(d.Listings)
	}
	return FilterListings(d.Listings, ListingFilter{BrokeredBy: d.BrokerID})
}

// Snapshot is a previously persisted copy of the tables, used when a source
// file cannot be loaded.
type Snapshot interface {
	FetchListings(ctx context.Context) ([]models.Listing, error)
	FetchStats(ctx context.Context) ([]models.MarketStat, error)
}

// FileReport is the outcome of loading one source file.
type FileReport struct {
	Path         string
	Rows         int
	Err          error
	FromSnapshot bool
}

// LoadReport collects per-file outcomes; a failed file never aborts the other.
type LoadReport struct {
	Listings FileReport
	Stats    FileReport
}

// Errors returns the per-file errors that were not recovered.
func (r LoadReport) Errors() []error {
	var errs []error
	for _, fr := range []FileReport{r.Listings, r.Stats} {
		if fr.Err != nil && !fr.FromSnapshot {
			errs = append(errs, fr.Err)
		}
	}
	return errs
}

// Loader reads the source files into a Dataset.
type Loader struct {
	cleaner  *Cleaner
	logger   *utils.Logger
	pool     *utils.WorkerPool
	snapshot Snapshot
}

// NewLoader creates a Loader. snapshot may be nil.
func NewLoader(logger *utils.Logger, maxConcurrency int, snapshot Snapshot) *Loader {
	return &Loader{
		cleaner:  NewCleaner(logger),
		logger:   logger,
		pool:     utils.NewWorkerPool(maxConcurrency),
		snapshot: snapshot,
	}
}

// LoadListings reads and normalises a listings file.
func (l *Loader) LoadListings(r io.Reader, name string, allow AllowSet) ([]models.Listing, error) {
	t, err := ReadRawCSV(r, name)
	if err != nil {
		return nil, err
	}
	return l.cleaner.CleanListings(t, allow)
}

// LoadStats reads and normalises a market statistics file.
func (l *Loader) LoadStats(r io.Reader, name string, allow AllowSet) ([]models.MarketStat, error) {
	t, err := ReadRawCSV(r, name)
	if err != nil {
		return nil, err
	}
	return l.cleaner.CleanStats(t, allow)
}

// LoadListingsFile opens path and loads it as a listings file.
func (l *Loader) LoadListingsFile(path string, allow AllowSet) ([]models.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listings: %w", err)
	}
	defer f.Close()
	return l.LoadListings(f, filepath.Base(path), allow)
}

// LoadStatsFile opens path and loads it as a market statistics file.
func (l *Loader) LoadStatsFile(path string, allow AllowSet) ([]models.MarketStat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stats: %w", err)
	}
	defer f.Close()
	return l.LoadStats(f, filepath.Base(path), allow)
}

// LoadDataset loads both files concurrently. A file that fails is reported,
// replaced by the snapshot copy when one is available, and otherwise left empty.
func (l *Loader) LoadDataset(ctx context.Context, listingsPath, statsPath string, allow AllowSet, brokerID string) (*Dataset, LoadReport) {
	ds := &Dataset{AllowSet: allow, BrokerID: brokerID}
	report := LoadReport{
		Listings: FileReport{Path: listingsPath},
		Stats:    FileReport{Path: statsPath},
	}

	l.pool.Go(ctx, "listings", func(ctx context.Context) error {
		ds.Listings, report.Listings.Err = l.LoadListingsFile(listingsPath, allow)
		if report.Listings.Err != nil && l.snapshot != nil {
			l.logger.Warn("[loader] listings failed (%v), reading snapshot", report.Listings.Err)
			if rows, err := l.snapshot.FetchListings(ctx); err == nil {
				ds.Listings = filterAllowedListings(rows, allow)
				report.Listings.FromSnapshot = true
			} else {
				l.logger.Error("[loader] listings snapshot failed: %v", err)
			}
		}
		report.Listings.Rows = len(ds.Listings)
		return nil
	})
	l.pool.Go(ctx, "stats", func(ctx context.Context) error {
		ds.Stats, report.Stats.Err = l.LoadStatsFile(statsPath, allow)
		if report.Stats.Err != nil && l.snapshot != nil {
			l.logger.Warn("[loader] stats failed (%v), reading snapshot", report.Stats.Err)
			if rows, err := l.snapshot.FetchStats(ctx); err == nil {
				ds.Stats = FilterStats(rows, StatFilter{PostalCodes: allow.Codes()})
				report.Stats.FromSnapshot = true
			} else {
				l.logger.Error("[loader] stats snapshot failed: %v", err)
			}
		}
		report.Stats.Rows = len(ds.Stats)
		return nil
	})
	if err := l.pool.Wait(); err != nil {
		l.logger.Error("[loader] %v", err)
	}

	if ds.Listings == nil {
		ds.Listings = []models.Listing{}
	}
	if ds.Stats == nil {
		ds.Stats = []models.MarketStat{}
	}
	ds.LoadedAt = time.Now()

	for _, fr := range []FileReport{report.Listings, report.Stats} {
		switch {
		case fr.FromSnapshot:
			l.logger.Warn("[loader] %s: using snapshot (%d rows)", fr.Path, fr.Rows)
		case fr.Err != nil:
			l.logger.Error("[loader] %s: %v", fr.Path, fr.Err)
		default:
			l.logger.Info("[loader] %s: loaded %d rows", fr.Path, fr.Rows)
		}
	}
	return ds, report
}

func filterAllowedListings(rows []models.Listing, allow AllowSet) []models.Listing {
	out := make([]models.Listing, 0, len(rows))
	for _, r := range rows {
		if allow.Contains(r.ZipCode) {
			out = append(out, r)
		}
	}
	return out
}
