package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"market-monitor/models"
	"market-monitor/utils"
)

// Accepted encodings for listing dates. Anything with a clock part is
// truncated to its calendar day.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"1/2/2006",
	"01/02/2006",
}

const monthLayout = "200601"

// Cleaner turns raw delimited rows into typed, validated records.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// CleanListings converts rows to listings, dropping rows whose zip code is
// not in allow. The first unparseable or blank required cell of a kept row
// fails the whole table.
func (c *Cleaner) CleanListings(t *RawTable, allow AllowSet) ([]models.Listing, error) {
	if err := t.require(listingRequired); err != nil {
		return nil, err
	}

	result := make([]models.Listing, 0, len(t.Rows))
	for i, row := range t.Rows {
		zip, ok := NormalizeRegionCode(t.cell(row, "zip_code"))
		if !ok || !allow.Contains(zip) {
			continue
		}

		p := cellParser{table: t, row: row, rowNum: i + 1}
		l := models.Listing{
			BrokeredBy:    normaliseID(t.cell(row, "brokered_by")),
			Status:        models.Status(strings.ToLower(strings.TrimSpace(t.cell(row, "status")))),
			ZipCode:       zip,
			Street:        normaliseText(t.cell(row, "street")),
			City:          normaliseText(t.cell(row, "city")),
			Price:         p.amount("price"),
			HouseSize:     p.optionalAmount("house_size"),
			Bed:           p.count("bed"),
			Bath:          p.count("bath"),
			AcreLot:       p.optionalAmount("acre_lot"),
			DateSold:      p.date("date_sold"),
			DatePublished: p.date("date_published"),
			Link:          strings.TrimSpace(t.cell(row, "link")),
		}
		if p.err != nil {
			return nil, p.err
		}
		result = append(result, l)
	}

	c.logger.Info("[cleaner] %s: kept %d of %d listings (dropped %d outside allow-set)",
		t.File, len(result), len(t.Rows), len(t.Rows)-len(result))
	return result, nil
}

// CleanStats converts rows to market statistics, dropping rows whose postal
// code is not in allow. A region-month seen twice keeps its first row.
func (c *Cleaner) CleanStats(t *RawTable, allow AllowSet) ([]models.MarketStat, error) {
	if err := t.require(statsRequired); err != nil {
		return nil, err
	}

	type regionMonth struct {
		code  string
		month time.Time
	}
	seen := make(map[regionMonth]struct{}, len(t.Rows))
	duplicates := 0

	result := make([]models.MarketStat, 0, len(t.Rows))
	for i, row := range t.Rows {
		code, ok := NormalizeRegionCode(t.cell(row, "postal_code"))
		if !ok || !allow.Contains(code) {
			continue
		}

		p := cellParser{table: t, row: row, rowNum: i + 1}
		s := models.MarketStat{
			PostalCode:           code,
			MonthDate:            p.month("month_date_yyyymm"),
			MedianListingPrice:   p.number("median_listing_price"),
			MedianListingPriceMM: p.number("median_listing_price_mm"),
			MedianListingPriceYY: p.number("median_listing_price_yy"),
			TotalListingCount:    p.number("total_listing_count"),
			TotalListingCountMM:  p.number("total_listing_count_mm"),
			TotalListingCountYY:  p.number("total_listing_count_yy"),
			ZipName:              normaliseText(t.cell(row, "zip_name")),
		}
		if p.err != nil {
			return nil, p.err
		}
		if s.ZipName == "" {
			s.ZipName = code
		}
		key := regionMonth{code, s.MonthDate}
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		result = append(result, s)
	}

	if duplicates > 0 {
		c.logger.Warn("[cleaner] %s: dropped %d duplicate region-month rows", t.File, duplicates)
	}
	c.logger.Info("[cleaner] %s: kept %d of %d stat rows", t.File, len(result), len(t.Rows))
	return result, nil
}

// NormalizeRegionCode canonicalises a postal code: numeric codes written as
// "77546", "77546.0" or "07001" become a zero-padded five digit string.
// Non-numeric codes are returned trimmed. ok is false for empty input.
func NormalizeRegionCode(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || math.IsInf(f, 0) {
		return raw, true
	}
	return fmt.Sprintf("%05d", int64(f)), true
}

// cellParser parses typed cells of one row and keeps the first failure.
type cellParser struct {
	table  *RawTable
	row    []string
	rowNum int
	err    error
}

func (p *cellParser) fail(col, reason string) {
	if p.err == nil {
		p.err = &MalformedInputError{File: p.table.File, Row: p.rowNum, Column: col, Reason: reason}
	}
}

func (p *cellParser) raw(col string) string {
	return strings.ReplaceAll(strings.TrimSpace(p.table.cell(p.row, col)), ",", "")
}

func blank(raw string) bool {
	return raw == "" || strings.EqualFold(raw, "nan")
}

// number parses a required numeric cell. Blank and NaN cells fail.
func (p *cellParser) number(col string) float64 {
	raw := p.raw(col)
	if blank(raw) {
		p.fail(col, "missing value")
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		p.fail(col, fmt.Sprintf("not a number: %q", raw))
		return 0
	}
	return f
}

// amount is a number that must not be negative.
func (p *cellParser) amount(col string) float64 {
	f := p.number(col)
	if f < 0 {
		p.fail(col, fmt.Sprintf("must be non-negative, got %v", f))
		return 0
	}
	return f
}

// optionalAmount is an amount for display-only columns; a blank cell reads as 0.
func (p *cellParser) optionalAmount(col string) float64 {
	if blank(p.raw(col)) {
		return 0
	}
	return p.amount(col)
}

// count is a non-negative whole number; "3.0" is accepted.
func (p *cellParser) count(col string) int {
	f := p.amount(col)
	if f != math.Trunc(f) {
		p.fail(col, fmt.Sprintf("must be a whole number, got %v", f))
		return 0
	}
	return int(f)
}

func (p *cellParser) date(col string) time.Time {
	raw := strings.TrimSpace(p.table.cell(p.row, col))
	if raw == "" || strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "nat") {
		return time.Time{}
	}
	t, err := ParseDate(raw)
	if err != nil {
		p.fail(col, err.Error())
	}
	return t
}

func (p *cellParser) month(col string) time.Time {
	raw := strings.TrimSpace(p.table.cell(p.row, col))
	t, err := ParseMonth(raw)
	if err != nil {
		p.fail(col, err.Error())
	}
	return t
}

// ParseDate parses a listing date into a UTC calendar day.
func ParseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// ParseMonth parses the compact year-month encoding ("202403", also
// "202403.0") into the first day of that month.
func ParseMonth(raw string) (time.Time, error) {
	s := strings.TrimSuffix(raw, ".0")
	if len(s) != len(monthLayout) {
		return time.Time{}, fmt.Errorf("unparseable month %q, want YYYYMM", raw)
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable month %q, want YYYYMM", raw)
	}
	return t, nil
}

// normaliseID renders numeric broker ids without a trailing ".0".
func normaliseID(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
