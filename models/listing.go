package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a listing. Values other than the two
// constants below are kept as loaded but never match a status filter.
type Status string

const (
	StatusForSale Status = "for_sale"
	StatusSold    Status = "sold"
)

// Listing is one cleaned property listing row. It is a plain value type so
// that copying a slice of listings never shares state with the base table.
type Listing struct {
	BrokeredBy    string
	Status        Status
	ZipCode       string
	Street        string
	City          string
	Price         float64
	HouseSize     float64
	Bed           int
	Bath          int
	AcreLot       float64
	DateSold      time.Time // zero when the listing has not sold
	DatePublished time.Time // zero when unknown
	Link          string
}

// IsSold reports whether the listing is sold and carries a sale date.
func (l Listing) IsSold() bool {
	return l.Status == StatusSold && !l.DateSold.IsZero()
}

// Column names a projectable listing column.
type Column string

const (
	ColBrokeredBy    Column = "brokered_by"
	ColStatus        Column = "status"
	ColZipCode       Column = "zip_code"
	ColStreet        Column = "street"
	ColCity          Column = "city"
	ColPrice         Column = "price"
	ColHouseSize     Column = "house_size"
	ColBed           Column = "bed"
	ColBath          Column = "bath"
	ColAcreLot       Column = "acre_lot"
	ColDateSold      Column = "date_sold"
	ColDatePublished Column = "date_published"
	ColLink          Column = "link"
)

// DateLayout is the calendar-date rendering used in tables and exports.
const DateLayout = "2006-01-02"

// Value returns the cell for col. Dates render as YYYY-MM-DD, or "" when absent.
func (l Listing) Value(col Column) any {
	switch col {
	case ColBrokeredBy:
		return l.BrokeredBy
	case ColStatus:
		return string(l.Status)
	case ColZipCode:
		return l.ZipCode
	case ColStreet:
		return l.Street
	case ColCity:
		return l.City
	case ColPrice:
		return l.Price
	case ColHouseSize:
		return l.HouseSize
	case ColBed:
		return l.Bed
	case ColBath:
		return l.Bath
	case ColAcreLot:
		return l.AcreLot
	case ColDateSold:
		return formatDate(l.DateSold)
	case ColDatePublished:
		return formatDate(l.DatePublished)
	case ColLink:
		return l.Link
	}
	return nil
}

// IsNumeric reports whether the column holds numbers.
func (c Column) IsNumeric() bool {
	switch c {
	case ColPrice, ColHouseSize, ColBed, ColBath, ColAcreLot:
		return true
	}
	return false
}

// IsCurrency reports whether the renderer should format the column as money.
func (c Column) IsCurrency() bool {
	return c == ColPrice
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// MarketStat is one region-month row of aggregate market statistics.
type MarketStat struct {
	PostalCode           string
	MonthDate            time.Time
	MedianListingPrice   float64
	MedianListingPriceMM float64
	MedianListingPriceYY float64
	TotalListingCount    float64
	TotalListingCountMM  float64
	TotalListingCountYY  float64
	ZipName              string
}

// Metric selects one numeric column of a MarketStat.
type Metric string

const (
	MetricMedianListingPrice   Metric = "median_listing_price"
	MetricMedianListingPriceMM Metric = "median_listing_price_mm"
	MetricMedianListingPriceYY Metric = "median_listing_price_yy"
	MetricTotalListingCount    Metric = "total_listing_count"
	MetricTotalListingCountMM  Metric = "total_listing_count_mm"
	MetricTotalListingCountYY  Metric = "total_listing_count_yy"
)

var (
	// PriceMetrics are selectable on the median price chart.
	PriceMetrics = []Metric{MetricMedianListingPrice, MetricMedianListingPriceMM, MetricMedianListingPriceYY}
	// ListingMetrics are selectable on the listings chart.
	ListingMetrics = []Metric{MetricTotalListingCount, MetricTotalListingCountMM, MetricTotalListingCountYY}
)

// ParseMetric validates s against allowed. An empty s selects allowed[0].
func ParseMetric(s string, allowed []Metric) (Metric, error) {
	if s == "" && len(allowed) > 0 {
		return allowed[0], nil
	}
	for _, m := range allowed {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Value returns the metric's value for the row.
func (s MarketStat) Value(m Metric) float64 {
	switch m {
	case MetricMedianListingPrice:
		return s.MedianListingPrice
	case MetricMedianListingPriceMM:
		return s.MedianListingPriceMM
	case MetricMedianListingPriceYY:
		return s.MedianListingPriceYY
	case MetricTotalListingCount:
		return s.TotalListingCount
	case MetricTotalListingCountMM:
		return s.TotalListingCountMM
	case MetricTotalListingCountYY:
		return s.TotalListingCountYY
	}
	return 0
}
