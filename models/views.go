package models

import "time"

// NoDataWarning is attached to any view that matched zero rows.
const NoDataWarning = "no data"

// Series is the chart-ready shape for scatter, histogram and bar views.
// X, Y and Color always have the same length, as does every Hover slice.
type Series struct {
	Title   string           `json:"title"`
	XLabel  string           `json:"x_label"`
	YLabel  string           `json:"y_label"`
	X       []any            `json:"x"`
	Y       []float64        `json:"y"`
	Color   []string         `json:"color"`
	Hover   map[string][]any `json:"hover,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.X) }

// CurrencyFormat tells the renderer how to display money.
type CurrencyFormat struct {
	Precision    int    `json:"precision"`
	Group        string `json:"group"`
	SymbolPrefix string `json:"symbol_prefix"`
}

// DefaultCurrencyFormat renders $1,234.56.
var DefaultCurrencyFormat = CurrencyFormat{Precision: 2, Group: ",", SymbolPrefix: "$"}

// TableColumn describes one column of a Table.
type TableColumn struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"` // "numeric" or "text"
	Format *CurrencyFormat `json:"format,omitempty"`
}

// Table is the data-table shape: ordered columns and rows keyed by column id.
type Table struct {
	Title   string           `json:"title"`
	Columns []TableColumn    `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Warning string           `json:"warning,omitempty"`
}

// Summary holds the dashboard's headline numbers. Nil pointers mark
// aggregates that are undefined over an empty set.
type Summary struct {
	Period          string         `json:"period"` // MM/YYYY of "now"
	Year            int            `json:"year"`
	TotalSales      float64        `json:"total_sales"`
	ActiveListings  int            `json:"active_listings"`
	HighestClosing  *float64       `json:"highest_closing"`
	SoldLastQuarter int            `json:"sold_last_quarter"`
	MedianPrice     *float64       `json:"median_price"`
	AveragePrice    *float64       `json:"average_price"`
	TotalListings   int            `json:"total_listings"`
	ListingsByCity  map[string]int `json:"listings_by_city"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// MonthlyTotal is one row of the monthly sales trend.
type MonthlyTotal struct {
	Month time.Time `json:"month"`
	Label string    `json:"label"` // YYYY-M
	Total float64   `json:"total"`
}

// HistogramBin counts listings of one group whose price falls in [Lower, Upper).
// The last bin of a histogram also includes its upper edge.
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Group string  `json:"group"`
	Count int     `json:"count"`
}

// Preview is the read-only rendering of one uploaded file.
type Preview struct {
	Filename     string     `json:"filename"`
	LastModified time.Time  `json:"last_modified"`
	Columns      []string   `json:"columns"`
	Rows         [][]string `json:"rows"`
	Error        string     `json:"error,omitempty"`
}
