package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"market-monitor/models"
	"market-monitor/utils"
)

const notAvailable = "n/a"

var currencyPrinter = message.NewPrinter(language.English)

// wallUTC reinterprets now's wall clock as UTC so it compares directly with
// the calendar dates held by listings.
func wallUTC(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// subMonths moves t back n calendar months, clamping the day to the last
// day of the target month (May 31 minus 3 months is Feb 29 or 28).
func subMonths(t time.Time, n int) time.Time {
	y, m := t.Year(), int(t.Month())-n
	for m < 1 {
		m += 12
		y--
	}
	day := t.Day()
	if last := daysIn(y, time.Month(m)); day > last {
		day = last
	}
	return time.Date(y, time.Month(m), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func soldPrices(rows []models.Listing, from, to time.Time, inclusive bool) float64 {
	var total float64
	for _, l := range rows {
		if !l.IsSold() || l.DateSold.Before(from) {
			continue
		}
		if l.DateSold.After(to) || (!inclusive && l.DateSold.Equal(to)) {
			continue
		}
		total += l.Price
	}
	return total
}

// TotalSales sums the price of listings sold between the first day of now's
// month and now, both inclusive.
func TotalSales(rows []models.Listing, now time.Time) float64 {
	now = wallUTC(now)
	return soldPrices(rows, monthStart(now), now, true)
}

// MonthlySalesTrend returns sold totals for the two months before now's month
// and the current month up to now, oldest first.
func MonthlySalesTrend(rows []models.Listing, now time.Time) []models.MonthlyTotal {
	now = wallUTC(now)
	current := monthStart(now)

	trend := make([]models.MonthlyTotal, 0, 3)
	for back := 2; back >= 0; back-- {
		start := current.AddDate(0, -back, 0)
		var total float64
		if back == 0 {
			total = soldPrices(rows, start, now, true)
		} else {
			total = soldPrices(rows, start, start.AddDate(0, 1, 0), false)
		}
		trend = append(trend, models.MonthlyTotal{
			Month: start,
			Label: fmt.Sprintf("%d-%d", start.Year(), int(start.Month())),
			Total: total,
		})
	}
	return trend
}

// ActiveListingCount counts listings currently for sale.
func ActiveListingCount(rows []models.Listing) int {
	return CountWhere(rows, ListingFilter{Status: models.StatusForSale})
}

// HighestClosing returns the highest price among sold listings in rows.
// Restricting rows to a period is the caller's job; see SoldInYear.
func HighestClosing(rows []models.Listing) (float64, error) {
	prices := make([]float64, 0, len(rows))
	for _, l := range rows {
		if l.Status == models.StatusSold {
			prices = append(prices, l.Price)
		}
	}
	if len(prices) == 0 {
		return 0, ErrUndefinedAggregate
	}
	return floats.Max(prices), nil
}

// SoldInYear returns the sold listings whose sale date falls in year.
func SoldInYear(rows []models.Listing, year int) []models.Listing {
	out := make([]models.Listing, 0)
	for _, l := range rows {
		if l.IsSold() && l.DateSold.Year() == year {
			out = append(out, l)
		}
	}
	return out
}

// SoldLastQuarter counts listings sold strictly after now minus three months.
func SoldLastQuarter(rows []models.Listing, now time.Time) int {
	cutoff := subMonths(wallUTC(now), 3)
	n := 0
	for _, l := range rows {
		if l.IsSold() && l.DateSold.After(cutoff) {
			n++
		}
	}
	return n
}

func prices(rows []models.Listing) []float64 {
	out := make([]float64, len(rows))
	for i, l := range rows {
		out[i] = l.Price
	}
	return out
}

// MedianPrice returns the median price of rows. With an even count it is the
// mean of the two middle prices.
func MedianPrice(rows []models.Listing) (float64, error) {
	if len(rows) == 0 {
		return 0, ErrUndefinedAggregate
	}
	x := prices(rows)
	sort.Float64s(x)
	mid := len(x) / 2
	if len(x)%2 == 1 {
		return x[mid], nil
	}
	return stat.Mean(x[mid-1:mid+1], nil), nil
}

// AveragePrice returns the mean price of rows.
func AveragePrice(rows []models.Listing) (float64, error) {
	if len(rows) == 0 {
		return 0, ErrUndefinedAggregate
	}
	return stat.Mean(prices(rows), nil), nil
}

// PriceHistogram bins prices into equal-width bins spanning the overall
// [min, max] and counts each city separately. Cities appear in first-seen
// order. The last bin includes max.
func PriceHistogram(rows []models.Listing, bins int) []models.HistogramBin {
	if len(rows) == 0 {
		return nil
	}
	if bins < 1 {
		bins = 1
	}

	all := prices(rows)
	lo, hi := floats.Min(all), floats.Max(all)
	if hi == lo {
		hi = lo + 1
	}
	edges := make([]float64, bins+1)
	floats.Span(edges, lo, hi)
	dividers := make([]float64, len(edges))
	copy(dividers, edges)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	var order []string
	byCity := make(map[string][]float64)
	for _, l := range rows {
		if _, seen := byCity[l.City]; !seen {
			order = append(order, l.City)
		}
		byCity[l.City] = append(byCity[l.City], l.Price)
	}

	out := make([]models.HistogramBin, 0, len(order)*bins)
	for _, city := range order {
		x := byCity[city]
		sort.Float64s(x)
		counts := stat.Histogram(nil, dividers, x, nil)
		for i, c := range counts {
			out = append(out, models.HistogramBin{
				Lower: edges[i],
				Upper: edges[i+1],
				Group: city,
				Count: int(c),
			})
		}
	}
	return out
}

// FormatCurrency renders v as dollars with two decimals and thousands
// separators, e.g. $1,234,567.89.
func FormatCurrency(v float64) string {
	if v < 0 {
		return "-" + currencyPrinter.Sprintf("$%.2f", -v)
	}
	return currencyPrinter.Sprintf("$%.2f", v)
}

// FormatAggregate renders an optional amount, "n/a" when undefined.
func FormatAggregate(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return FormatCurrency(*v)
}

func optional(v float64, err error) *float64 {
	if err != nil {
		return nil
	}
	return &v
}

// InsightService builds and prints the dashboard headline numbers.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Summarize computes the headline numbers over the broker's own listings.
// Highest closing covers the calendar year of now.
func (s *InsightService) Summarize(ds *Dataset, now time.Time) models.Summary {
	own := ds.Own()
	sum := models.Summary{
		Period:          now.Format("01/2006"),
		Year:            now.Year(),
		TotalSales:      TotalSales(own, now),
		ActiveListings:  ActiveListingCount(own),
		HighestClosing:  optional(HighestClosing(SoldInYear(own, now.Year()))),
		SoldLastQuarter: SoldLastQuarter(own, now),
		MedianPrice:     optional(MedianPrice(own)),
		AveragePrice:    optional(AveragePrice(own)),
		TotalListings:   len(own),
		ListingsByCity:  make(map[string]int),
		GeneratedAt:     now,
	}
	for _, l := range own {
		if l.City != "" {
			sum.ListingsByCity[l.City]++
		}
	}
	if sum.HighestClosing == nil || sum.MedianPrice == nil {
		s.logger.Debug("[insights] undefined aggregates over %d own listings", len(own))
	}
	return sum
}

// Print writes the summary as a terminal report.
func (s *InsightService) Print(w io.Writer, r models.Summary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  MARKET MONITOR  %s\033[0m\n", r.Period)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Dashboard\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total sales this month   : \033[1;32m%s\033[0m\n", FormatCurrency(r.TotalSales))
	fmt.Fprintf(w, "  Active listings          : \033[1m%d\033[0m\n", r.ActiveListings)
	fmt.Fprintf(w, "  Highest closing %d     : \033[1;32m%s\033[0m\n", r.Year, FormatAggregate(r.HighestClosing))
	fmt.Fprintf(w, "  Sold last quarter        : \033[1m%d\033[0m\n", r.SoldLastQuarter)
	fmt.Fprintf(w, "  Median price             : \033[1;32m%s\033[0m\n", FormatAggregate(r.MedianPrice))
	fmt.Fprintf(w, "  Average price            : \033[1;32m%s\033[0m\n", FormatAggregate(r.AveragePrice))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by City (%d total)\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByCity) == 0 {
		fmt.Fprintf(w, "  No listings\n")
	} else {
		type cityCount struct {
			city  string
			count int
		}
		cities := make([]cityCount, 0, len(r.ListingsByCity))
		for city, n := range r.ListingsByCity {
			cities = append(cities, cityCount{city, n})
		}
		sort.Slice(cities, func(i, j int) bool {
			if cities[i].count != cities[j].count {
				return cities[i].count > cities[j].count
			}
			return cities[i].city < cities[j].city
		})
		for _, cc := range cities {
			bar := strings.Repeat("█", min(cc.count, 40))
			fmt.Fprintf(w, "  %-24s %s (%d)\n", truncate(cc.city, 22), bar, cc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
