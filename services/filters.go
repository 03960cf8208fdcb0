package services

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"market-monitor/models"
)

// Projections used by the listing views.
var (
	RecentSalesColumns = []models.Column{
		models.ColDateSold, models.ColStreet, models.ColCity, models.ColZipCode,
		models.ColPrice, models.ColHouseSize, models.ColBed, models.ColBath, models.ColAcreLot,
	}
	NewListingsColumns = []models.Column{
		models.ColDatePublished, models.ColStreet, models.ColCity, models.ColZipCode,
		models.ColPrice, models.ColHouseSize, models.ColBed, models.ColBath, models.ColAcreLot,
	}
	FilteredListingsColumns = []models.Column{
		models.ColZipCode, models.ColCity, models.ColStreet, models.ColPrice,
		models.ColHouseSize, models.ColBed, models.ColBath, models.ColAcreLot,
	}
)

var filterValidator = newFilterValidator()

func newFilterValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListingFilter is a conjunction of listing predicates. A zero-valued
// component places no restriction.
type ListingFilter struct {
	Zips       []string      `json:"zip" validate:"omitempty,dive,required"`
	MaxPrice   *float64      `json:"max_price" validate:"omitempty,gte=0"`
	MinBed     *int          `json:"min_bed" validate:"omitempty,gte=0"`
	MinBath    *int          `json:"min_bath" validate:"omitempty,gte=0"`
	Status     models.Status `json:"status" validate:"omitempty,oneof=for_sale sold"`
	BrokeredBy string        `json:"brokered_by"`
}

// Validate rejects negative bounds, NaN prices and unknown statuses.
func (f ListingFilter) Validate() error {
	return validateFilter(f)
}

// StatFilter restricts the statistics table to a set of postal codes.
type StatFilter struct {
	PostalCodes []string `json:"zip" validate:"omitempty,dive,required"`
}

// Validate rejects empty codes inside the set.
func (f StatFilter) Validate() error {
	return validateFilter(f)
}

func validateFilter(f any) error {
	err := filterValidator.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(msgs, "; "))
}

// codeSet canonicalises codes. It returns nil for an empty list so that the
// caller can treat it as "no restriction".
func codeSet(codes []string) map[string]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		if code, ok := NormalizeRegionCode(raw); ok {
			set[code] = struct{}{}
		}
	}
	return set
}

func (f ListingFilter) match(l models.Listing, zips map[string]struct{}) bool {
	if zips != nil {
		if _, ok := zips[l.ZipCode]; !ok {
			return false
		}
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	if f.MinBed != nil && l.Bed < *f.MinBed {
		return false
	}
	if f.MinBath != nil && l.Bath < *f.MinBath {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.BrokeredBy != "" && l.BrokeredBy != f.BrokeredBy {
		return false
	}
	return true
}

// FilterListings returns a new slice holding the rows that satisfy every
// component of f, in input order. rows is never modified.
func FilterListings(rows []models.Listing, f ListingFilter) []models.Listing {
	zips := codeSet(f.Zips)
	out := make([]models.Listing, 0, len(rows))
	for _, l := range rows {
		if f.match(l, zips) {
			out = append(out, l)
		}
	}
	return out
}

// FilterStats returns a new slice of the rows whose postal code is in f.
func FilterStats(rows []models.MarketStat, f StatFilter) []models.MarketStat {
	codes := codeSet(f.PostalCodes)
	out := make([]models.MarketStat, 0, len(rows))
	for _, s := range rows {
		if codes != nil {
			if _, ok := codes[s.PostalCode]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// CountWhere counts rows matching f without allocating a filtered copy.
func CountWhere(rows []models.Listing, f ListingFilter) int {
	zips := codeSet(f.Zips)
	n := 0
	for _, l := range rows {
		if f.match(l, zips) {
			n++
		}
	}
	return n
}

func cloneListings(rows []models.Listing) []models.Listing {
	out := make([]models.Listing, len(rows))
	copy(out, rows)
	return out
}

// CurrentListings validates f, filters rows and orders the result by price
// ascending. Listings with equal prices keep their input order.
func CurrentListings(rows []models.Listing, f ListingFilter) ([]models.Listing, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := FilterListings(rows, f)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

// FilteredListings validates f and filters rows, keeping input order.
func FilteredListings(rows []models.Listing, f ListingFilter) ([]models.Listing, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return FilterListings(rows, f), nil
}

// RecentSales returns the n most recently sold listings, newest first.
func RecentSales(rows []models.Listing, n int) []models.Listing {
	sold := FilterListings(rows, ListingFilter{Status: models.StatusSold})
	return topByDate(sold, n, func(l models.Listing) int64 { return dateKey(l.DateSold) })
}

// NewListings returns the n most recently published for-sale listings,
// newest first.
func NewListings(rows []models.Listing, n int) []models.Listing {
	active := FilterListings(rows, ListingFilter{Status: models.StatusForSale})
	return topByDate(active, n, func(l models.Listing) int64 { return dateKey(l.DatePublished) })
}

// topByDate sorts rows in place by key descending and truncates to n.
// Absent dates sort last. n <= 0 keeps every row.
func topByDate(rows []models.Listing, n int, key func(models.Listing) int64) []models.Listing {
	sort.SliceStable(rows, func(i, j int) bool { return key(rows[i]) > key(rows[j]) })
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func dateKey(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.Unix()
}
