package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-monitor/models"
)

func TestTableFromListings(t *testing.T) {
	rows := []models.Listing{
		{ZipCode: "77546", City: "Friendswood", Street: "1 Main St", Price: 400000, HouseSize: 2000, Bed: 3, Bath: 2, AcreLot: 0.25},
	}

	tbl := TableFromListings("Filtered listings", rows, FilteredListingsColumns)

	require.Len(t, tbl.Columns, len(FilteredListingsColumns))
	assert.Empty(t, tbl.Warning)
	for i, c := range tbl.Columns {
		assert.Equal(t, string(FilteredListingsColumns[i]), c.ID)
	}

	price := tbl.Columns[3]
	assert.Equal(t, "price", price.ID)
	assert.Equal(t, "numeric", price.Type)
	require.NotNil(t, price.Format)
	assert.Equal(t, models.DefaultCurrencyFormat, *price.Format)
	assert.Nil(t, tbl.Columns[0].Format)
	assert.Equal(t, "text", tbl.Columns[0].Type)

	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, 400000.0, tbl.Rows[0]["price"])
	assert.Equal(t, 3, tbl.Rows[0]["bed"])
	assert.Len(t, tbl.Rows[0], len(FilteredListingsColumns))
}

func TestTableFromListingsDates(t *testing.T) {
	rows := []models.Listing{sold(1, day(2024, time.March, 9)), {Status: models.StatusSold}}
	tbl := TableFromListings("Recent sales", rows, RecentSalesColumns)

	assert.Equal(t, "2024-03-09", tbl.Rows[0]["date_sold"])
	assert.Equal(t, "", tbl.Rows[1]["date_sold"])
}

func TestEmptyShapesCarryNoDataWarning(t *testing.T) {
	tbl := TableFromListings("x", nil, FilteredListingsColumns)
	assert.Equal(t, models.NoDataWarning, tbl.Warning)
	assert.NotNil(t, tbl.Rows)

	s := CurrentListingsSeries(nil)
	assert.Equal(t, models.NoDataWarning, s.Warning)
	assert.NotNil(t, s.X)
	assert.NotNil(t, s.Y)

	assert.Equal(t, models.NoDataWarning, HistogramSeries(nil).Warning)
	assert.Equal(t, models.NoDataWarning, StatSeries("t", "Price", nil, models.MetricMedianListingPrice, true).Warning)
}

func TestSalesTrendSeries(t *testing.T) {
	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	s := SalesTrendSeries(MonthlySalesTrend(nil, now))

	assert.Equal(t, []any{"2024-1", "2024-2", "2024-3"}, s.X)
	assert.Equal(t, []float64{0, 0, 0}, s.Y)
	assert.Len(t, s.Color, 3)
	assert.Empty(t, s.Warning)
}

func TestStatSeries(t *testing.T) {
	rows := []models.MarketStat{
		{PostalCode: "77546", ZipName: "friendswood, tx", MonthDate: day(2024, time.March, 1), MedianListingPrice: 350000, MedianListingPriceMM: 0.01},
		{PostalCode: "77058", ZipName: "houston, tx", MonthDate: day(2024, time.February, 1), MedianListingPrice: 300000, MedianListingPriceMM: -0.02},
	}

	s := StatSeries("Median price", "Price", rows, models.MetricMedianListingPriceMM, true)
	assert.Equal(t, []any{"2024-03-01", "2024-02-01"}, s.X)
	assert.Equal(t, []float64{0.01, -0.02}, s.Y)
	assert.Equal(t, []string{"friendswood, tx", "houston, tx"}, s.Color)
	assert.Equal(t, []any{350000.0, 300000.0}, s.Hover["median_listing_price"])

	plain := StatSeries("Listings", "Count", rows, models.MetricTotalListingCount, false)
	assert.Nil(t, plain.Hover)
}

func TestCurrentListingsSeries(t *testing.T) {
	rows, err := CurrentListings(currentListingsFixture(), ListingFilter{})
	require.NoError(t, err)

	s := CurrentListingsSeries(rows)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{300000, 400000, 600000}, s.Y)
	assert.Equal(t, []any{"c", "a", "b"}, s.Hover["link"])
	assert.Len(t, s.Color, 3)
}

func TestHistogramSeries(t *testing.T) {
	bins := []models.HistogramBin{
		{Lower: 0, Upper: 100, Group: "A", Count: 2},
		{Lower: 100, Upper: 200, Group: "A", Count: 1},
	}

	s := HistogramSeries(bins)
	assert.Equal(t, []any{"0-100", "100-200"}, s.X)
	assert.Equal(t, []float64{2, 1}, s.Y)
	assert.Equal(t, []string{"A", "A"}, s.Color)
	assert.Len(t, s.Hover["upper"], 2)
}
