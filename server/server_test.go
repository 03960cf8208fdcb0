package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-monitor/models"
	"market-monitor/services"
	"market-monitor/utils"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testDataset() *services.Dataset {
	return &services.Dataset{
		BrokerID: "53016",
		AllowSet: services.NewAllowSet([]string{"77546", "77058"}),
		Listings: []models.Listing{
			{BrokeredBy: "53016", Status: models.StatusForSale, ZipCode: "77546", City: "Friendswood", Price: 400000, Bed: 3, Bath: 2, Link: "https://example.com/a"},
			{BrokeredBy: "53016", Status: models.StatusForSale, ZipCode: "77546", City: "Friendswood", Price: 600000, Bed: 3, Bath: 2, Link: "https://example.com/b"},
			{BrokeredBy: "53016", Status: models.StatusForSale, ZipCode: "77546", City: "Friendswood", Price: 300000, Bed: 1, Bath: 1, Link: "https://example.com/c"},
			{BrokeredBy: "53016", Status: models.StatusSold, ZipCode: "77058", City: "Houston", Price: 300000, DateSold: date(2024, time.March, 10)},
			{BrokeredBy: "53016", Status: models.StatusSold, ZipCode: "77058", City: "Houston", Price: 200000, DateSold: date(2024, time.February, 10)},
			{BrokeredBy: "1", Status: models.StatusSold, ZipCode: "77058", City: "Houston", Price: 9000000, DateSold: date(2024, time.March, 11)},
		},
		Stats: []models.MarketStat{
			{PostalCode: "77546", ZipName: "friendswood, tx", MonthDate: date(2024, time.March, 1), MedianListingPrice: 350000, TotalListingCount: 120},
			{PostalCode: "77058", ZipName: "houston, tx", MonthDate: date(2024, time.March, 1), MedianListingPrice: 300000, TotalListingCount: 80},
		},
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	logger := utils.Discard()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.TopN == 0 {
		opts.TopN = 7
	}
	if opts.HistogramBins == 0 {
		opts.HistogramBins = 12
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	if opts.UploadRPS == 0 {
		opts.UploadRPS = 100
		opts.UploadBurst = 100
	}
	s := New(testDataset(), services.NewInsightService(logger),
		services.NewUploadPreviewer(logger, 10, 2), NewMetrics(), logger, opts)
	return s, s.Router()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := get(t, h, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 6.0, body["listings"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, h := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestSummaryUsesInjectedClock(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := get(t, h, "/api/summary")

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[models.Summary](t, rec)
	assert.Equal(t, "03/2024", s.Period)
	assert.Equal(t, 300000.0, s.TotalSales)
	assert.Equal(t, 3, s.ActiveListings)
	require.NotNil(t, s.HighestClosing)
	assert.Equal(t, 300000.0, *s.HighestClosing)
}

func TestSalesTrend(t *testing.T) {
	_, h := newTestServer(t, Options{})
	s := decode[models.Series](t, get(t, h, "/api/sales-trend"))

	assert.Equal(t, []any{"2024-1", "2024-2", "2024-3"}, s.X)
	assert.Equal(t, []float64{0, 200000, 300000}, s.Y)
}

func TestCurrentListingsFilter(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := get(t, h, "/api/listings/current?max_price=500000&min_bed=2&min_bath=1&zip=77546")

	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[models.Series](t, rec)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, []float64{400000}, s.Y)
	assert.Equal(t, []any{"https://example.com/a"}, s.Hover["link"])
}

func TestMalformedQueriesReturn400(t *testing.T) {
	_, h := newTestServer(t, Options{})
	targets := []string{
		"/api/listings/current?max_price=abc",
		"/api/listings/current?min_bed=-1",
		"/api/listings/filtered?min_bath=1.5",
		"/api/listings/filtered?status=pending",
		"/api/listings/export?max_price=-10",
		"/api/stats/median-price?metric=bogus",
		"/api/stats/median-price?metric=total_listing_count",
		"/api/stats/listings?metric=median_listing_price",
	}

	for _, target := range targets {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "invalid_filter", body.Error, target)
	}
}

func TestEmptyViewCarriesWarning(t *testing.T) {
	_, h := newTestServer(t, Options{})

	tbl := decode[models.Table](t, get(t, h, "/api/listings/filtered?zip=77058&status=for_sale"))
	assert.Equal(t, models.NoDataWarning, tbl.Warning)
	assert.Empty(t, tbl.Rows)

	s := decode[models.Series](t, get(t, h, "/api/stats/listings?zip=90210"))
	assert.Equal(t, models.NoDataWarning, s.Warning)
}

func TestFilteredListingsTable(t *testing.T) {
	_, h := newTestServer(t, Options{})
	tbl := decode[models.Table](t, get(t, h, "/api/listings/filtered?zip=77546&min_bed=3"))

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "zip_code", tbl.Columns[0].ID)
	require.NotNil(t, tbl.Columns[3].Format)
	assert.Equal(t, "$", tbl.Columns[3].Format.SymbolPrefix)
}

func TestStatsViews(t *testing.T) {
	_, h := newTestServer(t, Options{})

	s := decode[models.Series](t, get(t, h, "/api/stats/median-price?zip=77546"))
	assert.Equal(t, []float64{350000}, s.Y)
	assert.Equal(t, []string{"friendswood, tx"}, s.Color)
	assert.Len(t, s.Hover["median_listing_price"], 1)

	s = decode[models.Series](t, get(t, h, "/api/stats/listings?metric=total_listing_count&zip=77546&zip=77058"))
	assert.Equal(t, []float64{120, 80}, s.Y)
}

func TestRecentSalesAndNewListings(t *testing.T) {
	_, h := newTestServer(t, Options{TopN: 1})

	sales := decode[models.Table](t, get(t, h, "/api/recent-sales"))
	require.Len(t, sales.Rows, 1)
	assert.Equal(t, "2024-03-10", sales.Rows[0]["date_sold"])

	listings := decode[models.Table](t, get(t, h, "/api/new-listings"))
	assert.Len(t, listings.Rows, 1)
}

func TestPriceHistogram(t *testing.T) {
	_, h := newTestServer(t, Options{HistogramBins: 4})
	s := decode[models.Series](t, get(t, h, "/api/price-histogram"))

	total := 0.0
	for _, y := range s.Y {
		total += y
	}
	assert.Equal(t, 5.0, total)
}

func TestZips(t *testing.T) {
	_, h := newTestServer(t, Options{})
	body := decode[map[string][]string](t, get(t, h, "/api/zips"))
	assert.Equal(t, []string{"77546", "77058"}, body["zips"])
}

func TestExportCSV(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := get(t, h, "/api/listings/export?zip=77546&max_price=450000")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "zip_code,city,street,price,house_size,bed,bath,acre_lot", lines[0])
	assert.Len(t, lines, 3)
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, map[string]string{
		"a.csv": "a,b,c,d\n1,2,3,4\n",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	previews := decode[[]models.Preview](t, rec)
	require.Len(t, previews, 1)
	assert.Equal(t, "a.csv", previews[0].Filename)
	assert.Equal(t, []string{"c", "d"}, previews[0].Columns)
}

func TestUploadBadFileIsReportedPerFile(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, map[string]string{"report.xlsx": "nope"}))

	require.Equal(t, http.StatusOK, rec.Code)
	previews := decode[[]models.Preview](t, rec)
	assert.Equal(t, services.UploadErrorText, previews[0].Error)
}

func TestUploadWithoutFiles(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRateLimited(t *testing.T) {
	_, h := newTestServer(t, Options{UploadRPS: 0.001, UploadBurst: 1})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, uploadRequest(t, map[string]string{"a.csv": "a\n1\n"}))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, uploadRequest(t, map[string]string{"a.csv": "a\n1\n"}))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{})
	get(t, h, "/api/listings/filtered?zip=90210")
	rec := get(t, h, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "market_monitor_http_requests_total")
	assert.Contains(t, body, `market_monitor_loaded_rows{table="listings"} 6`)
	assert.Contains(t, body, `market_monitor_empty_views_total{view="filtered_listings"} 1`)
}
