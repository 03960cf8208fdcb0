package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"market-monitor/models"
	"market-monitor/services"
	"market-monitor/storage"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: code, Detail: detail})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("[server] %s rejected: %v", r.URL.Path, err)
	writeError(w, r, http.StatusBadRequest, "invalid_filter", err.Error())
}

// queryCodes collects repeated and comma-separated values of key.
func queryCodes(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseListingFilter reads the listing filter from the query string. Values
// that are not numbers are rejected here, before any rows are read.
func parseListingFilter(q url.Values) (services.ListingFilter, error) {
	f := services.ListingFilter{
		Zips:   queryCodes(q, "zip"),
		Status: models.Status(q.Get("status")),
	}
	if v := q.Get("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("%w: max_price %q is not a number", services.ErrInvalidFilter, v)
		}
		f.MaxPrice = &p
	}
	var err error
	if f.MinBed, err = parseCount(q, "min_bed"); err != nil {
		return f, err
	}
	if f.MinBath, err = parseCount(q, "min_bath"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func parseCount(q url.Values, key string) (*int, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a whole number", services.ErrInvalidFilter, key, v)
	}
	return &n, nil
}

func (s *Server) emptyCheck(view, warning string) {
	if warning != "" {
		s.metrics.EmptyView(view)
		s.logger.Debug("[server] %s: %v", view, services.ErrEmptyResult)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":    "ok",
		"listings":  len(s.ds.Listings),
		"stats":     len(s.ds.Stats),
		"loaded_at": s.ds.LoadedAt,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.insights.Summarize(s.ds, s.opts.Now()))
}

func (s *Server) handleSalesTrend(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, services.SalesTrendSeries(services.MonthlySalesTrend(s.ds.Own(), s.opts.Now())))
}

func (s *Server) handleRecentSales(w http.ResponseWriter, r *http.Request) {
	t := services.TableFromListings("Recent sales",
		services.RecentSales(s.ds.Own(), s.opts.TopN), services.RecentSalesColumns)
	s.emptyCheck("recent_sales", t.Warning)
	render.JSON(w, r, t)
}

func (s *Server) handleNewListings(w http.ResponseWriter, r *http.Request) {
	t := services.TableFromListings("New listings",
		services.NewListings(s.ds.Own(), s.opts.TopN), services.NewListingsColumns)
	s.emptyCheck("new_listings", t.Warning)
	render.JSON(w, r, t)
}

func (s *Server) handlePriceHistogram(w http.ResponseWriter, r *http.Request) {
	series := services.HistogramSeries(services.PriceHistogram(s.ds.Own(), s.opts.HistogramBins))
	s.emptyCheck("price_histogram", series.Warning)
	render.JSON(w, r, series)
}

func (s *Server) handleZips(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]string{"zips": s.ds.AllowSet.Codes()})
}

func (s *Server) statSeries(w http.ResponseWriter, r *http.Request, view string, allowed []models.Metric, title, yLabel string, priceHover bool) {
	q := r.URL.Query()
	metric, err := models.ParseMetric(q.Get("metric"), allowed)
	if err != nil {
		s.badRequest(w, r, fmt.Errorf("%w: %v", services.ErrInvalidFilter, err))
		return
	}
	f := services.StatFilter{PostalCodes: queryCodes(q, "zip")}
	if err := f.Validate(); err != nil {
		s.badRequest(w, r, err)
		return
	}

	series := services.StatSeries(title, yLabel, services.FilterStats(s.ds.Stats, f), metric, priceHover)
	s.emptyCheck(view, series.Warning)
	render.JSON(w, r, series)
}

func (s *Server) handleMedianPrice(w http.ResponseWriter, r *http.Request) {
	s.statSeries(w, r, "median_price", models.PriceMetrics, "Median listing price", "Price", true)
}

func (s *Server) handleListingStats(w http.ResponseWriter, r *http.Request) {
	s.statSeries(w, r, "listing_stats", models.ListingMetrics, "Listings", "Count", false)
}

func (s *Server) handleCurrentListings(w http.ResponseWriter, r *http.Request) {
	f, err := parseListingFilter(r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	rows, err := services.CurrentListings(s.ds.Own(), f)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	series := services.CurrentListingsSeries(rows)
	s.emptyCheck("current_listings", series.Warning)
	render.JSON(w, r, series)
}

func (s *Server) filteredTable(r *http.Request) (models.Table, error) {
	f, err := parseListingFilter(r.URL.Query())
	if err != nil {
		return models.Table{}, err
	}
	rows, err := services.FilteredListings(s.ds.Own(), f)
	if err != nil {
		return models.Table{}, err
	}
	return services.TableFromListings("Filtered listings", rows, services.FilteredListingsColumns), nil
}

func (s *Server) handleFilteredListings(w http.ResponseWriter, r *http.Request) {
	t, err := s.filteredTable(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.emptyCheck("filtered_listings", t.Warning)
	render.JSON(w, r, t)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	t, err := s.filteredTable(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="listings.csv"`)
	if err := s.exportTo(w).WriteTable(t); err != nil {
		s.logger.Error("[server] export: %v", err)
	}
}

// exportTo picks the export backend for a response body.
func (s *Server) exportTo(w io.Writer) storage.TableWriter {
	return storage.NewCSVWriter(w)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_upload", `no files in form field "files"`)
		return
	}
	modified := r.MultipartForm.Value["last_modified"]

	files := make([]services.UploadFile, 0, len(headers))
	for i, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_upload", err.Error())
			return
		}
		f := services.UploadFile{Name: fh.Filename, Data: data}
		if i < len(modified) {
			if ms, err := strconv.ParseInt(modified[i], 10, 64); err == nil {
				f.LastModified = time.UnixMilli(ms).UTC()
			}
		}
		files = append(files, f)
	}

	previews, err := s.uploads.PreviewAll(r.Context(), files)
	if err != nil {
		s.logger.Warn("[server] upload aborted: %v", err)
		writeError(w, r, http.StatusServiceUnavailable, "upload_aborted", err.Error())
		return
	}
	render.JSON(w, r, previews)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
