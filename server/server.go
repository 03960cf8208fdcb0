package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"market-monitor/services"
	"market-monitor/utils"
)

// Options tunes the views and the upload endpoint.
type Options struct {
	TopN           int
	HistogramBins  int
	MaxUploadBytes int64
	UploadRPS      float64
	UploadBurst    int
	// Now supplies the reference time for period aggregates. Defaults to time.Now.
	Now func() time.Time
}

// Server exposes every dashboard view as JSON for the external renderer.
// The Dataset is shared read-only by all requests.
type Server struct {
	ds       *services.Dataset
	insights *services.InsightService
	uploads  *services.UploadPreviewer
	logger   *utils.Logger
	metrics  *Metrics
	opts     Options
}

func New(ds *services.Dataset, insights *services.InsightService, uploads *services.UploadPreviewer,
	metrics *Metrics, logger *utils.Logger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.SetRows("listings", len(ds.Listings))
	metrics.SetRows("stats", len(ds.Stats))

	return &Server{
		ds:       ds,
		insights: insights,
		uploads:  uploads,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	slogger := s.logger.Slog()

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(StructuredLogger(slogger))
	r.Use(Recoverer(slogger))
	r.Use(s.metrics.Instrument)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/sales-trend", s.handleSalesTrend)
		r.Get("/recent-sales", s.handleRecentSales)
		r.Get("/new-listings", s.handleNewListings)
		r.Get("/price-histogram", s.handlePriceHistogram)
		r.Get("/zips", s.handleZips)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/median-price", s.handleMedianPrice)
			r.Get("/listings", s.handleListingStats)
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/current", s.handleCurrentListings)
			r.Get("/filtered", s.handleFilteredListings)
			r.Get("/export", s.handleExport)
		})

		limiter := NewRateLimiter(s.opts.UploadRPS, s.opts.UploadBurst, slogger)
		r.With(limiter.Handler).Post("/upload", s.handleUpload)
	})

	return r
}
