// internal/dashboard/server.go
package dashboard

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/propertylens/propertylens/internal/monitoring"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

const (
	defaultRatePerSecond = 10
	defaultRateBurst     = 20
)

// Runner starts crawl runs on behalf of the API. The serve command
// provides one backed by the crawl driver; a nil runner turns the
// trigger endpoint off.
type Runner interface {
	StartRun(site types.Site, city string, localities []string) (string, error)
}

// ServerOptions wires the server's collaborators. Store is required,
// everything else optional.
type ServerOptions struct {
	Store     *Store
	Tracker   *monitoring.RunTracker
	Metrics   *monitoring.Metrics
	Health    *monitoring.HealthChecker
	Runner    Runner
	Logger    utils.Logger
	AuthToken string

	// RatePerSecond and Burst tune the API-wide token bucket.
	RatePerSecond float64
	Burst         int
}

// Server is the dashboard HTTP API. /health and /metrics are open;
// everything under /api/v1 passes the rate-limit and auth middleware.
type Server struct {
	store     *Store
	tracker   *monitoring.RunTracker
	runner    Runner
	logger    utils.Logger
	authToken string
	limiter   *rate.Limiter
	router    *mux.Router
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dashboard server requires a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = defaultRatePerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	s := &Server{
		store:     opts.Store,
		tracker:   opts.Tracker,
		runner:    opts.Runner,
		logger:    logger.WithField("component", "dashboard"),
		authToken: opts.AuthToken,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
	s.router = s.buildRouter(opts.Metrics, opts.Health)
	return s, nil
}

func (s *Server) buildRouter(metrics *monitoring.Metrics, health *monitoring.HealthChecker) *mux.Router {
	r := mux.NewRouter()

	if health != nil {
		r.Handle("/health", health.Handler()).Methods(http.MethodGet)
	} else {
		r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		}).Methods(http.MethodGet)
	}
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limitMiddleware, s.authMiddleware)
	api.HandleFunc("/runs", s.handleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	api.HandleFunc("/listings/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("dashboard listening on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An empty configured token leaves the API open.
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startRunRequest struct {
	Site       string   `json:"site"`
	City       string   `json:"city"`
	Localities []string `json:"localities"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusNotImplemented, "no crawl runner attached to this server")
		return
	}
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	site := types.Site(req.Site)
	if !site.IsValid() {
		s.writeError(w, http.StatusBadRequest, "unknown site %q, valid sites: %v", req.Site, types.ValidSites())
		return
	}
	runID, err := s.runner.StartRun(site, req.City, req.Localities)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "start run: %v", err)
		return
	}
	s.logger.Infof("run %s triggered for %s via API", runID, site)
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "accepted",
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	active := []types.RunSummary{}
	if s.tracker != nil {
		if a := s.tracker.Active(); a != nil {
			active = a
		}
	}
	recent, err := s.store.ListRuns(r.Context(), defaultRunHistory)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list runs: %v", err)
		return
	}
	if recent == nil {
		recent = []types.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": active,
		"recent": recent,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.tracker != nil {
		if sum, ok := s.tracker.Get(id); ok {
			s.writeJSON(w, http.StatusOK, sum)
			return
		}
	}
	sum, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "run %s not found", id)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get run: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	listings, total, err := s.store.QueryListings(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query listings: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
		"total":    total,
	})
}

// exportColumns is the CSV export header: the shared listing column
// order plus the store's own bookkeeping columns.
var exportColumns = append(append([]string{}, types.ListingColumns...),
	"run_id", "first_seen", "last_seen")

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	listings, err := s.store.ExportListings(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "export listings: %v", err)
		return
	}

	name := fmt.Sprintf("listings_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	cw := csv.NewWriter(w)
	cw.Write(exportColumns)
	for _, l := range listings {
		cw.Write(exportRow(l))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warnf("export write: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// parseListingFilter reads the shared query parameters of the listings
// and export endpoints. Malformed numbers are rejected rather than
// silently dropped.
func parseListingFilter(q url.Values) (ListingFilter, error) {
	var f ListingFilter
	if v := q.Get("site"); v != "" {
		if !types.Site(v).IsValid() {
			return f, fmt.Errorf("unknown site %q, valid sites: %v", v, types.ValidSites())
		}
		f.Site = v
	}
	f.Locality = q.Get("locality")
	f.Bedrooms = q.Get("bhk")
	if v := q.Get("min_price"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("min_price %q is not a number", v)
		}
		f.MinPrice = amount
	}
	if v := q.Get("max_price"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("max_price %q is not a number", v)
		}
		f.MaxPrice = amount
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit %q is not a non-negative integer", v)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("offset %q is not a non-negative integer", v)
		}
		f.Offset = n
	}
	return f, nil
}

func exportRow(l StoredListing) []string {
	return []string{
		strconv.Itoa(l.Position), l.Title, l.PropertyURL,
		l.Price, formatAmount(l.PriceAmount), l.PricePerSqft, l.EMI,
		l.ApartmentType, l.BedroomCount, l.BathroomCount, l.BalconyCount,
		l.AreaDisplay, strconv.Itoa(l.AreaSqft),
		l.FacingDirection, l.FloorInfo, l.FurnishingStatus, l.PropertyAge,
		l.PossessionStatus, l.ParkingDescription,
		l.OwnerName, l.BrokerStatus,
		strconv.FormatBool(l.VerifiedTag), strconv.FormatBool(l.PremiumTag),
		strconv.Itoa(l.ImageCount), l.ImageURLs,
		l.NearbyPlaces, l.Amenities, l.Highlights, l.Description,
		l.Locality, l.Site, l.ExtractedAt, l.SourceFile, l.Fingerprint,
		l.RunID, l.FirstSeen, l.LastSeen,
	}
}

func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
