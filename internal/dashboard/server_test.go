// internal/dashboard/server_test.go
package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/propertylens/propertylens/internal/monitoring"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

type stubRunner struct {
	runID string
	err   error

	lastSite       types.Site
	lastCity       string
	lastLocalities []string
}

func (r *stubRunner) StartRun(site types.Site, city string, localities []string) (string, error) {
	r.lastSite, r.lastCity, r.lastLocalities = site, city, localities
	if r.err != nil {
		return "", r.err
	}
	return r.runID, nil
}

func newTestServer(t *testing.T, mutate func(*ServerOptions)) (*Server, *Store) {
	t.Helper()
	store := newTestStore(t)
	opts := ServerOptions{
		Store:  store,
		Logger: utils.NewLoggerWithLevel(utils.ErrorLevel),
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestServerRequiresStore(t *testing.T) {
	if _, err := NewServer(ServerOptions{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestServerHealthWithoutChecker(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", resp["status"])
	}
}

func TestServerOpenEndpointsBypassAuth(t *testing.T) {
	metrics := monitoring.NewMetrics()
	metrics.RecordExtracted("99acres")
	srv, _ := newTestServer(t, func(o *ServerOptions) {
		o.AuthToken = "s3cret"
		o.Metrics = metrics
		o.Health = monitoring.NewHealthChecker("test")
	})

	if rec := doRequest(t, srv, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 without a token", rec.Code)
	}
	rec := doRequest(t, srv, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200 without a token", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "propertylens_scraper_records_extracted_total") {
		t.Error("/metrics missing scraper series")
	}
}

func TestServerAuth(t *testing.T) {
	srv, _ := newTestServer(t, func(o *ServerOptions) { o.AuthToken = "s3cret" })

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Token s3cret", http.StatusUnauthorized},
		{"valid token", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				var resp map[string]string
				decodeBody(t, rec, &resp)
				if resp["error"] == "" {
					t.Error("401 body missing error message")
				}
			}
		})
	}
}

func TestServerStartRun(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		runner := &stubRunner{runID: "cafe0001"}
		srv, _ := newTestServer(t, func(o *ServerOptions) { o.Runner = runner })

		body := `{"site":"99acres","city":"gurgaon","localities":["Sector 57","DLF Phase 2"]}`
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", "", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
		}
		var resp map[string]string
		decodeBody(t, rec, &resp)
		if resp["run_id"] != "cafe0001" || resp["status"] != "accepted" {
			t.Errorf("response = %v", resp)
		}
		if runner.lastSite != types.SiteNinetyNineAcres || runner.lastCity != "gurgaon" {
			t.Errorf("runner got site=%s city=%s", runner.lastSite, runner.lastCity)
		}
		if len(runner.lastLocalities) != 2 {
			t.Errorf("runner got localities %v", runner.lastLocalities)
		}
	})

	t.Run("unknown site", func(t *testing.T) {
		runner := &stubRunner{runID: "cafe0002"}
		srv, _ := newTestServer(t, func(o *ServerOptions) { o.Runner = runner })

		rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", "", `{"site":"zillow"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if runner.lastSite != "" {
			t.Error("runner called despite invalid site")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newTestServer(t, func(o *ServerOptions) { o.Runner = &stubRunner{} })
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", "", `{"site":`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("no runner attached", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", "", `{"site":"99acres"}`)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", rec.Code)
		}
	})
}

func TestServerListRuns(t *testing.T) {
	tracker := monitoring.NewRunTracker(10)
	srv, store := newTestServer(t, func(o *ServerOptions) { o.Tracker = tracker })

	done := sampleRun("done-001", time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC))
	if err := store.SaveRun(context.Background(), done); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	tracker.Start(types.RunSummary{RunID: "live-001", Site: types.SiteMagicBricks})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Active []types.RunSummary `json:"active"`
		Recent []types.RunSummary `json:"recent"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Active) != 1 || resp.Active[0].RunID != "live-001" {
		t.Errorf("active = %+v, want live-001", resp.Active)
	}
	if len(resp.Recent) != 1 || resp.Recent[0].RunID != "done-001" {
		t.Errorf("recent = %+v, want done-001", resp.Recent)
	}
}

func TestServerGetRun(t *testing.T) {
	tracker := monitoring.NewRunTracker(10)
	srv, store := newTestServer(t, func(o *ServerOptions) { o.Tracker = tracker })

	if err := store.SaveRun(context.Background(), sampleRun("done-001", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	tracker.Start(types.RunSummary{RunID: "live-001", Site: types.SiteNoBroker})

	t.Run("live run from tracker", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/live-001", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var sum types.RunSummary
		decodeBody(t, rec, &sum)
		if sum.RunID != "live-001" || sum.Status != types.RunRunning {
			t.Errorf("got %s/%s, want live-001 running", sum.RunID, sum.Status)
		}
	})

	t.Run("finished run from store", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/done-001", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var sum types.RunSummary
		decodeBody(t, rec, &sum)
		if sum.Status != types.RunCompleted {
			t.Errorf("status = %s, want completed", sum.Status)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/nope", "", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestServerListings(t *testing.T) {
	srv, store := newTestServer(t, nil)
	seedFilterFixtures(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/listings?site=magicbricks&limit=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Listings []StoredListing `json:"listings"`
		Count    int             `json:"count"`
		Total    int             `json:"total"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 1 || len(resp.Listings) != 1 {
		t.Fatalf("count = %d with %d rows, want 1", resp.Count, len(resp.Listings))
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 magicbricks listings", resp.Total)
	}
	if resp.Listings[0].Site != "magicbricks" {
		t.Errorf("site = %q", resp.Listings[0].Site)
	}
}

func TestServerListingsBadFilter(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, target := range []string{
		"/api/v1/listings?min_price=abc",
		"/api/v1/listings?limit=-3",
		"/api/v1/listings?site=zillow",
	} {
		if rec := doRequest(t, srv, http.MethodGet, target, "", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestServerExportCSV(t *testing.T) {
	srv, store := newTestServer(t, nil)
	seedFilterFixtures(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/listings/export?site=99acres", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header plus two 99acres rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "position,title,property_url") {
		t.Errorf("header = %q", lines[0])
	}
	header := strings.Split(lines[0], ",")
	if len(header) != len(exportColumns) {
		t.Errorf("header has %d columns, want %d", len(header), len(exportColumns))
	}
	if header[len(header)-1] != "last_seen" {
		t.Errorf("last header column = %q, want last_seen", header[len(header)-1])
	}
}

func TestServerStats(t *testing.T) {
	srv, store := newTestServer(t, nil)
	seedFilterFixtures(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats Stats
	decodeBody(t, rec, &stats)
	if stats.TotalListings != 5 {
		t.Errorf("TotalListings = %d, want 5", stats.TotalListings)
	}
	if stats.ListingsBySite["nobroker"] != 1 {
		t.Errorf("ListingsBySite = %v", stats.ListingsBySite)
	}
}

func TestServerRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(o *ServerOptions) {
		o.RatePerSecond = 1
		o.Burst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/stats", "", "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first requests got %v, want the burst to pass", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}

	// The open endpoints sit outside the limiter.
	if rec := doRequest(t, srv, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("/health throttled: %d", rec.Code)
	}
}

