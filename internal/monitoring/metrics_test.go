// internal/monitoring/metrics_test.go
package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/propertylens/propertylens/pkg/types"
)

func TestMetricsObserverCounts(t *testing.T) {
	m := NewMetrics()

	m.RoundCompleted("99acres", "selector", 12, 9)
	m.RoundCompleted("99acres", "xpath", 3, 2)
	m.RecordExtracted("99acres")
	m.RecordExtracted("99acres")
	m.RecordDropped("99acres", "missing_required")
	m.FieldMissed("99acres", "emi")
	m.FieldMissed("99acres", "emi")
	m.FieldMissed("99acres", "floor")
	m.ErrorObserved("99acres", "navigation")

	if got := testutil.ToFloat64(m.roundsTotal.WithLabelValues("99acres", "selector")); got != 1 {
		t.Errorf("rounds[selector] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.roundsTotal.WithLabelValues("99acres", "xpath")); got != 1 {
		t.Errorf("rounds[xpath] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cardsDiscovered.WithLabelValues("99acres")); got != 15 {
		t.Errorf("cards discovered = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.cardsValid.WithLabelValues("99acres")); got != 11 {
		t.Errorf("cards valid = %v, want 11", got)
	}
	if got := testutil.ToFloat64(m.recordsExtracted.WithLabelValues("99acres")); got != 2 {
		t.Errorf("records extracted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.recordsDropped.WithLabelValues("99acres", "missing_required")); got != 1 {
		t.Errorf("records dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fieldMisses.WithLabelValues("99acres", "emi")); got != 2 {
		t.Errorf("field misses[emi] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.fieldMisses.WithLabelValues("99acres", "floor")); got != 1 {
		t.Errorf("field misses[floor] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("99acres", "navigation")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestMetricsRunLifecycle(t *testing.T) {
	m := NewMetrics()

	m.RunStarted()
	if got := testutil.ToFloat64(m.activeRuns); got != 1 {
		t.Fatalf("active runs = %v, want 1", got)
	}

	started := time.Now().Add(-90 * time.Second)
	m.RunFinished(types.RunSummary{
		RunID:            "ab12cd34",
		Site:             types.SiteMagicBricks,
		Status:           types.RunCompleted,
		RecordsExtracted: 42,
		StartedAt:        started,
		FinishedAt:       started.Add(90 * time.Second),
	})

	if got := testutil.ToFloat64(m.activeRuns); got != 0 {
		t.Errorf("active runs = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("magicbricks", "completed")); got != 1 {
		t.Errorf("runs total = %v, want 1", got)
	}
}

func TestMetricsRecordsFlushed(t *testing.T) {
	m := NewMetrics()
	m.RecordsFlushed(types.SiteNoBroker, 10, 120*time.Millisecond)
	m.RecordsFlushed(types.SiteNoBroker, 5, 80*time.Millisecond)

	if got := testutil.ToFloat64(m.recordsWritten.WithLabelValues("nobroker")); got != 15 {
		t.Errorf("records written = %v, want 15", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordExtracted("nobroker")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	want := `propertylens_scraper_records_extracted_total{site="nobroker"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("exposition missing %q", want)
	}
}

type countingObserver struct {
	rounds, extracted, dropped, missed, errors int
}

func (c *countingObserver) RoundCompleted(string, string, int, int) { c.rounds++ }
func (c *countingObserver) RecordExtracted(string)                  { c.extracted++ }
func (c *countingObserver) RecordDropped(string, string)            { c.dropped++ }
func (c *countingObserver) FieldMissed(string, string)              { c.missed++ }
func (c *countingObserver) ErrorObserved(string, string)            { c.errors++ }

func TestCombineFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	o := Combine(a, b)

	o.RoundCompleted("99acres", "selector", 4, 3)
	o.RecordExtracted("99acres")
	o.RecordDropped("99acres", "missing_required")
	o.FieldMissed("99acres", "emi")
	o.ErrorObserved("99acres", "navigation")

	for name, obs := range map[string]*countingObserver{"first": a, "second": b} {
		if obs.rounds != 1 || obs.extracted != 1 || obs.dropped != 1 || obs.missed != 1 || obs.errors != 1 {
			t.Errorf("%s observer = %+v, want one of each", name, obs)
		}
	}
}
