// internal/monitoring/tracker.go
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/propertylens/propertylens/internal/scraper"
	"github.com/propertylens/propertylens/pkg/types"
)

const defaultHistoryKeep = 50

// RunTracker keeps the live state of in-flight crawl runs plus a
// bounded history of finished ones, for the dashboard's status view.
// Live counters are fed by the per-run Observer; Complete replaces
// them with the driver's authoritative summary.
type RunTracker struct {
	mu      sync.RWMutex
	active  map[string]*types.RunSummary
	history []types.RunSummary
	keep    int
}

func NewRunTracker(keep int) *RunTracker {
	if keep <= 0 {
		keep = defaultHistoryKeep
	}
	return &RunTracker{
		active: make(map[string]*types.RunSummary),
		keep:   keep,
	}
}

// Start registers a run as in progress. The seed carries identity
// fields (run id, site, city, localities, target); counters start at
// zero and status is forced to running.
func (t *RunTracker) Start(seed types.RunSummary) {
	seed.Status = types.RunRunning
	if seed.StartedAt.IsZero() {
		seed.StartedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[seed.RunID] = &seed
}

// Complete moves a run from active to history, keeping the newest
// entries up to the tracker's cap.
func (t *RunTracker) Complete(summary types.RunSummary) {
	if summary.FinishedAt.IsZero() {
		summary.FinishedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, summary.RunID)
	t.history = append([]types.RunSummary{summary}, t.history...)
	if len(t.history) > t.keep {
		t.history = t.history[:t.keep]
	}
}

// Active returns in-flight runs, newest first.
func (t *RunTracker) Active() []types.RunSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	runs := make([]types.RunSummary, 0, len(t.active))
	for _, run := range t.active {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

// History returns finished runs, newest first.
func (t *RunTracker) History() []types.RunSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.RunSummary, len(t.history))
	copy(out, t.history)
	return out
}

// Get finds a run by id in the active set, then in history.
func (t *RunTracker) Get(runID string) (types.RunSummary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if run, ok := t.active[runID]; ok {
		return *run, true
	}
	for _, run := range t.history {
		if run.RunID == runID {
			return run, true
		}
	}
	return types.RunSummary{}, false
}

// Observer returns a driver observer that feeds this run's live
// counters.
func (t *RunTracker) Observer(runID string) scraper.Observer {
	return &trackerObserver{tracker: t, runID: runID}
}

type trackerObserver struct {
	tracker *RunTracker
	runID   string
}

func (o *trackerObserver) update(fn func(*types.RunSummary)) {
	o.tracker.mu.Lock()
	defer o.tracker.mu.Unlock()
	if run, ok := o.tracker.active[o.runID]; ok {
		fn(run)
	}
}

func (o *trackerObserver) RoundCompleted(_, _ string, newCards, validCards int) {
	o.update(func(run *types.RunSummary) {
		run.RoundsAdvanced++
		run.CardsSeen += newCards
		run.CardsValid += validCards
	})
}

func (o *trackerObserver) RecordExtracted(string) {
	o.update(func(run *types.RunSummary) {
		run.RecordsExtracted++
	})
}

func (o *trackerObserver) RecordDropped(string, string) {
	o.update(func(run *types.RunSummary) {
		run.RecordsDropped++
	})
}

func (o *trackerObserver) FieldMissed(_, field string) {
	o.update(func(run *types.RunSummary) {
		if run.FieldFailures == nil {
			run.FieldFailures = make(map[string]int)
		}
		run.FieldFailures[field]++
	})
}

func (o *trackerObserver) ErrorObserved(_, kind string) {
	o.update(func(run *types.RunSummary) {
		if run.ErrorCounts == nil {
			run.ErrorCounts = make(map[string]int)
		}
		run.ErrorCounts[kind]++
	})
}
