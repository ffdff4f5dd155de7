// cmd/propertylens/serve_test.go
package main

import (
	"context"
	"testing"
	"time"

	"github.com/propertylens/propertylens/internal/dashboard"
	"github.com/propertylens/propertylens/internal/errors"
	"github.com/propertylens/propertylens/internal/monitoring"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

func offlineRunner(t *testing.T) (*crawlRunner, *dashboard.Store) {
	t.Helper()
	cfg := offlineConfig(t)
	store, err := dashboard.Open(cfg.Dashboard.DBPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &crawlRunner{
		cfg:      cfg,
		recovery: errors.NewService(),
		logger:   utils.NewLoggerWithLevel(utils.ErrorLevel),
		metrics:  monitoring.NewMetrics(),
		tracker:  monitoring.NewRunTracker(10),
		store:    store,
	}, store
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCrawlRunnerRunsToCompletion(t *testing.T) {
	runner, store := offlineRunner(t)

	runID, err := runner.StartRun(types.SiteMagicBricks, "gurgaon", []string{"Sector 57"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(runID) != 8 {
		t.Errorf("runID = %q, want a generated 8 character id", runID)
	}

	waitFor(t, "run completion in the store", func() bool {
		sum, err := store.GetRun(context.Background(), runID)
		return err == nil && sum.Status == types.RunCompleted
	})
	waitFor(t, "runner slot release", func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return !runner.active
	})

	sum, err := store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if sum.RecordsSaved != 2 {
		t.Errorf("RecordsSaved = %d, want 2", sum.RecordsSaved)
	}
	if tracked, ok := runner.tracker.Get(runID); !ok || tracked.Status != types.RunCompleted {
		t.Errorf("tracker entry = %+v (found %v), want a completed run", tracked, ok)
	}
}

func TestCrawlRunnerRejectsSecondRun(t *testing.T) {
	runner, _ := offlineRunner(t)
	runner.mu.Lock()
	runner.active = true
	runner.mu.Unlock()

	if _, err := runner.StartRun(types.SiteMagicBricks, "", nil); err == nil {
		t.Error("StartRun should reject a run while one is in progress")
	}
}

func TestCrawlRunnerRejectsInvalidOverride(t *testing.T) {
	runner, _ := offlineRunner(t)

	if _, err := runner.StartRun(types.Site("zillow"), "", nil); err == nil {
		t.Fatal("StartRun accepted an unsupported site")
	}

	runner.mu.Lock()
	active := runner.active
	runner.mu.Unlock()
	if active {
		t.Error("runner slot not released after a rejected start")
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Dashboard.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, cfg, errors.NewService())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runServer did not stop after cancel")
	}
}
