// cmd/propertylens/serve.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/internal/dashboard"
	"github.com/propertylens/propertylens/internal/errors"
	"github.com/propertylens/propertylens/internal/monitoring"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

// cmdServe runs the dashboard API over the listing store, with the
// trigger endpoint wired to real crawl jobs.
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "listen address override")
	verbose := fs.Bool("verbose", false, "verbose output and debug logging")
	envFile := fs.String("env", "", ".env file with secrets (default \".env\")")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: propertylens serve [flags] <config.yaml>")
		os.Exit(1)
	}

	svc := errors.NewService().WithVerbose(*verbose)
	if err := config.LoadEnv(*envFile); err != nil {
		exitWith(svc, err)
	}
	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		exitWith(svc, err)
	}
	if *listen != "" {
		cfg.Dashboard.Listen = *listen
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg, svc); err != nil {
		exitWith(svc, err)
	}
}

// runServer wires the store, observability, and the crawl runner into the
// dashboard server and serves until interrupted.
func runServer(ctx context.Context, cfg *config.Config, svc *errors.Service) error {
	logger := utils.NewLoggerWithLevel(utils.ParseLevel(cfg.Logging.Level))

	store, err := dashboard.Open(cfg.Dashboard.DBPath)
	if err != nil {
		return fmt.Errorf("opening dashboard store: %w", err)
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()
	tracker := monitoring.NewRunTracker(50)
	health := monitoring.NewHealthChecker(version)
	health.Register("database", true, monitoring.PingCheck(store.PingContext))
	health.Register("output_dir", false, monitoring.DirWritableCheck(cfg.Output.Directory))

	runner := &crawlRunner{
		cfg:      cfg,
		recovery: svc,
		logger:   logger,
		metrics:  metrics,
		tracker:  tracker,
		store:    store,
	}

	srv, err := dashboard.NewServer(dashboard.ServerOptions{
		Store:     store,
		Tracker:   tracker,
		Metrics:   metrics,
		Health:    health,
		Runner:    runner,
		Logger:    logger,
		AuthToken: cfg.Dashboard.AuthToken,
	})
	if err != nil {
		return err
	}

	logger.WithField("address", cfg.Dashboard.Listen).Info("dashboard listening")
	return srv.Start(ctx, cfg.Dashboard.Listen)
}

// crawlRunner starts crawl jobs for the dashboard trigger endpoint. One
// run at a time: a crawl holds a browser session and a set of open
// output files.
type crawlRunner struct {
	cfg      *config.Config
	recovery *errors.Service
	logger   utils.Logger
	metrics  *monitoring.Metrics
	tracker  *monitoring.RunTracker
	store    *dashboard.Store

	mu     sync.Mutex
	active bool
}

func (r *crawlRunner) StartRun(site types.Site, city string, localities []string) (string, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return "", fmt.Errorf("a crawl run is already in progress")
	}
	r.active = true
	r.mu.Unlock()

	// Shallow copy so request overrides never touch the serve config.
	cfg := *r.cfg
	cfg.Site = string(site)
	if city != "" {
		cfg.Search.City = city
	}
	if len(localities) > 0 {
		cfg.Search.Localities = localities
		cfg.Search.AllLocalities = false
	}
	if err := cfg.Validate(); err != nil {
		r.done()
		return "", err
	}

	runID := utils.NewRunID()
	logger, logPath, closeLog, err := openRunLogger(&cfg, runID)
	if err != nil {
		r.done()
		return "", err
	}

	job := &crawlJob{
		cfg:      &cfg,
		runID:    runID,
		logger:   logger,
		logPath:  logPath,
		recovery: r.recovery,
		metrics:  r.metrics,
		tracker:  r.tracker,
		store:    r.store,
	}

	go func() {
		defer r.done()
		defer closeLog()
		// Grace beyond the run budget so the tail flush can land before
		// the context forces a cancel.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxDuration()+5*time.Minute)
		defer cancel()
		summary, err := job.run(ctx)
		if err != nil {
			r.logger.WithField("run_id", runID).Errorf("triggered run failed: %v", err)
			return
		}
		r.logger.WithField("run_id", runID).Info(summary.String())
	}()

	return runID, nil
}

func (r *crawlRunner) done() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}
