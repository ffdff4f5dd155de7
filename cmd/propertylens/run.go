// cmd/propertylens/run.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/propertylens/propertylens/internal/browser"
	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/internal/dashboard"
	"github.com/propertylens/propertylens/internal/errors"
	"github.com/propertylens/propertylens/internal/monitoring"
	"github.com/propertylens/propertylens/internal/output"
	"github.com/propertylens/propertylens/internal/pipeline"
	"github.com/propertylens/propertylens/internal/scraper"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

// cmdRun crawls the configured portal and writes listings to the
// configured sinks.
func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "verbose output and debug logging")
	city := fs.String("city", "", "override the configured search city")
	localities := fs.String("localities", "", "comma-separated locality override")
	allLocalities := fs.Bool("all-localities", false, "crawl the built-in Gurgaon locality catalog")
	target := fs.Int("target", 0, "override the listing target")
	envFile := fs.String("env", "", ".env file with secrets (default \".env\")")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: propertylens run [flags] <config.yaml>")
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
	if *city != "" {
		cfg.Search.City = strings.ToLower(strings.TrimSpace(*city))
	}
	if *localities != "" {
		cfg.Search.Localities = splitList(*localities)
		cfg.Search.AllLocalities = false
	}
	if *allLocalities {
		cfg.Search.AllLocalities = true
	}
	if *target > 0 {
		cfg.Limits.TargetListings = *target
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := executeRun(ctx, cfg, svc)
	if err != nil {
		exitWith(svc, err)
	}
	printRunSummary(summary)
	if summary.Status == types.RunCancelled {
		os.Exit(errors.ExitCancelled)
	}
}

// executeRun wires a crawl job with per-invocation observability and runs
// it to completion.
func executeRun(ctx context.Context, cfg *config.Config, svc *errors.Service) (types.RunSummary, error) {
	runID := utils.NewRunID()

	logger, logPath, closeLog, err := openRunLogger(cfg, runID)
	if err != nil {
		return types.RunSummary{}, err
	}
	defer closeLog()

	metrics := monitoring.NewMetrics()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Listen); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	var store *dashboard.Store
	if cfg.Dashboard.DBPath != "" {
		store, err = dashboard.Open(cfg.Dashboard.DBPath)
		if err != nil {
			return types.RunSummary{}, fmt.Errorf("opening dashboard store: %w", err)
		}
		defer store.Close()
	}

	job := &crawlJob{
		cfg:      cfg,
		runID:    runID,
		logger:   logger,
		logPath:  logPath,
		recovery: svc,
		metrics:  metrics,
		tracker:  monitoring.NewRunTracker(10),
		store:    store,
	}
	return job.run(ctx)
}

// crawlJob is one crawl invocation: shared wiring between the run
// subcommand and dashboard-triggered runs.
type crawlJob struct {
	cfg      *config.Config
	runID    string
	logger   utils.Logger
	logPath  string
	recovery *errors.Service
	metrics  *monitoring.Metrics
	tracker  *monitoring.RunTracker
	store    *dashboard.Store
}

// run crawls every resolved locality through one browser session, merging
// all batches into a single run summary and a single set of outputs.
func (j *crawlJob) run(ctx context.Context) (types.RunSummary, error) {
	site := j.cfg.SiteID()
	start := time.Now()
	aggregate := types.RunSummary{
		RunID:          j.runID,
		Site:           site,
		Status:         types.RunRunning,
		City:           j.cfg.Search.City,
		StartedAt:      start.UTC(),
		TargetListings: j.cfg.Limits.TargetListings,
		FieldFailures:  make(map[string]int),
		ErrorCounts:    make(map[string]int),
		LogPath:        j.logPath,
	}
	j.tracker.Start(aggregate)
	j.metrics.RunStarted()
	j.persist(aggregate)

	chain, err := j.policyChain(site)
	if err != nil {
		return j.fail(aggregate, err)
	}
	processor := pipeline.NewProcessor(chain, j.logger)

	sess, err := browser.New(ctx, browserConfig(j.cfg))
	if err != nil {
		return j.fail(aggregate, fmt.Errorf("starting browser session: %w", err))
	}
	defer sess.Close()

	var manager *output.Manager
	if err := j.guard(ctx, "output:open", func() error {
		var merr error
		manager, merr = output.NewManager(&j.cfg.Output, site, j.runID, j.logger)
		return merr
	}); err != nil {
		return j.fail(aggregate, fmt.Errorf("opening output sinks: %w", err))
	}

	var next scraper.Sink = manager
	if j.store != nil {
		next = teeSink{outputs: manager, store: j.store.RunSink(j.runID)}
	}
	sink := pipeline.NewSink(meteredSink{next: next, metrics: j.metrics, site: site}, processor)

	if j.recovery != nil {
		// Flush failures trip the breaker faster than navigation failures.
		j.recovery.ConfigureBreaker("flush", errors.BreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		})
	}

	localities := resolveLocalities(j.cfg)
	budget := j.cfg.MaxDuration()
	if budget <= 0 {
		budget = 20 * time.Minute
	}
	deadline := start.Add(budget)
	var (
		runErr     error
		lastReason types.DoneReason
	)

	for _, locality := range localities {
		if ctx.Err() != nil {
			break
		}
		if !time.Now().Before(deadline) {
			lastReason = types.DoneBudget
			j.logger.Warn("run budget exhausted before the locality list")
			break
		}
		remaining := j.cfg.Limits.TargetListings - aggregate.RecordsSaved
		if remaining <= 0 {
			lastReason = types.DoneTarget
			break
		}

		driver, err := scraper.NewDriver(j.driverConfig(site, locality, remaining, deadline), sess, sink, j.logger)
		if err != nil {
			runErr = err
			break
		}
		driver.SetRetrier(j.recovery)
		driver.SetObserver(monitoring.Combine(j.metrics, j.tracker.Observer(j.runID)))

		summary, err := driver.Run(ctx)
		mergeSummary(&aggregate, summary)
		lastReason = summary.Reason
		if err != nil {
			runErr = err
			j.logger.WithField("locality", locality).Errorf("locality crawl failed: %v", err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if err := manager.Close(); err != nil {
		j.logger.Errorf("closing output sinks: %v", err)
		if runErr == nil {
			runErr = fmt.Errorf("closing output sinks: %w", err)
		}
	}
	aggregate.OutputPaths = manager.Paths()
	aggregate.FinishedAt = time.Now().UTC()

	switch {
	case ctx.Err() != nil:
		aggregate.Status = types.RunCancelled
		aggregate.Reason = types.DoneCancelled
	case runErr != nil && aggregate.RecordsSaved == 0:
		aggregate.Status = types.RunFailed
		aggregate.Reason = lastReason
	case aggregate.RecordsSaved >= j.cfg.Limits.TargetListings:
		aggregate.Status = types.RunCompleted
		aggregate.Reason = types.DoneTarget
	default:
		aggregate.Status = types.RunCompleted
		if lastReason == "" {
			lastReason = types.DoneExhausted
		}
		aggregate.Reason = lastReason
	}

	if runErr != nil && j.recovery != nil {
		for name, state := range j.recovery.BreakerStates() {
			if state == errors.CircuitOpen {
				j.logger.WithField("operation", name).Warn("circuit breaker still open at run end")
			}
		}
	}

	stats := processor.Stats()
	j.logger.WithFields(map[string]interface{}{
		"processed": stats.Processed,
		"dropped":   stats.Dropped,
	}).Info("post-processing done")

	j.tracker.Complete(aggregate)
	j.metrics.RunFinished(aggregate)
	j.persist(aggregate)

	// Partial results count: locality failures are in the summary, and
	// only a run that saved nothing surfaces them as a hard error.
	if aggregate.RecordsSaved > 0 {
		runErr = nil
	}
	return aggregate, runErr
}

// fail closes out a run that never reached the crawl loop.
func (j *crawlJob) fail(aggregate types.RunSummary, err error) (types.RunSummary, error) {
	aggregate.Status = types.RunFailed
	aggregate.FinishedAt = time.Now().UTC()
	j.tracker.Complete(aggregate)
	j.metrics.RunFinished(aggregate)
	j.persist(aggregate)
	return aggregate, err
}

// persist saves the summary to the dashboard store with a fresh context:
// the run context may already be cancelled.
func (j *crawlJob) persist(aggregate types.RunSummary) {
	if j.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.store.SaveRun(ctx, aggregate); err != nil {
		j.logger.Errorf("saving run summary: %v", err)
	}
}

func (j *crawlJob) guard(ctx context.Context, name string, op func() error) error {
	if j.recovery == nil {
		return op()
	}
	return j.recovery.Retry(ctx, name, op)
}

// policyChain resolves the post-processing chain: an absent config key
// takes the site profile's default policies, an explicit empty list
// disables post-processing.
func (j *crawlJob) policyChain(site types.Site) (pipeline.Chain, error) {
	names := j.cfg.Policies
	if names == nil {
		profile, err := scraper.ProfileFor(site)
		if err != nil {
			return nil, err
		}
		names = profile.Policies
	}
	return pipeline.ForNames(names)
}

func (j *crawlJob) driverConfig(site types.Site, locality string, remaining int, deadline time.Time) scraper.DriverConfig {
	cardMin, cardMax := j.cfg.CardDelay()
	pageMin, pageMax := j.cfg.PageDelay()
	return scraper.DriverConfig{
		Site:             site,
		City:             j.cfg.Search.City,
		Locality:         locality,
		RunID:            j.runID,
		StartURL:         j.cfg.Search.URL,
		FromFile:         j.cfg.Browser.FromFile,
		TargetListings:   remaining,
		MaxRounds:        j.cfg.Limits.MaxRounds,
		MaxDuration:      time.Until(deadline),
		FlushEvery:       j.cfg.Pacing.FlushEvery,
		CardDelay:        browser.DelayRange{Min: cardMin, Max: cardMax},
		PageDelay:        browser.DelayRange{Min: pageMin, Max: pageMax},
		RatePerSecond:    j.cfg.Pacing.RatePerSecond,
		MinRatePerSecond: j.cfg.Pacing.MinRatePerSecond,
		MaxRatePerSecond: j.cfg.Pacing.MaxRatePerSecond,
		Burst:            j.cfg.Pacing.Burst,
	}
}

// browserConfig maps the YAML browser section onto session settings.
func browserConfig(cfg *config.Config) *browser.Config {
	bcfg := browser.DefaultConfig()
	bcfg.Headless = cfg.Browser.Headless
	bcfg.UserAgent = cfg.Browser.UserAgent
	bcfg.ProxyURL = cfg.Browser.Proxy
	bcfg.DisableImages = cfg.Browser.DisableImages
	bcfg.FromFile = cfg.Browser.FromFile
	if cfg.Browser.ViewportWidth > 0 {
		bcfg.ViewportWidth = cfg.Browser.ViewportWidth
	}
	if cfg.Browser.ViewportHeight > 0 {
		bcfg.ViewportHeight = cfg.Browser.ViewportHeight
	}
	if d := cfg.NavTimeout(); d > 0 {
		bcfg.NavTimeout = d
	}
	return bcfg
}

// resolveLocalities expands the search section into the locality batch.
// URL overrides and snapshot files are a single unnamed run.
func resolveLocalities(cfg *config.Config) []string {
	switch {
	case cfg.Search.URL != "", cfg.Browser.FromFile != "":
		return []string{""}
	case cfg.Search.AllLocalities:
		return scraper.GurgaonLocalities()
	case len(cfg.Search.Localities) > 0:
		return cfg.Search.Localities
	default:
		return []string{""}
	}
}

// mergeSummary folds one locality's outcome into the run aggregate.
func mergeSummary(dst *types.RunSummary, src types.RunSummary) {
	for _, loc := range src.Localities {
		if loc != "" {
			dst.Localities = append(dst.Localities, loc)
		}
	}
	dst.PagesVisited += src.PagesVisited
	dst.RoundsAdvanced += src.RoundsAdvanced
	dst.CardsSeen += src.CardsSeen
	dst.CardsValid += src.CardsValid
	dst.RecordsExtracted += src.RecordsExtracted
	dst.RecordsDropped += src.RecordsDropped
	dst.RecordsSaved += src.RecordsSaved
	for field, n := range src.FieldFailures {
		dst.FieldFailures[field] += n
	}
	for kind, n := range src.ErrorCounts {
		dst.ErrorCounts[kind] += n
	}
}

// teeSink forwards each batch to the run outputs and the dashboard store.
type teeSink struct {
	outputs scraper.Sink
	store   scraper.Sink
}

func (t teeSink) Write(ctx context.Context, records []types.ListingRecord) error {
	if err := t.outputs.Write(ctx, records); err != nil {
		return err
	}
	return t.store.Write(ctx, records)
}

// meteredSink times each flush into the output layer.
type meteredSink struct {
	next    scraper.Sink
	metrics *monitoring.Metrics
	site    types.Site
}

func (m meteredSink) Write(ctx context.Context, records []types.ListingRecord) error {
	start := time.Now()
	if err := m.next.Write(ctx, records); err != nil {
		return err
	}
	m.metrics.RecordsFlushed(m.site, len(records), time.Since(start))
	return nil
}

// openRunLogger builds the per-run logger. With a logging directory the
// run logs to stderr and to scrape_<site>_<timestamp>_run-<id>.log.
func openRunLogger(cfg *config.Config, runID string) (utils.Logger, string, func(), error) {
	level := utils.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Directory == "" {
		return utils.NewLoggerWithLevel(level), "", func() {}, nil
	}
	name := fmt.Sprintf("scrape_%s_%s_run-%s.log", cfg.Site, time.Now().Format("20060102_150405"), runID)
	path := filepath.Join(cfg.Logging.Directory, name)
	logger, closer, err := utils.NewFileLogger(level, path)
	if err != nil {
		return nil, "", nil, err
	}
	return logger, path, func() { _ = closer.Close() }, nil
}

// printRunSummary writes the operator-facing outcome to stdout.
func printRunSummary(sum types.RunSummary) {
	fmt.Println()
	fmt.Println(sum.String())
	fmt.Printf("duration: %s\n", utils.FormatDuration(sum.Duration()))
	if len(sum.Localities) > 0 {
		fmt.Printf("localities crawled: %d\n", len(sum.Localities))
	}
	for _, p := range sum.OutputPaths {
		fmt.Printf("output: %s\n", p)
	}
	if sum.LogPath != "" {
		fmt.Printf("log: %s\n", sum.LogPath)
	}
	if len(sum.ErrorCounts) > 0 {
		fmt.Printf("errors by kind: %v\n", sum.ErrorCounts)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
