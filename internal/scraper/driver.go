// internal/scraper/driver.go
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/propertylens/propertylens/internal/browser"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

// Driver loop defaults.
const (
	defaultTargetListings = 50
	defaultMaxRounds      = 40
	defaultMaxDuration    = 20 * time.Minute
	defaultFlushEvery     = 10

	// maxConsecutiveEmpty is how many rounds in a row may yield no new
	// cards before the run is declared exhausted.
	maxConsecutiveEmpty = 3

	// scrollStep is how far a scroll advance moves before comparing page
	// heights.
	scrollStep = 800
)

// Sink receives extracted records in batches. The output manager satisfies
// this; tests use an in-memory collector.
type Sink interface {
	Write(ctx context.Context, records []types.ListingRecord) error
}

// Observer receives driver progress events. All methods must be cheap and
// non-blocking; the Prometheus adapter satisfies this.
type Observer interface {
	RoundCompleted(site, strategy string, newCards, validCards int)
	RecordExtracted(site string)
	RecordDropped(site, reason string)
	FieldMissed(site, field string)
	ErrorObserved(site, kind string)
}

type noopObserver struct{}

func (noopObserver) RoundCompleted(string, string, int, int) {}
func (noopObserver) RecordExtracted(string)                  {}
func (noopObserver) RecordDropped(string, string)            {}
func (noopObserver) FieldMissed(string, string)              {}
func (noopObserver) ErrorObserved(string, string)            {}

// Retrier reruns failed operations with backoff and circuit breaking. The
// recovery service satisfies this; a nil retrier means a single attempt.
type Retrier interface {
	Retry(ctx context.Context, name string, op func() error) error
}

// DriverConfig controls one crawl run against one locality.
type DriverConfig struct {
	Site     types.Site
	City     string
	Locality string
	RunID    string

	// StartURL overrides the built search URL; FromFile marks an offline
	// snapshot run and is recorded on every record.
	StartURL string
	FromFile string

	TargetListings int
	MaxRounds      int
	MaxDuration    time.Duration
	FlushEvery     int

	CardDelay browser.DelayRange
	PageDelay browser.DelayRange

	// Fetch pacing. Zero values take the rate limiter defaults.
	RatePerSecond    float64
	MinRatePerSecond float64
	MaxRatePerSecond float64
	Burst            int
}

func (c *DriverConfig) applyDefaults() {
	if c.TargetListings <= 0 {
		c.TargetListings = defaultTargetListings
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultMaxDuration
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = defaultFlushEvery
	}
	if c.CardDelay.Max == 0 {
		c.CardDelay = browser.DelayRange{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond}
	}
	if c.PageDelay.Max == 0 {
		c.PageDelay = browser.DelayRange{Min: 2 * time.Second, Max: 5 * time.Second}
	}
	if c.RunID == "" {
		c.RunID = utils.NewRunID()
	}
}

// Driver walks a results page through fetch, extract, and advance rounds
// until it reaches the listing target, exhausts the page, or runs out of
// budget. Records flow to the sink in batches so an interrupted run keeps
// everything extracted so far.
type Driver struct {
	cfg       DriverConfig
	profile   *SiteProfile
	session   browser.Session
	locator   *Locator
	extractor *Extractor
	validator *Validator
	limiter   *AdaptiveRateLimiter
	sink      Sink
	observer  Observer
	retrier   Retrier
	logger    utils.Logger

	summary  types.RunSummary
	batch    []types.ListingRecord
	position int
	pageNum  int
	empty    int
}

// NewDriver wires a driver for one run. The session and sink are owned by
// the caller; the driver closes neither.
func NewDriver(cfg DriverConfig, sess browser.Session, sink Sink, logger utils.Logger) (*Driver, error) {
	if !cfg.Site.IsValid() {
		return nil, fmt.Errorf("invalid site %q", cfg.Site)
	}
	if sess == nil {
		return nil, fmt.Errorf("nil session")
	}
	if sink == nil {
		return nil, fmt.Errorf("nil sink")
	}
	profile, err := ProfileFor(cfg.Site)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Driver{
		cfg:       cfg,
		profile:   profile,
		session:   sess,
		locator:   NewLocator(profile),
		extractor: NewExtractor(profile),
		validator: NewValidator(),
		limiter: NewAdaptiveRateLimiter(cfg.RatePerSecond, cfg.MinRatePerSecond,
			cfg.MaxRatePerSecond, cfg.Burst),
		sink:      sink,
		observer:  noopObserver{},
		logger: logger.WithFields(map[string]interface{}{
			"site":     string(cfg.Site),
			"locality": cfg.Locality,
		}),
	}, nil
}

// SetObserver installs a progress observer. Must be called before Run.
func (d *Driver) SetObserver(obs Observer) {
	if obs != nil {
		d.observer = obs
	}
}

// SetRetrier installs a recovery service guarding navigation and output
// writes. Must be called before Run.
func (d *Driver) SetRetrier(r Retrier) {
	d.retrier = r
}

// guard routes an operation through the retrier when one is installed.
func (d *Driver) guard(ctx context.Context, name string, op func() error) error {
	if d.retrier == nil {
		return op()
	}
	return d.retrier.Retry(ctx, name, op)
}

// RateLimiter exposes the driver's pacer for external reporting.
func (d *Driver) RateLimiter() *AdaptiveRateLimiter {
	return d.limiter
}

// Run executes the crawl. The returned summary is complete even when the
// run ends early; the error is non-nil only for failures that lost data or
// prevented the run from starting.
func (d *Driver) Run(ctx context.Context) (types.RunSummary, error) {
	start := time.Now()
	d.summary = types.RunSummary{
		RunID:          d.cfg.RunID,
		Site:           d.cfg.Site,
		Status:         types.RunRunning,
		City:           d.cfg.City,
		Localities:     []string{d.cfg.Locality},
		StartedAt:      start.UTC(),
		TargetListings: d.cfg.TargetListings,
		FieldFailures:  make(map[string]int),
		ErrorCounts:    make(map[string]int),
	}

	startURL := d.cfg.StartURL
	if startURL == "" && d.cfg.FromFile == "" {
		u, err := SearchURL(d.cfg.Site, d.cfg.City, d.cfg.Locality)
		if err != nil {
			return d.finish(types.RunFailed, "", start), err
		}
		startURL = u
	}

	if err := d.fetch(ctx, startURL); err != nil {
		d.countError(err)
		return d.finish(types.RunFailed, "", start), err
	}

	for {
		if ctx.Err() != nil {
			return d.cancel(ctx, start)
		}
		d.session.DismissOverlays(ctx, d.profile.OverlaySelectors...)

		cards, lstats, err := d.locator.Locate(ctx, d.session)
		if err != nil {
			if ctx.Err() != nil {
				return d.cancel(ctx, start)
			}
			d.countError(err)
			d.logger.Warnf("locate round failed: %v", err)
		}
		d.summary.CardsSeen += lstats.Valid
		d.summary.CardsValid += len(cards)
		d.observer.RoundCompleted(string(d.cfg.Site), lstats.Strategy, len(cards), lstats.Valid)
		d.logger.WithFields(map[string]interface{}{
			"strategy":   lstats.Strategy,
			"candidates": lstats.Candidates,
			"new_cards":  len(cards),
			"duplicates": lstats.Duplicates,
		}).Debug("location round complete")

		if len(cards) == 0 {
			d.empty++
			if d.summary.RoundsAdvanced == 0 && d.summary.CardsSeen == 0 {
				d.countError(ErrNoCards)
			}
		} else {
			d.empty = 0
		}

		for _, card := range cards {
			if ctx.Err() != nil {
				return d.cancel(ctx, start)
			}
			d.handleCard(ctx, card)
			if d.summary.RecordsExtracted >= d.cfg.TargetListings {
				break
			}
			if err := sleepCtx(ctx, d.cfg.CardDelay.Next()); err != nil {
				return d.cancel(ctx, start)
			}
		}

		switch {
		case d.summary.RecordsExtracted >= d.cfg.TargetListings:
			return d.complete(ctx, types.DoneTarget, start)
		case d.empty >= maxConsecutiveEmpty:
			return d.complete(ctx, types.DoneExhausted, start)
		case d.summary.RoundsAdvanced >= d.cfg.MaxRounds,
			time.Since(start) >= d.cfg.MaxDuration:
			d.countError(ErrBudget)
			return d.complete(ctx, types.DoneBudget, start)
		}

		d.advance(ctx)
		d.summary.RoundsAdvanced++
		if err := d.limiter.Wait(ctx); err != nil {
			return d.cancel(ctx, start)
		}
		if err := sleepCtx(ctx, d.cfg.PageDelay.Next()); err != nil {
			return d.cancel(ctx, start)
		}
	}
}

// handleCard extracts and validates one card, batching the record on
// success. Failures count against the summary but never stop the round.
func (d *Driver) handleCard(ctx context.Context, card Card) {
	d.position++
	rec, missed, err := d.extractor.Extract(ctx, card, d.position)
	if err != nil {
		d.countError(err)
		d.summary.RecordsDropped++
		d.observer.RecordDropped(string(d.cfg.Site), ErrorKind(err))
		d.logger.Debugf("card %s dropped: %v", card.Fingerprint, err)
		return
	}
	for _, f := range missed {
		d.summary.FieldFailures[f]++
		d.observer.FieldMissed(string(d.cfg.Site), f)
	}
	if rec.Locality == "" {
		rec.Locality = d.cfg.Locality
	}
	rec.SourceFile = d.cfg.FromFile

	if err := d.validator.Validate(&rec); err != nil {
		d.countError(err)
		d.summary.RecordsDropped++
		d.observer.RecordDropped(string(d.cfg.Site), ErrorKind(err))
		d.logger.Debugf("card %s rejected: %v", card.Fingerprint, err)
		return
	}
	if flags := d.validator.Flags(&rec); len(flags) > 0 {
		d.logger.WithField("flags", flags).Debugf("card %s has quality flags", card.Fingerprint)
	}

	d.summary.RecordsExtracted++
	d.observer.RecordExtracted(string(d.cfg.Site))
	d.batch = append(d.batch, rec)
	if len(d.batch) >= d.cfg.FlushEvery {
		if err := d.flush(ctx); err != nil {
			d.logger.Errorf("flush failed: %v", err)
		}
	}
}

// flush hands the current batch to the sink.
func (d *Driver) flush(ctx context.Context) error {
	if len(d.batch) == 0 {
		return nil
	}
	n := len(d.batch)
	if err := d.guard(ctx, "flush", func() error {
		return d.sink.Write(ctx, d.batch)
	}); err != nil {
		werr := fmt.Errorf("%w: %v", ErrOutput, err)
		d.countError(werr)
		return werr
	}
	d.summary.RecordsSaved += n
	d.batch = d.batch[:0]
	d.logger.Debugf("flushed %d records", n)
	return nil
}

// fetch navigates with pacing, reports the outcome to the limiter, and
// rebases the extractor on the new URL.
func (d *Driver) fetch(ctx context.Context, rawURL string) error {
	if d.cfg.FromFile != "" && rawURL == "" {
		rawURL = "file://" + d.cfg.FromFile
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := d.guard(ctx, "navigate", func() error {
		return d.session.Navigate(ctx, rawURL)
	}); err != nil {
		d.limiter.ReportError()
		return fmt.Errorf("%w: %s: %v", ErrNavigation, rawURL, err)
	}
	d.limiter.ReportSuccess()
	d.summary.PagesVisited++
	d.pageNum++
	d.session.DismissOverlays(ctx, d.profile.OverlaySelectors...)
	if cur, err := d.session.CurrentURL(ctx); err == nil && cur != "" {
		d.extractor.SetBase(cur)
	} else {
		d.extractor.SetBase(rawURL)
	}
	d.logger.WithField("url", rawURL).Info("page loaded")
	return nil
}

// advance tries the profile's strategies in order until one reports it did
// something. All strategies failing is not an error; the exhaustion counter
// decides when to stop.
func (d *Driver) advance(ctx context.Context) {
	for _, strategy := range d.profile.AdvanceOrder {
		if ctx.Err() != nil {
			return
		}
		var moved bool
		switch strategy {
		case AdvanceLoadMore:
			moved = d.clickLoadMore(ctx)
		case AdvanceScroll:
			moved = d.scrollAdvance(ctx)
		case AdvancePaginate:
			moved = d.paginate(ctx)
		}
		if moved {
			d.logger.Debugf("advanced via %s", strategy)
			return
		}
	}
}

// clickLoadMore looks for a load-more control by selector and then by
// button text.
func (d *Driver) clickLoadMore(ctx context.Context) bool {
	for _, sel := range d.profile.LoadMoreSelectors {
		els, err := d.session.Query(ctx, sel)
		if err != nil {
			continue
		}
		if d.clickFirstUsable(ctx, els) {
			return true
		}
	}
	for _, text := range d.profile.LoadMoreTexts {
		els, err := d.session.QueryByText(ctx, text)
		if err != nil {
			continue
		}
		if d.clickFirstUsable(ctx, els) {
			return true
		}
	}
	return false
}

func (d *Driver) clickFirstUsable(ctx context.Context, els []browser.Element) bool {
	for i, el := range els {
		if i >= 5 {
			break
		}
		visible, err := el.IsVisible(ctx)
		if err != nil || !visible {
			continue
		}
		enabled, err := el.IsEnabled(ctx)
		if err != nil || !enabled {
			continue
		}
		if err := el.Click(ctx); err != nil {
			continue
		}
		return true
	}
	return false
}

// scrollAdvance scrolls a step and, if the page did not grow, jumps to the
// bottom to trigger lazy loading.
func (d *Driver) scrollAdvance(ctx context.Context) bool {
	before, err := d.session.PageHeight(ctx)
	if err != nil {
		return false
	}
	if err := d.session.ScrollBy(ctx, scrollStep); err != nil {
		return false
	}
	after, err := d.session.PageHeight(ctx)
	if err == nil && after > before {
		return true
	}
	if err := d.session.ScrollToBottom(ctx); err != nil {
		return false
	}
	after, err = d.session.PageHeight(ctx)
	return err == nil && after > before
}

// paginate navigates to the next numbered results page where the portal
// supports it.
func (d *Driver) paginate(ctx context.Context) bool {
	cur, err := d.session.CurrentURL(ctx)
	if err != nil || cur == "" {
		return false
	}
	next, ok := NextPageURL(d.cfg.Site, cur, d.pageNum+1)
	if !ok {
		return false
	}
	if err := d.fetch(ctx, next); err != nil {
		d.countError(err)
		d.logger.Warnf("pagination failed: %v", err)
		return false
	}
	return true
}

func (d *Driver) countError(err error) {
	d.summary.ErrorCounts[ErrorKind(err)]++
	d.observer.ErrorObserved(string(d.cfg.Site), ErrorKind(err))
}

// complete flushes the tail batch and closes the summary with a reason.
func (d *Driver) complete(ctx context.Context, reason types.DoneReason, start time.Time) (types.RunSummary, error) {
	if err := d.flush(ctx); err != nil {
		d.logger.Errorf("final flush failed: %v", err)
		return d.finish(types.RunFailed, reason, start), err
	}
	d.logger.WithFields(map[string]interface{}{
		"reason":  string(reason),
		"records": d.summary.RecordsSaved,
		"rounds":  d.summary.RoundsAdvanced,
	}).Info("run complete")
	return d.finish(types.RunCompleted, reason, start), nil
}

// cancel preserves everything extracted so far and reports a cancelled run
// without error.
func (d *Driver) cancel(ctx context.Context, start time.Time) (types.RunSummary, error) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.flush(flushCtx); err != nil {
		d.logger.Errorf("flush on cancel failed: %v", err)
	}
	d.countError(ctx.Err())
	d.logger.Warn("run cancelled")
	return d.finish(types.RunCancelled, types.DoneCancelled, start), nil
}

func (d *Driver) finish(status types.RunStatus, reason types.DoneReason, start time.Time) types.RunSummary {
	d.summary.Status = status
	d.summary.Reason = reason
	d.summary.FinishedAt = time.Now().UTC()
	return d.summary
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
