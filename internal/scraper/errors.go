// internal/scraper/errors.go
package scraper

import (
	"context"
	"errors"

	"github.com/propertylens/propertylens/internal/browser"
)

// Sentinel errors classifying scrape failures. Wrap these with %w so
// callers can classify with errors.Is and route recovery accordingly.
var (
	// ErrNavigation indicates a page load or URL change failed.
	ErrNavigation = errors.New("navigation failed")

	// ErrNoCards indicates a loaded results page yielded zero listing
	// cards across every location strategy.
	ErrNoCards = errors.New("no listing cards found")

	// ErrStaleCard indicates a card handle no longer resolves to a live
	// DOM node, typically after the page re-rendered.
	ErrStaleCard = errors.New("stale card handle")

	// ErrExtraction indicates a card was located but no usable record
	// could be pulled out of it.
	ErrExtraction = errors.New("field extraction failed")

	// ErrValidation indicates an extracted record failed the required
	// field checks and was dropped.
	ErrValidation = errors.New("record validation failed")

	// ErrOutput indicates records could not be written to a sink.
	ErrOutput = errors.New("output write failed")

	// ErrBudget indicates the crawl hit its page or time budget before
	// reaching the listing target.
	ErrBudget = errors.New("crawl budget exceeded")
)

// ErrorKind maps an error to a stable counter key for run summaries and
// metrics labels. Unknown errors fall through to "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrNavigation):
		return "navigation"
	case errors.Is(err, ErrNoCards):
		return "no_cards"
	case errors.Is(err, ErrStaleCard), errors.Is(err, browser.ErrStaleElement):
		return "stale_card"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrOutput):
		return "output"
	case errors.Is(err, ErrBudget):
		return "budget"
	default:
		return "other"
	}
}
