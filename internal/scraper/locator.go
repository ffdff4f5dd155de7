// internal/scraper/locator.go
package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/propertylens/propertylens/internal/browser"
)

// Geometry and content thresholds for card detection.
const (
	minCardWidth       = 200
	minCardHeight      = 100
	minContainerWidth  = 300
	minContainerHeight = 200
	minIndicatorHits   = 2

	// anchorWalkMaxHops bounds the ancestor climb from a price text node
	// to its card container.
	anchorWalkMaxHops = 8

	// maxStrategyCandidates bounds how many raw matches a single strategy
	// examines per round.
	maxStrategyCandidates = 300

	// maxSweepElementHeight rejects page-scale wrappers during the
	// geometric sweep, which would otherwise swallow every card at once.
	maxSweepElementHeight = 2000

	// fingerprintTextLen is how much of the card text feeds the content
	// hash of a positional fingerprint.
	fingerprintTextLen = 100
)

const clickableSelector = `a, button, [role="button"], [onclick]`

// priceAnchorNeedles are the literal substrings used to find price nodes
// when the profile selectors fail.
var priceAnchorNeedles = []string{"₹", "Lacs", "Crore"}

// Card is a located listing card: the live element handle plus the text and
// geometry snapshot taken at location time. Extraction runs over the
// snapshot so a later re-render cannot tear a record mid-read.
type Card struct {
	Element     browser.Element
	Fingerprint string
	Text        string
	Box         browser.Geometry
}

// LocateStats describes one location round.
type LocateStats struct {
	Strategy   string
	Candidates int
	Valid      int
	Duplicates int
	Stale      int
}

// Locator finds listing cards on a results page. Fingerprints of every card
// it has returned are remembered for the lifetime of the Locator, so each
// round yields only cards not seen in earlier rounds of the same run.
type Locator struct {
	profile *SiteProfile
	seen    map[string]bool
}

func NewLocator(profile *SiteProfile) *Locator {
	return &Locator{
		profile: profile,
		seen:    make(map[string]bool),
	}
}

// SeenCount reports how many distinct cards the locator has returned.
func (l *Locator) SeenCount() int {
	return len(l.seen)
}

// Locate runs the strategy cascade and returns the new valid cards. A
// strategy wins as soon as it yields at least one valid card, even when all
// of them turn out to be duplicates; later strategies then stay untried.
func (l *Locator) Locate(ctx context.Context, sess browser.Session) ([]Card, LocateStats, error) {
	var stats LocateStats

	cards, won, err := l.bySelectors(ctx, sess, &stats)
	if err != nil || won {
		stats.Strategy = "selector"
		return cards, stats, err
	}

	cards, won, err = l.byPriceAnchor(ctx, sess, &stats)
	if err != nil || won {
		stats.Strategy = "price_anchor"
		return cards, stats, err
	}

	cards, won, err = l.bySweep(ctx, sess, &stats)
	if err != nil || won {
		stats.Strategy = "sweep"
		return cards, stats, err
	}

	stats.Strategy = "none"
	return nil, stats, nil
}

func (l *Locator) bySelectors(ctx context.Context, sess browser.Session, stats *LocateStats) ([]Card, bool, error) {
	for _, sel := range l.profile.CardSelectors {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		els, err := sess.Query(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			continue
		}
		cards, valid, err := l.collect(ctx, capElements(els), stats)
		if err != nil {
			return nil, false, err
		}
		if valid > 0 {
			return cards, true, nil
		}
	}
	return nil, false, nil
}

func (l *Locator) byPriceAnchor(ctx context.Context, sess browser.Session, stats *LocateStats) ([]Card, bool, error) {
	var containers []browser.Element
	for _, needle := range priceAnchorNeedles {
		els, err := sess.QueryByText(ctx, needle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			continue
		}
		for _, el := range capElements(els) {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			container, err := l.climbToContainer(ctx, el)
			if err != nil {
				stats.Stale++
				continue
			}
			if container != nil {
				containers = append(containers, container)
			}
		}
	}
	cards, valid, err := l.collect(ctx, containers, stats)
	if err != nil {
		return nil, false, err
	}
	return cards, valid > 0, nil
}

func (l *Locator) bySweep(ctx context.Context, sess browser.Session, stats *LocateStats) ([]Card, bool, error) {
	els, err := sess.Query(ctx, "div")
	if err != nil {
		return nil, false, err
	}
	var candidates []browser.Element
	for _, el := range capElements(els) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		box, err := el.BoundingBox(ctx)
		if err != nil {
			stats.Stale++
			continue
		}
		if box.Height > maxSweepElementHeight {
			continue
		}
		like, err := l.containerLike(ctx, el, box)
		if err != nil {
			stats.Stale++
			continue
		}
		if like {
			candidates = append(candidates, el)
		}
	}
	cards, valid, err := l.collect(ctx, candidates, stats)
	if err != nil {
		return nil, false, err
	}
	return cards, valid > 0, nil
}

// collect applies the validity predicate and the seen-set to raw candidates.
// It returns the new cards and the count of valid ones including duplicates.
func (l *Locator) collect(ctx context.Context, els []browser.Element, stats *LocateStats) ([]Card, int, error) {
	var cards []Card
	valid := 0
	batch := make(map[string]bool)
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return cards, valid, err
		}
		stats.Candidates++
		card, ok, err := l.examine(ctx, el)
		if err != nil {
			stats.Stale++
			continue
		}
		if !ok {
			continue
		}
		valid++
		stats.Valid++
		if l.seen[card.Fingerprint] || batch[card.Fingerprint] {
			stats.Duplicates++
			continue
		}
		batch[card.Fingerprint] = true
		l.seen[card.Fingerprint] = true
		cards = append(cards, card)
	}
	return cards, valid, nil
}

// examine checks one candidate against the validity predicate: visible, at
// least 200x100, at least two listing indicators in its text, and at least
// one clickable descendant.
func (l *Locator) examine(ctx context.Context, el browser.Element) (Card, bool, error) {
	visible, err := el.IsVisible(ctx)
	if err != nil {
		return Card{}, false, err
	}
	if !visible {
		return Card{}, false, nil
	}
	box, err := el.BoundingBox(ctx)
	if err != nil {
		return Card{}, false, err
	}
	if box.Width < minCardWidth || box.Height < minCardHeight {
		return Card{}, false, nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		return Card{}, false, err
	}
	if indicatorHits(text) < minIndicatorHits {
		return Card{}, false, nil
	}
	clickable, err := el.Has(ctx, clickableSelector)
	if err != nil {
		return Card{}, false, err
	}
	if !clickable {
		return Card{}, false, nil
	}
	fp, err := l.fingerprint(ctx, el, box, text)
	if err != nil {
		return Card{}, false, err
	}
	return Card{Element: el, Fingerprint: fp, Text: text, Box: box}, true, nil
}

// containerLike reports whether an element is plausibly a card container:
// a recognizable class keyword, a semantic grouping tag, or card-scale
// geometry with price content and something to click or a configuration.
func (l *Locator) containerLike(ctx context.Context, el browser.Element, box browser.Geometry) (bool, error) {
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	lowerClass := strings.ToLower(class)
	for _, kw := range containerClassKeywords {
		if strings.Contains(lowerClass, kw) {
			return true, nil
		}
	}
	tag, err := el.TagName(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range containerSemanticTags {
		if tag == t {
			return true, nil
		}
	}
	if box.Width < minContainerWidth || box.Height < minContainerHeight {
		return false, nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		return false, err
	}
	if !strings.Contains(text, "₹") {
		return false, nil
	}
	if strings.Contains(strings.ToLower(text), "bhk") {
		return true, nil
	}
	return el.Has(ctx, clickableSelector)
}

// climbToContainer walks ancestors from a price text node until a
// container-like element is found. Returns nil when the walk tops out.
func (l *Locator) climbToContainer(ctx context.Context, el browser.Element) (browser.Element, error) {
	cur := el
	for hop := 0; hop < anchorWalkMaxHops; hop++ {
		box, err := cur.BoundingBox(ctx)
		if err != nil {
			return nil, err
		}
		like, err := l.containerLike(ctx, cur, box)
		if err != nil {
			return nil, err
		}
		if like {
			return cur, nil
		}
		parent, err := cur.Parent(ctx)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, nil
		}
		cur = parent
	}
	return nil, nil
}

// fingerprint derives a per-run identity for a card: a DOM id when present,
// else a data-testid, else position, size, and a content hash.
func (l *Locator) fingerprint(ctx context.Context, el browser.Element, box browser.Geometry, text string) (string, error) {
	id, err := el.Attribute(ctx, "id")
	if err != nil {
		return "", err
	}
	if id != "" {
		return "id:" + id, nil
	}
	tid, err := el.Attribute(ctx, "data-testid")
	if err != nil {
		return "", err
	}
	if tid != "" {
		return "tid:" + tid, nil
	}
	sample := text
	if len(sample) > fingerprintTextLen {
		sample = sample[:fingerprintTextLen]
	}
	h := fnv.New32a()
	h.Write([]byte(sample))
	return fmt.Sprintf("%.0f_%.0f_%.0f_%.0f_%08x", box.X, box.Y, box.Width, box.Height, h.Sum32()), nil
}

// indicatorHits counts how many listing indicator tokens appear in text.
func indicatorHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, tok := range cardIndicatorTokens {
		if strings.Contains(lower, tok) {
			hits++
		}
	}
	return hits
}

func capElements(els []browser.Element) []browser.Element {
	if len(els) > maxStrategyCandidates {
		return els[:maxStrategyCandidates]
	}
	return els
}
