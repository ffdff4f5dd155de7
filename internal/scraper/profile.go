// internal/scraper/profile.go
package scraper

import (
	"fmt"

	"github.com/propertylens/propertylens/pkg/types"
)

// Advance strategy names, tried in profile order after each extraction round.
const (
	AdvanceLoadMore = "load_more"
	AdvanceScroll   = "scroll"
	AdvancePaginate = "paginate"
)

// SiteProfile carries the portal-specific knowledge the locator, extractor,
// and driver need: selector lists, text hints, and post-processing policies.
// Everything else about a scrape run is site-independent.
type SiteProfile struct {
	Site types.Site

	// CardSelectors are tried in order by the selector strategy. The first
	// selector yielding at least one valid card wins the round.
	CardSelectors []string

	// TitleSelectors are tried in order within a card. Matches whose text
	// appears in TitleAvoid are skipped.
	TitleSelectors []string
	TitleAvoid     []string

	// OverlaySelectors identify dismissible popups and interstitials.
	OverlaySelectors []string

	// LoadMoreSelectors and LoadMoreTexts locate the "load more" control,
	// by selector first and then by visible button text.
	LoadMoreSelectors []string
	LoadMoreTexts     []string

	// AdvanceOrder is the sequence of strategies the driver attempts to
	// reveal more cards. Unknown names are skipped.
	AdvanceOrder []string

	// ImageAttrs lists the attributes probed on <img> nodes, in order.
	ImageAttrs []string

	// ImageDomainTokens allow an image URL that carries no property keyword
	// when its host matches one of these fragments.
	ImageDomainTokens []string

	// Policies are the post-processing policy names applied to extracted
	// records, in order.
	Policies []string
}

// genericCardSelectors are appended to every profile's portal-specific list.
// They catch redesigns that drop the known class names.
var genericCardSelectors = []string{
	"article",
	".card-container",
	".property-card",
	".listing-card",
	`div[role="button"]`,
	`div[onclick*="property"]`,
}

// cardIndicatorTokens are the lowercase substrings that mark listing-like
// text. A candidate needs at least two to count as a card.
var cardIndicatorTokens = []string{
	"₹", "lacs", "crore", "bhk", "sqft", "bathroom", "parking",
	"facing", "furnished", "floor", "possession", "emi", "acres",
}

// containerClassKeywords mark an ancestor as a plausible card container
// during the anchor-walk and sweep strategies.
var containerClassKeywords = []string{
	"card", "tuple", "listing", "property", "item", "result", "tile",
}

// containerSemanticTags are tag names treated as card containers outright.
var containerSemanticTags = []string{"article", "section"}

var commonTitleAvoid = []string{
	"get owner details", "contact", "view", "call", "whatsapp",
}

var commonOverlaySelectors = []string{
	`[class*="close"]`,
	`[class*="Close"]`,
	`[id*="close"]`,
	`[aria-label="Close"]`,
	`[class*="dismiss"]`,
	".crossIcon",
}

var commonLoadMoreTexts = []string{
	"Load More", "Show More", "View More", "Load Additional",
	"See More", "More Results", "Next",
}

var profiles = map[types.Site]*SiteProfile{
	types.SiteNinetyNineAcres: {
		Site: types.SiteNinetyNineAcres,
		CardSelectors: append([]string{
			".srpTuple__tupleCard",
			".srpTuple",
			`[class*="tupleCard"]`,
			`[class*="propertyCard"]`,
		}, genericCardSelectors...),
		TitleSelectors: []string{
			`[class*="tupleTitle"]`,
			"h2", "h3", "h4",
			`[class*="title"]`,
			`[class*="heading"]`,
			`[data-testid*="title"]`,
		},
		TitleAvoid:       commonTitleAvoid,
		OverlaySelectors: commonOverlaySelectors,
		LoadMoreSelectors: []string{
			`[class*="loadMore"]`,
			`button[class*="more"]`,
		},
		LoadMoreTexts: commonLoadMoreTexts,
		AdvanceOrder:  []string{AdvanceLoadMore, AdvanceScroll, AdvancePaginate},
		ImageAttrs:    []string{"src", "data-src", "data-lazy"},
		ImageDomainTokens: []string{
			"99acres", "cloudfront", "amazonaws", "images",
		},
		Policies: []string{"normalize-price", "titlecase-places"},
	},

	types.SiteMagicBricks: {
		Site: types.SiteMagicBricks,
		CardSelectors: append([]string{
			"div.mb-srp__card",
			"div.listingCard",
			".srpCard",
			`[class*="mb-srp"]`,
		}, genericCardSelectors...),
		TitleSelectors: []string{
			".mb-srp__card--title",
			"h2", "h3", "h4",
			`[class*="title"]`,
			`[class*="name"]`,
			`[data-testid*="title"]`,
		},
		TitleAvoid:       commonTitleAvoid,
		OverlaySelectors: commonOverlaySelectors,
		LoadMoreSelectors: []string{
			`[class*="loadmore"]`,
			`button[class*="more"]`,
		},
		LoadMoreTexts: commonLoadMoreTexts,
		AdvanceOrder:  []string{AdvanceLoadMore, AdvanceScroll},
		ImageAttrs:    []string{"src", "data-src", "data-original", "data-srcset", "data-lazy"},
		ImageDomainTokens: []string{
			"magicbricks", "staticmb", "cloudfront", "amazonaws", "images",
		},
		Policies: []string{"normalize-price", "titlecase-places"},
	},

	types.SiteNoBroker: {
		Site: types.SiteNoBroker,
		CardSelectors: append([]string{
			`[class*="nb__1Z7Qc"]`,
			`[class*="card"]`,
			`[class*="listing"]`,
			`[class*="property"]`,
			`[data-testid*="card"]`,
			`[data-testid*="listing"]`,
		}, genericCardSelectors...),
		TitleSelectors: []string{
			`[class*="heading"]`,
			"h2", "h3", "h4",
			`[class*="title"]`,
			`[class*="name"]`,
			`[data-testid*="title"]`,
		},
		TitleAvoid:       commonTitleAvoid,
		OverlaySelectors: commonOverlaySelectors,
		LoadMoreSelectors: []string{
			`[class*="loadMore"]`,
			`button[class*="more"]`,
		},
		LoadMoreTexts: commonLoadMoreTexts,
		AdvanceOrder:  []string{AdvanceLoadMore, AdvanceScroll},
		ImageAttrs:    []string{"src", "data-src", "data-lazy"},
		ImageDomainTokens: []string{
			"nobroker", "cloudfront", "amazonaws", "images",
		},
		Policies: []string{"drop-studio", "clean-building-name", "normalize-price", "titlecase-places"},
	},
}

// ProfileFor returns the built-in profile for a portal.
func ProfileFor(site types.Site) (*SiteProfile, error) {
	p, ok := profiles[site]
	if !ok {
		return nil, fmt.Errorf("no profile for site %q", site)
	}
	return p, nil
}

// Sites lists the portals with built-in profiles.
func Sites() []types.Site {
	return []types.Site{types.SiteNinetyNineAcres, types.SiteMagicBricks, types.SiteNoBroker}
}
