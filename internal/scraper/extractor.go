// internal/scraper/extractor.go
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/propertylens/propertylens/internal/browser"
	"github.com/propertylens/propertylens/pkg/types"
)

const (
	maxLinksPerCard   = 25
	maxImagesPerCard  = 30
	maxTitleLength    = 150
	maxDescriptionLen = 300
	titleScanLines    = 5
)

// propertyHrefHints mark an anchor as the listing's detail link. The first
// href carrying a hint wins; otherwise the card's first plain link does.
var propertyHrefHints = []string{
	"propertydetail", "property-detail", "/property", "pdpid", "spid",
	"-for-sale", "/buy",
}

// highlightChips are the badge texts portals print on cards, scanned
// case-insensitively and reported in canonical form.
var highlightChips = []string{
	"RERA Registered", "RERA Approved", "Resale", "New Booking",
	"New Launch", "Ready to Move", "Under Construction", "Zero Brokerage",
	"Negotiable", "Corner Property", "Gated Society", "Park Facing",
}

var allDigitsPattern = regexp.MustCompile(`^\d+$`)

// Extractor turns located cards into listing records. DOM-dependent steps
// (title probing, link and image harvesting) degrade to text-derived
// fallbacks when the card handle has gone stale, so a re-render mid-card
// costs fields, not the record.
type Extractor struct {
	profile *SiteProfile
	base    *url.URL
}

func NewExtractor(profile *SiteProfile) *Extractor {
	return &Extractor{profile: profile}
}

// SetBase sets the page URL used to resolve relative links and image
// sources. Call after each navigation.
func (e *Extractor) SetBase(rawURL string) {
	if u, err := url.Parse(rawURL); err == nil {
		e.base = u
	}
}

// Extract builds a record from a card. The returned slice names the fields
// that came up empty, for the run's failure counters. The error is
// ErrExtraction when the card yielded neither title, price, nor URL.
func (e *Extractor) Extract(ctx context.Context, card Card, position int) (types.ListingRecord, []string, error) {
	text := card.Text
	rec := types.ListingRecord{
		Position:    position,
		Site:        e.profile.Site,
		Fingerprint: card.Fingerprint,
		ExtractedAt: time.Now().UTC(),
	}

	rec.PropertyURL = e.propertyURL(ctx, card)
	rec.Title = e.title(ctx, card)
	if rec.Title == "" && rec.PropertyURL != "" {
		rec.Title = slugTitle(rec.PropertyURL)
	}

	rec.Price, rec.PriceAmount = extractPrice(text)
	rec.PricePerSqft = extractPricePerSqft(text)
	rec.EMI = extractEMI(text)
	apartmentType, beds := extractApartmentType(text)
	rec.ApartmentType = apartmentType
	rec.BedroomCount = countField(beds)
	rec.AreaDisplay, rec.AreaSqft = extractArea(text)
	rec.FacingDirection = extractFacing(text)
	rec.BathroomCount = countField(extractBathrooms(text))
	rec.BalconyCount = countField(extractBalconies(text))
	rec.ParkingDescription = extractParking(text)
	rec.FloorInfo = extractFloor(text)
	rec.FurnishingStatus = extractFurnishing(text)
	rec.PropertyAge = extractAge(text)
	rec.PossessionStatus = extractPossession(text)
	rec.OwnerName, rec.BrokerStatus = extractOwnerInfo(text)
	rec.VerifiedTag, rec.PremiumTag = extractTags(text)
	rec.NearbyPlaces = minePlaces(text)
	rec.Amenities = mineAmenities(text)
	rec.Highlights = chipMatches(text)
	rec.Locality = extractLocality(rec.Title, text)
	rec.Description = e.description(text, rec.Title)

	rec.ImageURLs = e.images(ctx, card)
	rec.ImageCount = len(rec.ImageURLs)
	if declared := declaredPhotoCount(text); declared > rec.ImageCount {
		rec.ImageCount = declared
	}
	rec.OutboundLinks = e.links(ctx, card)

	if rec.Title == "" && rec.Price == "" && rec.PropertyURL == "" {
		return rec, nil, fmt.Errorf("%w: card %s yielded no title, price, or URL",
			ErrExtraction, card.Fingerprint)
	}
	return rec, missedFields(&rec), nil
}

// title probes the profile's title selectors inside the card, then falls
// back to scanning the leading text lines for a name-like line.
func (e *Extractor) title(ctx context.Context, card Card) string {
	for _, sel := range e.profile.TitleSelectors {
		els, err := card.Element.Find(ctx, sel)
		if err != nil {
			break
		}
		for i, el := range els {
			if i >= 3 {
				break
			}
			raw, err := el.Text(ctx)
			if err != nil {
				continue
			}
			t := firstLine(raw)
			if e.plausibleTitle(t) {
				return t
			}
		}
	}
	return e.titleFromLines(card.Text)
}

func (e *Extractor) plausibleTitle(t string) bool {
	if len(t) <= 3 || len(t) > maxTitleLength {
		return false
	}
	if allDigitsPattern.MatchString(t) {
		return false
	}
	lower := strings.ToLower(t)
	for _, avoid := range e.profile.TitleAvoid {
		if strings.Contains(lower, avoid) {
			return false
		}
	}
	return true
}

// titleFromLines scans the first few card lines for one that reads like a
// listing name rather than a price or configuration fragment.
func (e *Extractor) titleFromLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i >= titleScanLines {
			break
		}
		t := normalizeSpace(line)
		if len(t) < 5 || len(t) > 100 {
			continue
		}
		if strings.Contains(t, "₹") || strings.Contains(strings.ToLower(t), "bhk") {
			continue
		}
		head := t
		if len(head) > 10 {
			head = head[:10]
		}
		if strings.ContainsAny(head, "0123456789") {
			continue
		}
		if !e.plausibleTitle(t) {
			continue
		}
		return t
	}
	return ""
}

// propertyURL harvests the card's anchors and picks the detail link.
func (e *Extractor) propertyURL(ctx context.Context, card Card) string {
	var hrefs []string
	if tag, err := card.Element.TagName(ctx); err == nil && tag == "a" {
		if href, err := card.Element.Attribute(ctx, "href"); err == nil && href != "" {
			hrefs = append(hrefs, href)
		}
	}
	els, err := card.Element.Find(ctx, "a[href]")
	if err == nil {
		for i, el := range els {
			if i >= maxLinksPerCard {
				break
			}
			href, err := el.Attribute(ctx, "href")
			if err != nil {
				continue
			}
			hrefs = append(hrefs, href)
		}
	}

	var first string
	for _, raw := range hrefs {
		resolved := e.resolve(raw)
		if resolved == "" {
			continue
		}
		lower := strings.ToLower(resolved)
		for _, hint := range propertyHrefHints {
			if strings.Contains(lower, hint) {
				return resolved
			}
		}
		if first == "" {
			first = resolved
		}
	}
	return first
}

// images collects photo URLs from the card's img nodes and inline
// background styles, filtered against the profile's domain tokens.
func (e *Extractor) images(ctx context.Context, card Card) []string {
	var urls []string
	seen := make(map[string]bool)

	add := func(raw string) {
		resolved := e.resolve(raw)
		if resolved == "" || seen[resolved] {
			return
		}
		if !keepImageURL(resolved, e.profile.ImageDomainTokens) {
			return
		}
		seen[resolved] = true
		urls = append(urls, resolved)
	}

	els, err := card.Element.Find(ctx, "img")
	if err == nil {
		for i, el := range els {
			if i >= maxImagesPerCard {
				break
			}
			for _, attr := range e.profile.ImageAttrs {
				v, err := el.Attribute(ctx, attr)
				if err != nil || v == "" {
					continue
				}
				if strings.Contains(attr, "srcset") {
					v = firstURLFromSrcset(v)
				}
				if v != "" {
					add(v)
					break
				}
			}
		}
	}

	bgs, err := card.Element.Find(ctx, `[style*="background-image"]`)
	if err == nil {
		for i, el := range bgs {
			if i >= maxImagesPerCard {
				break
			}
			style, err := el.Attribute(ctx, "style")
			if err != nil {
				continue
			}
			if u := cssBackgroundURL(style); u != "" {
				add(u)
			}
		}
	}
	return urls
}

// onclickURLPattern pulls the first quoted URL or absolute path out of an
// inline click handler.
var onclickURLPattern = regexp.MustCompile(`["']((?:https?://|/)[^"']*)["']`)

// links harvests the card's clickable elements into outbound links: URL
// from href, data-href, or an onclick handler, label from the element
// text with title and aria-label fallbacks.
func (e *Extractor) links(ctx context.Context, card Card) []types.Link {
	els, err := card.Element.Find(ctx, `a, button, [role="button"], [onclick], [data-href]`)
	if err != nil {
		return nil
	}
	var links []types.Link
	for i, el := range els {
		if i >= maxLinksPerCard {
			break
		}
		raw := attrOr(ctx, el, "href", "")
		if raw == "" {
			raw = attrOr(ctx, el, "data-href", "")
		}
		if raw == "" {
			if m := onclickURLPattern.FindStringSubmatch(attrOr(ctx, el, "onclick", "")); m != nil {
				raw = m[1]
			}
		}
		resolved := e.resolve(raw)
		if resolved == "" {
			continue
		}

		label := ""
		if txt, err := el.Text(ctx); err == nil {
			label = firstLine(txt)
		}
		if label == "" {
			label = attrOr(ctx, el, "title", "")
		}
		if label == "" {
			label = attrOr(ctx, el, "aria-label", "")
		}
		if label == "" {
			label = "Link"
		}

		links = append(links, types.Link{
			URL:         resolved,
			Label:       label,
			OpensNewTab: attrOr(ctx, el, "target", "") == "_blank",
		})
	}
	return links
}

func attrOr(ctx context.Context, el browser.Element, name, fallback string) string {
	v, err := el.Attribute(ctx, name)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

// resolve turns a possibly relative URL into an absolute one against the
// current page. Non-navigational schemes are dropped.
func (e *Extractor) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "#" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if e.base != nil {
		u = e.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// description picks the first substantial prose line that is not the title
// or a price fragment.
func (e *Extractor) description(text, title string) string {
	for _, line := range strings.Split(text, "\n") {
		t := normalizeSpace(line)
		if len(t) < 25 || t == title || strings.Contains(t, "₹") {
			continue
		}
		if len(t) > maxDescriptionLen {
			t = t[:maxDescriptionLen]
		}
		return t
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return normalizeSpace(s)
}

func chipMatches(text string) []string {
	lower := strings.ToLower(text)
	var chips []string
	for _, chip := range highlightChips {
		if strings.Contains(lower, strings.ToLower(chip)) {
			chips = append(chips, chip)
		}
	}
	return chips
}

// slugTitle derives a last-resort title from the detail URL's path slug.
func slugTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 {
		return ""
	}
	slug := strings.TrimSuffix(segs[len(segs)-1], ".html")
	parts := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	var words []string
	for _, p := range parts {
		if allDigitsPattern.MatchString(p) || len(p) <= 1 {
			continue
		}
		words = append(words, strings.ToUpper(p[:1])+strings.ToLower(p[1:]))
	}
	if len(words) < 2 {
		return ""
	}
	return strings.Join(words, " ")
}

// missedFields names the record fields that came up empty, in a stable
// order, for the run's per-field failure counters.
func missedFields(r *types.ListingRecord) []string {
	var missed []string
	probe := []struct {
		name  string
		empty bool
	}{
		{"title", r.Title == ""},
		{"property_url", r.PropertyURL == ""},
		{"price", r.Price == ""},
		{"price_per_sqft", r.PricePerSqft == ""},
		{"emi", r.EMI == ""},
		{"apartment_type", r.ApartmentType == ""},
		{"area", r.AreaDisplay == ""},
		{"facing", r.FacingDirection == ""},
		{"bathrooms", r.BathroomCount == ""},
		{"balconies", r.BalconyCount == ""},
		{"parking", r.ParkingDescription == ""},
		{"floor", r.FloorInfo == ""},
		{"furnishing", r.FurnishingStatus == ""},
		{"property_age", r.PropertyAge == ""},
		{"possession", r.PossessionStatus == ""},
		{"owner", r.OwnerName == "" && r.BrokerStatus == ""},
		{"locality", r.Locality == ""},
		{"images", r.ImageCount == 0},
		{"nearby_places", len(r.NearbyPlaces) == 0},
		{"amenities", len(r.Amenities) == 0},
	}
	for _, p := range probe {
		if p.empty {
			missed = append(missed, p.name)
		}
	}
	return missed
}

// countField renders a positive count in decimal; zero stays empty so the
// field reads as absent downstream.
func countField(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
