// internal/scraper/localities.go
package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/propertylens/propertylens/pkg/types"
)

// gurgaonSectorCount is the highest numbered sector in the catalog.
const gurgaonSectorCount = 115

// namedGurgaonLocalities are the non-sector areas worth crawling on their
// own. Sectors are generated alongside these.
var namedGurgaonLocalities = []string{
	"DLF Phase 1",
	"DLF Phase 2",
	"DLF Phase 3",
	"DLF Phase 4",
	"DLF Phase 5",
	"Sushant Lok 1",
	"Sushant Lok 2",
	"Sushant Lok 3",
	"South City 1",
	"South City 2",
	"Golf Course Road",
	"Golf Course Extension Road",
	"Sohna Road",
	"MG Road",
	"Palam Vihar",
	"New Gurgaon",
	"Dwarka Expressway",
	"Nirvana Country",
	"Ardee City",
	"Malibu Towne",
	"Udyog Vihar",
	"Manesar",
}

// GurgaonLocalities returns the full crawl catalog: every sector plus the
// named areas.
func GurgaonLocalities() []string {
	out := make([]string, 0, gurgaonSectorCount+len(namedGurgaonLocalities))
	for i := 1; i <= gurgaonSectorCount; i++ {
		out = append(out, "Sector "+strconv.Itoa(i))
	}
	out = append(out, namedGurgaonLocalities...)
	return out
}

var slugCleanPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a place name into a URL path fragment.
func Slugify(s string) string {
	slug := slugCleanPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// SearchURL builds the entry URL for a locality search on a portal.
func SearchURL(site types.Site, city, locality string) (string, error) {
	citySlug := Slugify(city)
	locSlug := Slugify(locality)
	switch site {
	case types.SiteNinetyNineAcres:
		return fmt.Sprintf("https://www.99acres.com/property-in-%s-%s-ffid", locSlug, citySlug), nil
	case types.SiteMagicBricks:
		q := url.Values{}
		q.Set("proptype", "Multistorey-Apartment,Builder-Floor-Apartment,Penthouse,Studio-Apartment")
		q.Set("cityName", city)
		q.Set("Locality", locality)
		return "https://www.magicbricks.com/property-for-sale/residential-real-estate?" + q.Encode(), nil
	case types.SiteNoBroker:
		return fmt.Sprintf("https://www.nobroker.in/property/sale/%s/%s", citySlug, locSlug), nil
	default:
		return "", fmt.Errorf("no search URL builder for site %q", site)
	}
}

var acresPagePattern = regexp.MustCompile(`-page-\d+$`)

// NextPageURL returns the URL of page n for portals with addressable pages.
// Portals that only reveal results through scrolling report ok=false.
func NextPageURL(site types.Site, current string, n int) (string, bool) {
	if site != types.SiteNinetyNineAcres || n < 2 {
		return "", false
	}
	base := acresPagePattern.ReplaceAllString(current, "")
	return fmt.Sprintf("%s-page-%d", base, n), true
}
