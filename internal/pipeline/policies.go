// internal/pipeline/policies.go
package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/propertylens/propertylens/internal/scraper"
	"github.com/propertylens/propertylens/pkg/types"
)

// A Policy is one named post-processing step applied to extracted records
// before they reach a sink. Policies mutate the record in place; a true
// return drops the record entirely.
type Policy struct {
	Name  string
	apply func(r *types.ListingRecord) bool
}

// Chain is an ordered list of policies applied per record.
type Chain []Policy

// registry maps config policy names to implementations.
var registry = map[string]func(r *types.ListingRecord) bool{
	"drop-studio":         dropStudio,
	"clean-building-name": cleanBuildingName,
	"normalize-price":     normalizePrice,
	"titlecase-places":    titlecasePlaces,
}

// ForNames resolves config policy names into a chain. Unknown names are a
// configuration error, not a silent skip.
func ForNames(names []string) (Chain, error) {
	chain := make(Chain, 0, len(names))
	for _, name := range names {
		apply, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown policy %q (known: %s)", name, strings.Join(PolicyNames(), ", "))
		}
		chain = append(chain, Policy{Name: name, apply: apply})
	}
	return chain, nil
}

// PolicyNames lists the registered policy names in a stable order.
func PolicyNames() []string {
	return []string{"clean-building-name", "drop-studio", "normalize-price", "titlecase-places"}
}

// Apply runs the chain over one record. When a policy drops the record,
// later policies do not run and the dropping policy's name is returned.
func (c Chain) Apply(r *types.ListingRecord) (dropped bool, by string) {
	for _, p := range c {
		if p.apply(r) {
			return true, p.Name
		}
	}
	return false, ""
}

// dropStudio removes studio-scale records. NoBroker mixes these into family
// housing searches and they are rarely what a locality crawl is after.
func dropStudio(r *types.ListingRecord) bool {
	switch r.ApartmentType {
	case "1 RK", "1 BHK":
		return true
	}
	return false
}

var (
	bhkPrefixPattern    = regexp.MustCompile(`(?i)^\d+\s*(?:BHK|RK)\s+`)
	forSaleTailPattern  = regexp.MustCompile(`(?i)\s+for\s+(?:sale|rent)\b.*$`)
	sectorInTitle       = regexp.MustCompile(`(?i)\bSector\s*(\d+[A-Z]?)\b`)
	titleSeparatorsTrim = " -|,:"
)

// cleanBuildingName strips the configuration prefix and the "for sale"
// boilerplate portals append to titles, leaving the building or project
// name. A sector mentioned in the original title fills an empty locality.
func cleanBuildingName(r *types.ListingRecord) bool {
	if r.Title == "" {
		return false
	}
	if r.Locality == "" {
		if m := sectorInTitle.FindStringSubmatch(r.Title); m != nil {
			r.Locality = "Sector " + strings.ToUpper(m[1])
		}
	}
	cleaned := bhkPrefixPattern.ReplaceAllString(r.Title, "")
	cleaned = forSaleTailPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), titleSeparatorsTrim)
	if len(cleaned) >= 3 && cleaned != r.Title {
		r.Title = cleaned
	}
	return false
}

// normalizePrice backfills the numeric amount from the display string for
// records extracted before the amount parser ran, or re-parses when the
// display and amount disagree about being set.
func normalizePrice(r *types.ListingRecord) bool {
	r.Price = strings.TrimSpace(r.Price)
	if r.PriceAmount == 0 && r.Price != "" {
		r.PriceAmount = scraper.ParsePriceAmount(r.Price)
	}
	return false
}

// titlecasePlaces canonicalizes the casing of mined place and amenity
// names, which arrive in whatever case the portal rendered them.
func titlecasePlaces(r *types.ListingRecord) bool {
	caser := cases.Title(language.English)
	for i, p := range r.NearbyPlaces {
		r.NearbyPlaces[i] = caser.String(p)
	}
	for i, a := range r.Amenities {
		r.Amenities[i] = caser.String(a)
	}
	return false
}
