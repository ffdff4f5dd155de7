// internal/scraper/fields.go
package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// Field cascades are ordered most-specific-first; the first pattern that
// matches wins and the rest are never consulted. All cascades run over the
// card's captured text snapshot, never over live DOM text.

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)₹\s*([0-9,\.]+)\s*(Lacs?|Lakhs?|Crores?|L|Cr)\b`),
	regexp.MustCompile(`(?i)([0-9,\.]+)\s*(Lacs?|Lakhs?|Crores?|L|Cr)\b`),
	regexp.MustCompile(`₹\s*([0-9,\.]+)`),
}

var priceAmountPattern = regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]+)?)\s*(Lacs?|Lakhs?|Crores?|L|Cr|K)?\b`)

var pricePerSqftPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)₹\s*([0-9,]+)\s*(?:/|per)\s*sq\.?\s*ft`),
	regexp.MustCompile(`(?i)([0-9,]+)\s*(?:/|per)\s*sq\.?\s*ft`),
}

var emiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)EMI[:\s]*₹\s*([0-9,]+)`),
	regexp.MustCompile(`(?i)₹\s*([0-9,]+)\s*/?\s*month`),
	regexp.MustCompile(`(?i)([0-9,]+)\s*/\s*month`),
}

var (
	bhkPattern     = regexp.MustCompile(`(?i)(\d+)\s*BHK\b`)
	rkPattern      = regexp.MustCompile(`(?i)(\d+)\s*RK\b`)
	bedroomPattern = regexp.MustCompile(`(?i)(\d+)\s*Bedrooms?\b`)
)

var areaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*sq\.?\s*ft\b`),
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*sqft\b`),
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*sq\.?\s*metres?\b`),
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*sqm\b`),
}

// sqmToSqft converts the metric area variants (indexes 2 and 3 above).
const sqmToSqft = 10.7639

var facingPattern = regexp.MustCompile(
	`(?i)\b(North[\s\-]?East|North[\s\-]?West|South[\s\-]?East|South[\s\-]?West|North|South|East|West|NE|NW|SE|SW)[\s\-]?Facing\b`)

var bathroomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*Bath(?:room)?s?\b`),
	regexp.MustCompile(`(?i)(\d+)\s*Washrooms?\b`),
}

var balconyPattern = regexp.MustCompile(`(?i)(\d+)\s*Balcon(?:y|ies)\b`)

var parkingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(Bike\s*and\s*Car)\s*Parking`),
	regexp.MustCompile(`(?i)(Car)\s*Parking`),
	regexp.MustCompile(`(?i)(Bike)\s*Parking`),
	regexp.MustCompile(`(?i)(No\s*Parking)`),
	regexp.MustCompile(`(?i)(\d+)\s*Parking`),
}

var floorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*out\s*of\s*(\d+)\s*(?:Floors?)?`),
	regexp.MustCompile(`(?i)(\d+)\s*/\s*(\d+)\s*Floors?`),
	regexp.MustCompile(`(?i)\b(Ground|Basement|Upper\s*Ground|Lower\s*Ground)\s*Floor\b`),
	regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)?\s*Floor\b`),
	regexp.MustCompile(`(?i)Floor\s*[:\-]?\s*(\d+)`),
}

// furnishingPatterns must stay in this order: "Furnished" alone would
// shadow the fully/semi/un variants.
var furnishingPatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\bFully[\s\-]?Furnished\b`), "Fully Furnished"},
	{regexp.MustCompile(`(?i)\bSemi[\s\-]?Furnished\b`), "Semi Furnished"},
	{regexp.MustCompile(`(?i)\bUn[\s\-]?furnished\b`), "Unfurnished"},
	{regexp.MustCompile(`(?i)\bFurnished\b`), "Furnished"},
}

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\s*[\-to]+\s*\d+)?\s*Years?\s*Old)`),
	regexp.MustCompile(`(?i)Age[:\s]*(\d+\s*Years?)`),
	regexp.MustCompile(`(?i)(\d+\s*Yrs?\s*Old)`),
}

var possessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Possession[:\s]*([A-Za-z]+[\s']*\d{2,4})`),
	regexp.MustCompile(`(?i)(Ready\s*to\s*Move)`),
	regexp.MustCompile(`(?i)(Under\s*Construction)`),
}

var (
	ownerNamePattern  = regexp.MustCompile(`(?i)\bOwner[:\s]+([A-Z][A-Za-z .]{2,40})`)
	postedByPattern   = regexp.MustCompile(`(?i)Posted\s*by[:\s]*([A-Za-z][A-Za-z ]{2,40})`)
	brokerWordPattern = regexp.MustCompile(`(?i)\b(Owner|Broker|Agent|Dealer)\b`)
	verifiedPattern   = regexp.MustCompile(`(?i)\b(Unverified|Verified)\b`)
	premiumPattern    = regexp.MustCompile(`(?i)\b(Premium|Featured)\b`)
)

var photoCountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)View\s*(?:all\s*)?(\d+)\s*photos?`),
	regexp.MustCompile(`(?i)(\d+)\s*\+?\s*photos?\b`),
	regexp.MustCompile(`(?i)(\d+)\s*images?\b`),
}

var (
	// The capitalized start keeps "in excellent condition" from reading
	// as a place name.
	localityInPattern     = regexp.MustCompile(`\b[iI]n\s+([A-Z][A-Za-z0-9 ]{2,40}?)(?:,|$)`)
	localitySectorPattern = regexp.MustCompile(`(?i)\b(Sector\s*\d+[A-Z]?)\b`)
)

// firstMatch runs the patterns in order and returns the submatches of the
// first one that hits, or nil.
func firstMatch(text string, patterns []*regexp.Regexp) []string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m
		}
	}
	return nil
}

// normalizeSpace collapses runs of whitespace into single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParsePriceAmount converts an Indian price display such as "₹45 Lacs" or
// "1.2 Cr" into rupees. Returns 0 when no amount can be parsed.
func ParsePriceAmount(display string) float64 {
	m := priceAmountPattern.FindStringSubmatch(display)
	if m == nil {
		return 0
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "lac", "lacs", "lakh", "lakhs", "l":
		return num * 1e5
	case "crore", "crores", "cr":
		return num * 1e7
	case "k":
		return num * 1e3
	default:
		return num
	}
}

func extractPrice(text string) (display string, amount float64) {
	m := firstMatch(text, pricePatterns)
	if m == nil {
		return "", 0
	}
	display = normalizeSpace(m[0])
	amount = ParsePriceAmount(display)
	return display, amount
}

func extractPricePerSqft(text string) string {
	if m := firstMatch(text, pricePerSqftPatterns); m != nil {
		return normalizeSpace(m[0])
	}
	return ""
}

func extractEMI(text string) string {
	if m := firstMatch(text, emiPatterns); m != nil {
		return normalizeSpace(m[0])
	}
	return ""
}

// extractApartmentType returns the normalized configuration ("2 BHK",
// "1 RK") and the bedroom count it implies.
func extractApartmentType(text string) (string, int) {
	if m := bhkPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return m[1] + " BHK", n
	}
	if m := rkPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return m[1] + " RK", n
	}
	if m := bedroomPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return m[1] + " BHK", n
	}
	return "", 0
}

// extractArea returns a normalized "<n> sqft" display and the numeric
// square footage. Metric variants are converted.
func extractArea(text string) (string, int) {
	for i, re := range areaPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || n < 10 || n > 99999 {
			continue
		}
		if i >= 2 {
			n = int(float64(n)*sqmToSqft + 0.5)
		}
		return strconv.Itoa(n) + " sqft", n
	}
	return "", 0
}

func extractFacing(text string) string {
	m := facingPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	dir := strings.ToUpper(normalizeSpace(m[1]))
	return strings.ReplaceAll(dir, " ", "-")
}

func extractBathrooms(text string) int {
	if m := firstMatch(text, bathroomPatterns); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func extractBalconies(text string) int {
	if m := balconyPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func extractParking(text string) string {
	if m := firstMatch(text, parkingPatterns); m != nil {
		return normalizeSpace(m[1])
	}
	return ""
}

func extractFloor(text string) string {
	for i, re := range floorPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		switch i {
		case 0, 1:
			return m[1] + " of " + m[2]
		case 4:
			return m[1]
		default:
			return normalizeSpace(m[0])
		}
	}
	return ""
}

func extractFurnishing(text string) string {
	for _, fp := range furnishingPatterns {
		if fp.re.MatchString(text) {
			return fp.canonical
		}
	}
	return ""
}

func extractAge(text string) string {
	if m := firstMatch(text, agePatterns); m != nil {
		return normalizeSpace(m[1])
	}
	return ""
}

func extractPossession(text string) string {
	if m := firstMatch(text, possessionPatterns); m != nil {
		return normalizeSpace(m[1])
	}
	return ""
}

// extractOwnerInfo returns the poster's name when one is printed and the
// poster category word (Owner, Broker, Agent, Dealer).
func extractOwnerInfo(text string) (name, status string) {
	if m := ownerNamePattern.FindStringSubmatch(text); m != nil {
		name = normalizeSpace(m[1])
	} else if m := postedByPattern.FindStringSubmatch(text); m != nil {
		name = normalizeSpace(m[1])
	}
	if m := brokerWordPattern.FindStringSubmatch(text); m != nil {
		w := strings.ToLower(m[1])
		status = strings.ToUpper(w[:1]) + w[1:]
	}
	return name, status
}

func extractTags(text string) (verified, premium bool) {
	if m := verifiedPattern.FindStringSubmatch(text); m != nil {
		verified = strings.EqualFold(m[1], "verified")
	}
	premium = premiumPattern.MatchString(text)
	return verified, premium
}

// declaredPhotoCount returns the photo count a badge advertises, or 0.
func declaredPhotoCount(text string) int {
	if m := firstMatch(text, photoCountPatterns); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// extractLocality looks for an "in <Place>" phrase in the title first and
// falls back to a sector reference anywhere in the card text.
func extractLocality(title, text string) string {
	if m := localityInPattern.FindStringSubmatch(title); m != nil {
		return normalizeSpace(m[1])
	}
	if m := localitySectorPattern.FindStringSubmatch(text); m != nil {
		return normalizeSpace(m[1])
	}
	return ""
}
