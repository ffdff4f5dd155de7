// internal/scraper/images.go
package scraper

import (
	"regexp"
	"strings"
)

// imageBlockTokens reject decorative assets. The bare "ad" token is scoped
// to path segments so it cannot hit words like "road" or "uploaded".
var imageBlockTokens = []string{
	"logo", "icon", "avatar", "profile", "banner", "advert", "/ad/", "/ads/",
}

// imageAllowKeywords accept an image URL regardless of its host.
var imageAllowKeywords = []string{
	"property", "house", "apartment", "flat", "home", "real", "estate",
}

var cssURLPattern = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)

// keepImageURL reports whether a raw image URL looks like a listing photo.
// domainTokens come from the site profile.
func keepImageURL(raw string, domainTokens []string) bool {
	if len(raw) < 10 || strings.HasPrefix(raw, "data:") {
		return false
	}
	lower := strings.ToLower(raw)
	for _, tok := range imageBlockTokens {
		if strings.Contains(lower, tok) {
			return false
		}
	}
	for _, kw := range imageAllowKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, tok := range domainTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// firstURLFromSrcset returns the first candidate URL of a srcset value.
func firstURLFromSrcset(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	first := strings.Split(v, ",")[0]
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// cssBackgroundURL pulls the URL out of an inline background-image style.
func cssBackgroundURL(style string) string {
	if m := cssURLPattern.FindStringSubmatch(style); m != nil {
		return m[1]
	}
	return ""
}
