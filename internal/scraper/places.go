// internal/scraper/places.go
package scraper

import (
	"regexp"
	"strings"
)

const maxNearbyPlaces = 15

// placePatterns recognize named landmarks by their category suffix. The
// name segment is capitalized words only, so a match cannot swallow the
// connector prose between two landmarks on the same line.
var placePatterns = []*regexp.Regexp{
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Hospital|Medical Centre|Clinic))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:School|College|University|Institute))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Mall|Market|Shopping Centre|Store))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Station|Metro|Airport|Bus Stand))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Park|Garden|Ground))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Temple|Church|Mosque|Gurudwara))\b`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4} (?:Club|Gym))\b`),
}

// distancePatterns catch "5 mins to Cyber Hub" and "Cyber Hub - 2 km" style
// proximity phrases; the place name is the captured group.
var distancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\d+\s*(?:mins?|km|m)\s*(?:to|from|away from))\s+([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4})`),
	regexp.MustCompile(`([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*){0,4})\s*[-–]\s*\d+\s*(?:mins?|km|m)\b`),
}

// placeStopWords are leading words stripped from mined place names:
// articles plus the proximity phrasing that precedes a landmark.
var placeStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"near": true, "close": true, "to": true, "at": true,
	"opp": true, "opposite": true, "behind": true, "beside": true,
}

// minePlaces extracts nearby landmark names from card text. Results are
// deduplicated case-insensitively and capped. A name must keep at least
// two words after stripping, so a bare category word never counts.
func minePlaces(text string) []string {
	var places []string
	seen := make(map[string]bool)

	add := func(raw string) {
		words := strings.Fields(normalizeSpace(raw))
		for len(words) > 0 && placeStopWords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) < 2 {
			return
		}
		name := strings.Join(words, " ")
		if len(name) <= 3 {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		places = append(places, name)
	}

	for _, re := range placePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(places) >= maxNearbyPlaces {
				return places
			}
			add(m[1])
		}
	}
	for _, re := range distancePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(places) >= maxNearbyPlaces {
				return places
			}
			add(m[1])
		}
	}
	return places
}

// amenityVocabulary holds the recognized society amenities. Longer terms
// precede the generic terms they contain so a specific hit suppresses the
// generic one.
var amenityVocabulary = []string{
	"swimming pool",
	"pool",
	"24x7 security",
	"security",
	"gym",
	"parking",
	"lift",
	"elevator",
	"garden",
	"playground",
	"club house",
	"clubhouse",
	"power backup",
	"generator",
	"water supply",
	"bore well",
	"rainwater harvesting",
	"children play area",
	"jogging track",
	"tennis court",
	"badminton court",
	"basketball court",
	"indoor games",
	"library",
	"multipurpose hall",
}

// mineAmenities scans card text for known amenity terms. A term is dropped
// when a longer already-matched term contains it.
func mineAmenities(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range amenityVocabulary {
		if !strings.Contains(lower, term) {
			continue
		}
		shadowed := false
		for _, prev := range found {
			if strings.Contains(prev, term) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			found = append(found, term)
		}
	}
	return found
}
