// pkg/types/types.go
package types

import (
	"fmt"
	"strings"
	"time"
)

// Site identifies a supported property portal.
type Site string

const (
	SiteNinetyNineAcres Site = "99acres"
	SiteMagicBricks     Site = "magicbricks"
	SiteNoBroker        Site = "nobroker"
)

// ValidSites returns all supported portal identifiers.
func ValidSites() []Site {
	return []Site{SiteNinetyNineAcres, SiteMagicBricks, SiteNoBroker}
}

// IsValid checks if the site is a supported portal.
func (s Site) IsValid() bool {
	for _, valid := range ValidSites() {
		if s == valid {
			return true
		}
	}
	return false
}

// String returns the portal identifier as used in URLs, filenames and logs.
func (s Site) String() string {
	return string(s)
}

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ValidRunStatuses returns all valid run status values.
func ValidRunStatuses() []RunStatus {
	return []RunStatus{RunRunning, RunCompleted, RunFailed, RunCancelled}
}

// IsValid checks if the status is a valid value.
func (s RunStatus) IsValid() bool {
	for _, valid := range ValidRunStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// DoneReason explains why a crawl run stopped.
type DoneReason string

const (
	// DoneTarget means the configured listing target was reached.
	DoneTarget DoneReason = "target_reached"
	// DoneExhausted means three consecutive advance rounds produced no new cards.
	DoneExhausted DoneReason = "exhausted"
	// DoneBudget means the page or wall-clock budget ran out.
	DoneBudget DoneReason = "budget_exceeded"
	// DoneCancelled means the run context was cancelled.
	DoneCancelled DoneReason = "cancelled"
)

// Link is one outbound anchor or button harvested from a listing card.
type Link struct {
	URL         string `json:"url"`
	Label       string `json:"label"`
	OpensNewTab bool   `json:"opens_new_tab,omitempty"`
}

// ListingRecord is one residential listing as extracted from a portal card.
// String fields keep the portal's display text; normalized numeric views
// (PriceAmount, AreaSqft) are derived during post-processing and extraction.
type ListingRecord struct {
	Position    int    `json:"position"`
	Title       string `json:"title"`
	PropertyURL string `json:"property_url,omitempty"`

	Price        string  `json:"price"`
	PriceAmount  float64 `json:"price_amount,omitempty"`
	PricePerSqft string  `json:"price_per_sqft,omitempty"`
	EMI          string  `json:"emi,omitempty"`

	ApartmentType string `json:"apartment_type,omitempty"`
	BedroomCount  string `json:"bedroom_count,omitempty"`
	BathroomCount string `json:"bathroom_count,omitempty"`
	BalconyCount  string `json:"balcony_count,omitempty"`

	AreaDisplay string `json:"area_display,omitempty"`
	AreaSqft    int    `json:"area_sqft,omitempty"`

	FacingDirection    string `json:"facing_direction,omitempty"`
	FloorInfo          string `json:"floor_info,omitempty"`
	FurnishingStatus   string `json:"furnishing_status,omitempty"`
	PropertyAge        string `json:"property_age,omitempty"`
	PossessionStatus   string `json:"possession_status,omitempty"`
	ParkingDescription string `json:"parking_description,omitempty"`

	OwnerName    string `json:"owner_name,omitempty"`
	BrokerStatus string `json:"broker_status,omitempty"`
	VerifiedTag  bool   `json:"verified_tag"`
	PremiumTag   bool   `json:"premium_tag"`

	ImageCount int      `json:"image_count"`
	ImageURLs  []string `json:"image_urls,omitempty"`

	NearbyPlaces  []string `json:"nearby_places,omitempty"`
	Amenities     []string `json:"amenities,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
	OutboundLinks []Link   `json:"outbound_links,omitempty"`
	Description   string   `json:"description,omitempty"`

	Locality    string    `json:"locality,omitempty"`
	Site        Site      `json:"site"`
	ExtractedAt time.Time `json:"extracted_at"`
	SourceFile  string    `json:"source_file,omitempty"`
	Fingerprint string    `json:"fingerprint"`
}

// ListingColumns is the stable export column order used by tabular sinks.
var ListingColumns = []string{
	"position", "title", "property_url",
	"price", "price_amount", "price_per_sqft", "emi",
	"apartment_type", "bedroom_count", "bathroom_count", "balcony_count",
	"area_display", "area_sqft",
	"facing_direction", "floor_info", "furnishing_status", "property_age",
	"possession_status", "parking_description",
	"owner_name", "broker_status", "verified_tag", "premium_tag",
	"image_count", "image_urls",
	"nearby_places", "amenities", "highlights", "description",
	"locality", "site", "extracted_at", "source_file", "fingerprint",
}

// Map converts the record into the generic column map consumed by sinks.
// List fields are joined with " | " so tabular formats stay single-line.
func (r ListingRecord) Map() map[string]interface{} {
	return map[string]interface{}{
		"position":            r.Position,
		"title":               r.Title,
		"property_url":        r.PropertyURL,
		"price":               r.Price,
		"price_amount":        r.PriceAmount,
		"price_per_sqft":      r.PricePerSqft,
		"emi":                 r.EMI,
		"apartment_type":      r.ApartmentType,
		"bedroom_count":       r.BedroomCount,
		"bathroom_count":      r.BathroomCount,
		"balcony_count":       r.BalconyCount,
		"area_display":        r.AreaDisplay,
		"area_sqft":           r.AreaSqft,
		"facing_direction":    r.FacingDirection,
		"floor_info":          r.FloorInfo,
		"furnishing_status":   r.FurnishingStatus,
		"property_age":        r.PropertyAge,
		"possession_status":   r.PossessionStatus,
		"parking_description": r.ParkingDescription,
		"owner_name":          r.OwnerName,
		"broker_status":       r.BrokerStatus,
		"verified_tag":        r.VerifiedTag,
		"premium_tag":         r.PremiumTag,
		"image_count":         r.ImageCount,
		"image_urls":          strings.Join(r.ImageURLs, " | "),
		"nearby_places":       strings.Join(r.NearbyPlaces, " | "),
		"amenities":           strings.Join(r.Amenities, " | "),
		"highlights":          strings.Join(r.Highlights, " | "),
		"description":         r.Description,
		"locality":            r.Locality,
		"site":                string(r.Site),
		"extracted_at":        r.ExtractedAt,
		"source_file":         r.SourceFile,
		"fingerprint":         r.Fingerprint,
	}
}

// optionalFields lists the quality-scored fields checked by Completeness.
var optionalFields = []string{
	"property_url", "price_per_sqft", "emi", "apartment_type", "bedroom_count",
	"bathroom_count", "balcony_count", "area_display", "facing_direction",
	"floor_info", "furnishing_status", "property_age", "possession_status",
	"parking_description", "owner_name", "broker_status", "locality",
	"description",
}

// Completeness returns the fraction of optional fields that are populated,
// in [0, 1]. Title and price are required and not counted.
func (r ListingRecord) Completeness() float64 {
	m := r.Map()
	filled := 0
	for _, field := range optionalFields {
		switch v := m[field].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				filled++
			}
		case int:
			if v > 0 {
				filled++
			}
		}
	}
	extras := 0
	if len(r.ImageURLs) > 0 {
		extras++
	}
	if len(r.NearbyPlaces) > 0 {
		extras++
	}
	if len(r.Amenities) > 0 {
		extras++
	}
	total := len(optionalFields) + 3
	return float64(filled+extras) / float64(total)
}

// RunSummary captures the outcome of one crawl run. It is the shared result
// shape between the CLI, the dashboard store and the Summary export sheet.
type RunSummary struct {
	RunID      string     `json:"run_id"`
	Site       Site       `json:"site"`
	Status     RunStatus  `json:"status"`
	Reason     DoneReason `json:"done_reason,omitempty"`
	City       string     `json:"city,omitempty"`
	Localities []string   `json:"localities,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	TargetListings   int `json:"target_listings"`
	PagesVisited     int `json:"pages_visited"`
	RoundsAdvanced   int `json:"rounds_advanced"`
	CardsSeen        int `json:"cards_seen"`
	CardsValid       int `json:"cards_valid"`
	RecordsExtracted int `json:"records_extracted"`
	RecordsDropped   int `json:"records_dropped"`
	RecordsSaved     int `json:"records_saved"`

	// FieldFailures counts extraction misses per field name.
	FieldFailures map[string]int `json:"field_failures,omitempty"`
	// ErrorCounts counts errors per taxonomy kind.
	ErrorCounts map[string]int `json:"error_counts,omitempty"`

	OutputPaths []string `json:"output_paths,omitempty"`
	LogPath     string   `json:"log_path,omitempty"`
}

// Duration returns the run's wall-clock duration, zero while still running.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ValidationRate returns the share of seen cards that passed validation.
func (s RunSummary) ValidationRate() float64 {
	if s.CardsSeen == 0 {
		return 0
	}
	return float64(s.CardsValid) / float64(s.CardsSeen)
}

// String renders a one-line operator summary.
func (s RunSummary) String() string {
	return fmt.Sprintf("run %s [%s] %s: %d/%d cards valid, %d saved, %d pages, reason=%s",
		s.RunID, s.Site, s.Status, s.CardsValid, s.CardsSeen, s.RecordsSaved,
		s.PagesVisited, s.Reason)
}
