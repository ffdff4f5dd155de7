// pkg/api/types.go
package api

import (
	"net/url"
	"strconv"

	"github.com/propertylens/propertylens/pkg/types"
)

// StartRunRequest asks the dashboard to launch a crawl.
type StartRunRequest struct {
	Site       string   `json:"site"`
	City       string   `json:"city,omitempty"`
	Localities []string `json:"localities,omitempty"`
}

// StartRunResponse acknowledges an accepted crawl.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunsOverview combines live runs with recent history.
type RunsOverview struct {
	Active []types.RunSummary `json:"active"`
	Recent []types.RunSummary `json:"recent"`
}

// Listing is one deduplicated listing as served by the dashboard. List
// fields are pipe-joined, timestamps RFC3339.
type Listing struct {
	DedupKey           string  `json:"dedup_key"`
	Position           int     `json:"position"`
	Title              string  `json:"title"`
	PropertyURL        string  `json:"property_url,omitempty"`
	Price              string  `json:"price"`
	PriceAmount        float64 `json:"price_amount,omitempty"`
	PricePerSqft       string  `json:"price_per_sqft,omitempty"`
	EMI                string  `json:"emi,omitempty"`
	ApartmentType      string  `json:"apartment_type,omitempty"`
	BedroomCount       string  `json:"bedroom_count,omitempty"`
	BathroomCount      string  `json:"bathroom_count,omitempty"`
	BalconyCount       string  `json:"balcony_count,omitempty"`
	AreaDisplay        string  `json:"area_display,omitempty"`
	AreaSqft           int     `json:"area_sqft,omitempty"`
	FacingDirection    string  `json:"facing_direction,omitempty"`
	FloorInfo          string  `json:"floor_info,omitempty"`
	FurnishingStatus   string  `json:"furnishing_status,omitempty"`
	PropertyAge        string  `json:"property_age,omitempty"`
	PossessionStatus   string  `json:"possession_status,omitempty"`
	ParkingDescription string  `json:"parking_description,omitempty"`
	OwnerName          string  `json:"owner_name,omitempty"`
	BrokerStatus       string  `json:"broker_status,omitempty"`
	VerifiedTag        bool    `json:"verified_tag"`
	PremiumTag         bool    `json:"premium_tag"`
	ImageCount         int     `json:"image_count"`
	ImageURLs          string  `json:"image_urls,omitempty"`
	NearbyPlaces       string  `json:"nearby_places,omitempty"`
	Amenities          string  `json:"amenities,omitempty"`
	Highlights         string  `json:"highlights,omitempty"`
	Description        string  `json:"description,omitempty"`
	Locality           string  `json:"locality,omitempty"`
	Site               string  `json:"site"`
	ExtractedAt        string  `json:"extracted_at,omitempty"`
	SourceFile         string  `json:"source_file,omitempty"`
	Fingerprint        string  `json:"fingerprint,omitempty"`
	RunID              string  `json:"run_id"`
	FirstSeen          string  `json:"first_seen"`
	LastSeen           string  `json:"last_seen"`
}

// ListingsPage is one page of filtered listings. Total counts every
// match, Count the rows on this page.
type ListingsPage struct {
	Listings []Listing `json:"listings"`
	Count    int       `json:"count"`
	Total    int       `json:"total"`
}

// ListingQuery narrows listing and export requests. Zero values mean
// "no filter".
type ListingQuery struct {
	Site     string
	Locality string
	BHK      string
	MinPrice float64
	MaxPrice float64
	Limit    int
	Offset   int
}

func (q ListingQuery) values() url.Values {
	v := url.Values{}
	if q.Site != "" {
		v.Set("site", q.Site)
	}
	if q.Locality != "" {
		v.Set("locality", q.Locality)
	}
	if q.BHK != "" {
		v.Set("bhk", q.BHK)
	}
	if q.MinPrice > 0 {
		v.Set("min_price", strconv.FormatFloat(q.MinPrice, 'f', -1, 64))
	}
	if q.MaxPrice > 0 {
		v.Set("max_price", strconv.FormatFloat(q.MaxPrice, 'f', -1, 64))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// LocalityCount is one row of the top-localities breakdown.
type LocalityCount struct {
	Locality string `json:"locality"`
	Count    int    `json:"count"`
}

// Stats aggregates the dashboard store.
type Stats struct {
	TotalListings  int             `json:"total_listings"`
	TotalRuns      int             `json:"total_runs"`
	ListingsBySite map[string]int  `json:"listings_by_site"`
	TopLocalities  []LocalityCount `json:"top_localities"`
	AveragePrice   float64         `json:"average_price"`
	LastRunAt      string          `json:"last_run_at,omitempty"`
}

// Health is the server's health report, reduced to the fields clients
// act on.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}
