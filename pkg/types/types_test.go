// pkg/types/types_test.go
package types

import (
	"strings"
	"testing"
	"time"
)

func TestSiteIsValid(t *testing.T) {
	tests := []struct {
		name  string
		site  Site
		valid bool
	}{
		{"99acres", SiteNinetyNineAcres, true},
		{"magicbricks", SiteMagicBricks, true},
		{"nobroker", SiteNoBroker, true},
		{"empty", Site(""), false},
		{"unknown portal", Site("housing"), false},
		{"case sensitive", Site("MagicBricks"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.site.IsValid(); got != tt.valid {
				t.Errorf("Site(%q).IsValid() = %v, want %v", tt.site, got, tt.valid)
			}
		})
	}
}

func TestRunStatusIsValid(t *testing.T) {
	for _, status := range ValidRunStatuses() {
		if !status.IsValid() {
			t.Errorf("status %q should be valid", status)
		}
	}
	if RunStatus("paused").IsValid() {
		t.Error("unsupported status should be invalid")
	}
}

func TestListingRecordMapRoundtrip(t *testing.T) {
	record := ListingRecord{
		Position:     3,
		Title:        "2 BHK Flat in Green Meadows",
		Price:        "₹45 Lacs",
		PriceAmount:  4500000,
		AreaSqft:     1200,
		ImageURLs:    []string{"https://imagecdn.99acres.com/a.jpg", "https://imagecdn.99acres.com/b.jpg"},
		NearbyPlaces: []string{"City Hospital", "Green Valley School"},
		Site:         SiteNinetyNineAcres,
		Fingerprint:  "id:card-3",
	}

	m := record.Map()

	if m["title"] != record.Title {
		t.Errorf("title = %v, want %v", m["title"], record.Title)
	}
	if m["price_amount"] != 4500000.0 {
		t.Errorf("price_amount = %v, want 4500000", m["price_amount"])
	}
	joined, _ := m["image_urls"].(string)
	if !strings.Contains(joined, " | ") {
		t.Errorf("image_urls should be pipe-joined, got %q", joined)
	}
	if m["site"] != "99acres" {
		t.Errorf("site = %v, want 99acres", m["site"])
	}

	// Every export column must be present in the map.
	for _, column := range ListingColumns {
		if _, ok := m[column]; !ok {
			t.Errorf("export column %q missing from Map()", column)
		}
	}
	if len(m) != len(ListingColumns) {
		t.Errorf("Map() has %d keys, ListingColumns has %d", len(m), len(ListingColumns))
	}
}

func TestCompleteness(t *testing.T) {
	empty := ListingRecord{Title: "Flat", Price: "₹1 Cr"}
	if got := empty.Completeness(); got != 0 {
		t.Errorf("empty record completeness = %v, want 0", got)
	}

	partial := ListingRecord{
		Title:         "2 BHK Flat",
		Price:         "₹45 Lacs",
		ApartmentType: "2 BHK",
		AreaDisplay:   "1200 sqft",
		Locality:      "Sector 57",
		NearbyPlaces:  []string{"City Hospital"},
	}
	got := partial.Completeness()
	if got <= 0 || got >= 1 {
		t.Errorf("partial record completeness = %v, want in (0, 1)", got)
	}

	fuller := partial
	fuller.FloorInfo = "3 out of 12"
	fuller.FurnishingStatus = "Semifurnished"
	if fuller.Completeness() <= got {
		t.Error("adding fields should raise completeness")
	}
}

func TestRunSummaryDerived(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	summary := RunSummary{
		RunID:      "a1b2c3d4",
		Site:       SiteNoBroker,
		Status:     RunCompleted,
		Reason:     DoneTarget,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		CardsSeen:  40,
		CardsValid: 30,
	}

	if summary.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", summary.Duration())
	}
	if rate := summary.ValidationRate(); rate != 0.75 {
		t.Errorf("ValidationRate() = %v, want 0.75", rate)
	}

	running := RunSummary{StartedAt: start}
	if running.Duration() != 0 {
		t.Error("running summary should report zero duration")
	}
	if (RunSummary{}).ValidationRate() != 0 {
		t.Error("zero cards should report zero validation rate")
	}

	line := summary.String()
	for _, want := range []string{"a1b2c3d4", "nobroker", "30/40"} {
		if !strings.Contains(line, want) {
			t.Errorf("String() = %q, missing %q", line, want)
		}
	}
}
