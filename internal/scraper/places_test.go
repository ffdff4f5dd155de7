// internal/scraper/places_test.go
package scraper

import (
	"fmt"
	"strings"
	"testing"
)

func TestMinePlaces(t *testing.T) {
	text := strings.Join([]string{
		"2 BHK Flat in Sector 45",
		"Near Artemis Hospital",
		"Close to Delhi Public School",
		"Sapphire Mall - 2 km",
		"5 mins to Huda City Metro",
		"The Galleria Market",
	}, "\n")

	places := minePlaces(text)

	got := make(map[string]bool)
	for _, p := range places {
		got[p] = true
	}
	// "Galleria Market" proves the leading article gets stripped.
	want := []string{
		"Artemis Hospital", "Delhi Public School", "Sapphire Mall",
		"Huda City Metro", "Galleria Market",
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("minePlaces missing %q, got %v", w, places)
		}
	}
}

func TestMinePlacesDedupeAndCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Artemis Hospital and Artemis Hospital again\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Landmark %s School\n", strings.Repeat(string(rune('A'+i%26)), 3))
	}
	places := minePlaces(sb.String())

	if len(places) > maxNearbyPlaces {
		t.Errorf("len(places) = %d, want <= %d", len(places), maxNearbyPlaces)
	}
	count := 0
	for _, p := range places {
		if p == "Artemis Hospital" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Artemis Hospital appears %d times, want 1", count)
	}
}

func TestMinePlacesRejectsBareCategories(t *testing.T) {
	if got := minePlaces("AB School nearby"); len(got) != 1 || got[0] != "AB School" {
		t.Errorf("minePlaces = %v, want [AB School]", got)
	}
	// Everything before "Mall" is a stop word, and a lone category word is
	// not a landmark name.
	if got := minePlaces("The And For Mall"); len(got) != 0 {
		t.Errorf("minePlaces stop-word text = %v, want empty", got)
	}
}

func TestMineAmenities(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "specific shadows generic",
			text: "Swimming Pool, Gym, 24x7 Security",
			want: []string{"swimming pool", "24x7 security", "gym"},
		},
		{
			name: "generic alone",
			text: "society has a pool and security guard",
			want: []string{"pool", "security"},
		},
		{
			name: "mixed",
			text: "Lift, Power Backup, Jogging Track",
			want: []string{"lift", "power backup", "jogging track"},
		},
		{
			name: "none",
			text: "bare shell unit",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mineAmenities(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("mineAmenities(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("amenity[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
