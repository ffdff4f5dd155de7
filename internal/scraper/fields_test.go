// internal/scraper/fields_test.go
package scraper

import (
	"testing"
)

func TestParsePriceAmount(t *testing.T) {
	tests := []struct {
		name    string
		display string
		want    float64
	}{
		{name: "lacs with symbol", display: "₹45 Lacs", want: 45e5},
		{name: "crore decimal", display: "1.2 Cr", want: 1.2e7},
		{name: "lakh spelling", display: "90 Lakh", want: 90e5},
		{name: "plain rupees with commas", display: "₹85,00,000", want: 85e5},
		{name: "short L unit", display: "₹72 L", want: 72e5},
		{name: "thousands", display: "9.5 K", want: 9500},
		{name: "empty", display: "", want: 0},
		{name: "no digits", display: "price on request", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePriceAmount(tt.display); got != tt.want {
				t.Errorf("ParsePriceAmount(%q) = %v, want %v", tt.display, got, tt.want)
			}
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantDisplay string
		wantAmount  float64
	}{
		{
			name:        "symbol with unit",
			text:        "2 BHK Flat\n₹45 Lacs\nEMI starts at ₹23,000",
			wantDisplay: "₹45 Lacs",
			wantAmount:  45e5,
		},
		{
			name:        "unit pattern beats an earlier bare symbol",
			text:        "Booking token ₹50,000\nAll inclusive ₹62 Lacs",
			wantDisplay: "₹62 Lacs",
			wantAmount:  62e5,
		},
		{
			name:        "bare amount with unit",
			text:        "Asking 1.05 Crores negotiable",
			wantDisplay: "1.05 Crores",
			wantAmount:  1.05e7,
		},
		{
			name:        "symbol only fallback",
			text:        "Token amount ₹9,500 per month",
			wantDisplay: "₹9,500",
			wantAmount:  9500,
		},
		{
			name:        "no price",
			text:        "Spacious flat with garden view",
			wantDisplay: "",
			wantAmount:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, amount := extractPrice(tt.text)
			if display != tt.wantDisplay {
				t.Errorf("display = %q, want %q", display, tt.wantDisplay)
			}
			if amount != tt.wantAmount {
				t.Errorf("amount = %v, want %v", amount, tt.wantAmount)
			}
		})
	}
}

func TestExtractApartmentType(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType string
		wantBeds int
	}{
		{name: "bhk", text: "Spacious 2 BHK in Sector 45", wantType: "2 BHK", wantBeds: 2},
		{name: "rk", text: "1 RK studio for sale", wantType: "1 RK", wantBeds: 1},
		{name: "bedroom word", text: "3 Bedrooms, 2 Bathrooms", wantType: "3 BHK", wantBeds: 3},
		{name: "parking is not rk", text: "2 Car Parking available", wantType: "", wantBeds: 0},
		{name: "none", text: "Plot for sale", wantType: "", wantBeds: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotBeds := extractApartmentType(tt.text)
			if gotType != tt.wantType || gotBeds != tt.wantBeds {
				t.Errorf("extractApartmentType(%q) = (%q, %d), want (%q, %d)",
					tt.text, gotType, gotBeds, tt.wantType, tt.wantBeds)
			}
		})
	}
}

func TestExtractArea(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantDisplay string
		wantSqft    int
	}{
		{name: "plain sqft", text: "Super Area 1250 sqft", wantDisplay: "1250 sqft", wantSqft: 1250},
		{name: "dotted with comma", text: "Carpet area: 1,250 sq.ft", wantDisplay: "1250 sqft", wantSqft: 1250},
		{name: "metric converted", text: "size 120 sqm approx", wantDisplay: "1292 sqft", wantSqft: 1292},
		{name: "implausibly small", text: "5 sqft locker", wantDisplay: "", wantSqft: 0},
		{name: "none", text: "spacious home", wantDisplay: "", wantSqft: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, sqft := extractArea(tt.text)
			if display != tt.wantDisplay || sqft != tt.wantSqft {
				t.Errorf("extractArea(%q) = (%q, %d), want (%q, %d)",
					tt.text, display, sqft, tt.wantDisplay, tt.wantSqft)
			}
		})
	}
}

func TestExtractFacing(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "cardinal", text: "North Facing property", want: "NORTH"},
		{name: "composite hyphen", text: "North-East Facing", want: "NORTH-EAST"},
		{name: "composite space", text: "South East Facing", want: "SOUTH-EAST"},
		{name: "abbreviation", text: "NE Facing", want: "NE"},
		{name: "park facing is not a direction", text: "Park Facing flat", want: ""},
		{name: "none", text: "great view", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractFacing(tt.text); got != tt.want {
				t.Errorf("extractFacing(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractFurnishing(t *testing.T) {
	// "Furnished" alone must not shadow the specific variants.
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "fully", text: "Fully Furnished 2 BHK", want: "Fully Furnished"},
		{name: "semi hyphen", text: "Semi-Furnished flat", want: "Semi Furnished"},
		{name: "unfurnished", text: "Unfurnished apartment", want: "Unfurnished"},
		{name: "plain", text: "comes Furnished", want: "Furnished"},
		{name: "none", text: "ready to move", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractFurnishing(tt.text); got != tt.want {
				t.Errorf("extractFurnishing(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractFloor(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "out of", text: "4 out of 14 Floors", want: "4 of 14"},
		{name: "slash", text: "7 / 14 Floors", want: "7 of 14"},
		{name: "ordinal", text: "12th Floor, lift available", want: "12th Floor"},
		{name: "ground", text: "Ground Floor unit", want: "Ground Floor"},
		{name: "labeled", text: "Floor: 9", want: "9"},
		{name: "none", text: "penthouse living", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractFloor(tt.text); got != tt.want {
				t.Errorf("extractFloor(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractBathroomsAndBalconies(t *testing.T) {
	text := "3 Bedrooms, 2 Bathrooms, 1 Balcony"
	if got := extractBathrooms(text); got != 2 {
		t.Errorf("extractBathrooms = %d, want 2", got)
	}
	if got := extractBalconies(text); got != 1 {
		t.Errorf("extractBalconies = %d, want 1", got)
	}
	if got := extractBathrooms("2 Washrooms"); got != 2 {
		t.Errorf("extractBathrooms washroom = %d, want 2", got)
	}
	if got := extractBathrooms("no info"); got != 0 {
		t.Errorf("extractBathrooms empty = %d, want 0", got)
	}
}

func TestExtractParking(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "both", text: "Bike and Car Parking", want: "Bike and Car"},
		{name: "car", text: "Car Parking available", want: "Car"},
		{name: "bike", text: "Bike Parking only", want: "Bike"},
		{name: "negative", text: "No Parking", want: "No Parking"},
		{name: "count", text: "2 Parking slots", want: "2"},
		{name: "none", text: "basement storage", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractParking(tt.text); got != tt.want {
				t.Errorf("extractParking(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractPossession(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "ready", text: "Ready to Move property", want: "Ready to Move"},
		{name: "dated", text: "Possession: Dec 2026", want: "Dec 2026"},
		{name: "under construction", text: "Under Construction tower", want: "Under Construction"},
		{name: "none", text: "new listing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPossession(tt.text); got != tt.want {
				t.Errorf("extractPossession(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractOwnerInfo(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantName   string
		wantStatus string
	}{
		{
			name:       "owner with name",
			text:       "Owner: Rajesh Kumar\n₹45 Lacs",
			wantName:   "Rajesh Kumar",
			wantStatus: "Owner",
		},
		{
			name:       "posted by dealer",
			text:       "Posted by Priya Sharma\nDealer",
			wantName:   "Priya Sharma",
			wantStatus: "Dealer",
		},
		{
			name:       "status only",
			text:       "Contact Broker for details",
			wantName:   "",
			wantStatus: "Broker",
		},
		{
			name:       "nothing",
			text:       "2 BHK flat",
			wantName:   "",
			wantStatus: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, status := extractOwnerInfo(tt.text)
			if name != tt.wantName || status != tt.wantStatus {
				t.Errorf("extractOwnerInfo(%q) = (%q, %q), want (%q, %q)",
					tt.text, name, status, tt.wantName, tt.wantStatus)
			}
		})
	}
}

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantVerified bool
		wantPremium  bool
	}{
		{name: "verified", text: "Verified listing", wantVerified: true},
		{name: "unverified", text: "Unverified post", wantVerified: false},
		{name: "premium", text: "Premium Member", wantPremium: true},
		{name: "featured", text: "Featured property", wantPremium: true},
		{name: "both", text: "Verified Premium listing", wantVerified: true, wantPremium: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verified, premium := extractTags(tt.text)
			if verified != tt.wantVerified || premium != tt.wantPremium {
				t.Errorf("extractTags(%q) = (%v, %v), want (%v, %v)",
					tt.text, verified, premium, tt.wantVerified, tt.wantPremium)
			}
		})
	}
}

func TestDeclaredPhotoCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "photos badge", text: "12 Photos", want: 12},
		{name: "view all", text: "View all 8 photos", want: 8},
		{name: "images", text: "3 Images available", want: 3},
		{name: "none", text: "no media", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := declaredPhotoCount(tt.text); got != tt.want {
				t.Errorf("declaredPhotoCount(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractLocality(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		want  string
	}{
		{
			name:  "from title with comma",
			title: "3 BHK Apartment in Sushant Lok, Gurgaon",
			want:  "Sushant Lok",
		},
		{
			name:  "from title to end",
			title: "2 BHK Flat in Green Meadows",
			want:  "Green Meadows",
		},
		{
			name:  "lowercase phrase rejected",
			title: "flat in excellent condition",
			text:  "located at Sector 57 near market",
			want:  "Sector 57",
		},
		{
			name: "nothing",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractLocality(tt.title, tt.text); got != tt.want {
				t.Errorf("extractLocality(%q, %q) = %q, want %q", tt.title, tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractEMIAndPricePerSqft(t *testing.T) {
	text := "₹62 Lacs\nEMI: ₹28,500\n₹5,200 per sq.ft"
	if got := extractEMI(text); got != "EMI: ₹28,500" {
		t.Errorf("extractEMI = %q, want %q", got, "EMI: ₹28,500")
	}
	if got := extractPricePerSqft(text); got != "₹5,200 per sq.ft" {
		t.Errorf("extractPricePerSqft = %q, want %q", got, "₹5,200 per sq.ft")
	}
}
