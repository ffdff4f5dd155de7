// internal/scraper/validator_test.go
package scraper

import (
	"errors"
	"reflect"
	"testing"

	"github.com/propertylens/propertylens/pkg/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     types.ListingRecord
		wantErr bool
	}{
		{
			name: "title plus configuration passes",
			rec: types.ListingRecord{
				Title:         "Green Meadows Apartment",
				ApartmentType: "2 BHK",
			},
			wantErr: false,
		},
		{
			name: "price plus photos passes",
			rec: types.ListingRecord{
				Price:      "₹45 Lacs",
				ImageCount: 3,
			},
			wantErr: false,
		},
		{
			name: "title plus nearby place passes",
			rec: types.ListingRecord{
				Title:        "Sunrise Residency",
				NearbyPlaces: []string{"Artemis Hospital"},
			},
			wantErr: false,
		},
		{
			name: "price plus area passes",
			rec: types.ListingRecord{
				Price:    "₹1.2 Cr",
				AreaSqft: 1400,
			},
			wantErr: false,
		},
		{
			name: "no identity drops even with photos",
			rec: types.ListingRecord{
				ImageCount: 8,
				Locality:   "Sector 57",
			},
			wantErr: true,
		},
		{
			name: "nearby places alone cannot identify",
			rec: types.ListingRecord{
				NearbyPlaces: []string{"Artemis Hospital", "Sapphire Mall"},
			},
			wantErr: true,
		},
		{
			name: "identity without substance drops",
			rec: types.ListingRecord{
				Title:       "Nice Flat in Gurgaon",
				Description: "Call now for best deal",
			},
			wantErr: true,
		},
		{
			name:    "empty record drops",
			rec:     types.ListingRecord{},
			wantErr: true,
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestFlags(t *testing.T) {
	// Six optional fields filled keeps completeness above the floor.
	rich := types.ListingRecord{
		Title:         "Green Meadows 2 BHK",
		Price:         "₹45 Lacs",
		PriceAmount:   45e5,
		PropertyURL:   "https://example.com/property/1",
		ApartmentType: "2 BHK",
		BedroomCount:  "2",
		AreaDisplay:   "1050 sqft",
		Locality:      "Sector 57",
		Description:   "Well ventilated apartment with modular kitchen",
	}

	tests := []struct {
		name   string
		mutate func(r *types.ListingRecord)
		want   []string
	}{
		{
			name:   "clean record has no flags",
			mutate: func(r *types.ListingRecord) {},
			want:   nil,
		},
		{
			name: "price below floor",
			mutate: func(r *types.ListingRecord) {
				r.Price = "₹50,000"
				r.PriceAmount = 5e4
			},
			want: []string{"implausible_price"},
		},
		{
			name: "price above ceiling",
			mutate: func(r *types.ListingRecord) {
				r.PriceAmount = 2e9
			},
			want: []string{"implausible_price"},
		},
		{
			name: "zero amount is not implausible",
			mutate: func(r *types.ListingRecord) {
				r.Price = ""
				r.PriceAmount = 0
			},
			want: nil,
		},
		{
			name: "short title",
			mutate: func(r *types.ListingRecord) {
				r.Title = "Flat"
			},
			want: []string{"short_title"},
		},
		{
			name: "bare record is low completeness without a link",
			mutate: func(r *types.ListingRecord) {
				*r = types.ListingRecord{
					Title:       "Sunrise Residency Tower",
					Price:       "₹60 Lacs",
					PriceAmount: 6e6,
				}
			},
			want: []string{"low_completeness", "no_detail_url"},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rich
			tt.mutate(&rec)
			got := v.Flags(&rec)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flags() = %v, want %v", got, tt.want)
			}
		})
	}
}
