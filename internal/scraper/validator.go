// internal/scraper/validator.go
package scraper

import (
	"fmt"

	"github.com/propertylens/propertylens/pkg/types"
)

// Validation defaults. Price bounds are rupees: one lakh to one hundred
// crore covers every plausible residential listing.
const (
	defaultMinPriceAmount = 1e5
	defaultMaxPriceAmount = 1e9
	defaultMinTitleLen    = 5
	defaultQualityFloor   = 0.25
)

// Validator applies the required-field check that drops a record and the
// soft quality checks that merely flag it.
type Validator struct {
	MinPriceAmount float64
	MaxPriceAmount float64
	MinTitleLen    int
	QualityFloor   float64
}

func NewValidator() *Validator {
	return &Validator{
		MinPriceAmount: defaultMinPriceAmount,
		MaxPriceAmount: defaultMaxPriceAmount,
		MinTitleLen:    defaultMinTitleLen,
		QualityFloor:   defaultQualityFloor,
	}
}

// Validate is the hard tier. A record passes when it has an identity (a
// title, a price, or a configuration) and substance (a structural field,
// a nearby place, or a photo). Failures wrap ErrValidation.
func (v *Validator) Validate(r *types.ListingRecord) error {
	if r.Title == "" && r.Price == "" && r.ApartmentType == "" {
		return fmt.Errorf("%w: no title, price, or configuration", ErrValidation)
	}
	hasStructure := r.ApartmentType != "" || r.AreaSqft > 0 || r.BathroomCount != "" ||
		r.FacingDirection != "" || r.ParkingDescription != ""
	if !hasStructure && len(r.NearbyPlaces) == 0 && r.ImageCount == 0 {
		return fmt.Errorf("%w: no structural fields, places, or photos", ErrValidation)
	}
	return nil
}

// Flags is the soft tier: quality concerns that do not drop the record.
func (v *Validator) Flags(r *types.ListingRecord) []string {
	var flags []string
	if r.PriceAmount > 0 &&
		(r.PriceAmount < v.MinPriceAmount || r.PriceAmount > v.MaxPriceAmount) {
		flags = append(flags, "implausible_price")
	}
	if r.Title != "" && len(r.Title) < v.MinTitleLen {
		flags = append(flags, "short_title")
	}
	if r.Completeness() < v.QualityFloor {
		flags = append(flags, "low_completeness")
	}
	if r.PropertyURL == "" {
		flags = append(flags, "no_detail_url")
	}
	return flags
}
