package models

import "strings"

// Course is the slice of the content source's course entry that orders need.
type Course struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	PriceGroup  int64  `json:"price_group"`
	PriceSingle int64  `json:"price_single"`
}

func (c Course) DisplayName() string {
	return strings.TrimSpace(strings.Join([]string{c.Title, c.Subtitle}, " "))
}

// PriceFor returns the tier price and false when the course does not sell the variant.
func (c Course) PriceFor(v CourseVariant) (int64, bool) {
	switch v {
	case VariantGroup:
		return c.PriceGroup, c.PriceGroup > 0
	case VariantSingle:
		return c.PriceSingle, c.PriceSingle > 0
	}
	return 0, false
}
