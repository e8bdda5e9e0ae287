package types

import "strings"

// DeliveryAddress is the shipping destination collected at checkout.
type DeliveryAddress struct {
	Label   string `json:"label,omitempty"`
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// NormalizedCity returns the city trimmed and lowercased for allow-list
// comparison.
func (a DeliveryAddress) NormalizedCity() string {
	return strings.ToLower(strings.TrimSpace(a.City))
}
