package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/pkg/config"
)

// Policy is the single delivery-fee policy applied everywhere a total is
// shown. Cart badge, cart page, and checkout all quote through it so
// the shopper never sees two different totals for the same cart.
type Policy struct {
	freeDeliveryMin decimal.Decimal
	deliveryFee     decimal.Decimal
}

// NewPolicy builds the policy from configuration.
func NewPolicy(cfg config.PricingConfig) Policy {
	return Policy{
		freeDeliveryMin: decimal.NewFromInt(cfg.FreeDeliveryMin),
		deliveryFee:     decimal.NewFromInt(cfg.DeliveryFee),
	}
}

// Quote is the priced view of a cart.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	Discount       decimal.Decimal `json:"discountAmount"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
}

// QuoteCart prices the cart. Delivery is free at or above the
// configured minimum and for empty carts. The discount is clamped so
// the grand total never goes negative.
func (p Policy) QuoteCart(c cart.Cart) Quote {
	subtotal := c.Subtotal()

	delivery := decimal.Zero
	if subtotal.IsPositive() && subtotal.LessThan(p.freeDeliveryMin) {
		delivery = p.deliveryFee
	}

	discount := decimal.Zero
	if c.Discount != nil {
		discount = c.Discount.Amount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	payable := subtotal.Add(delivery)
	if discount.GreaterThan(payable) {
		discount = payable
	}

	return Quote{
		Subtotal:       subtotal,
		DeliveryCharge: delivery,
		Discount:       discount,
		GrandTotal:     payable.Sub(discount),
	}
}
