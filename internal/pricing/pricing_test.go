package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/pkg/config"
)

func testPolicy() Policy {
	return NewPolicy(config.PricingConfig{FreeDeliveryMin: 200, DeliveryFee: 30})
}

func cartWithSubtotal(amount int64) cart.Cart {
	return cart.Cart{Items: []cart.Line{{
		ItemID:    "item-1",
		Name:      "item",
		UnitPrice: decimal.NewFromInt(amount),
		Quantity:  1,
	}}}
}

func TestQuoteChargesDeliveryBelowMinimum(t *testing.T) {
	quote := testPolicy().QuoteCart(cartWithSubtotal(199))

	if !quote.DeliveryCharge.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected delivery 30, got %s", quote.DeliveryCharge)
	}
	if !quote.GrandTotal.Equal(decimal.NewFromInt(229)) {
		t.Fatalf("expected grand total 229, got %s", quote.GrandTotal)
	}
}

func TestQuoteFreeDeliveryAtMinimum(t *testing.T) {
	quote := testPolicy().QuoteCart(cartWithSubtotal(200))

	if !quote.DeliveryCharge.IsZero() {
		t.Fatalf("expected free delivery at threshold, got %s", quote.DeliveryCharge)
	}
	if !quote.GrandTotal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected grand total 200, got %s", quote.GrandTotal)
	}
}

func TestQuoteEmptyCartHasNoDelivery(t *testing.T) {
	quote := testPolicy().QuoteCart(cart.Cart{})

	if !quote.DeliveryCharge.IsZero() || !quote.GrandTotal.IsZero() {
		t.Fatalf("empty cart should quote zero, got %+v", quote)
	}
}

func TestQuoteClampsDiscountToPayable(t *testing.T) {
	c := cartWithSubtotal(100)
	c.Discount = &cart.Discount{Code: "BIG", Amount: decimal.NewFromInt(500)}

	quote := testPolicy().QuoteCart(c)

	if quote.GrandTotal.IsNegative() {
		t.Fatalf("grand total went negative: %s", quote.GrandTotal)
	}
	if !quote.GrandTotal.IsZero() {
		t.Fatalf("expected fully discounted total, got %s", quote.GrandTotal)
	}
	if !quote.Discount.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("discount should clamp to payable 130, got %s", quote.Discount)
	}
}

func TestQuoteIgnoresNegativeDiscount(t *testing.T) {
	c := cartWithSubtotal(300)
	c.Discount = &cart.Discount{Code: "WEIRD", Amount: decimal.NewFromInt(-10)}

	quote := testPolicy().QuoteCart(c)

	if !quote.Discount.IsZero() {
		t.Fatalf("negative discount should read as zero, got %s", quote.Discount)
	}
	if !quote.GrandTotal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected grand total 300, got %s", quote.GrandTotal)
	}
}
