package coupons

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/internal/cart"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

// Guest carts cannot use the commerce API's coupon engine, so the edge
// evaluates a small static table locally. Signed-in customers get their
// coupons validated upstream instead.

type ruleKind string

const (
	kindFlat    ruleKind = "flat"
	kindPercent ruleKind = "percent"
)

type rule struct {
	kind        ruleKind
	value       decimal.Decimal
	minSubtotal decimal.Decimal
}

var guestRules = map[string]rule{
	"FLAT50": {
		kind:        kindFlat,
		value:       decimal.NewFromInt(50),
		minSubtotal: decimal.NewFromInt(299),
	},
	"SAVE10": {
		kind:        kindPercent,
		value:       decimal.NewFromInt(10),
		minSubtotal: decimal.NewFromInt(100),
	},
	"WELCOME20": {
		kind:        kindPercent,
		value:       decimal.NewFromInt(20),
		minSubtotal: decimal.NewFromInt(500),
	},
}

// Evaluate resolves a guest coupon code against the cart subtotal.
// Rejections name the reason so the shopper can fix the cart instead of
// guessing.
func Evaluate(code string, subtotal decimal.Decimal) (*cart.Discount, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	r, ok := guestRules[normalized]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, fmt.Sprintf("coupon %s is not valid", normalized))
	}
	if subtotal.LessThan(r.minSubtotal) {
		err := pkgerrors.New(pkgerrors.CodeInvalidCoupon,
			fmt.Sprintf("minimum order value for %s is %s", normalized, r.minSubtotal))
		return nil, err.WithDetails(map[string]string{
			"code":    normalized,
			"minimum": r.minSubtotal.String(),
		})
	}

	amount := r.value
	if r.kind == kindPercent {
		amount = subtotal.Mul(r.value).Div(decimal.NewFromInt(100)).Round(2)
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}

	return &cart.Discount{Code: normalized, Amount: amount}, nil
}
