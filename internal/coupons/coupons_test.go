package coupons

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

func TestEvaluateFlatCoupon(t *testing.T) {
	discount, err := Evaluate("FLAT50", decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if discount.Code != "FLAT50" || !discount.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected discount %+v", discount)
	}
}

func TestEvaluatePercentCoupon(t *testing.T) {
	discount, err := Evaluate("save10", decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !discount.Amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25, got %s", discount.Amount)
	}
	if discount.Code != "SAVE10" {
		t.Fatalf("code not normalized: %q", discount.Code)
	}
}

func TestEvaluateBelowMinimumNamesTheMinimum(t *testing.T) {
	_, err := Evaluate("FLAT50", decimal.NewFromInt(298))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidCoupon {
		t.Fatalf("expected INVALID_COUPON, got %v", err)
	}
	if !strings.Contains(typed.Message(), "299") {
		t.Fatalf("message should name the minimum: %q", typed.Message())
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["minimum"] != "299" {
		t.Fatalf("details should carry the minimum: %+v", typed.Details())
	}
}

func TestEvaluateUnknownCode(t *testing.T) {
	_, err := Evaluate("NOPE", decimal.NewFromInt(1000))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidCoupon {
		t.Fatalf("expected INVALID_COUPON, got %v", err)
	}
}

func TestEvaluateEmptyCode(t *testing.T) {
	_, err := Evaluate("   ", decimal.NewFromInt(1000))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
