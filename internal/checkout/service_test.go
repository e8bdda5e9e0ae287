package checkout

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/internal/pricing"
	"github.com/platewise/storefront-edge/internal/reconcile"
	"github.com/platewise/storefront-edge/pkg/config"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/types"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

type fakeResolver struct {
	cart cart.Cart
	err  error
}

func (f fakeResolver) EffectiveCart(context.Context, reconcile.Session) (cart.Cart, error) {
	return f.cart, f.err
}

type fakeClearer struct {
	cleared []string
	err     error
}

func (f *fakeClearer) Clear(_ context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return f.err
}

type fakeGateway struct {
	order        *upstream.Order
	orders       []upstream.Order
	err          error
	lastInput    upstream.CreateOrderInput
	cancelCall   string
	upstreamCart cart.Cart
	clearCalls   int
}

func (f *fakeGateway) CreateOrder(_ context.Context, _ string, input upstream.CreateOrderInput) (*upstream.Order, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeGateway) ClearCart(context.Context, string) error {
	f.clearCalls++
	f.upstreamCart = cart.Cart{}
	return nil
}

func (f *fakeGateway) ListOrders(context.Context, string) ([]upstream.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, _ string, orderID string) (*upstream.Order, error) {
	f.cancelCall = orderID
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func validAddress() types.DeliveryAddress {
	return types.DeliveryAddress{
		Label:   "home",
		Street:  "12 MG Road",
		City:    "Pune",
		State:   "MH",
		Pincode: "411001",
		Country: "IN",
	}
}

func validInput() PlaceOrderInput {
	return PlaceOrderInput{
		Address:       validAddress(),
		PaymentMethod: "cod",
	}
}

func cartWithLine() cart.Cart {
	return cart.Cart{Items: []cart.Line{{
		ItemID:    "item-1",
		Name:      "item",
		UnitPrice: decimal.NewFromInt(250),
		Quantity:  1,
	}}}
}

func customer() reconcile.Session {
	return reconcile.Session{ID: "sess-1", Token: "tok-1"}
}

func newTestService(t *testing.T, resolver cartResolver, clearer cartClearer, gateway Gateway) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	policy := pricing.NewPolicy(config.PricingConfig{FreeDeliveryMin: 200, DeliveryFee: 30})
	cfg := config.CheckoutConfig{ServiceableCities: []string{"mumbai", "pune", "bangalore"}}
	svc, err := NewService(resolver, clearer, gateway, policy, cfg, logg)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func TestPlaceOrderRequiresSignIn(t *testing.T) {
	svc := newTestService(t, fakeResolver{}, &fakeClearer{}, &fakeGateway{})

	_, err := svc.PlaceOrder(context.Background(), reconcile.Session{ID: "guest"}, validInput())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestPlaceOrderRejectsIncompleteAddress(t *testing.T) {
	svc := newTestService(t, fakeResolver{cart: cartWithLine()}, &fakeClearer{}, &fakeGateway{})

	input := validInput()
	input.Address.Pincode = ""
	_, err := svc.PlaceOrder(context.Background(), customer(), input)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestPlaceOrderRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService(t, fakeResolver{cart: cartWithLine()}, &fakeClearer{}, &fakeGateway{})

	input := validInput()
	input.PaymentMethod = "barter"
	_, err := svc.PlaceOrder(context.Background(), customer(), input)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestPlaceOrderRejectsUnserviceableCity(t *testing.T) {
	gateway := &fakeGateway{}
	svc := newTestService(t, fakeResolver{cart: cartWithLine()}, &fakeClearer{}, gateway)

	input := validInput()
	input.Address.City = "Nagpur"
	_, err := svc.PlaceOrder(context.Background(), customer(), input)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnserviceable {
		t.Fatalf("expected UNSERVICEABLE_AREA, got %v", err)
	}

	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("details should list serviceable cities: %+v", typed.Details())
	}
	cities, ok := details["serviceableCities"].([]string)
	if !ok || len(cities) != 3 {
		t.Fatalf("expected full city list in details, got %+v", details)
	}
	if gateway.lastInput.PaymentMethod != "" {
		t.Fatal("unserviceable order must not reach upstream")
	}
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	svc := newTestService(t, fakeResolver{}, &fakeClearer{}, &fakeGateway{})

	_, err := svc.PlaceOrder(context.Background(), customer(), validInput())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for empty cart, got %v", err)
	}
}

func TestPlaceOrderSubmitsAndClearsCache(t *testing.T) {
	c := cartWithLine()
	c.Discount = &cart.Discount{Code: "SAVE10", Amount: decimal.NewFromInt(10)}
	clearer := &fakeClearer{}
	gateway := &fakeGateway{order: &upstream.Order{ID: "ord-1", Status: "placed"}}
	svc := newTestService(t, fakeResolver{cart: c}, clearer, gateway)

	input := validInput()
	input.DeliveryInstructions = "  leave at the gate  "
	order, err := svc.PlaceOrder(context.Background(), customer(), input)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.ID != "ord-1" {
		t.Fatalf("unexpected order %+v", order)
	}

	if gateway.lastInput.CouponCode != "SAVE10" {
		t.Fatalf("coupon not forwarded: %+v", gateway.lastInput)
	}
	if gateway.lastInput.DeliveryInstructions != "leave at the gate" {
		t.Fatalf("instructions not trimmed: %q", gateway.lastInput.DeliveryInstructions)
	}
	if len(clearer.cleared) != 1 || clearer.cleared[0] != "sess-1" {
		t.Fatalf("cache not cleared after order: %v", clearer.cleared)
	}
	if gateway.clearCalls != 1 {
		t.Fatalf("upstream cart not cleared after order, clear calls: %d", gateway.clearCalls)
	}
}

// gatewayBackedResolver mimics the signed-in effective-cart rule over
// the fake gateway's upstream state.
type gatewayBackedResolver struct{ gateway *fakeGateway }

func (g gatewayBackedResolver) EffectiveCart(context.Context, reconcile.Session) (cart.Cart, error) {
	return g.gateway.upstreamCart, nil
}

func TestPlaceOrderLeavesNoUpstreamCartToResurrect(t *testing.T) {
	gateway := &fakeGateway{
		order:        &upstream.Order{ID: "ord-5", Status: "placed"},
		upstreamCart: cartWithLine(),
	}
	clearer := &fakeClearer{}
	svc := newTestService(t, gatewayBackedResolver{gateway}, clearer, gateway)

	if _, err := svc.PlaceOrder(context.Background(), customer(), validInput()); err != nil {
		t.Fatalf("place order: %v", err)
	}

	// The from-cart endpoint left the upstream cart populated; the next
	// effective-cart read must still come back empty.
	_, resolved, err := svc.Quote(context.Background(), customer())
	if err != nil {
		t.Fatalf("quote after order: %v", err)
	}
	if !resolved.IsEmpty() {
		t.Fatalf("ordered items resurrected on the next cart read: %+v", resolved.Items)
	}
}

func TestPlaceOrderPreservesCartOnUpstreamFailure(t *testing.T) {
	clearer := &fakeClearer{}
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "upstream unreachable")}
	svc := newTestService(t, fakeResolver{cart: cartWithLine()}, clearer, gateway)

	_, err := svc.PlaceOrder(context.Background(), customer(), validInput())
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if len(clearer.cleared) != 0 {
		t.Fatalf("failed order must not clear the cart: %v", clearer.cleared)
	}
	if gateway.clearCalls != 0 {
		t.Fatalf("failed order must not clear the upstream cart, clear calls: %d", gateway.clearCalls)
	}
}

func TestQuotePricesEffectiveCart(t *testing.T) {
	svc := newTestService(t, fakeResolver{cart: cartWithLine()}, &fakeClearer{}, &fakeGateway{})

	quote, resolved, err := svc.Quote(context.Background(), customer())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(resolved.Items) != 1 {
		t.Fatalf("unexpected cart %+v", resolved)
	}
	if !quote.GrandTotal.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected grand total 250, got %s", quote.GrandTotal)
	}
}

func TestListOrdersRequiresSignIn(t *testing.T) {
	svc := newTestService(t, fakeResolver{}, &fakeClearer{}, &fakeGateway{})

	_, err := svc.ListOrders(context.Background(), reconcile.Session{ID: "guest"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestCancelOrderRequiresOrderID(t *testing.T) {
	svc := newTestService(t, fakeResolver{}, &fakeClearer{}, &fakeGateway{})

	_, err := svc.CancelOrder(context.Background(), customer(), "  ")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCancelOrderPassesThrough(t *testing.T) {
	gateway := &fakeGateway{order: &upstream.Order{ID: "ord-2", Status: "cancelled"}}
	svc := newTestService(t, fakeResolver{}, &fakeClearer{}, gateway)

	order, err := svc.CancelOrder(context.Background(), customer(), "ord-2")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gateway.cancelCall != "ord-2" || order.Status != "cancelled" {
		t.Fatalf("unexpected cancel result %+v", order)
	}
}
