package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/internal/pricing"
	"github.com/platewise/storefront-edge/internal/reconcile"
	"github.com/platewise/storefront-edge/pkg/config"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/types"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

var allowedPaymentMethods = map[string]struct{}{
	"cod":  {},
	"card": {},
	"upi":  {},
}

type cartResolver interface {
	EffectiveCart(ctx context.Context, sess reconcile.Session) (cart.Cart, error)
}

type cartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// Gateway is the slice of the commerce API checkout drives.
type Gateway interface {
	CreateOrder(ctx context.Context, token string, input upstream.CreateOrderInput) (*upstream.Order, error)
	ListOrders(ctx context.Context, token string) ([]upstream.Order, error)
	CancelOrder(ctx context.Context, token, orderID string) (*upstream.Order, error)
	ClearCart(ctx context.Context, token string) error
}

// Service turns the effective cart into a placed order.
type Service interface {
	PlaceOrder(ctx context.Context, sess reconcile.Session, input PlaceOrderInput) (*upstream.Order, error)
	ListOrders(ctx context.Context, sess reconcile.Session) ([]upstream.Order, error)
	CancelOrder(ctx context.Context, sess reconcile.Session, orderID string) (*upstream.Order, error)
	Quote(ctx context.Context, sess reconcile.Session) (pricing.Quote, cart.Cart, error)
}

// PlaceOrderInput is the checkout payload from the storefront.
type PlaceOrderInput struct {
	Address              types.DeliveryAddress `json:"deliveryAddress" validate:"required"`
	PaymentMethod        string                `json:"paymentMethod" validate:"required"`
	DeliveryInstructions string                `json:"deliveryInstructions" validate:"max=500"`
}

type service struct {
	resolver          cartResolver
	clearer           cartClearer
	gateway           Gateway
	policy            pricing.Policy
	validate          *validator.Validate
	serviceableCities map[string]struct{}
	cityList          []string
	logger            *logger.Logger
}

// NewService builds the checkout service over the reconciler and the
// gateway.
func NewService(resolver cartResolver, clearer cartClearer, gateway Gateway, policy pricing.Policy, cfg config.CheckoutConfig, logg *logger.Logger) (Service, error) {
	if resolver == nil {
		return nil, fmt.Errorf("cart resolver required")
	}
	if clearer == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("upstream gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	cities := map[string]struct{}{}
	var cityList []string
	for _, city := range cfg.ServiceableCities {
		normalized := strings.ToLower(strings.TrimSpace(city))
		if normalized == "" {
			continue
		}
		if _, ok := cities[normalized]; !ok {
			cities[normalized] = struct{}{}
			cityList = append(cityList, normalized)
		}
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("at least one serviceable city required")
	}

	return &service{
		resolver:          resolver,
		clearer:           clearer,
		gateway:           gateway,
		policy:            policy,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		serviceableCities: cities,
		cityList:          cityList,
		logger:            logg,
	}, nil
}

// Quote prices the effective cart for display.
func (s *service) Quote(ctx context.Context, sess reconcile.Session) (pricing.Quote, cart.Cart, error) {
	resolved, err := s.resolver.EffectiveCart(ctx, sess)
	if err != nil {
		return pricing.Quote{}, cart.Cart{}, err
	}
	return s.policy.QuoteCart(resolved), resolved, nil
}

// PlaceOrder validates the payload, checks serviceability, and submits
// the cart upstream. The cart is only cleared after the commerce API
// confirms the order; any failure leaves it intact for retry.
func (s *service) PlaceOrder(ctx context.Context, sess reconcile.Session, input PlaceOrderInput) (*upstream.Order, error) {
	if !sess.SignedIn() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to place an order")
	}

	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkServiceability(input.Address); err != nil {
		return nil, err
	}

	resolved, err := s.resolver.EffectiveCart(ctx, sess)
	if err != nil {
		return nil, err
	}
	if resolved.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	orderInput := upstream.CreateOrderInput{
		DeliveryAddress:      input.Address,
		PaymentMethod:        strings.ToLower(strings.TrimSpace(input.PaymentMethod)),
		DeliveryInstructions: strings.TrimSpace(input.DeliveryInstructions),
	}
	if resolved.Discount != nil {
		orderInput.CouponCode = resolved.Discount.Code
	}

	order, err := s.gateway.CreateOrder(ctx, sess.Token, orderInput)
	if err != nil {
		return nil, err
	}

	// The from-cart endpoint does not reliably consume the upstream
	// cart, and a leftover upstream cart wins the next effective-cart
	// read for a signed-in session. Clear both sides; ClearCart is
	// idempotent and a failure here must not fail the placed order.
	if err := s.gateway.ClearCart(ctx, sess.Token); err != nil {
		s.logger.Error(s.logger.WithSessionID(ctx, sess.ID), "clearing upstream cart after order", err)
	}
	if err := s.clearer.Clear(ctx, sess.ID); err != nil {
		s.logger.Error(s.logger.WithSessionID(ctx, sess.ID), "clearing cached cart after order", err)
	}

	return order, nil
}

// ListOrders returns the customer's order history.
func (s *service) ListOrders(ctx context.Context, sess reconcile.Session) ([]upstream.Order, error) {
	if !sess.SignedIn() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to view orders")
	}
	return s.gateway.ListOrders(ctx, sess.Token)
}

// CancelOrder asks the commerce API to cancel a placed order.
func (s *service) CancelOrder(ctx context.Context, sess reconcile.Session, orderID string) (*upstream.Order, error) {
	if !sess.SignedIn() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to manage orders")
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.gateway.CancelOrder(ctx, sess.Token, orderID)
}

func (s *service) validateInput(input PlaceOrderInput) error {
	if err := s.validate.Struct(input); err != nil {
		fields := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, verr := range verrs {
				fields[verr.Field()] = verr.Tag()
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout payload is invalid").WithDetails(fields)
	}

	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if _, ok := allowedPaymentMethods[method]; !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %q is not supported", input.PaymentMethod))
	}
	return nil
}

func (s *service) checkServiceability(address types.DeliveryAddress) error {
	city := address.NormalizedCity()
	if _, ok := s.serviceableCities[city]; ok {
		return nil
	}
	err := pkgerrors.New(pkgerrors.CodeUnserviceable, fmt.Sprintf("we do not deliver to %s yet", address.City))
	return err.WithDetails(map[string]any{
		"city":              address.City,
		"serviceableCities": s.cityList,
	})
}
