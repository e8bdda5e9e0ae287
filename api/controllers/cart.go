package controllers

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/api/middleware"
	"github.com/platewise/storefront-edge/api/responses"
	"github.com/platewise/storefront-edge/api/validators"
	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/internal/checkout"
	"github.com/platewise/storefront-edge/internal/coupons"
	"github.com/platewise/storefront-edge/internal/pricing"
	"github.com/platewise/storefront-edge/internal/reconcile"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
)

type cartVariantPayload struct {
	Label  string          `json:"label" validate:"required"`
	Weight decimal.Decimal `json:"weight"`
	Price  decimal.Decimal `json:"price"`
}

// Request bodies use the storefront's wire name menuItemId; it is
// normalized to the canonical line item identifier here, at decode,
// and nowhere else.
type addToCartRequest struct {
	ItemID    string              `json:"menuItemId" validate:"required"`
	StoreID   string              `json:"storeId"`
	Name      string              `json:"name" validate:"required"`
	UnitPrice decimal.Decimal     `json:"unitPrice" validate:"required"`
	Quantity  int                 `json:"quantity" validate:"omitempty,min=1"`
	Available *bool               `json:"isAvailable"`
	Variant   *cartVariantPayload `json:"variant"`
}

// available treats a missing flag as available; the storefront only
// sends it when the catalog marks the item out of stock.
func (r addToCartRequest) available() bool {
	return r.Available == nil || *r.Available
}

type updateQuantityRequest struct {
	ItemID   string `json:"menuItemId" validate:"required"`
	StoreID  string `json:"storeId"`
	Quantity *int   `json:"quantity" validate:"required"`
}

type removeFromCartRequest struct {
	ItemID  string `json:"menuItemId" validate:"required"`
	StoreID string `json:"storeId"`
}

type applyDiscountRequest struct {
	Code string `json:"code" validate:"required"`
}

// cartResponse is the priced cart returned by every cart endpoint, so
// the storefront renders one consistent total wherever it asks.
type cartResponse struct {
	Items          []cart.Line     `json:"items"`
	Discount       *cart.Discount  `json:"discount,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
}

func newCartResponse(c cart.Cart, quote pricing.Quote) cartResponse {
	items := c.Items
	if items == nil {
		items = []cart.Line{}
	}
	return cartResponse{
		Items:          items,
		Discount:       c.Discount,
		Subtotal:       quote.Subtotal,
		DeliveryCharge: quote.DeliveryCharge,
		DiscountAmount: quote.Discount,
		GrandTotal:     quote.GrandTotal,
	}
}

// CartFetch returns the effective cart, priced.
func CartFetch(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		quote, resolved, err := svc.Quote(r.Context(), sess.Reconcile())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(resolved, quote))
	}
}

// CartAdd adds a line to the cart.
func CartAdd(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addToCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !payload.available() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is currently unavailable", payload.Name)))
			return
		}

		line := cart.Line{
			ItemID:    payload.ItemID,
			StoreID:   payload.StoreID,
			Name:      payload.Name,
			UnitPrice: payload.UnitPrice,
			Quantity:  payload.Quantity,
		}
		if payload.Variant != nil {
			line.Variant = &cart.Variant{
				Label:  payload.Variant.Label,
				Weight: payload.Variant.Weight,
				Price:  payload.Variant.Price,
			}
		}

		sess := middleware.SessionFromContext(r.Context())
		result, err := svc.Add(r.Context(), sess.Reconcile(), line)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(result, policy.QuoteCart(result)))
	}
}

// CartUpdateQuantity sets a line's quantity; zero removes the line.
func CartUpdateQuantity(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		result, err := svc.UpdateQuantity(r.Context(), sess.Reconcile(), payload.ItemID, payload.StoreID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(result, policy.QuoteCart(result)))
	}
}

// CartRemove drops a line from the cart.
func CartRemove(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload removeFromCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		result, err := svc.Remove(r.Context(), sess.Reconcile(), payload.ItemID, payload.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(result, policy.QuoteCart(result)))
	}
}

// CartClear empties the cart.
func CartClear(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		if err := svc.Clear(r.Context(), sess.Reconcile()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(cart.Cart{}, policy.QuoteCart(cart.Cart{})))
	}
}

// CartApplyDiscount applies a coupon. Signed-in customers go through the
// commerce API's coupon engine; guests are evaluated against the local
// coupon table.
func CartApplyDiscount(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload applyDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		rsess := sess.Reconcile()

		var result cart.Cart
		var err error
		if rsess.SignedIn() {
			result, err = svc.ApplyUpstreamDiscount(r.Context(), rsess, payload.Code)
		} else {
			result, err = applyGuestDiscount(r, svc, rsess, payload.Code)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(result, policy.QuoteCart(result)))
	}
}

func applyGuestDiscount(r *http.Request, svc reconcile.Service, sess reconcile.Session, code string) (cart.Cart, error) {
	current, err := svc.EffectiveCart(r.Context(), sess)
	if err != nil {
		return cart.Cart{}, err
	}
	if current.IsEmpty() {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "add items before applying a coupon")
	}
	discount, err := coupons.Evaluate(code, current.Subtotal())
	if err != nil {
		return cart.Cart{}, err
	}
	return svc.ApplyGuestDiscount(r.Context(), sess, discount)
}

// CartRemoveDiscount clears the applied coupon.
func CartRemoveDiscount(svc reconcile.Service, policy pricing.Policy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		result, err := svc.RemoveDiscount(r.Context(), sess.Reconcile())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(result, policy.QuoteCart(result)))
	}
}
