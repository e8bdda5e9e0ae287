package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/platewise/storefront-edge/api/middleware"
	"github.com/platewise/storefront-edge/api/responses"
	"github.com/platewise/storefront-edge/api/validators"
	"github.com/platewise/storefront-edge/internal/checkout"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/types"
)

type placeOrderRequest struct {
	Address              types.DeliveryAddress `json:"deliveryAddress" validate:"required"`
	PaymentMethod        string                `json:"paymentMethod" validate:"required"`
	DeliveryInstructions string                `json:"deliveryInstructions" validate:"max=500"`
}

// OrderCreate submits the effective cart as an order.
func OrderCreate(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		order, err := svc.PlaceOrder(r.Context(), sess.Reconcile(), checkout.PlaceOrderInput{
			Address:              payload.Address,
			PaymentMethod:        payload.PaymentMethod,
			DeliveryInstructions: payload.DeliveryInstructions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrdersList returns the signed-in customer's order history.
func OrdersList(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		orders, err := svc.ListOrders(r.Context(), sess.Reconcile())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"orders": orders})
	}
}

// OrderCancel cancels a placed order.
func OrderCancel(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		order, err := svc.CancelOrder(r.Context(), sess.Reconcile(), chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
