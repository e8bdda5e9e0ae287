package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

const (
	opCreateOrder = "create_order"
	opListOrders  = "list_orders"
	opCancelOrder = "cancel_order"
)

// CreateOrder submits the customer's upstream cart as an order.
func (c *Client) CreateOrder(ctx context.Context, token string, input CreateOrderInput) (*Order, error) {
	var order Order
	if err := c.do(ctx, opCreateOrder, http.MethodPost, "/customer/orders/from-cart", token, input, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the customer's order history, newest first per the
// commerce API's ordering. The payload is either a bare array or an
// {orders: [...]} wrapper depending on the API generation.
func (c *Client) ListOrders(ctx context.Context, token string) ([]Order, error) {
	var payload json.RawMessage
	if err := c.do(ctx, opListOrders, http.MethodGet, "/orders", token, nil, &payload); err != nil {
		return nil, err
	}

	var orders []Order
	if err := json.Unmarshal(payload, &orders); err == nil {
		return orders, nil
	}
	var wrapped struct {
		Orders []Order `json:"orders"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding upstream orders")
	}
	return wrapped.Orders, nil
}

// CancelOrder requests cancellation of a placed order and returns its
// updated state.
func (c *Client) CancelOrder(ctx context.Context, token, orderID string) (*Order, error) {
	var order Order
	path := "/orders/" + url.PathEscape(orderID) + "/cancel"
	if err := c.do(ctx, opCancelOrder, http.MethodPost, path, token, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
