package upstream

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

const (
	opAddToCart      = "add_to_cart"
	opGetCart        = "get_cart"
	opUpdateQuantity = "update_quantity"
	opRemoveFromCart = "remove_from_cart"
	opClearCart      = "clear_cart"
	opApplyDiscount  = "apply_discount"
	opRemoveDiscount = "remove_discount"
	opMergeGuestCart = "merge_guest_cart"
)

// AddToCart adds or increments a line in the customer's upstream cart.
func (c *Client) AddToCart(ctx context.Context, token string, input AddToCartInput) (*CartSnapshot, error) {
	var snapshot CartSnapshot
	if err := c.do(ctx, opAddToCart, http.MethodPost, "/cart/add", token, input, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetCart fetches the authoritative cart. A customer with no cart yet is
// not an error; the commerce API's 404 becomes an empty snapshot.
func (c *Client) GetCart(ctx context.Context, token string) (*CartSnapshot, error) {
	var snapshot CartSnapshot
	if err := c.do(ctx, opGetCart, http.MethodGet, "/cart", token, nil, &snapshot); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return &CartSnapshot{}, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

type updateQuantityPayload struct {
	ItemID   string `json:"menuItemId"`
	StoreID  string `json:"storeId,omitempty"`
	Quantity int    `json:"quantity"`
}

// UpdateQuantity sets the quantity of an existing upstream line.
func (c *Client) UpdateQuantity(ctx context.Context, token, itemID, storeID string, quantity int) (*CartSnapshot, error) {
	payload := updateQuantityPayload{ItemID: itemID, StoreID: storeID, Quantity: quantity}
	var snapshot CartSnapshot
	if err := c.do(ctx, opUpdateQuantity, http.MethodPatch, "/cart/update", token, payload, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

type removeItemPayload struct {
	ItemID  string `json:"menuItemId"`
	StoreID string `json:"storeId,omitempty"`
}

// RemoveFromCart drops a line from the upstream cart. Removing a line
// the cart no longer holds is treated as already done.
func (c *Client) RemoveFromCart(ctx context.Context, token, itemID, storeID string) (*CartSnapshot, error) {
	payload := removeItemPayload{ItemID: itemID, StoreID: storeID}
	var snapshot CartSnapshot
	if err := c.do(ctx, opRemoveFromCart, http.MethodDelete, "/cart/remove", token, payload, &snapshot); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return c.GetCart(ctx, token)
		}
		return nil, err
	}
	return &snapshot, nil
}

// ClearCart empties the upstream cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, opClearCart, http.MethodDelete, "/cart/clear", token, nil, nil)
}

type applyDiscountPayload struct {
	Code string `json:"code"`
}

// ApplyDiscount applies a coupon on the upstream cart. Rejections carry
// the commerce API's reason so the shopper sees why the code failed.
func (c *Client) ApplyDiscount(ctx context.Context, token, code string) (*CartSnapshot, error) {
	var snapshot CartSnapshot
	if err := c.do(ctx, opApplyDiscount, http.MethodPost, "/cart/discount", token, applyDiscountPayload{Code: code}, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// RemoveDiscount clears any applied coupon from the upstream cart.
func (c *Client) RemoveDiscount(ctx context.Context, token string) (*CartSnapshot, error) {
	var snapshot CartSnapshot
	if err := c.do(ctx, opRemoveDiscount, http.MethodDelete, "/cart/discount", token, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

type mergeItemPayload struct {
	ItemID    string          `json:"menuItemId"`
	StoreID   string          `json:"storeId,omitempty"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Variant   *CartVariant    `json:"variant,omitempty"`
}

type mergeCartPayload struct {
	Items []mergeItemPayload `json:"items"`
}

// MergeGuestCart pushes locally accumulated guest lines into the
// signed-in customer's upstream cart and returns the merged result.
func (c *Client) MergeGuestCart(ctx context.Context, token string, items []CartItem) (*CartSnapshot, error) {
	payload := mergeCartPayload{Items: make([]mergeItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, mergeItemPayload{
			ItemID:    item.ItemID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Variant:   item.Variant,
		})
	}
	var snapshot CartSnapshot
	if err := c.do(ctx, opMergeGuestCart, http.MethodPost, "/cart/merge-from-cart", token, payload, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
