package upstream

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/pkg/types"
)

// CartVariant is a weight or size option on a catalog item. When the
// variant carries its own price it replaces the item's base price.
type CartVariant struct {
	Label  string          `json:"label"`
	Weight decimal.Decimal `json:"weight,omitempty"`
	Price  decimal.Decimal `json:"price,omitempty"`
}

// CartItem is a line in the upstream cart. The commerce API has shipped
// several payload shapes over time, so decoding tolerates the legacy key
// names alongside the current ones.
type CartItem struct {
	ItemID    string          `json:"itemId"`
	StoreID   string          `json:"storeId,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Variant   *CartVariant    `json:"variant,omitempty"`
}

func (i *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ItemID    string           `json:"itemId"`
		ID        string           `json:"id"`
		LegacyID  string           `json:"_id"`
		MenuItem  json.RawMessage  `json:"menuItemId"`
		StoreID   string           `json:"storeId"`
		Store     string           `json:"store"`
		Name      string           `json:"name"`
		UnitPrice *decimal.Decimal `json:"unitPrice"`
		Price     *decimal.Decimal `json:"price"`
		Quantity  int              `json:"quantity"`
		Variant   *CartVariant     `json:"variant"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	menu := decodeMenuItemRef(raw.MenuItem)

	i.ItemID = firstNonEmpty(raw.ItemID, raw.ID, raw.LegacyID, menu.id)
	i.StoreID = firstNonEmpty(raw.StoreID, raw.Store)
	i.Name = firstNonEmpty(raw.Name, menu.name)
	i.Quantity = raw.Quantity
	i.Variant = raw.Variant

	switch {
	case raw.UnitPrice != nil:
		i.UnitPrice = *raw.UnitPrice
	case raw.Price != nil:
		i.UnitPrice = *raw.Price
	case menu.price != nil:
		i.UnitPrice = *menu.price
	}
	if raw.Variant != nil && raw.Variant.Price.IsPositive() {
		i.UnitPrice = raw.Variant.Price
	}
	return nil
}

// menuItemRef is the commerce API's menuItemId field, which arrives
// either as a bare identifier string or as a populated catalog record.
type menuItemRef struct {
	id    string
	name  string
	price *decimal.Decimal
}

func decodeMenuItemRef(data json.RawMessage) menuItemRef {
	if len(data) == 0 {
		return menuItemRef{}
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return menuItemRef{id: id}
	}
	var populated struct {
		ID       string           `json:"id"`
		LegacyID string           `json:"_id"`
		Name     string           `json:"name"`
		Price    *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(data, &populated); err != nil {
		return menuItemRef{}
	}
	return menuItemRef{
		id:    firstNonEmpty(populated.ID, populated.LegacyID),
		name:  populated.Name,
		price: populated.Price,
	}
}

// Discount is an applied coupon as reported by the commerce API.
type Discount struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"discountAmount"`
}

// CartSnapshot is the authoritative cart state held by the commerce API
// for a signed-in customer.
type CartSnapshot struct {
	Items          []CartItem      `json:"items"`
	Discount       *Discount       `json:"discount,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
}

// IsEmpty reports whether the snapshot holds no line items.
func (s *CartSnapshot) IsEmpty() bool {
	return s == nil || len(s.Items) == 0
}

// Order is a placed order as reported by the commerce API.
type Order struct {
	ID                   string                 `json:"id"`
	Status               string                 `json:"status"`
	Items                []CartItem             `json:"items"`
	Subtotal             decimal.Decimal        `json:"subtotal"`
	DeliveryCharge       decimal.Decimal        `json:"deliveryCharge"`
	DiscountAmount       decimal.Decimal        `json:"discountAmount"`
	GrandTotal           decimal.Decimal        `json:"grandTotal"`
	PaymentMethod        string                 `json:"paymentMethod"`
	DeliveryAddress      *types.DeliveryAddress `json:"deliveryAddress,omitempty"`
	DeliveryInstructions string                 `json:"deliveryInstructions,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
}

func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	var raw struct {
		alias
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Order(raw.alias)
	if o.ID == "" {
		o.ID = raw.LegacyID
	}
	return nil
}

// AuthResult carries the upstream credentials returned by a successful
// login or registration. User is kept opaque so profile fields added
// upstream flow through to the user cookie unchanged.
type AuthResult struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// AddToCartInput describes a line to add to the upstream cart. The
// commerce API names the item field menuItemId on the wire.
type AddToCartInput struct {
	ItemID   string       `json:"menuItemId"`
	StoreID  string       `json:"storeId,omitempty"`
	Quantity int          `json:"quantity"`
	Variant  *CartVariant `json:"variant,omitempty"`
}

// CreateOrderInput is the checkout payload forwarded to the commerce API.
type CreateOrderInput struct {
	DeliveryAddress      types.DeliveryAddress `json:"deliveryAddress"`
	PaymentMethod        string                `json:"paymentMethod"`
	DeliveryInstructions string                `json:"deliveryInstructions,omitempty"`
	CouponCode           string                `json:"couponCode,omitempty"`
}

// LoginInput is the credential payload for password login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// GoogleLoginInput carries the Google ID token exchanged for an
// upstream session.
type GoogleLoginInput struct {
	Credential string `json:"credential"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
