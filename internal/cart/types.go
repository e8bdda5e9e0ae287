package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/pkg/upstream"
)

// Variant is a weight or size option on a line. When it carries a price
// the variant price is the effective unit price.
type Variant struct {
	Label  string          `json:"label"`
	Weight decimal.Decimal `json:"weight,omitempty"`
	Price  decimal.Decimal `json:"price,omitempty"`
}

// Line is the canonical cart line used everywhere inside the edge.
// Upstream payload variations are normalized away before a line gets
// here.
type Line struct {
	ItemID    string          `json:"itemId"`
	StoreID   string          `json:"storeId,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Variant   *Variant        `json:"variant,omitempty"`
}

// EffectiveUnitPrice resolves the variant price override.
func (l Line) EffectiveUnitPrice() decimal.Decimal {
	if l.Variant != nil && l.Variant.Price.IsPositive() {
		return l.Variant.Price
	}
	return l.UnitPrice
}

// LineTotal is price times quantity for the line.
func (l Line) LineTotal() decimal.Decimal {
	return l.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount is an applied coupon.
type Discount struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"discountAmount"`
}

// Cart is the canonical cart shape returned to callers.
type Cart struct {
	Items    []Line    `json:"items"`
	Discount *Discount `json:"discount,omitempty"`
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal sums the line totals.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Items {
		total = total.Add(line.LineTotal())
	}
	return total
}

// FromSnapshot converts an upstream snapshot into the canonical shape.
func FromSnapshot(snapshot *upstream.CartSnapshot) Cart {
	if snapshot == nil {
		return Cart{}
	}
	cart := Cart{Items: make([]Line, 0, len(snapshot.Items))}
	for _, item := range snapshot.Items {
		cart.Items = append(cart.Items, Line{
			ItemID:    item.ItemID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Variant:   variantFromUpstream(item.Variant),
		})
	}
	if snapshot.Discount != nil {
		cart.Discount = &Discount{Code: snapshot.Discount.Code, Amount: snapshot.Discount.Amount}
	}
	return cart
}

// ToUpstreamItems converts canonical lines to the gateway payload shape.
func (c Cart) ToUpstreamItems() []upstream.CartItem {
	items := make([]upstream.CartItem, 0, len(c.Items))
	for _, line := range c.Items {
		items = append(items, upstream.CartItem{
			ItemID:    line.ItemID,
			StoreID:   line.StoreID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Variant:   variantToUpstream(line.Variant),
		})
	}
	return items
}

func variantFromUpstream(v *upstream.CartVariant) *Variant {
	if v == nil {
		return nil
	}
	return &Variant{Label: v.Label, Weight: v.Weight, Price: v.Price}
}

func variantToUpstream(v *Variant) *upstream.CartVariant {
	if v == nil {
		return nil
	}
	return &upstream.CartVariant{Label: v.Label, Weight: v.Weight, Price: v.Price}
}

func cartFromModel(model *CachedCart) Cart {
	if model == nil {
		return Cart{}
	}
	cart := Cart{Items: make([]Line, 0, len(model.Items))}
	for _, item := range model.Items {
		line := Line{
			ItemID:    item.ItemID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
		if item.VariantLabel != nil {
			variant := &Variant{Label: *item.VariantLabel}
			if item.VariantWeight != nil {
				variant.Weight = *item.VariantWeight
			}
			if item.VariantPrice != nil {
				variant.Price = *item.VariantPrice
			}
			line.Variant = variant
		}
		cart.Items = append(cart.Items, line)
	}
	if model.DiscountCode != nil && *model.DiscountCode != "" {
		cart.Discount = &Discount{Code: *model.DiscountCode, Amount: model.DiscountAmount}
	}
	return cart
}

func modelFromLine(sessionID string, line Line) CachedCartItem {
	item := CachedCartItem{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ItemID:    line.ItemID,
		StoreID:   line.StoreID,
		Name:      line.Name,
		UnitPrice: line.UnitPrice,
		Quantity:  line.Quantity,
	}
	if line.Variant != nil {
		label := line.Variant.Label
		weight := line.Variant.Weight
		price := line.Variant.Price
		item.VariantLabel = &label
		item.VariantWeight = &weight
		item.VariantPrice = &price
	}
	return item
}
