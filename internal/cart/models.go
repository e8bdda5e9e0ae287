package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedCart is the per-session cart header in the durable cache. It is
// keyed by the edge session so guest carts survive process restarts and
// upstream outages.
type CachedCart struct {
	SessionID      string          `gorm:"column:session_id;primaryKey"`
	DiscountCode   *string         `gorm:"column:discount_code"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`

	Items []CachedCartItem `gorm:"foreignKey:SessionID;references:SessionID"`
}

func (CachedCart) TableName() string {
	return "cached_carts"
}

// CachedCartItem is one cached line. A line is identified by
// (session, item, store) so the same catalog item from two stores stays
// distinct.
type CachedCartItem struct {
	ID            string           `gorm:"column:id;primaryKey"`
	SessionID     string           `gorm:"column:session_id;index"`
	ItemID        string           `gorm:"column:item_id"`
	StoreID       string           `gorm:"column:store_id"`
	Name          string           `gorm:"column:name"`
	UnitPrice     decimal.Decimal  `gorm:"column:unit_price"`
	Quantity      int              `gorm:"column:quantity"`
	VariantLabel  *string          `gorm:"column:variant_label"`
	VariantWeight *decimal.Decimal `gorm:"column:variant_weight"`
	VariantPrice  *decimal.Decimal `gorm:"column:variant_price"`
	CreatedAt     time.Time        `gorm:"column:created_at"`
	UpdatedAt     time.Time        `gorm:"column:updated_at"`
}

func (CachedCartItem) TableName() string {
	return "cached_cart_items"
}
