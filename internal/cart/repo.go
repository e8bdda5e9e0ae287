package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository encapsulates cart cache persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Find returns the cached cart for the session with its lines, oldest
// line first so display order is stable.
func (r *Repository) Find(ctx context.Context, sessionID string) (*CachedCart, error) {
	var record CachedCart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("session_id = ?", sessionID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Ensure creates the cart header for the session if it does not exist.
func (r *Repository) Ensure(ctx context.Context, sessionID string) (*CachedCart, error) {
	record := CachedCart{SessionID: sessionID}
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		FirstOrCreate(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLine returns the cached line for (session, item, store).
func (r *Repository) FindLine(ctx context.Context, sessionID, itemID, storeID string) (*CachedCartItem, error) {
	var item CachedCartItem
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND item_id = ? AND store_id = ?", sessionID, itemID, storeID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateLine inserts the provided line.
func (r *Repository) CreateLine(ctx context.Context, item *CachedCartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateLineQuantity sets the quantity on an existing line.
func (r *Repository) UpdateLineQuantity(ctx context.Context, sessionID, itemID, storeID string, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&CachedCartItem{}).
		Where("session_id = ? AND item_id = ? AND store_id = ?", sessionID, itemID, storeID).
		Updates(map[string]any{"quantity": quantity, "updated_at": time.Now()}).Error
}

// DeleteLine removes the line. Deleting an absent line is not an error.
func (r *Repository) DeleteLine(ctx context.Context, sessionID, itemID, storeID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ? AND item_id = ? AND store_id = ?", sessionID, itemID, storeID).
		Delete(&CachedCartItem{}).Error
}

// DeleteLines removes every line for the session.
func (r *Repository) DeleteLines(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&CachedCartItem{}).Error
}

// SetDiscount records the applied coupon on the cart header.
func (r *Repository) SetDiscount(ctx context.Context, sessionID string, discount *Discount) error {
	updates := map[string]any{
		"discount_code":   nil,
		"discount_amount": 0,
		"updated_at":      time.Now(),
	}
	if discount != nil {
		updates["discount_code"] = discount.Code
		updates["discount_amount"] = discount.Amount
	}
	return r.db.WithContext(ctx).
		Model(&CachedCart{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
}

// Delete drops the cart header and its lines.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if err := r.DeleteLines(ctx, sessionID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&CachedCart{}).Error
}

// Rekey moves the cached cart from one session to another. Any cart
// already cached under the target session is replaced.
func (r *Repository) Rekey(ctx context.Context, fromSessionID, toSessionID string) error {
	if err := r.Delete(ctx, toSessionID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Model(&CachedCart{}).
		Where("session_id = ?", fromSessionID).
		Update("session_id", toSessionID).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&CachedCartItem{}).
		Where("session_id = ?", fromSessionID).
		Update("session_id", toSessionID).Error
}

// IsNotFound reports whether err is the cache's record-missing error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
