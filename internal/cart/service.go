package cart

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the durable cart cache. Every mutation applies to the
// cache immediately; pushing the change upstream is the reconciler's
// job, not the store's.
type Service interface {
	Get(ctx context.Context, sessionID string) (Cart, error)
	Add(ctx context.Context, sessionID string, line Line) (Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, itemID, storeID string, quantity int) (Cart, error)
	Remove(ctx context.Context, sessionID, itemID, storeID string) (Cart, error)
	Clear(ctx context.Context, sessionID string) error
	SetDiscount(ctx context.Context, sessionID string, discount *Discount) (Cart, error)
	Replace(ctx context.Context, sessionID string, cart Cart) error
	Rekey(ctx context.Context, fromSessionID, toSessionID string) error
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService builds the cart store backed by the provided stack.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// Get returns the cached cart. A session with no cart yet reads as an
// empty cart, never as an error.
func (s *service) Get(ctx context.Context, sessionID string) (Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, err
	}
	record, err := s.repo.Find(ctx, sessionID)
	if err != nil {
		if IsNotFound(err) {
			return Cart{}, nil
		}
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cached cart")
	}
	return cartFromModel(record), nil
}

// Add inserts the line or, when (item, store) is already cached,
// increments its quantity.
func (s *service) Add(ctx context.Context, sessionID string, line Line) (Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, err
	}
	if strings.TrimSpace(line.ItemID) == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	if line.UnitPrice.IsNegative() {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.Ensure(ctx, sessionID); err != nil {
			return err
		}

		existing, err := txRepo.FindLine(ctx, sessionID, line.ItemID, line.StoreID)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if existing != nil {
			return txRepo.UpdateLineQuantity(ctx, sessionID, line.ItemID, line.StoreID, existing.Quantity+line.Quantity)
		}

		item := modelFromLine(sessionID, line)
		return txRepo.CreateLine(ctx, &item)
	})
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "caching cart line")
	}
	return s.Get(ctx, sessionID)
}

// UpdateQuantity sets the line quantity. A quantity at or below zero
// removes the line. Updating a line the cart does not hold changes
// nothing.
func (s *service) UpdateQuantity(ctx context.Context, sessionID, itemID, storeID string, quantity int) (Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, err
	}
	if strings.TrimSpace(itemID) == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if quantity <= 0 {
		return s.Remove(ctx, sessionID, itemID, storeID)
	}

	_, err := s.repo.FindLine(ctx, sessionID, itemID, storeID)
	if err != nil {
		if IsNotFound(err) {
			return s.Get(ctx, sessionID)
		}
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cached line")
	}
	if err := s.repo.UpdateLineQuantity(ctx, sessionID, itemID, storeID, quantity); err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating cached line")
	}
	return s.Get(ctx, sessionID)
}

// Remove drops the line. Removing an absent line is already done.
func (s *service) Remove(ctx context.Context, sessionID, itemID, storeID string) (Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, err
	}
	if strings.TrimSpace(itemID) == "" {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if err := s.repo.DeleteLine(ctx, sessionID, itemID, storeID); err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing cached line")
	}
	return s.Get(ctx, sessionID)
}

// Clear drops the whole cached cart for the session.
func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cached cart")
	}
	return nil
}

// SetDiscount records or clears the coupon on the cached cart.
func (s *service) SetDiscount(ctx context.Context, sessionID string, discount *Discount) (Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.Ensure(ctx, sessionID); err != nil {
			return err
		}
		return txRepo.SetDiscount(ctx, sessionID, discount)
	})
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing cart discount")
	}
	return s.Get(ctx, sessionID)
}

// Replace swaps the cached cart for the provided one atomically. The
// reconciler uses this after refetching the authoritative cart.
func (s *service) Replace(ctx context.Context, sessionID string, cart Cart) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.Ensure(ctx, sessionID); err != nil {
			return err
		}
		if err := txRepo.DeleteLines(ctx, sessionID); err != nil {
			return err
		}
		for _, line := range cart.Items {
			if line.Quantity <= 0 {
				continue
			}
			item := modelFromLine(sessionID, line)
			if err := txRepo.CreateLine(ctx, &item); err != nil {
				return err
			}
		}
		return txRepo.SetDiscount(ctx, sessionID, cart.Discount)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replacing cached cart")
	}
	return nil
}

// Rekey moves the cached cart between sessions, replacing whatever the
// target session had.
func (s *service) Rekey(ctx context.Context, fromSessionID, toSessionID string) error {
	if err := requireSession(fromSessionID); err != nil {
		return err
	}
	if err := requireSession(toSessionID); err != nil {
		return err
	}
	if fromSessionID == toSessionID {
		return nil
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Rekey(ctx, fromSessionID, toSessionID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rekeying cached cart")
	}
	return nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}
