package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/platewise/storefront-edge/internal/cart"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

const (
	pushQueueSize = 32
	pushTimeout   = 15 * time.Second
)

// Session identifies who a cart operation runs for. Token is the
// upstream credential and stays empty for guests.
type Session struct {
	ID    string
	Token string
}

// SignedIn reports whether the session holds upstream credentials.
func (s Session) SignedIn() bool {
	return s.Token != ""
}

// Gateway is the slice of the commerce API the reconciler drives.
type Gateway interface {
	GetCart(ctx context.Context, token string) (*upstream.CartSnapshot, error)
	AddToCart(ctx context.Context, token string, input upstream.AddToCartInput) (*upstream.CartSnapshot, error)
	UpdateQuantity(ctx context.Context, token, itemID, storeID string, quantity int) (*upstream.CartSnapshot, error)
	RemoveFromCart(ctx context.Context, token, itemID, storeID string) (*upstream.CartSnapshot, error)
	ClearCart(ctx context.Context, token string) error
	ApplyDiscount(ctx context.Context, token, code string) (*upstream.CartSnapshot, error)
	RemoveDiscount(ctx context.Context, token string) (*upstream.CartSnapshot, error)
	MergeGuestCart(ctx context.Context, token string, items []upstream.CartItem) (*upstream.CartSnapshot, error)
}

// Service keeps the durable cart cache and the upstream cart converged.
//
// Mutations land in the cache first and return immediately; for
// signed-in sessions the change is then pushed upstream in the
// background and the cache is refreshed from the push response. Pushes
// for one session run strictly in order so a quick add-then-remove
// cannot arrive upstream reversed. A failed push is logged and left
// for the next read to repair; the optimistic cache state is never
// rolled back.
type Service interface {
	EffectiveCart(ctx context.Context, sess Session) (cart.Cart, error)
	Add(ctx context.Context, sess Session, line cart.Line) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, sess Session, itemID, storeID string, quantity int) (cart.Cart, error)
	Remove(ctx context.Context, sess Session, itemID, storeID string) (cart.Cart, error)
	Clear(ctx context.Context, sess Session) error
	ApplyGuestDiscount(ctx context.Context, sess Session, discount *cart.Discount) (cart.Cart, error)
	ApplyUpstreamDiscount(ctx context.Context, sess Session, code string) (cart.Cart, error)
	RemoveDiscount(ctx context.Context, sess Session) (cart.Cart, error)
	MergeAndRefresh(ctx context.Context, sess Session) (cart.Cart, error)
	Shutdown(ctx context.Context) error
}

type service struct {
	local   cart.Service
	gateway Gateway
	logger  *logger.Logger
	pushes  *pushQueues
}

// NewService builds the reconciler over the cache and the gateway.
func NewService(local cart.Service, gateway Gateway, logg *logger.Logger) (Service, error) {
	if local == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("upstream gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		local:   local,
		gateway: gateway,
		logger:  logg,
		pushes:  newPushQueues(),
	}, nil
}

// EffectiveCart resolves which cart the shopper actually sees. A
// signed-in session with lines upstream is served the upstream cart
// and the cache is refreshed to match; everyone else is served the
// cache. An unreachable upstream degrades to the cache instead of
// failing the read.
func (s *service) EffectiveCart(ctx context.Context, sess Session) (cart.Cart, error) {
	if !sess.SignedIn() {
		return s.local.Get(ctx, sess.ID)
	}

	snapshot, err := s.gateway.GetCart(ctx, sess.Token)
	if err != nil {
		s.logger.Warn(s.logger.WithSessionID(ctx, sess.ID), "upstream cart unavailable, serving cache")
		return s.local.Get(ctx, sess.ID)
	}
	if snapshot.IsEmpty() {
		return s.local.Get(ctx, sess.ID)
	}

	resolved := cart.FromSnapshot(snapshot)
	if err := s.local.Replace(ctx, sess.ID, resolved); err != nil {
		s.logger.Error(ctx, "refreshing cart cache from upstream", err)
	}
	return resolved, nil
}

// Add caches the line immediately and pushes it upstream behind the
// response.
func (s *service) Add(ctx context.Context, sess Session, line cart.Line) (cart.Cart, error) {
	result, err := s.local.Add(ctx, sess.ID, line)
	if err != nil {
		return cart.Cart{}, err
	}
	s.push(ctx, sess, "add_to_cart", func(ctx context.Context) (*upstream.CartSnapshot, error) {
		return s.gateway.AddToCart(ctx, sess.Token, upstream.AddToCartInput{
			ItemID:   line.ItemID,
			StoreID:  line.StoreID,
			Quantity: line.Quantity,
			Variant:  variantToUpstream(line.Variant),
		})
	})
	return result, nil
}

// UpdateQuantity mirrors the cache semantics upstream, including the
// remove-at-zero rule.
func (s *service) UpdateQuantity(ctx context.Context, sess Session, itemID, storeID string, quantity int) (cart.Cart, error) {
	result, err := s.local.UpdateQuantity(ctx, sess.ID, itemID, storeID, quantity)
	if err != nil {
		return cart.Cart{}, err
	}
	if quantity <= 0 {
		s.push(ctx, sess, "remove_from_cart", func(ctx context.Context) (*upstream.CartSnapshot, error) {
			return s.gateway.RemoveFromCart(ctx, sess.Token, itemID, storeID)
		})
		return result, nil
	}
	s.push(ctx, sess, "update_quantity", func(ctx context.Context) (*upstream.CartSnapshot, error) {
		return s.gateway.UpdateQuantity(ctx, sess.Token, itemID, storeID, quantity)
	})
	return result, nil
}

// Remove drops the line from cache and upstream.
func (s *service) Remove(ctx context.Context, sess Session, itemID, storeID string) (cart.Cart, error) {
	result, err := s.local.Remove(ctx, sess.ID, itemID, storeID)
	if err != nil {
		return cart.Cart{}, err
	}
	s.push(ctx, sess, "remove_from_cart", func(ctx context.Context) (*upstream.CartSnapshot, error) {
		return s.gateway.RemoveFromCart(ctx, sess.Token, itemID, storeID)
	})
	return result, nil
}

// Clear empties the cache and the upstream cart.
func (s *service) Clear(ctx context.Context, sess Session) error {
	if err := s.local.Clear(ctx, sess.ID); err != nil {
		return err
	}
	s.push(ctx, sess, "clear_cart", func(ctx context.Context) (*upstream.CartSnapshot, error) {
		return nil, s.gateway.ClearCart(ctx, sess.Token)
	})
	return nil
}

// ApplyGuestDiscount records a locally evaluated coupon on the cache.
func (s *service) ApplyGuestDiscount(ctx context.Context, sess Session, discount *cart.Discount) (cart.Cart, error) {
	return s.local.SetDiscount(ctx, sess.ID, discount)
}

// ApplyUpstreamDiscount validates the coupon with the commerce API
// synchronously, since a rejection has to reach the shopper, then
// mirrors the result into the cache.
func (s *service) ApplyUpstreamDiscount(ctx context.Context, sess Session, code string) (cart.Cart, error) {
	if !sess.SignedIn() {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use this coupon")
	}
	snapshot, err := s.gateway.ApplyDiscount(ctx, sess.Token, code)
	if err != nil {
		return cart.Cart{}, err
	}
	resolved := cart.FromSnapshot(snapshot)
	if err := s.local.Replace(ctx, sess.ID, resolved); err != nil {
		s.logger.Error(ctx, "refreshing cart cache after coupon", err)
	}
	return resolved, nil
}

// RemoveDiscount clears the coupon locally and, for signed-in
// sessions, upstream.
func (s *service) RemoveDiscount(ctx context.Context, sess Session) (cart.Cart, error) {
	result, err := s.local.SetDiscount(ctx, sess.ID, nil)
	if err != nil {
		return cart.Cart{}, err
	}
	s.push(ctx, sess, "remove_discount", func(ctx context.Context) (*upstream.CartSnapshot, error) {
		return s.gateway.RemoveDiscount(ctx, sess.Token)
	})
	return result, nil
}

// MergeAndRefresh runs at sign-in: guest lines accumulated in the
// cache are merged into the upstream cart and the cache is replaced
// with the merged result. Callers treat a failure here as deferred
// work, not a sign-in failure.
func (s *service) MergeAndRefresh(ctx context.Context, sess Session) (cart.Cart, error) {
	if !sess.SignedIn() {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "merge requires upstream credentials")
	}

	cached, err := s.local.Get(ctx, sess.ID)
	if err != nil {
		return cart.Cart{}, err
	}

	var snapshot *upstream.CartSnapshot
	if cached.IsEmpty() {
		snapshot, err = s.gateway.GetCart(ctx, sess.Token)
	} else {
		snapshot, err = s.gateway.MergeGuestCart(ctx, sess.Token, cached.ToUpstreamItems())
	}
	if err != nil {
		return cart.Cart{}, err
	}

	resolved := cart.FromSnapshot(snapshot)
	if err := s.local.Replace(ctx, sess.ID, resolved); err != nil {
		return cart.Cart{}, err
	}
	return resolved, nil
}

// Shutdown waits for queued pushes to drain.
func (s *service) Shutdown(ctx context.Context) error {
	return s.pushes.wait(ctx)
}

type pushFunc func(ctx context.Context) (*upstream.CartSnapshot, error)

// push enqueues a background upstream call for signed-in sessions.
// Guest mutations stay cache-only until the sign-in merge.
func (s *service) push(ctx context.Context, sess Session, op string, fn pushFunc) {
	if !sess.SignedIn() {
		return
	}

	// The job outlives the request, so detach from its cancellation
	// but keep the log fields.
	jobCtx := s.logger.WithUpstreamOp(s.logger.WithSessionID(context.WithoutCancel(ctx), sess.ID), op)
	accepted := s.pushes.enqueue(sess.ID, func() {
		ctx, cancel := context.WithTimeout(jobCtx, pushTimeout)
		defer cancel()

		snapshot, err := fn(ctx)
		if err != nil {
			s.logger.Warn(ctx, "background cart push failed")
			return
		}
		if snapshot == nil {
			return
		}
		if err := s.local.Replace(ctx, sess.ID, cart.FromSnapshot(snapshot)); err != nil {
			s.logger.Error(ctx, "refreshing cart cache after push", err)
		}
	})
	if !accepted {
		s.logger.Warn(jobCtx, "cart push queue full, dropping push")
	}
}

func variantToUpstream(v *cart.Variant) *upstream.CartVariant {
	if v == nil {
		return nil
	}
	return &upstream.CartVariant{Label: v.Label, Weight: v.Weight, Price: v.Price}
}
