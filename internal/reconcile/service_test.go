package reconcile

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platewise/storefront-edge/internal/cart"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

type memStore struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func newMemStore() *memStore {
	return &memStore{carts: map[string]cart.Cart{}}
}

func (m *memStore) Get(_ context.Context, sessionID string) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[sessionID], nil
}

func (m *memStore) Add(_ context.Context, sessionID string, line cart.Line) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	c := m.carts[sessionID]
	for i, existing := range c.Items {
		if existing.ItemID == line.ItemID && existing.StoreID == line.StoreID {
			c.Items[i].Quantity += line.Quantity
			m.carts[sessionID] = c
			return c, nil
		}
	}
	c.Items = append(c.Items, line)
	m.carts[sessionID] = c
	return c, nil
}

func (m *memStore) UpdateQuantity(_ context.Context, sessionID, itemID, storeID string, quantity int) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[sessionID]
	for i, existing := range c.Items {
		if existing.ItemID == itemID && existing.StoreID == storeID {
			if quantity <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = quantity
			}
			break
		}
	}
	m.carts[sessionID] = c
	return c, nil
}

func (m *memStore) Remove(ctx context.Context, sessionID, itemID, storeID string) (cart.Cart, error) {
	return m.UpdateQuantity(ctx, sessionID, itemID, storeID, 0)
}

func (m *memStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}

func (m *memStore) SetDiscount(_ context.Context, sessionID string, discount *cart.Discount) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[sessionID]
	c.Discount = discount
	m.carts[sessionID] = c
	return c, nil
}

func (m *memStore) Replace(_ context.Context, sessionID string, c cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[sessionID] = c
	return nil
}

func (m *memStore) Rekey(_ context.Context, fromSessionID, toSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[toSessionID] = m.carts[fromSessionID]
	delete(m.carts, fromSessionID)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	snapshot *upstream.CartSnapshot
	err      error
}

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op)
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) respond() (*upstream.CartSnapshot, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.snapshot != nil {
		return g.snapshot, nil
	}
	return &upstream.CartSnapshot{}, nil
}

func (g *fakeGateway) GetCart(context.Context, string) (*upstream.CartSnapshot, error) {
	g.record("get_cart")
	return g.respond()
}

func (g *fakeGateway) AddToCart(context.Context, string, upstream.AddToCartInput) (*upstream.CartSnapshot, error) {
	g.record("add_to_cart")
	return g.respond()
}

func (g *fakeGateway) UpdateQuantity(context.Context, string, string, string, int) (*upstream.CartSnapshot, error) {
	g.record("update_quantity")
	return g.respond()
}

func (g *fakeGateway) RemoveFromCart(context.Context, string, string, string) (*upstream.CartSnapshot, error) {
	g.record("remove_from_cart")
	return g.respond()
}

func (g *fakeGateway) ClearCart(context.Context, string) error {
	g.record("clear_cart")
	_, err := g.respond()
	return err
}

func (g *fakeGateway) ApplyDiscount(context.Context, string, string) (*upstream.CartSnapshot, error) {
	g.record("apply_discount")
	return g.respond()
}

func (g *fakeGateway) RemoveDiscount(context.Context, string) (*upstream.CartSnapshot, error) {
	g.record("remove_discount")
	return g.respond()
}

func (g *fakeGateway) MergeGuestCart(context.Context, string, []upstream.CartItem) (*upstream.CartSnapshot, error) {
	g.record("merge_guest_cart")
	return g.respond()
}

func newTestService(t *testing.T, store cart.Service, gateway Gateway) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(store, gateway, logg)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func flush(t *testing.T, svc Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("draining pushes: %v", err)
	}
}

func testLine(itemID string, qty int) cart.Line {
	return cart.Line{
		ItemID:    itemID,
		Name:      "item " + itemID,
		UnitPrice: decimal.NewFromInt(100),
		Quantity:  qty,
	}
}

func guest() Session   { return Session{ID: "sess-guest"} }
func customer() Session { return Session{ID: "sess-user", Token: "tok-1"} }

func TestEffectiveCartForGuestSkipsUpstream(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)

	store.Replace(context.Background(), guest().ID, cart.Cart{Items: []cart.Line{testLine("item-1", 1)}})

	resolved, err := svc.EffectiveCart(context.Background(), guest())
	if err != nil {
		t.Fatalf("effective cart: %v", err)
	}
	if len(resolved.Items) != 1 {
		t.Fatalf("expected cached cart, got %+v", resolved)
	}
	if len(gateway.callLog()) != 0 {
		t.Fatalf("guest read should not hit upstream: %v", gateway.callLog())
	}
}

func TestEffectiveCartPrefersNonEmptyUpstream(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{snapshot: &upstream.CartSnapshot{
		Items: []upstream.CartItem{{ItemID: "remote-item", Name: "Remote", UnitPrice: decimal.NewFromInt(80), Quantity: 2}},
	}}
	svc := newTestService(t, store, gateway)

	store.Replace(context.Background(), customer().ID, cart.Cart{Items: []cart.Line{testLine("stale-item", 1)}})

	resolved, err := svc.EffectiveCart(context.Background(), customer())
	if err != nil {
		t.Fatalf("effective cart: %v", err)
	}
	if len(resolved.Items) != 1 || resolved.Items[0].ItemID != "remote-item" {
		t.Fatalf("upstream cart should win: %+v", resolved.Items)
	}

	cached, _ := store.Get(context.Background(), customer().ID)
	if len(cached.Items) != 1 || cached.Items[0].ItemID != "remote-item" {
		t.Fatalf("cache should refresh to upstream state: %+v", cached.Items)
	}
}

func TestEffectiveCartFallsBackToCacheWhenUpstreamEmpty(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)

	store.Replace(context.Background(), customer().ID, cart.Cart{Items: []cart.Line{testLine("local-item", 1)}})

	resolved, err := svc.EffectiveCart(context.Background(), customer())
	if err != nil {
		t.Fatalf("effective cart: %v", err)
	}
	if len(resolved.Items) != 1 || resolved.Items[0].ItemID != "local-item" {
		t.Fatalf("cache should win over empty upstream: %+v", resolved.Items)
	}
}

func TestEffectiveCartDegradesToCacheOnUpstreamError(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "upstream unreachable")}
	svc := newTestService(t, store, gateway)

	store.Replace(context.Background(), customer().ID, cart.Cart{Items: []cart.Line{testLine("local-item", 1)}})

	resolved, err := svc.EffectiveCart(context.Background(), customer())
	if err != nil {
		t.Fatalf("read should degrade, not fail: %v", err)
	}
	if len(resolved.Items) != 1 {
		t.Fatalf("expected cached cart, got %+v", resolved.Items)
	}
}

func TestAddForGuestStaysLocal(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)

	if _, err := svc.Add(context.Background(), guest(), testLine("item-1", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	flush(t, svc)

	if len(gateway.callLog()) != 0 {
		t.Fatalf("guest add must not push upstream: %v", gateway.callLog())
	}
}

func TestAddForCustomerPushesAndRefreshesCache(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{snapshot: &upstream.CartSnapshot{
		Items: []upstream.CartItem{{ItemID: "item-1", Name: "item", UnitPrice: decimal.NewFromInt(100), Quantity: 1}},
		Discount: &upstream.Discount{Code: "SAVE10", Amount: decimal.NewFromInt(10)},
	}}
	svc := newTestService(t, store, gateway)

	result, err := svc.Add(context.Background(), customer(), testLine("item-1", 1))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("optimistic result missing line: %+v", result)
	}
	flush(t, svc)

	if calls := gateway.callLog(); len(calls) != 1 || calls[0] != "add_to_cart" {
		t.Fatalf("expected one add push, got %v", calls)
	}
	cached, _ := store.Get(context.Background(), customer().ID)
	if cached.Discount == nil || cached.Discount.Code != "SAVE10" {
		t.Fatalf("cache should refresh from push response: %+v", cached)
	}
}

func TestFailedPushKeepsOptimisticCache(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "upstream unreachable")}
	svc := newTestService(t, store, gateway)

	if _, err := svc.Add(context.Background(), customer(), testLine("item-1", 2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	flush(t, svc)

	cached, _ := store.Get(context.Background(), customer().ID)
	if len(cached.Items) != 1 || cached.Items[0].Quantity != 2 {
		t.Fatalf("optimistic state must survive a failed push: %+v", cached.Items)
	}
}

func TestPushesForOneSessionRunInOrder(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)
	ctx := context.Background()

	if _, err := svc.Add(ctx, customer(), testLine("item-1", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, customer(), "item-1", "", 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Remove(ctx, customer(), "item-1", ""); err != nil {
		t.Fatalf("remove: %v", err)
	}
	flush(t, svc)

	want := []string{"add_to_cart", "update_quantity", "remove_from_cart"}
	got := gateway.callLog()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("push order broken: expected %v, got %v", want, got)
		}
	}
}

func TestUpdateToZeroPushesRemove(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)
	ctx := context.Background()

	if _, err := svc.Add(ctx, customer(), testLine("item-1", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, customer(), "item-1", "", 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	flush(t, svc)

	got := gateway.callLog()
	if len(got) != 2 || got[1] != "remove_from_cart" {
		t.Fatalf("zero quantity should push a remove: %v", got)
	}
}

func TestMergeAndRefreshMergesGuestLines(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{snapshot: &upstream.CartSnapshot{
		Items: []upstream.CartItem{
			{ItemID: "item-1", Name: "item", UnitPrice: decimal.NewFromInt(100), Quantity: 3},
		},
	}}
	svc := newTestService(t, store, gateway)
	ctx := context.Background()

	store.Replace(ctx, customer().ID, cart.Cart{Items: []cart.Line{testLine("item-1", 2)}})

	merged, err := svc.MergeAndRefresh(ctx, customer())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if calls := gateway.callLog(); len(calls) != 1 || calls[0] != "merge_guest_cart" {
		t.Fatalf("expected merge call, got %v", calls)
	}
	if merged.Items[0].Quantity != 3 {
		t.Fatalf("merged result should come from upstream: %+v", merged.Items)
	}
	cached, _ := store.Get(ctx, customer().ID)
	if cached.Items[0].Quantity != 3 {
		t.Fatalf("cache should hold merged cart: %+v", cached.Items)
	}
}

func TestMergeAndRefreshWithEmptyCacheJustFetches(t *testing.T) {
	store := newMemStore()
	gateway := &fakeGateway{}
	svc := newTestService(t, store, gateway)

	if _, err := svc.MergeAndRefresh(context.Background(), customer()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if calls := gateway.callLog(); len(calls) != 1 || calls[0] != "get_cart" {
		t.Fatalf("empty cache should only fetch, got %v", calls)
	}
}

func TestApplyUpstreamDiscountRequiresCredentials(t *testing.T) {
	svc := newTestService(t, newMemStore(), &fakeGateway{})

	_, err := svc.ApplyUpstreamDiscount(context.Background(), guest(), "SAVE10")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestApplyUpstreamDiscountSurfacesRejection(t *testing.T) {
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon expired")}
	svc := newTestService(t, newMemStore(), gateway)

	_, err := svc.ApplyUpstreamDiscount(context.Background(), customer(), "OLD")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidCoupon {
		t.Fatalf("expected INVALID_COUPON, got %v", err)
	}
}
