package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/internal/reconcile"
	"github.com/platewise/storefront-edge/pkg/config"
	"github.com/platewise/storefront-edge/pkg/logger"
	pkgsession "github.com/platewise/storefront-edge/pkg/session"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

type gateway interface {
	Login(ctx context.Context, input upstream.LoginInput) (*upstream.AuthResult, error)
	Register(ctx context.Context, input upstream.RegisterInput) (*upstream.AuthResult, error)
	GoogleLogin(ctx context.Context, input upstream.GoogleLoginInput) (*upstream.AuthResult, error)
	Logout(ctx context.Context, token string) error
}

type credentialBinder interface {
	BindUpstream(ctx context.Context, sessionID, token, userJSON string) error
	Unbind(ctx context.Context, sessionID string) error
}

type cartMerger interface {
	MergeAndRefresh(ctx context.Context, sess reconcile.Session) (cart.Cart, error)
}

type cartMover interface {
	Rekey(ctx context.Context, fromSessionID, toSessionID string) error
	Clear(ctx context.Context, sessionID string) error
}

// Identity is the outcome of a completed sign-in: the fresh edge
// session, its signed cookie value, the upstream profile, and the cart
// after the guest merge.
type Identity struct {
	SessionID string
	EdgeToken string
	User      json.RawMessage
	Cart      cart.Cart
}

// Service bridges upstream authentication into edge sessions.
//
// Sign-in runs three steps: exchange credentials upstream, persist the
// new session (cookie material plus redis-held upstream token), then
// merge the guest cart and refresh the cache. The first two steps must
// succeed; a failure in the merge step is logged and deferred to the
// next cart read rather than failing the sign-in.
type Service interface {
	SignIn(ctx context.Context, guestSessionID string, input upstream.LoginInput) (*Identity, error)
	Register(ctx context.Context, guestSessionID string, input upstream.RegisterInput) (*Identity, error)
	GoogleSignIn(ctx context.Context, guestSessionID string, input upstream.GoogleLoginInput) (*Identity, error)
	SignOut(ctx context.Context, sessionID, upstreamToken string) (string, string, error)
}

type service struct {
	gateway gateway
	binder  credentialBinder
	merger  cartMerger
	carts   cartMover
	cfg     config.SessionConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewService wires the bridge.
func NewService(gw gateway, binder credentialBinder, merger cartMerger, carts cartMover, cfg config.SessionConfig, logg *logger.Logger) (Service, error) {
	if gw == nil {
		return nil, fmt.Errorf("upstream gateway required")
	}
	if binder == nil {
		return nil, fmt.Errorf("credential binder required")
	}
	if merger == nil {
		return nil, fmt.Errorf("cart merger required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		gateway: gw,
		binder:  binder,
		merger:  merger,
		carts:   carts,
		cfg:     cfg,
		logger:  logg,
		now:     time.Now,
	}, nil
}

// SignIn exchanges password credentials and establishes the session.
func (s *service) SignIn(ctx context.Context, guestSessionID string, input upstream.LoginInput) (*Identity, error) {
	result, err := s.gateway.Login(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, guestSessionID, result)
}

// Register creates the upstream account and signs the customer in with
// the same session flow as a plain login.
func (s *service) Register(ctx context.Context, guestSessionID string, input upstream.RegisterInput) (*Identity, error) {
	result, err := s.gateway.Register(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, guestSessionID, result)
}

// GoogleSignIn exchanges a Google ID token and establishes the session.
func (s *service) GoogleSignIn(ctx context.Context, guestSessionID string, input upstream.GoogleLoginInput) (*Identity, error) {
	result, err := s.gateway.GoogleLogin(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, guestSessionID, result)
}

// SignOut tears the session down and hands back a fresh guest session.
// The cart does not follow across sign-out. The upstream logout is
// best-effort; the edge session dies regardless.
func (s *service) SignOut(ctx context.Context, sessionID, upstreamToken string) (string, string, error) {
	ctx = s.logger.WithSessionID(ctx, sessionID)

	if upstreamToken != "" {
		if err := s.gateway.Logout(ctx, upstreamToken); err != nil {
			s.logger.Warn(ctx, "upstream logout failed, continuing local sign-out")
		}
	}
	if err := s.binder.Unbind(ctx, sessionID); err != nil {
		return "", "", err
	}
	if err := s.carts.Clear(ctx, sessionID); err != nil {
		s.logger.Error(ctx, "clearing cached cart on sign-out", err)
	}

	guestID := uuid.NewString()
	token, err := pkgsession.MintToken(s.cfg, s.now(), pkgsession.TokenPayload{
		SessionID: guestID,
		Guest:     true,
	})
	if err != nil {
		return "", "", err
	}
	return guestID, token, nil
}

func (s *service) establish(ctx context.Context, guestSessionID string, result *upstream.AuthResult) (*Identity, error) {
	sessionID := uuid.NewString()
	ctx = s.logger.WithSessionID(ctx, sessionID)

	edgeToken, err := pkgsession.MintToken(s.cfg, s.now(), pkgsession.TokenPayload{
		SessionID: sessionID,
		Guest:     false,
		UserID:    userIDFrom(result.User),
	})
	if err != nil {
		return nil, err
	}

	if err := s.binder.BindUpstream(ctx, sessionID, result.Token, string(result.User)); err != nil {
		return nil, err
	}

	if guestSessionID != "" && guestSessionID != sessionID {
		if err := s.carts.Rekey(ctx, guestSessionID, sessionID); err != nil {
			s.logger.Error(ctx, "moving guest cart to signed-in session", err)
		}
	}

	identity := &Identity{
		SessionID: sessionID,
		EdgeToken: edgeToken,
		User:      result.User,
	}

	merged, err := s.merger.MergeAndRefresh(ctx, reconcile.Session{ID: sessionID, Token: result.Token})
	if err != nil {
		// Sign-in already succeeded; the next cart read reconciles.
		s.logger.Warn(ctx, "cart merge after sign-in failed, deferring to next read")
		return identity, nil
	}
	identity.Cart = merged
	return identity, nil
}

func userIDFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var probe struct {
		ID       string `json:"id"`
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	if probe.ID != "" {
		return probe.ID
	}
	return probe.LegacyID
}
