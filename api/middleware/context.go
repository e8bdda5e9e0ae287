package middleware

import (
	"context"

	"github.com/platewise/storefront-edge/internal/reconcile"
)

type contextKey string

const ctxSession contextKey = "edge_session"

// RequestSession is the resolved edge session for the current request.
// Token carries the upstream credential for signed-in customers and is
// empty for guests.
type RequestSession struct {
	ID     string
	UserID string
	Guest  bool
	Token  string
}

// Reconcile maps the request session onto the cart reconciler's view.
func (s RequestSession) Reconcile() reconcile.Session {
	return reconcile.Session{ID: s.ID, Token: s.Token}
}

func SessionFromContext(ctx context.Context) RequestSession {
	if ctx == nil {
		return RequestSession{}
	}
	if v, ok := ctx.Value(ctxSession).(RequestSession); ok {
		return v
	}
	return RequestSession{}
}

// WithSession injects the resolved session into the context.
func WithSession(ctx context.Context, sess RequestSession) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSession, sess)
}
