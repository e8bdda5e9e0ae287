package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/storefront-edge/pkg/config"
	"github.com/platewise/storefront-edge/pkg/logger"
	pkgsession "github.com/platewise/storefront-edge/pkg/session"
)

// Session resolves the edge session for every request. A missing or
// invalid cookie starts a fresh guest session and sets the cookie on the
// way out. For signed-in sessions the upstream token is fetched from
// redis; a session whose credentials have expired degrades to a guest
// instead of failing the request.
func Session(cfg config.SessionConfig, tokens pkgsession.UpstreamTokenReader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, minted := resolveSession(r, cfg)
			if minted != nil {
				SetSessionCookie(w, cfg, minted.token)
			}

			if !sess.Guest {
				token, err := tokens.UpstreamToken(ctx, sess.ID)
				switch {
				case err == nil:
					sess.Token = token
				case errors.Is(err, pkgsession.ErrNoUpstreamToken):
					// Credentials expired out of redis; the cookie
					// outlived the sign-in.
					sess.Guest = true
					sess.UserID = ""
				default:
					if logg != nil {
						logg.Warn(logg.WithSessionID(ctx, sess.ID), "session store unavailable, degrading to guest")
					}
					sess.Guest = true
					sess.UserID = ""
				}
			}

			ctx = WithSession(ctx, sess)
			if logg != nil {
				fields := map[string]any{
					"session_id": sess.ID,
					"guest":      sess.Guest,
				}
				if sess.UserID != "" {
					fields["user_id"] = sess.UserID
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type mintedCookie struct {
	token string
}

func resolveSession(r *http.Request, cfg config.SessionConfig) (RequestSession, *mintedCookie) {
	cookie, err := r.Cookie(cfg.CookieName)
	if err == nil && cookie.Value != "" {
		claims, parseErr := pkgsession.ParseToken(cfg, cookie.Value)
		if parseErr == nil && claims.SessionID != "" {
			return RequestSession{
				ID:     claims.SessionID,
				UserID: claims.UserID,
				Guest:  claims.Guest,
			}, nil
		}
	}

	guestID := uuid.NewString()
	token, mintErr := pkgsession.MintToken(cfg, time.Now(), pkgsession.TokenPayload{
		SessionID: guestID,
		Guest:     true,
	})
	if mintErr != nil {
		// Unsignable config; fall back to an uncookied per-request guest.
		return RequestSession{ID: guestID, Guest: true}, nil
	}
	return RequestSession{ID: guestID, Guest: true}, &mintedCookie{token: token}
}

// SetSessionCookie writes the edge JWT cookie. Shared with the auth
// handlers so sign-in and middleware-minted guests set identical cookies.
func SetSessionCookie(w http.ResponseWriter, cfg config.SessionConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(cfg.CookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetUserCookie mirrors the upstream profile into a readable cookie so
// the storefront can render account state without an extra round trip.
// The value is URL-escaped JSON; an empty profile clears the cookie.
func SetUserCookie(w http.ResponseWriter, cfg config.SessionConfig, escapedUser string) {
	maxAge := int(cfg.CookieTTL.Seconds())
	if escapedUser == "" {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.UserCookie,
		Value:    escapedUser,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
