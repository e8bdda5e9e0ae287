package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/platewise/storefront-edge/api/responses"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy throttles one credential surface (login, register)
// with fixed counting windows per client IP and per submitted email.
type AuthRateLimitPolicy struct {
	surface  string
	window   time.Duration
	perIP    int
	perEmail int
}

// NewAuthRateLimitPolicy builds a policy for the named surface.
func NewAuthRateLimitPolicy(surface string, window time.Duration, perIP, perEmail int) AuthRateLimitPolicy {
	surface = strings.ToLower(strings.TrimSpace(surface))
	if surface == "" {
		surface = "auth"
	}
	return AuthRateLimitPolicy{surface: surface, window: window, perIP: perIP, perEmail: perEmail}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.perIP > 0 || p.perEmail > 0)
}

func (p AuthRateLimitPolicy) key(dimension, value string) string {
	return fmt.Sprintf("edge:ratelimit:%s:%s:%s", p.surface, dimension, value)
}

// AuthRateLimit guards credential endpoints against brute force. The IP
// counter runs first so floods are cut before the body is read; the
// email counter hashes the address so raw credentials never become
// redis keys.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.perIP > 0 {
				if ip := clientIP(r); ip != "" {
					count, err := store.IncrWithTTL(ctx, policy.key("ip", ip), policy.window)
					if err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if count > int64(policy.perIP) {
						blockAttempt(ctx, logg, w, policy, "ip", count, policy.perIP)
						return
					}
				}
			}

			if policy.perEmail > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := normalizeEmail(emailFromBody(body)); email != "" {
					count, err := store.IncrWithTTL(ctx, policy.key("email", hashEmail(email)), policy.window)
					if err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if count > int64(policy.perEmail) {
						blockAttempt(ctx, logg, w, policy, "email", count, policy.perEmail)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func blockAttempt(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, dimension string, attempts int64, limit int) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"surface":        policy.surface,
			"dimension":      dimension,
			"attempts":       attempts,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		}), "auth.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashEmail(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
