package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/platewise/storefront-edge/api/responses"
	"github.com/platewise/storefront-edge/pkg/config"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
)

// ReadinessDeps are the dependencies the readiness probe verifies.
type ReadinessDeps struct {
	DB       interface{ Ping(context.Context) error }
	Redis    interface{ Ping(context.Context) error }
	Upstream interface{ Ping(context.Context) error }
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the cart cache and redis answer.
// The upstream commerce API is reported but not required, because the
// edge keeps serving the cache through upstream outages.
func HealthReady(cfg *config.Config, deps ReadinessDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true

		checks["db"] = checkStatus(ctx, deps.DB)
		checks["redis"] = checkStatus(ctx, deps.Redis)
		checks["upstream"] = checkStatus(ctx, deps.Upstream)
		if checks["db"] != "ok" || checks["redis"] != "ok" {
			ready = false
		}

		if !ready {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func checkStatus(ctx context.Context, p interface{ Ping(context.Context) error }) string {
	if p == nil {
		return "skipped"
	}
	if err := p.Ping(ctx); err != nil {
		return "unavailable"
	}
	return "ok"
}
