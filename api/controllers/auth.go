package controllers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/platewise/storefront-edge/api/middleware"
	"github.com/platewise/storefront-edge/api/responses"
	"github.com/platewise/storefront-edge/api/validators"
	"github.com/platewise/storefront-edge/internal/auth"
	"github.com/platewise/storefront-edge/pkg/config"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone"`
}

type googleLoginRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type authResponse struct {
	User json.RawMessage `json:"user"`
	Cart any             `json:"cart,omitempty"`
}

// AuthLogin exchanges password credentials for a signed-in edge session.
// The edge JWT replaces the guest cookie and the upstream profile is
// mirrored into a readable cookie for the storefront.
func AuthLogin(svc auth.Service, cfg config.SessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var payload loginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		identity, err := svc.SignIn(r.Context(), sess.ID, upstream.LoginInput{
			Email:    payload.Email,
			Password: payload.Password,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeIdentity(w, cfg, identity)
	}
}

// AuthRegister creates the upstream account and signs the customer in.
func AuthRegister(svc auth.Service, cfg config.SessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var payload registerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		identity, err := svc.Register(r.Context(), sess.ID, upstream.RegisterInput{
			Name:     payload.Name,
			Email:    payload.Email,
			Password: payload.Password,
			Phone:    payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeIdentity(w, cfg, identity)
	}
}

// AuthGoogle exchanges a Google ID token for a signed-in edge session.
func AuthGoogle(svc auth.Service, cfg config.SessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var payload googleLoginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		identity, err := svc.GoogleSignIn(r.Context(), sess.ID, upstream.GoogleLoginInput{
			Credential: payload.Credential,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeIdentity(w, cfg, identity)
	}
}

// AuthLogout tears down the session and issues a fresh guest cookie.
func AuthLogout(svc auth.Service, cfg config.SessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		sess := middleware.SessionFromContext(r.Context())
		_, guestToken, err := svc.SignOut(r.Context(), sess.ID, sess.Token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		middleware.SetSessionCookie(w, cfg, guestToken)
		middleware.SetUserCookie(w, cfg, "")
		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}

func writeIdentity(w http.ResponseWriter, cfg config.SessionConfig, identity *auth.Identity) {
	middleware.SetSessionCookie(w, cfg, identity.EdgeToken)
	if len(identity.User) > 0 {
		middleware.SetUserCookie(w, cfg, url.QueryEscape(string(identity.User)))
	}

	resp := authResponse{User: identity.User}
	if !identity.Cart.IsEmpty() {
		resp.Cart = identity.Cart
	}
	responses.WriteSuccess(w, resp)
}
