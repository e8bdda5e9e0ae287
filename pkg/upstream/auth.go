package upstream

import (
	"context"
	"net/http"

	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
)

const (
	opLogin       = "login"
	opRegister    = "register"
	opGoogleLogin = "google_login"
	opLogout      = "logout"
)

// Login exchanges password credentials for an upstream token.
func (c *Client) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, opLogin, http.MethodPost, "/auth/login", "", input, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "upstream login returned no token")
	}
	return &result, nil
}

// Register creates an upstream account. The commerce API normally signs
// the new customer in as part of registration; some deployments return
// the account without a token, in which case a follow-up login with the
// same credentials completes the sign-in.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, opRegister, http.MethodPost, "/auth/register", "", input, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return c.Login(ctx, LoginInput{Email: input.Email, Password: input.Password})
	}
	return &result, nil
}

// GoogleLogin exchanges a Google ID token for an upstream session.
func (c *Client) GoogleLogin(ctx context.Context, input GoogleLoginInput) (*AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, opGoogleLogin, http.MethodPost, "/auth/google", "", input, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "upstream google login returned no token")
	}
	return &result, nil
}

// Logout invalidates the upstream token. Failures are reported but the
// edge session teardown does not depend on them.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, opLogout, http.MethodPost, "/auth/logout", token, nil, nil)
}
