package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platewise/storefront-edge/pkg/config"
	pkgerrors "github.com/platewise/storefront-edge/pkg/errors"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/metrics"
)

const apiPrefix = "/api/v1"

var (
	errBaseURLRequired = errors.New("upstream base URL is required")
	errLoggerRequired  = errors.New("upstream logger is required")
)

// Client wraps the commerce API with centralized auth headers, envelope
// decoding, error mapping, and call metrics.
type Client struct {
	http        *http.Client
	baseURL     string
	userAgent   string
	tokenHeader string
	metrics     *metrics.UpstreamMetrics
	logger      *logger.Logger
}

// NewClient validates the gateway configuration and builds the wrapper.
// Metrics may be nil when the caller does not export them.
func NewClient(cfg config.UpstreamConfig, m *metrics.UpstreamMetrics, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing upstream base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tokenHeader := strings.TrimSpace(cfg.TokenHeader)
	if tokenHeader == "" {
		tokenHeader = "Authorization"
	}

	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     base,
		userAgent:   cfg.UserAgent,
		tokenHeader: tokenHeader,
		metrics:     m,
		logger:      logg,
	}, nil
}

// Ping probes the commerce API health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "building upstream health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upstream unreachable")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("upstream health returned %d", resp.StatusCode))
	}
	return nil
}

// envelope is the tolerant wire wrapper. Current endpoints respond with
// {success, data}; older auth endpoints respond with a flat body plus
// {status: "success"}.
type envelope struct {
	Success *bool           `json:"success"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *envelopeError  `json:"error"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (e envelope) failed() bool {
	if e.Success != nil && !*e.Success {
		return true
	}
	return e.Status != "" && !strings.EqualFold(e.Status, "success")
}

func (e envelope) errorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// do executes one upstream call. A non-empty token is sent as a bearer
// credential. When out is non-nil the response payload is decoded into
// it, unwrapping the {success, data} envelope when present.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding upstream request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reqBody)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building upstream request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set(c.tokenHeader, "Bearer "+token)
	}

	ctx = c.logger.WithUpstreamOp(ctx, op)
	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		c.metrics.IncFailure(op)
		c.logger.Error(ctx, "upstream call failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upstream unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncFailure(op)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading upstream response")
	}

	var env envelope
	if len(raw) > 0 {
		// Non-JSON bodies (proxies, HTML error pages) fall through to
		// status mapping below.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.metrics.IncFailure(op)
		mapped := mapStatus(op, resp.StatusCode, env)
		c.logger.Warn(c.logger.WithField(ctx, "upstream_status", resp.StatusCode), "upstream call rejected")
		return mapped
	}
	if env.failed() {
		c.metrics.IncFailure(op)
		msg := env.errorMessage()
		if msg == "" {
			msg = "upstream reported failure"
		}
		return pkgerrors.New(codeForOp(op, pkgerrors.CodeInternal), msg)
	}

	if out != nil {
		payload := raw
		if len(env.Data) > 0 && string(env.Data) != "null" {
			payload = env.Data
		}
		if err := json.Unmarshal(payload, out); err != nil {
			c.metrics.IncFailure(op)
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding upstream response")
		}
	}

	c.metrics.IncSuccess(op)
	return nil
}

func mapStatus(op string, status int, env envelope) error {
	msg := env.errorMessage()
	switch {
	case status == http.StatusBadRequest:
		if msg == "" {
			msg = "upstream rejected the request"
		}
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if msg == "" {
			msg = "upstream rejected the credentials"
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	case status == http.StatusNotFound:
		if msg == "" {
			msg = "upstream resource not found"
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	case status == http.StatusConflict:
		if msg == "" {
			msg = "upstream reported a conflict"
		}
		return pkgerrors.New(pkgerrors.CodeConflict, msg)
	case status == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "upstream could not process the request"
		}
		return pkgerrors.New(codeForOp(op, pkgerrors.CodeValidation), msg)
	case status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeRateLimit, "upstream rate limit exceeded")
	case status >= http.StatusInternalServerError:
		if msg == "" {
			msg = fmt.Sprintf("upstream returned %d", status)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	default:
		if msg == "" {
			msg = fmt.Sprintf("upstream returned %d", status)
		}
		return pkgerrors.New(pkgerrors.CodeInternal, msg)
	}
}

// codeForOp narrows generic rejection codes for operations with a more
// specific domain meaning.
func codeForOp(op string, fallback pkgerrors.Code) pkgerrors.Code {
	switch op {
	case opApplyDiscount:
		return pkgerrors.CodeInvalidCoupon
	default:
		return fallback
	}
}
