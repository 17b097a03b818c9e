package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Sharjeel-Saleem-06/baatcheet/internal/utils"
)

// TokenSource supplies the bearer token. Token acquisition (login, refresh)
// belongs to an external collaborator; the runtime only consumes tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed-token source, used by the CLI and tests.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client talks to the BaatCheet backend API.
type Client struct {
	base   string
	tokens TokenSource
	hc     *http.Client
	log    *logrus.Entry
}

func NewClient(baseURL string, tokens TokenSource, l *logrus.Logger) *Client {
	if l == nil {
		l = logrus.New()
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		tokens: tokens,
		hc:     &http.Client{Timeout: 30 * time.Second},
		log:    l.WithField("component", "api_client"),
	}
}

// SetHTTPClient overrides the underlying HTTP client. The streaming endpoint
// needs a client without a whole-request timeout; tests need httptest clients.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.hc = hc
	}
}

// apiError mirrors the backend's error envelope.
type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// bearer resolves the current token and rejects locally-known-expired ones so
// a doomed round-trip is never issued.
func (c *Client) bearer(ctx context.Context, op string) (string, error) {
	if c.tokens == nil {
		return "", utils.E(utils.CodeUnauthorized, op, "missing bearer token", nil)
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil || tok == "" {
		return "", utils.E(utils.CodeUnauthorized, op, "missing bearer token", err)
	}
	if tokenExpired(tok) {
		return "", utils.E(utils.CodeSessionExpired, op, "session expired", nil)
	}
	return tok, nil
}

// tokenExpired inspects the token's exp claim without verifying the
// signature. Verification is the backend's job; locally we only want to skip
// requests that cannot succeed.
func tokenExpired(raw string) bool {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return false // opaque tokens pass through; the server decides
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}

func (c *Client) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	tok, err := c.bearer(ctx, op)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req, nil
}

// doJSON issues a JSON request and decodes a JSON response into out (out may
// be nil).
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to encode request body", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return wrapTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to decode response", err)
	}
	return nil
}

func wrapTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return utils.E(utils.CodeAborted, op, "request aborted", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.E(utils.CodeTimeout, op, "request timed out", err)
	}
	return utils.E(utils.CodeRequestFailed, op, "request failed", err)
}

// decodeError maps a non-2xx response to an AppError, preferring the server's
// own error envelope when the body carries one.
func decodeError(op string, resp *http.Response) error {
	code := utils.CodeFromStatus(resp.StatusCode)
	msg := fmt.Sprintf("server returned %d", resp.StatusCode)

	var ae apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
		msg = ae.Message
		if ae.Code != "" && code == utils.CodeRequestFailed {
			code = ae.Code
		}
	}
	return utils.E(code, op, msg, nil)
}
