package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer credential and the recovery actions the
// client invokes on authorization failure. Implemented by session.Manager.
type TokenSource interface {
	// AccessToken returns the current bearer token, or "" when logged out.
	AccessToken() string
	// RefreshAccessToken performs the silent refresh. Implementations are
	// single-flight and force a logout themselves when the refresh fails.
	RefreshAccessToken(ctx context.Context) error
	// ForceLogout is invoked when a request still gets 401 after a
	// successful refresh. Implementations must end the session client-side.
	ForceLogout(ctx context.Context)
}

// Client is the single shared HTTP client. Every response is decoded from
// the {status, message, data} envelope at this boundary, and authorization
// failures are recovered with an at-most-once refresh-and-retry.
type Client struct {
	baseURL     string
	refreshPath string
	httpClient  *http.Client
	tokens      TokenSource
	log         *zerolog.Logger
}

// NewClient builds the shared client. refreshPath names the token refresh
// endpoint, which is exempt from the retry-on-401 path.
func NewClient(baseURL, refreshPath string, timeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		refreshPath: refreshPath,
		httpClient:  &http.Client{Timeout: timeout},
		log:         logger,
	}
}

// SetTokenSource wires the session manager in after construction. The
// client and the session manager reference each other at runtime, so one
// side has to be attached late.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// Do issues one request and returns the decoded envelope payload.
// A 401 on any path other than the refresh endpoint triggers exactly one
// silent refresh followed by one retry; a second 401 gives up and forces
// a logout.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	status, raw, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && path != c.refreshPath && c.tokens != nil {
		c.log.Debug().Str("path", path).Msg("401 received, attempting silent refresh")
		if refreshErr := c.tokens.RefreshAccessToken(ctx); refreshErr != nil {
			return nil, fmt.Errorf("%w: refresh failed: %v", ErrUnauthorized, refreshErr)
		}

		status, raw, err = c.send(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.log.Warn().Str("path", path).Msg("401 after retry, forcing logout")
			c.tokens.ForceLogout(ctx)
			return nil, ErrUnauthorized
		}
	} else if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	return decodeEnvelope(status, raw)
}

func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation is expected; the coordinator suppresses it.
		if ctx.Err() != nil {
			return 0, nil, fmt.Errorf("%w: %s %s", ErrCanceled, method, path)
		}
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}
