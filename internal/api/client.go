// Package api implements the HTTP client for the remote POS backend.
// Every call injects the bearer token and the device IP header; 401/403
// anywhere kills the session. Responses decode into caller-supplied typed
// values — there is no shape sniffing, a mismatched body is an error.
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

	"movilpos/internal/apierror"
	"movilpos/internal/infra"
	"movilpos/internal/session"
)

var (
	// ErrSessionExpired means the backend answered 401/403. The local
	// session has already been cleared; the user must log in again.
	ErrSessionExpired = errors.New("api: session expired")

	// ErrNotFound maps 404 responses. Callers use it as data ("no open
	// shift", "product gone"), not as a failure.
	ErrNotFound = errors.New("api: not found")
)

// Error is a non-2xx backend response with its decoded error envelope.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: backend returned %d: %s", e.Status, e.Detail)
}

// Client wraps HTTP access to the backend.
type Client struct {
	baseURL  string
	deviceIP string
	http     *http.Client
	sess     session.Store
	breaker  *infra.Breaker
}

// NewClient builds a client against baseURL. The session store supplies the
// bearer token and absorbs forced logouts.
func NewClient(baseURL, deviceIP string, timeout time.Duration, sess session.Store) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceIP: deviceIP,
		http:     &http.Client{Timeout: timeout},
		sess:     sess,
		breaker:  infra.NewBreaker(5, 2, 30*time.Second),
	}
}

// Session exposes the underlying store (profile reads, explicit logout).
func (c *Client) Session() session.Store { return c.sess }

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ip-address", c.deviceIP)

	token, err := c.sess.Token(ctx)
	if err != nil {
		return fmt.Errorf("api: read session token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var resp *http.Response
	err = c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		// Gateway-level failures count against the breaker too.
		if resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout {
			return fmt.Errorf("api: backend returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, infra.ErrBackendUnavailable) {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
		if resp == nil {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Fatal to the session regardless of which call triggered it.
		_ = c.sess.Clear(ctx)
		return ErrSessionExpired

	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound

	case resp.StatusCode >= 400:
		var envelope apierror.APIError
		detail := resp.Status
		if decErr := json.NewDecoder(resp.Body).Decode(&envelope); decErr == nil && envelope.Detail != "" {
			detail = envelope.Detail
		}
		return &Error{Status: resp.StatusCode, Detail: detail}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// ── Auth ─────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IP       string `json:"ip"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  session.Profile `json:"user"`
}

// Login authenticates against POST /auth/login and persists the token and
// user profile in the session store.
func (c *Client) Login(ctx context.Context, username, password string) (*session.Profile, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{
		Username: username,
		Password: password,
		IP:       c.deviceIP,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("api: login response missing token")
	}
	if err := c.sess.SetToken(ctx, resp.Token); err != nil {
		return nil, fmt.Errorf("api: persist token: %w", err)
	}
	if err := c.sess.SetProfile(ctx, &resp.User); err != nil {
		return nil, fmt.Errorf("api: persist profile: %w", err)
	}
	return &resp.User, nil
}

// Logout clears the local session. The backend keeps no server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.sess.Clear(ctx)
}
