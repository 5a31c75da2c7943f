// Package client is a typed client for the servgate control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/status"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// Client calls the five control API endpoints. A zero token is allowed for
// the token issuance calls.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Created is the result of a successful code registration.
type Created struct {
	Code string
	URL  string
}

// New creates a Client from cfg. httpClient may be nil.
func New(cfg config.ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(cfg.APIURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		http:    httpClient,
	}
}

// SetToken replaces the bearer token sent with code operations.
func (c *Client) SetToken(token string) { c.token = strings.TrimSpace(token) }

// Token returns the current token.
func (c *Client) Token() string { return c.token }

// TokenCreate asks the server to issue a pending token. The token itself is
// delivered out of band.
func (c *Client) TokenCreate(ctx context.Context) error {
	_, err := c.call(ctx, "/token/create", nil, status.VerifyTokenCreated)
	return err
}

// TokenVerify exchanges the pending token for a persisted one. On success the
// client switches to the new token.
func (c *Client) TokenVerify(ctx context.Context, pendingToken string) (string, error) {
	extra, err := c.call(ctx, "/token/verify", map[string]string{"token": pendingToken}, status.VerifyTokenAccepted)
	if err != nil {
		return "", err
	}
	var token string
	if err := decodeField(extra, "token", &token); err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// CodeCreate registers code for port. An empty code or "random" lets the
// server generate one.
func (c *Client) CodeCreate(ctx context.Context, code, port string) (Created, error) {
	payload := map[string]string{"token": c.token, "port": port}
	if code != "" {
		payload["code"] = code
	}
	extra, err := c.call(ctx, "/code/create", payload, status.CodeCreated)
	if err != nil {
		return Created{}, err
	}
	var out Created
	if err := decodeField(extra, "code", &out.Code); err != nil {
		return Created{}, err
	}
	if err := decodeField(extra, "url", &out.URL); err != nil {
		return Created{}, err
	}
	return out, nil
}

// CodeList returns every registered code.
func (c *Client) CodeList(ctx context.Context) ([]string, error) {
	extra, err := c.call(ctx, "/code/list", map[string]string{"token": c.token}, status.ListGiven)
	if err != nil {
		return nil, err
	}
	codes := []string{}
	if err := decodeField(extra, "codes", &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// CodeDelete removes code.
func (c *Client) CodeDelete(ctx context.Context, code string) error {
	_, err := c.call(ctx, "/code/delete", map[string]string{"token": c.token, "code": code}, status.CodeDeleted)
	return err
}

func (c *Client) call(ctx context.Context, path string, payload map[string]string, want status.Kind) (map[string]json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("control api url is not set")
	}
	if payload == nil {
		payload = map[string]string{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	kind, b, extra, err := status.Decode(raw)
	if err != nil {
		return nil, &ResponseError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	if kind != want {
		return nil, newStatusError(resp, kind, b, extra)
	}
	return extra, nil
}

func decodeField(extra map[string]json.RawMessage, key string, dst any) error {
	raw, ok := extra[key]
	if !ok {
		return fmt.Errorf("response is missing %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
