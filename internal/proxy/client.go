// Package proxy talks to the management proxy that owns the stored
// provider credentials. The proxy executes outbound API calls on this
// service's behalf; raw tokens never cross this boundary.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/models"
)

const (
	authFilesPath = "/v0/management/auth-files"
	apiCallPath   = "/v0/management/api-call"

	managementKeyHeader = "X-Management-Key"
)

// TokenPlaceholder is substituted by the proxy with the account's live
// access token when it executes the call.
const TokenPlaceholder = "$TOKEN$"

// CallRequest describes one authenticated API call for the proxy to
// execute with a stored credential.
type CallRequest struct {
	AuthIndex string              `json:"auth-index"`
	Method    string              `json:"method"`
	URL       string              `json:"url"`
	Header    map[string][]string `json:"header,omitempty"`
	Body      string              `json:"body,omitempty"`
}

// CallResult is the proxy's verbatim relay of the upstream response.
type CallResult struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// OK reports whether the upstream call succeeded.
func (r *CallResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an HTTP client for the management proxy.
type Client struct {
	endpoint string
	key      string
	http     *http.Client
	logger   *logging.Logger
}

// NewClient creates a management proxy client. The endpoint may be empty;
// callers must check Configured before use.
func NewClient(endpoint, key string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		key:      strings.TrimSpace(key),
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Configured reports whether the client can reach a proxy at all.
func (c *Client) Configured() bool {
	return c.endpoint != "" && c.key != ""
}

// ListAccounts returns all credential records the proxy knows about.
func (c *Client) ListAccounts(ctx context.Context) ([]models.ProxyAccount, error) {
	if !c.Configured() {
		return nil, &apperrors.ErrNotConfigured{Missing: c.missing()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+authFilesPath, nil)
	if err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: err}
	}
	req.Header.Set(managementKeyHeader, c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apperrors.ErrProxyUnreachable{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Files []models.ProxyAccount `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: fmt.Errorf("decode auth-files response: %w", err)}
	}

	return payload.Files, nil
}

// ExecuteCall asks the proxy to perform one authenticated call with the
// named credential and relays the upstream status and body.
func (c *Client) ExecuteCall(ctx context.Context, call CallRequest) (*CallResult, error) {
	if !c.Configured() {
		return nil, &apperrors.ErrNotConfigured{Missing: c.missing()}
	}

	body, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encode api-call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+apiCallPath, bytes.NewReader(body))
	if err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: err}
	}
	req.Header.Set(managementKeyHeader, c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apperrors.ErrProxyUnreachable{StatusCode: resp.StatusCode}
	}

	var result CallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &apperrors.ErrProxyUnreachable{Err: fmt.Errorf("decode api-call response: %w", err)}
	}

	return &result, nil
}

func (c *Client) missing() string {
	switch {
	case c.endpoint == "" && c.key == "":
		return "proxy endpoint and management key"
	case c.endpoint == "":
		return "proxy endpoint"
	default:
		return "management key"
	}
}
