// Package rpc carries operation calls to the management agent as JSON over
// TLS and classifies the transport failures the invoker's retry policy
// dispatches on.
package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"vmbroker/internal/wire"
)

// Caller executes one named remote operation against the agent and decodes
// the JSON response into out.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any, out any) error
}

// Client is the HTTP implementation of Caller. One client holds one pooled
// transport that is reused across all calls made through it; serializing
// calls is the caller's responsibility.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTransportRetries enables transport-level retries below the invoker.
// They default to off so the invoker owns retry policy.
func WithTransportRetries(n int) ClientOption {
	return func(c *Client) {
		rc := newRetryableClient(n)
		c.http = rc.StandardClient()
	}
}

// NewClient creates a client for the agent at baseURL, e.g.
// "https://localhost:17444". The shared secret authenticates every call.
func NewClient(baseURL, secret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    newRetryableClient(0).StandardClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newRetryableClient(retries int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.Logger = nil
	// The agent presents a self-signed certificate; this client only ever
	// talks to the same-host management agent.
	rc.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return rc
}

// Call posts the request envelope to the agent and decodes the response.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, out any) error {
	body, err := json.Marshal(wire.Request{Secret: c.secret, Parameters: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s call rejected: agent returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}
