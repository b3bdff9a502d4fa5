// Package client provides a Go SDK for talking to a replicated log node.
//
// It wraps the HTTP wire format so callers deal with values and write
// concerns instead of requests and status codes. The client talks to a
// single node; a master coordinates replication itself.
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
)

// Client represents a connection to one node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Add appends a value through the master. writeConcern nil means "all
// replicas". Returns the node's error body on a 405.
func (c *Client) Add(ctx context.Context, value string, writeConcern *int) error {
	body := struct {
		Value        string `json:"value"`
		WriteConcern *int   `json:"write_concern"`
	}{Value: value, WriteConcern: writeConcern}

	resp, err := c.do(ctx, http.MethodPost, "/message", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return c.errorFromBody(resp)
	}
	return nil
}

// List returns the node's visible values — the consistent prefix.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/messages", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromBody(resp)
	}

	var values []string
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return values, nil
}

// SetDelay arms a one-shot delay (in seconds) on the node's next incoming
// replicated write. Test aid.
func (c *Client) SetDelay(ctx context.Context, seconds int) error {
	body := struct {
		Value int `json:"value"`
	}{Value: seconds}

	resp, err := c.do(ctx, http.MethodPost, "/delay", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromBody(resp)
	}
	return nil
}

// Health returns the node's /health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromBody(resp)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// errorFromBody turns a non-success response into an error carrying the
// node's message. The nodes answer errors with a JSON-encoded string.
func (c *Client) errorFromBody(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var msg string
	if err := json.Unmarshal(data, &msg); err != nil || msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		return fmt.Errorf("node returned HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("node returned HTTP %d: %s", resp.StatusCode, msg)
}
