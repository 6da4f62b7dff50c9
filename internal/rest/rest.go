// Package rest issues authenticated calls against the chat backend REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"govorilka/internal/models"
)

var (
	// ErrUnauthorized is returned for any 401 response. The configured
	// onUnauthorized callback has already fired by the time callers see it.
	ErrUnauthorized = errors.New("unauthorized")

	ErrMissingToken = errors.New("missing access token")
)

// TokenSource provides the access token attached to authenticated requests.
type TokenSource interface {
	Token() (string, error)
}

type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

// NewClient creates a REST client. onUnauthorized is invoked on every 401
// response before the call returns ErrUnauthorized; it is used to force a
// session clear.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, onUnauthorized func()) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		http:           &http.Client{Timeout: timeout},
		tokens:         tokens,
		onUnauthorized: onUnauthorized,
	}
}

// doRequest performs a JSON request. If out is non-nil the 2xx response body
// is decoded into it. A 401 fires the unauthorized callback and returns
// ErrUnauthorized; any other non-2xx is returned as the parsed error body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, auth bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}

	if auth {
		if err := c.applyAuth(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// uploadBlob sends a binary body with the given content type.
func (c *Client) uploadBlob(ctx context.Context, method, path string, blob []byte, contentType string, auth bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	if auth {
		if err := c.applyAuth(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.checkStatus(resp)
}

// downloadBlob fetches a binary body, returning the bytes and the response
// content type.
func (c *Client) downloadBlob(ctx context.Context, method, path string, auth bool) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, "", err
	}

	if auth {
		if err := c.applyAuth(req); err != nil {
			return nil, "", err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp); err != nil {
		return nil, "", err
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) applyAuth(req *http.Request) error {
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		return ErrMissingToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}

	return parseErrorBody(resp)
}

func parseErrorBody(resp *http.Response) error {
	var errMsg models.ErrorMessage
	if err := json.NewDecoder(resp.Body).Decode(&errMsg); err == nil && errMsg.Message != "" {
		return fmt.Errorf("request failed (status %d): %w", resp.StatusCode, &errMsg)
	}
	return fmt.Errorf("request failed (status %d)", resp.StatusCode)
}
