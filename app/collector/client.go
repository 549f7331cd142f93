package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxRetries     = 3
	requestTimeout = 30 * time.Second
	retryBaseDelay = time.Second
)

// client wraps the shared http.Client with the bounded-retry policy all
// collectors use: 3 attempts, exponential backoff from 1s, 30s per-attempt
// timeout. A 404 is returned immediately and never retried because it is
// the trigger for fallback strategies, not a transient failure.
type client struct {
	http      *http.Client
	userAgent string
}

func newClient(h *http.Client, userAgent string) *client {
	return &client{http: h, userAgent: userAgent}
}

func (c *client) get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	return c.do(ctx, http.MethodGet, url, headers, nil)
}

func (c *client) postJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	return c.do(ctx, http.MethodPost, url, headers, body)
}

func (c *client) do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}

		data, status, err := c.doOnce(ctx, method, url, headers, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusNotFound {
			return data, status, nil
		}
		if status >= 200 && status < 300 {
			return data, status, nil
		}
		lastErr = fmt.Errorf("HTTP %d from %s", status, url)
	}

	return nil, 0, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *client) doOnce(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, nil
}
