// Package https provides the HTTP client used to fetch and store blobs over
// http(s), with optional bearer auth, status checking and debug logging.
package https

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/flambeai/flambe-go/logger"
)

// Client is an HTTP client for blob requests.
type Client struct {
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a client. An empty token sends no Authorization header.
func NewClient(token string, log logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: log,
	}
}

// GET fetches url. The caller must close the response body.
func (c *Client) GET(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req)
}

// PUT uploads size bytes from body to url.
func (c *Client) PUT(ctx context.Context, url string, body io.Reader, size int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.doRequest(req)
}

// doRequest executes the request with auth, status checking, and logging.
// A 404 response wraps os.ErrNotExist.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.logger.Debug("http request",
		"method", req.Method,
		"url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("http request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"error", err,
			"duration", time.Since(start))
		return nil, fmt.Errorf("error making request: %w", err)
	}

	c.logger.Debug("http response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", req.URL.String(), os.ErrNotExist)
		}
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
