package providers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	shelferrors "github.com/lepinkainen/shelf/internal/errors"
)

const maxBodySize = 8 << 20

// errNotFound marks a 404 response; adapters turn it into an empty result.
var errNotFound = errors.New("not found")

// getBody performs a GET with rate limiting and retries on transport
// failures. Non-2xx statuses become ProviderErrors, 429 carries a
// RateLimitError and 404 yields errNotFound.
func (c *client) getBody(ctx context.Context, op, endpoint string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		body, err := c.doRequest(ctx, op, endpoint, header)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, shelferrors.NewProviderError(c.name, op, 0, ctx.Err())
		case <-time.After(c.backoff(attempt)):
		}
	}

	if errors.Is(lastErr, errNotFound) || shelferrors.IsProviderError(lastErr) {
		return nil, lastErr
	}
	return nil, shelferrors.NewProviderError(c.name, op, 0, lastErr)
}

func (c *client) doRequest(ctx context.Context, op, endpoint string, header http.Header) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, shelferrors.NewProviderError(c.name, op, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, shelferrors.NewProviderError(c.name, op, 0, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		rateErr := shelferrors.NewRateLimitErrorWithRetry(c.name+" rate limit exceeded", retryAfter(resp.Header.Get("Retry-After")))
		return nil, shelferrors.NewProviderError(c.name, op, resp.StatusCode, rateErr)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, shelferrors.NewProviderError(c.name, op, resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, shelferrors.NewProviderError(c.name, op, resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

func (c *client) getJSON(ctx context.Context, op, endpoint string, header http.Header, target any) error {
	body, err := c.getBody(ctx, op, endpoint, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return shelferrors.NewDecodeError(c.name, op, err)
	}
	return nil
}

func (c *client) getXML(ctx context.Context, op, endpoint string, target any) error {
	body, err := c.getBody(ctx, op, endpoint, nil)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, target); err != nil {
		return shelferrors.NewDecodeError(c.name, op, err)
	}
	return nil
}

func isRetryable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		// Network errors (connection resets etc.)
		if strings.Contains(urlErr.Error(), "connection") {
			return true
		}
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	// exponential backoff capped at 10 seconds
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > 10*time.Second {
		return 10 * time.Second
	}
	return delay
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
