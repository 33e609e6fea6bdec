package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr1hm/disaster-response/internal/models"
)

const maxBodyBytes = 4 << 20

// DefaultTimeout bounds a single upstream call when the caller's context has
// no earlier deadline.
const DefaultTimeout = 15 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs one GET and decodes the body into v, mapping every
// failure onto a ProviderError.
func getJSON(ctx context.Context, client *http.Client, provider, fullURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return newError(provider, models.FailureUnreachable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return transportError(provider, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return newError(provider, models.FailureRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return newError(provider, models.FailureUnreachable, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newError(provider, models.FailureInvalidResponse, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		if isTimeout(err) {
			return newError(provider, models.FailureTimeout, fmt.Errorf("read body: %w", err))
		}
		return newError(provider, models.FailureInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// googleStatus maps a failed status of the Google Maps web services.
func googleStatus(provider, status, message string) *ProviderError {
	switch status {
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return newError(provider, models.FailureRateLimited, fmt.Errorf("%s: %s", status, message))
	case "UNKNOWN_ERROR":
		return newError(provider, models.FailureUnreachable, fmt.Errorf("%s: %s", status, message))
	case "":
		return newError(provider, models.FailureInvalidResponse, fmt.Errorf("missing status"))
	default:
		return newError(provider, models.FailureInvalidResponse, fmt.Errorf("%s: %s", status, message))
	}
}
