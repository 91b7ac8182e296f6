package cachegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const fetchTimeout = 15 * time.Second

// NewHTTPFetcher returns a Fetcher that pulls shell routes from the app
// origin. client may be nil to use a default with a sane timeout.
func NewHTTPFetcher(baseURL string, client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return func(ctx context.Context, route string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+route, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", route, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", route, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, route)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", route, err)
		}
		return body, nil
	}
}
