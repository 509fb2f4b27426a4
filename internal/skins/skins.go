// Package skins fetches raw skin and cape textures.
package skins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Fetcher downloads texture bytes with bounded retries. Texture fetches are
// best-effort for the auth pipeline, so callers treat errors as "leave the
// texture unset".
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a texture fetcher with sensible retry defaults.
func NewFetcher() *Fetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // Silence default logging
	retryClient.HTTPClient.Timeout = 30 * time.Second

	return &Fetcher{httpClient: retryClient.StandardClient()}
}

// Get downloads one texture.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading texture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
