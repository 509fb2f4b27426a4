// Package api contains HTTP clients for external services.
// Each API client is self-contained and handles its own caching.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	mojangNameLookupURL = "https://api.mojang.com/users/profiles/minecraft"
)

// ErrNoSuchPlayer is returned when no player owns the requested name.
var ErrNoSuchPlayer = errors.New("no player with that name")

// PublicProfile is the public identity of a player: the undashed profile
// UUID and the canonical spelling of the name.
type PublicProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProfileClient resolves player names through the public Mojang API.
type ProfileClient struct {
	httpClient *http.Client

	mu       sync.Mutex
	cache    map[string]cachedProfile
	cacheTTL time.Duration
}

type cachedProfile struct {
	profile PublicProfile
	fetched time.Time
}

// NewProfileClient creates a new profile lookup client
func NewProfileClient() *ProfileClient {
	return &ProfileClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:    map[string]cachedProfile{},
		cacheTTL: 5 * time.Minute,
	}
}

// LookupName resolves a player name to its profile. Name lookups are
// case-insensitive upstream; the returned profile carries the canonical
// spelling.
func (c *ProfileClient) LookupName(ctx context.Context, name string) (*PublicProfile, error) {
	c.mu.Lock()
	if entry, ok := c.cache[name]; ok && time.Since(entry.fetched) < c.cacheTTL {
		c.mu.Unlock()
		profile := entry.profile
		return &profile, nil
	}
	c.mu.Unlock()

	lookupURL := mojangNameLookupURL + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("looking up player name: %w", err)
	}
	defer resp.Body.Close()

	// The endpoint has answered "unknown name" with both codes over time
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoSuchPlayer
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var profile PublicProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	if profile.ID == "" || profile.Name == "" {
		return nil, fmt.Errorf("profile response is incomplete")
	}

	c.mu.Lock()
	c.cache[name] = cachedProfile{profile: profile, fetched: time.Now()}
	c.mu.Unlock()

	return &profile, nil
}
