package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProfileClient_LookupName(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method != "GET" {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/Notch" {
			t.Errorf("Expected path /Notch, got %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PublicProfile{
			ID:   "069a79f444e94726a5befca90e38aaf5",
			Name: "Notch",
		})
	}))
	defer ts.Close()

	// Override URL
	oldURL := mojangNameLookupURL
	mojangNameLookupURL = ts.URL
	defer func() { mojangNameLookupURL = oldURL }()

	client := NewProfileClient()
	profile, err := client.LookupName(context.Background(), "Notch")
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}

	if profile.ID != "069a79f444e94726a5befca90e38aaf5" {
		t.Errorf("Got %s, want 069a79f444e94726a5befca90e38aaf5", profile.ID)
	}
	if profile.Name != "Notch" {
		t.Errorf("Got %s, want Notch", profile.Name)
	}

	// Second lookup should come from cache
	if _, err := client.LookupName(context.Background(), "Notch"); err != nil {
		t.Fatalf("Cached lookup failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("Expected 1 upstream request, got %d", requests)
	}
}

func TestProfileClient_LookupName_Unknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	oldURL := mojangNameLookupURL
	mojangNameLookupURL = ts.URL
	defer func() { mojangNameLookupURL = oldURL }()

	client := NewProfileClient()
	_, err := client.LookupName(context.Background(), "nobody")
	if !errors.Is(err, ErrNoSuchPlayer) {
		t.Errorf("Expected ErrNoSuchPlayer, got %v", err)
	}
}
