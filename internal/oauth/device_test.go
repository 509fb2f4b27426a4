package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/craftauth/internal/requests"
)

type fakeProvider struct {
	t *testing.T

	deviceCode   string
	interval     int
	expiresIn    int
	useOldURLKey bool

	// tokenReplies is consumed one entry per poll
	tokenReplies []map[string]any
	polls        int

	server *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	p := &fakeProvider{
		t:          t,
		deviceCode: "device-123",
		interval:   5,
		expiresIn:  900,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", p.handleDeviceCode)
	mux.HandleFunc("/token", p.handleToken)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) options() Options {
	return Options{
		ClientID:      "test-client",
		Scope:         "scope-a scope-b",
		DeviceCodeURL: p.server.URL + "/devicecode",
		TokenURL:      p.server.URL + "/token",
	}
}

func (p *fakeProvider) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.t.Errorf("bad device code form: %v", err)
	}
	if got := r.FormValue("client_id"); got != "test-client" {
		p.t.Errorf("client_id = %q, want test-client", got)
	}
	reply := map[string]any{
		"device_code": p.deviceCode,
		"user_code":   "ABCD-1234",
		"expires_in":  p.expiresIn,
		"interval":    p.interval,
	}
	if p.useOldURLKey {
		reply["verification_url"] = "https://verify.example/old"
	} else {
		reply["verification_uri"] = "https://verify.example"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.t.Errorf("bad token form: %v", err)
	}
	if got := r.FormValue("device_code"); got != "" && got != p.deviceCode {
		p.t.Errorf("device_code = %q, want %s", got, p.deviceCode)
	}
	if p.polls >= len(p.tokenReplies) {
		p.t.Error("more polls than scripted replies")
		http.Error(w, "out of replies", http.StatusInternalServerError)
		return
	}
	reply := p.tokenReplies[p.polls]
	p.polls++
	if stall, ok := reply["__stall"].(time.Duration); ok {
		time.Sleep(stall)
	}
	w.Header().Set("Content-Type", "application/json")
	if status, ok := reply["__status"].(int); ok {
		w.WriteHeader(status)
	}
	json.NewEncoder(w).Encode(reply)
}

// instrumented client: sleeps return instantly but are recorded
func testClient(t *testing.T, p *fakeProvider) (*Client, *[]time.Duration) {
	c := NewClient(p.options(), requests.New(nil, nil), nil)
	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
	return c, sleeps
}

func TestLoginSlowDownGrowsInterval(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"error": "slow_down"},
		{"error": "slow_down"},
		{"error": "slow_down"},
		{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600},
	}
	c, sleeps := testClient(t, p)

	var seen Verification
	res := c.Login(context.Background(), func(v Verification) { seen = v })

	require.Equal(t, Succeeded, res.State, res.Message)
	assert.Equal(t, "at-1", res.Token.AccessToken)
	assert.Equal(t, "rt-1", res.Token.RefreshToken)
	assert.Equal(t, time.Hour, res.Token.ExpiresIn)
	assert.Equal(t, "ABCD-1234", seen.UserCode)
	assert.Equal(t, "https://verify.example", seen.URI)

	// every slow_down adds five seconds, for this and all later polls
	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
	}, *sleeps)
}

func TestLoginAuthorizationPendingKeepsInterval(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"error": "authorization_pending"},
		{"error": "authorization_pending"},
		{"access_token": "at-1", "expires_in": 60},
	}
	c, sleeps := testClient(t, p)

	res := c.Login(context.Background(), nil)

	require.Equal(t, Succeeded, res.State, res.Message)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, *sleeps)
	assert.Equal(t, 3, p.polls)
}

func TestLoginTimeoutDoublesInterval(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"error": "authorization_pending", "__stall": 300 * time.Millisecond},
		{"access_token": "at-1", "expires_in": 60},
	}
	c, sleeps := testClient(t, p)
	c.timeout = 50 * time.Millisecond

	res := c.Login(context.Background(), nil)

	require.Equal(t, Succeeded, res.State, res.Message)
	// the first poll timed out, so the second waits twice as long
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *sleeps)
}

func TestLoginExpiredDeviceCode(t *testing.T) {
	p := newFakeProvider(t)
	// less lifetime left than one poll interval
	p.expiresIn = 3
	c, _ := testClient(t, p)

	res := c.Login(context.Background(), nil)

	require.Equal(t, FailedHard, res.State)
	assert.Contains(t, res.Message, "expired")
	assert.Zero(t, p.polls)
}

func TestLoginAcceptsVerificationURLSpelling(t *testing.T) {
	p := newFakeProvider(t)
	p.useOldURLKey = true
	p.tokenReplies = []map[string]any{
		{"access_token": "at-1", "expires_in": 60},
	}
	c, _ := testClient(t, p)

	var seen Verification
	res := c.Login(context.Background(), func(v Verification) { seen = v })

	require.Equal(t, Succeeded, res.State, res.Message)
	assert.Equal(t, "https://verify.example/old", seen.URI)
}

func TestLoginDeclinedIsHardFailure(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"error": "authorization_declined", "error_description": "user said no"},
	}
	c, _ := testClient(t, p)

	res := c.Login(context.Background(), nil)

	require.Equal(t, FailedHard, res.State)
	assert.Contains(t, res.Message, "user said no")
}

func TestLoginExtraClaimsAreKept(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"access_token": "at-1", "expires_in": 60, "foci": "1", "ext_expires_in": 3600},
	}
	c, _ := testClient(t, p)

	res := c.Login(context.Background(), nil)

	require.Equal(t, Succeeded, res.State, res.Message)
	assert.Equal(t, "1", res.Token.Extra["foci"])
	assert.Equal(t, "3600", res.Token.Extra["ext_expires_in"])
}

func TestRefreshSuccess(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"access_token": "at-2", "refresh_token": "rt-2", "expires_in": 3600},
	}
	c, _ := testClient(t, p)

	res := c.Refresh(context.Background(), "rt-1")

	require.Equal(t, Succeeded, res.State, res.Message)
	assert.Equal(t, "at-2", res.Token.AccessToken)
	assert.Equal(t, "rt-2", res.Token.RefreshToken)
}

func TestRefreshGone(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"__status": http.StatusGone, "error": "invalid_grant"},
	}
	c, _ := testClient(t, p)

	res := c.Refresh(context.Background(), "rt-1")

	assert.Equal(t, FailedGone, res.State)
}

func TestRefreshRejectedIsHardFailure(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenReplies = []map[string]any{
		{"__status": http.StatusBadRequest, "error": "invalid_grant"},
	}
	c, _ := testClient(t, p)

	res := c.Refresh(context.Background(), "rt-1")

	require.Equal(t, FailedHard, res.State)
	assert.Contains(t, res.Message, "invalid_grant")
}

func TestRefreshNetworkTroubleIsSoft(t *testing.T) {
	p := newFakeProvider(t)
	c, _ := testClient(t, p)
	p.server.Close()

	res := c.Refresh(context.Background(), "rt-1")

	assert.Equal(t, FailedSoft, res.State)
}
