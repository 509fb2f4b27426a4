package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/craftauth/internal/oauth"
	"github.com/quasar/craftauth/internal/requests"
	"github.com/quasar/craftauth/internal/skins"
)

// fakeServices is a stand-in for the whole provider federation: Microsoft
// identity, the two Xbox services, Minecraft services and the texture host.
// Handlers default to a happy path and can be toggled per test.
type fakeServices struct {
	t      *testing.T
	server *httptest.Server

	uhs string

	// failure toggles
	mismatchMojangUHS bool
	xstsErr           int64
	profileStatus     int

	mu                sync.Mutex
	refreshTokensSeen []string
	loginCalls        atomic.Int32
}

func (f *fakeServices) seenRefreshTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshTokensSeen...)
}

func newFakeServices(t *testing.T) *fakeServices {
	f := &fakeServices{t: t, uhs: "uhs-1", profileStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/msa/devicecode", f.handleDeviceCode)
	mux.HandleFunc("/msa/token", f.handleMSAToken)
	mux.HandleFunc("/xbox/user", f.handleXboxUser)
	mux.HandleFunc("/xbox/xsts", f.handleXSTS)
	mux.HandleFunc("/xbox/profile", f.handleXboxProfile)
	mux.HandleFunc("/mc/login", f.handleLauncherLogin)
	mux.HandleFunc("/mc/entitlements", f.handleEntitlements)
	mux.HandleFunc("/mc/profile", f.handleProfile)
	mux.HandleFunc("/textures/skin", f.handleTexture)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServices) env() Env {
	return Env{
		Requests: requests.New(nil, nil),
		Skins:    skins.NewFetcher(),
		ClientID: "test-client",
		Endpoints: Endpoints{
			MSADeviceCode:       f.server.URL + "/msa/devicecode",
			MSAToken:            f.server.URL + "/msa/token",
			XboxUserAuth:        f.server.URL + "/xbox/user",
			XSTSAuthorize:       f.server.URL + "/xbox/xsts",
			XboxProfileSettings: f.server.URL + "/xbox/profile",
			LauncherLogin:       f.server.URL + "/mc/login",
			Entitlements:        f.server.URL + "/mc/entitlements",
			MinecraftProfile:    f.server.URL + "/mc/profile",
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (f *fakeServices) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"device_code":      "dev-1",
		"user_code":        "ABCD-1234",
		"verification_uri": "https://verify.example",
		"expires_in":       900,
		"interval":         1,
	})
}

func (f *fakeServices) handleMSAToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	if rt := r.FormValue("refresh_token"); rt != "" {
		f.mu.Lock()
		f.refreshTokensSeen = append(f.refreshTokensSeen, rt)
		f.mu.Unlock()
	}
	writeJSON(w, map[string]any{
		"access_token":  "msa-access",
		"refresh_token": "msa-refresh-next",
		"expires_in":    86400,
	})
}

func xTokenBody(uhs string) map[string]any {
	return map[string]any{
		"IssueInstant": time.Now().UTC().Format(time.RFC3339Nano),
		"NotAfter":     time.Now().UTC().Add(8 * time.Hour).Format(time.RFC3339Nano),
		"Token":        "x-token",
		"DisplayClaims": map[string]any{
			"xui": []map[string]string{{"uhs": uhs}},
		},
	}
}

func (f *fakeServices) handleXboxUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Properties map[string]any `json:"Properties"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if ticket, _ := req.Properties["RpsTicket"].(string); ticket != "d=msa-access" {
		f.t.Errorf("RpsTicket = %q, want d=msa-access", ticket)
	}
	writeJSON(w, xTokenBody(f.uhs))
}

func (f *fakeServices) handleXSTS(w http.ResponseWriter, r *http.Request) {
	if f.xstsErr != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"XErr": f.xstsErr})
		return
	}
	var req struct {
		RelyingParty string `json:"RelyingParty"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	uhs := f.uhs
	if f.mismatchMojangUHS && req.RelyingParty == "rp://api.minecraftservices.com/" {
		uhs = "uhs-other"
	}
	writeJSON(w, xTokenBody(uhs))
}

func (f *fakeServices) handleXboxProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"profileUsers": []map[string]any{{
			"settings": []map[string]string{
				{"id": "Gamertag", "value": "TestTag"},
				{"id": "PublicGamerpic", "value": "https://gamerpic.example"},
			},
		}},
	})
}

func (f *fakeServices) handleLauncherLogin(w http.ResponseWriter, r *http.Request) {
	f.loginCalls.Add(1)
	var req struct {
		IdentityToken string `json:"identityToken"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if want := fmt.Sprintf("XBL3.0 x=%s;x-token", f.uhs); req.IdentityToken != want {
		f.t.Errorf("identityToken = %q, want %q", req.IdentityToken, want)
	}
	writeJSON(w, map[string]any{
		"username":     "ygg-uuid",
		"access_token": "mc-token",
		"expires_in":   86400,
	})
}

func (f *fakeServices) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"items": []map[string]string{
			{"name": "product_minecraft"},
			{"name": "game_minecraft"},
		},
	})
}

func (f *fakeServices) handleProfile(w http.ResponseWriter, r *http.Request) {
	if f.profileStatus != http.StatusOK {
		http.Error(w, `{"error":"NOT_FOUND"}`, f.profileStatus)
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer mc-token" {
		f.t.Errorf("Authorization = %q, want Bearer mc-token", got)
	}
	writeJSON(w, map[string]any{
		"id":   "986dec87b7ec47ff89ff033fdb95c4b5",
		"name": "Tester",
		"skins": []map[string]string{
			{"id": "s1", "state": "ACTIVE", "url": f.server.URL + "/textures/skin", "variant": "CLASSIC"},
		},
		"capes": []map[string]string{},
	})
}

func (f *fakeServices) handleTexture(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("png-bytes"))
}

func refreshableAccount() *AccountData {
	d := NewAccountData(AccountTypeMSA)
	d.MSAClientID = "test-client"
	d.MSAToken.RefreshToken = "msa-refresh-1"
	d.MSAToken.Validity = ValidityAssumed
	d.Validity = ValidityAssumed
	return d
}

func TestRefreshFlowHappyPath(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()

	state := NewRefreshFlow(f.env(), d, nil).Run(context.Background())

	require.Equal(t, StateSucceeded, state, d.LastError)
	assert.Equal(t, Online, d.State)
	assert.Equal(t, ValidityCertain, d.Validity)
	assert.Equal(t, "msa-access", d.MSAToken.Token)
	assert.Equal(t, "msa-refresh-next", d.MSAToken.RefreshToken)
	assert.Equal(t, "mc-token", d.AccessToken())
	assert.Equal(t, "Tester", d.ProfileName())
	assert.Equal(t, "986dec87b7ec47ff89ff033fdb95c4b5", d.ProfileID())
	assert.Equal(t, "TestTag", d.DisplayString())
	assert.Equal(t, []byte("png-bytes"), d.Profile.Skin.Data)
	assert.True(t, d.Entitlement.OwnsMinecraft)
	assert.True(t, d.Entitlement.CanPlayMinecraft)
	// both XSTS tokens landed in their own slots
	assert.Equal(t, "x-token", d.XboxAPIToken.Token)
	assert.Equal(t, "x-token", d.MojangServicesToken.Token)
	assert.Equal(t, []string{"msa-refresh-1"}, f.seenRefreshTokens())
}

func TestRefreshFlowKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()

	// provider answers without a new refresh token
	mux := http.NewServeMux()
	mux.HandleFunc("/msa/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "msa-access", "expires_in": 3600})
	})
	alt := httptest.NewServer(mux)
	defer alt.Close()
	env := f.env()
	env.Endpoints.MSAToken = alt.URL + "/msa/token"

	state := NewRefreshFlow(env, d, nil).Run(context.Background())

	require.Equal(t, StateSucceeded, state, d.LastError)
	assert.Equal(t, "msa-refresh-1", d.MSAToken.RefreshToken)
}

func TestRefreshFlowNoProfileYetIsSuccess(t *testing.T) {
	f := newFakeServices(t)
	f.profileStatus = http.StatusNotFound
	d := refreshableAccount()

	state := NewRefreshFlow(f.env(), d, nil).Run(context.Background())

	require.Equal(t, StateSucceeded, state, d.LastError)
	assert.Equal(t, "", d.ProfileID())
	// no profile means nothing vouches for the account this session
	assert.Equal(t, ValidityNone, d.Validity)
	// the credentials themselves survive
	assert.Equal(t, "mc-token", d.AccessToken())
}

func TestRefreshFlowUHSMismatchIsHardFailure(t *testing.T) {
	f := newFakeServices(t)
	f.mismatchMojangUHS = true
	d := refreshableAccount()

	state := NewRefreshFlow(f.env(), d, nil).Run(context.Background())

	require.Equal(t, StateFailedHard, state)
	assert.Equal(t, Expired, d.State)
	assert.Contains(t, d.LastError, "user hash")
	// hard failure wipes every credential
	assert.False(t, d.MSAToken.Present())
	assert.False(t, d.UserToken.Present())
	assert.False(t, d.XboxAPIToken.Present())
	assert.False(t, d.MojangServicesToken.Present())
	assert.False(t, d.YggdrasilToken.Present())
	assert.Equal(t, ValidityNone, d.Validity)
	// the flow never reached Minecraft services
	assert.Zero(t, f.loginCalls.Load())
}

func TestRefreshFlowDecodesXSTSError(t *testing.T) {
	f := newFakeServices(t)
	f.xstsErr = 2148916233
	d := refreshableAccount()

	state := NewRefreshFlow(f.env(), d, nil).Run(context.Background())

	require.Equal(t, StateFailedHard, state)
	assert.Contains(t, d.LastError, "does not have an Xbox Live profile")
}

func TestRefreshFlowClientIDMismatchDisables(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()
	d.MSAClientID = "some-other-client"

	state := NewRefreshFlow(f.env(), d, nil).Run(context.Background())

	require.Equal(t, StateDisabled, state)
	assert.Equal(t, Disabled, d.State)
	// disabling keeps the stored credentials for a future matching client
	assert.Equal(t, "msa-refresh-1", d.MSAToken.RefreshToken)
}

func TestRefreshFlowNetworkDownGoesOffline(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()
	env := f.env()
	f.server.Close()

	state := NewRefreshFlow(env, d, nil).Run(context.Background())

	require.Equal(t, StateOffline, state)
	assert.Equal(t, AccountOffline, d.State)
	// transient trouble keeps the refresh token
	assert.Equal(t, "msa-refresh-1", d.MSAToken.RefreshToken)
}

func TestLoginFlowHappyPath(t *testing.T) {
	f := newFakeServices(t)
	d := NewAccountData(AccountTypeMSA)

	var verified oauth.Verification
	flow := NewLoginFlow(f.env(), d, nil)
	// reach into the first step to capture the verification surface
	flow.steps[0].(*MSADeviceCodeStep).Surface = func(v oauth.Verification) { verified = v }

	state := flow.Run(context.Background())

	require.Equal(t, StateSucceeded, state, d.LastError)
	assert.Equal(t, "ABCD-1234", verified.UserCode)
	assert.Equal(t, "test-client", d.MSAClientID)
	assert.Equal(t, "mc-token", d.AccessToken())
	assert.Equal(t, ValidityCertain, d.Validity)
}

func TestFlowAbortBeforeRunLeavesDataUntouched(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()

	flow := NewRefreshFlow(f.env(), d, nil)
	flow.Abort()
	flow.Abort() // idempotent

	state := flow.Run(context.Background())

	require.Equal(t, StateFailedHard, state)
	assert.Equal(t, "msa-refresh-1", d.MSAToken.RefreshToken)
	assert.Equal(t, ValidityAssumed, d.Validity)
	assert.Zero(t, f.loginCalls.Load())
}

func TestFlowObserverSeesTerminalState(t *testing.T) {
	f := newFakeServices(t)
	d := refreshableAccount()

	obs := &recordingObserver{}
	state := NewRefreshFlow(f.env(), d, obs).Run(context.Background())

	require.Equal(t, StateSucceeded, state, d.LastError)
	require.NotEmpty(t, obs.states)
	assert.Equal(t, StateWorking, obs.states[0])
	assert.Equal(t, StateSucceeded, obs.states[len(obs.states)-1])
}

type recordingObserver struct {
	states []TaskState
}

func (o *recordingObserver) AuthStateChanged(state TaskState, message string) {
	o.states = append(o.states, state)
}

func (o *recordingObserver) AuthorizeWithBrowser(oauth.Verification) {}
