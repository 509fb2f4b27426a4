package auth

import (
	"context"
	"time"

	"github.com/quasar/craftauth/internal/oauth"
)

func msaOAuthClient(env Env) *oauth.Client {
	return oauth.NewClient(oauth.Options{
		ClientID:      env.ClientID,
		Scope:         MSAScope,
		DeviceCodeURL: env.Endpoints.MSADeviceCode,
		TokenURL:      env.Endpoints.MSAToken,
	}, env.Requests, env.logger())
}

func storeMSAToken(d *AccountData, env Env, upd oauth.TokenUpdate) {
	now := time.Now().UTC()
	d.MSAClientID = env.ClientID
	refresh := upd.RefreshToken
	if refresh == "" {
		// provider omitted a new refresh token, keep the old one
		refresh = d.MSAToken.RefreshToken
	}
	d.MSAToken = Token{
		IssueInstant: now,
		NotAfter:     now.Add(upd.ExpiresIn),
		Token:        upd.AccessToken,
		RefreshToken: refresh,
		Extra:        upd.Extra,
		Validity:     ValidityCertain,
		Persistent:   true,
	}
}

// MSADeviceCodeStep performs the interactive device-code grant against the
// Microsoft identity platform and produces the MSA token.
type MSADeviceCodeStep struct {
	Env     Env
	Surface func(oauth.Verification)
}

func (s *MSADeviceCodeStep) Describe() string {
	return "Logging in with Microsoft account (device code)."
}

func (s *MSADeviceCodeStep) Perform(ctx context.Context, d *AccountData) StepResult {
	res := msaOAuthClient(s.Env).Login(ctx, s.Surface)
	if res.State != oauth.Succeeded {
		return StepResult{State: mapOAuthState(res.State), Message: res.Message}
	}
	storeMSAToken(d, s.Env, res.Token)
	return working("got Microsoft account token")
}

// MSASilentStep refreshes the MSA token from the stored refresh token
// without user interaction.
type MSASilentStep struct {
	Env Env
}

func (s *MSASilentStep) Describe() string {
	return "Refreshing Microsoft account token."
}

func (s *MSASilentStep) Perform(ctx context.Context, d *AccountData) StepResult {
	if d.MSAClientID != "" && d.MSAClientID != s.Env.ClientID {
		return StepResult{
			State:   StateDisabled,
			Message: "the account was registered with a different application client ID; log in again",
		}
	}
	if d.MSAToken.RefreshToken == "" {
		return failedHard("no refresh token stored for this account")
	}

	res := msaOAuthClient(s.Env).Refresh(ctx, d.MSAToken.RefreshToken)
	if res.State != oauth.Succeeded {
		return StepResult{State: mapOAuthState(res.State), Message: res.Message}
	}
	storeMSAToken(d, s.Env, res.Token)
	return working("refreshed Microsoft account token")
}

func mapOAuthState(s oauth.Activity) TaskState {
	switch s {
	case oauth.Succeeded:
		return StateWorking
	case oauth.FailedSoft:
		return StateOffline
	case oauth.FailedGone:
		return StateFailedGone
	default:
		return StateFailedHard
	}
}
