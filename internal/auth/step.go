package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/quasar/craftauth/internal/requests"
	"github.com/quasar/craftauth/internal/skins"
)

// TaskState is the outcome taxonomy shared by steps and flows. Working is
// the only non-terminal state a step may report.
type TaskState int

const (
	StateCreated TaskState = iota
	StateWorking
	StateSucceeded
	// StateOffline - transport failure; existing validity survives.
	StateOffline
	// StateDisabled - client identity mismatch; full re-login required.
	StateDisabled
	// StateFailedSoft - a single step failed without invalidating tokens.
	StateFailedSoft
	// StateFailedHard - tokens are invalid, account must log in again.
	StateFailedHard
	// StateFailedGone - the account no longer exists upstream.
	StateFailedGone
)

func (s TaskState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWorking:
		return "working"
	case StateSucceeded:
		return "succeeded"
	case StateOffline:
		return "offline"
	case StateDisabled:
		return "disabled"
	case StateFailedSoft:
		return "failed-soft"
	case StateFailedHard:
		return "failed-hard"
	case StateFailedGone:
		return "failed-gone"
	}
	return "unknown"
}

// Terminal reports whether the state ends a step or flow.
func (s TaskState) Terminal() bool {
	return s != StateCreated && s != StateWorking
}

// StepResult is the single terminal event a step emits.
type StepResult struct {
	State   TaskState
	Message string
}

func working(msg string) StepResult    { return StepResult{State: StateWorking, Message: msg} }
func failedHard(msg string) StepResult { return StepResult{State: StateFailedHard, Message: msg} }

// Step is one unit of pipeline work. Perform reads and writes the account
// data it is given and reports either Working (advance) or a terminal state.
type Step interface {
	Describe() string
	Perform(ctx context.Context, d *AccountData) StepResult
}

// Endpoints collects the provider URLs so tests can point steps at local
// servers, the way the rest of the codebase swaps URL variables.
type Endpoints struct {
	MSADeviceCode       string
	MSAToken            string
	XboxUserAuth        string
	XSTSAuthorize       string
	XboxProfileSettings string
	LauncherLogin       string
	Entitlements        string
	MinecraftProfile    string
}

// DefaultEndpoints returns the production provider URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		MSADeviceCode:       "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode",
		MSAToken:            "https://login.microsoftonline.com/consumers/oauth2/v2.0/token",
		XboxUserAuth:        "https://user.auth.xboxlive.com/user/authenticate",
		XSTSAuthorize:       "https://xsts.auth.xboxlive.com/xsts/authorize",
		XboxProfileSettings: "https://profile.xboxlive.com/users/me/profile/settings",
		LauncherLogin:       "https://api.minecraftservices.com/authentication/login_with_xbox",
		Entitlements:        "https://api.minecraftservices.com/entitlements/mcstore",
		MinecraftProfile:    "https://api.minecraftservices.com/minecraft/profile",
	}
}

// MSAScope is the OAuth2 scope the launcher requests from Microsoft.
const MSAScope = "XboxLive.signin offline_access"

// Env is the environment threaded through flow construction instead of any
// process-global network object.
type Env struct {
	Requests  *requests.Client
	Skins     *skins.Fetcher
	ClientID  string
	Endpoints Endpoints
	Log       *zap.Logger
}

func (e Env) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
