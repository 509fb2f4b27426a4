package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/quasar/craftauth/internal/requests"
)

func jsonHeaders() http.Header {
	return http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
	}
}

type xboxAuthRequest struct {
	Properties   map[string]any `json:"Properties"`
	RelyingParty string         `json:"RelyingParty"`
	TokenType    string         `json:"TokenType"`
}

// XboxUserStep exchanges the MSA access token for an Xbox Live user token.
// The response must carry a uhs display claim; it anchors the whole session.
type XboxUserStep struct {
	Env Env
}

func (s *XboxUserStep) Describe() string {
	return "Logging in as an Xbox user."
}

func (s *XboxUserStep) Perform(ctx context.Context, d *AccountData) StepResult {
	body, _ := json.Marshal(xboxAuthRequest{
		Properties: map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + d.MSAToken.Token,
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	})
	headers := jsonHeaders()
	headers.Set("x-xbl-contract-version", "1")

	reply := s.Env.Requests.Post(ctx, s.Env.Endpoints.XboxUserAuth, headers, body, 0)
	if reply.Kind != requests.NoError {
		return StepResult{State: StateOffline, Message: "Xbox user authentication failed: network error"}
	}
	if !reply.Succeeded() {
		return failedHard(fmt.Sprintf("Xbox user authentication failed (HTTP %d)", reply.StatusCode))
	}

	token, err := ParseXTokenResponse(reply.Body)
	if err != nil {
		s.Env.logger().Warn("could not parse Xbox user token", zap.Error(err))
		return failedHard("Xbox user authentication response could not be understood")
	}
	token.Persistent = true
	d.UserToken = token
	return working("got Xbox user token")
}

// XboxAuthorizationStep obtains an XSTS token scoped to one relying party.
// The uhs returned by the server must match the one from the user token.
type XboxAuthorizationStep struct {
	Env          Env
	RelyingParty string
	Kind         string
	// Assign picks which token slot of the account receives the result.
	Assign func(d *AccountData) *Token
}

func (s *XboxAuthorizationStep) Describe() string {
	return fmt.Sprintf("Getting authorization to access %s services.", s.Kind)
}

func (s *XboxAuthorizationStep) Perform(ctx context.Context, d *AccountData) StepResult {
	body, _ := json.Marshal(xboxAuthRequest{
		Properties: map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{d.UserToken.Token},
		},
		RelyingParty: s.RelyingParty,
		TokenType:    "JWT",
	})

	reply := s.Env.Requests.Post(ctx, s.Env.Endpoints.XSTSAuthorize, jsonHeaders(), body, 0)
	if reply.Kind != requests.NoError {
		return StepResult{
			State:   StateOffline,
			Message: fmt.Sprintf("failed to get authorization for %s services: network error", s.Kind),
		}
	}
	if reply.StatusCode == http.StatusUnauthorized {
		return failedHard(DecodeXSTSError(reply.Body))
	}
	if !reply.Succeeded() {
		return StepResult{
			State:   StateFailedSoft,
			Message: fmt.Sprintf("failed to get authorization for %s services (HTTP %d)", s.Kind, reply.StatusCode),
		}
	}

	token, err := ParseXTokenResponse(reply.Body)
	if err != nil {
		s.Env.logger().Warn("could not parse XSTS token", zap.String("kind", s.Kind), zap.Error(err))
		return StepResult{
			State:   StateFailedSoft,
			Message: fmt.Sprintf("could not parse authorization response for access to %s services", s.Kind),
		}
	}
	if token.Extra["uhs"] != d.UserToken.Extra["uhs"] {
		// Server-side inconsistency; the token is discarded, never retried.
		return failedHard(fmt.Sprintf("server has changed the %s authorization user hash in the reply", s.Kind))
	}
	token.Persistent = true
	*s.Assign(d) = token
	return working(fmt.Sprintf("got authorization to access %s", s.RelyingParty))
}

// XboxProfileStep fetches gamertag and gamerpic metadata. It is best-effort:
// a failure degrades the display string instead of aborting the flow.
type XboxProfileStep struct {
	Env Env
}

func (s *XboxProfileStep) Describe() string {
	return "Fetching Xbox profile."
}

const xboxProfileSettings = "GameDisplayName,AppDisplayName,AppDisplayPicRaw,GameDisplayPicRaw," +
	"PublicGamerpic,ShowUserAsAvatar,Gamerscore,Gamertag,ModernGamertag,ModernGamertagSuffix," +
	"UniqueModernGamertag,AccountTier,TenureLevel,XboxOneRep," +
	"PreferredColor,Location,Bio,Watermarks,RealName,RealNameOverride,IsQuarantined"

func (s *XboxProfileStep) Perform(ctx context.Context, d *AccountData) StepResult {
	u, err := url.Parse(s.Env.Endpoints.XboxProfileSettings)
	if err != nil {
		return working("skipped Xbox profile fetch")
	}
	q := u.Query()
	q.Set("settings", xboxProfileSettings)
	u.RawQuery = q.Encode()

	headers := jsonHeaders()
	headers.Set("x-xbl-contract-version", "3")
	headers.Set("Authorization", fmt.Sprintf("XBL3.0 x=%s;%s", d.UserToken.Extra["uhs"], d.XboxAPIToken.Token))

	reply := s.Env.Requests.Get(ctx, u.String(), headers, 0)
	if !reply.Succeeded() {
		s.Env.logger().Debug("xbox profile fetch failed", zap.Int("status", reply.StatusCode))
		return working("could not fetch Xbox profile")
	}

	var raw struct {
		ProfileUsers []struct {
			Settings []struct {
				ID    string `json:"id"`
				Value string `json:"value"`
			} `json:"settings"`
		} `json:"profileUsers"`
	}
	if err := json.Unmarshal(reply.Body, &raw); err != nil || len(raw.ProfileUsers) == 0 {
		return working("could not parse Xbox profile")
	}
	if d.XboxAPIToken.Extra == nil {
		d.XboxAPIToken.Extra = map[string]string{}
	}
	for _, setting := range raw.ProfileUsers[0].Settings {
		switch setting.ID {
		case "Gamertag":
			d.XboxAPIToken.Extra["gtg"] = setting.Value
		case "PublicGamerpic":
			d.XboxAPIToken.Extra["gamerpic"] = setting.Value
		}
	}
	return working("got Xbox profile")
}
