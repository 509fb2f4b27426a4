package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quasar/craftauth/internal/requests"
)

// LauncherLoginStep exchanges the Mojang-relying-party XSTS token for the
// Minecraft services access token.
type LauncherLoginStep struct {
	Env Env
}

func (s *LauncherLoginStep) Describe() string {
	return "Logging in to Minecraft services."
}

func (s *LauncherLoginStep) Perform(ctx context.Context, d *AccountData) StepResult {
	payload, _ := json.Marshal(map[string]string{
		"identityToken": fmt.Sprintf("XBL3.0 x=%s;%s",
			d.MojangServicesToken.Extra["uhs"], d.MojangServicesToken.Token),
	})

	reply := s.Env.Requests.Post(ctx, s.Env.Endpoints.LauncherLogin, jsonHeaders(), payload, 0)
	if reply.Kind != requests.NoError {
		return StepResult{State: StateOffline, Message: "Minecraft services login failed: network error"}
	}
	if !reply.Succeeded() {
		return failedHard(fmt.Sprintf("Minecraft services login failed (HTTP %d)", reply.StatusCode))
	}

	token, err := ParseLauncherLogin(reply.Body, time.Now().UTC())
	if err != nil {
		s.Env.logger().Warn("could not parse launcher login response", zap.Error(err))
		return failedHard("Minecraft services login response could not be understood")
	}
	token.Persistent = true
	d.YggdrasilToken = token
	return working("got Minecraft services token")
}

// EntitlementsStep checks game ownership. Failures are absorbed so a store
// hiccup never blocks a login.
type EntitlementsStep struct {
	Env Env
}

func (s *EntitlementsStep) Describe() string {
	return "Determining game ownership."
}

func (s *EntitlementsStep) Perform(ctx context.Context, d *AccountData) StepResult {
	headers := jsonHeaders()
	headers.Set("Authorization", "Bearer "+d.YggdrasilToken.Token)

	reply := s.Env.Requests.Get(ctx, s.Env.Endpoints.Entitlements, headers, 0)
	if !reply.Succeeded() {
		s.Env.logger().Debug("entitlements fetch failed", zap.Int("status", reply.StatusCode))
		return working("could not determine game ownership")
	}
	ent, err := ParseMinecraftEntitlements(reply.Body)
	if err != nil {
		return working("could not parse game ownership response")
	}
	d.Entitlement = ent
	return working("determined game ownership")
}

// MinecraftProfileStep fetches the Java profile. HTTP 404 is a valid
// outcome meaning the account has not created a profile yet.
type MinecraftProfileStep struct {
	Env Env
}

func (s *MinecraftProfileStep) Describe() string {
	return "Fetching the Minecraft profile."
}

func (s *MinecraftProfileStep) Perform(ctx context.Context, d *AccountData) StepResult {
	headers := jsonHeaders()
	headers.Set("Authorization", "Bearer "+d.YggdrasilToken.Token)

	reply := s.Env.Requests.Get(ctx, s.Env.Endpoints.MinecraftProfile, headers, 0)
	if reply.Kind != requests.NoError {
		return StepResult{State: StateOffline, Message: "profile fetch failed: network error"}
	}
	if reply.StatusCode == http.StatusNotFound {
		d.Profile = MinecraftProfile{}
		return working("account has no Minecraft profile yet")
	}
	if !reply.Succeeded() {
		return StepResult{
			State:   StateFailedSoft,
			Message: fmt.Sprintf("profile fetch failed (HTTP %d)", reply.StatusCode),
		}
	}

	profile, err := ParseMinecraftProfile(reply.Body)
	if err != nil {
		d.Profile = MinecraftProfile{}
		s.Env.logger().Warn("could not parse Minecraft profile", zap.Error(err))
		return failedHard("profile response could not be parsed")
	}
	d.Profile = profile
	return working("got Minecraft profile")
}

// GetSkinStep downloads the active skin (and current cape) bytes. Network
// trouble here leaves the textures unset and does not fail the flow.
type GetSkinStep struct {
	Env Env
}

func (s *GetSkinStep) Describe() string {
	return "Fetching the player skin."
}

func (s *GetSkinStep) Perform(ctx context.Context, d *AccountData) StepResult {
	if s.Env.Skins == nil || d.Profile.Skin.URL == "" {
		return working("no skin to fetch")
	}
	data, err := s.Env.Skins.Get(ctx, d.Profile.Skin.URL)
	if err != nil {
		s.Env.logger().Debug("skin download failed", zap.Error(err))
		return working("could not fetch the player skin")
	}
	d.Profile.Skin.Data = data

	if cape, ok := d.Profile.Capes[d.Profile.CurrentCape]; ok && cape.URL != "" {
		if capeData, err := s.Env.Skins.Get(ctx, cape.URL); err == nil {
			cape.Data = capeData
			d.Profile.Capes[cape.ID] = cape
		}
	}
	return working("got player textures")
}
