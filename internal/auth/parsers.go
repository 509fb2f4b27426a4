package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParseXTokenResponse parses the generic Xbox token shape returned by both
// user.auth.xboxlive.com and the XSTS endpoint:
//
//	{
//	   "IssueInstant": "2020-12-07T19:52:08.4463796Z",
//	   "NotAfter": "2020-12-21T19:52:08.4463796Z",
//	   "Token": "...",
//	   "DisplayClaims": { "xui": [ { "uhs": "userhash" } ] }
//	}
//
// Every string claim under xui[0] is copied into Extra verbatim. A missing
// mandatory field (including uhs) is a parse failure, not a partial result.
func ParseXTokenResponse(data []byte) (Token, error) {
	var raw struct {
		IssueInstant  string `json:"IssueInstant"`
		NotAfter      string `json:"NotAfter"`
		Token         string `json:"Token"`
		DisplayClaims struct {
			XUI []map[string]any `json:"xui"`
		} `json:"DisplayClaims"`
	}
	var out Token
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("response is not valid JSON: %w", err)
	}

	issue, err := parseISOInstant(raw.IssueInstant)
	if err != nil {
		return out, fmt.Errorf("IssueInstant is not a timestamp")
	}
	notAfter, err := parseISOInstant(raw.NotAfter)
	if err != nil {
		return out, fmt.Errorf("NotAfter is not a timestamp")
	}
	if raw.Token == "" {
		return out, fmt.Errorf("Token is not a string")
	}
	if raw.DisplayClaims.XUI == nil {
		return out, fmt.Errorf("missing xui claims array")
	}

	extra := map[string]string{}
	foundUHS := false
	for _, claims := range raw.DisplayClaims.XUI {
		if _, ok := claims["uhs"]; !ok {
			continue
		}
		foundUHS = true
		for key, val := range claims {
			s, ok := val.(string)
			if !ok {
				return Token{}, fmt.Errorf("display claim %q is not a string", key)
			}
			extra[key] = s
		}
		break
	}
	if !foundUHS {
		return Token{}, fmt.Errorf("missing uhs")
	}

	out.IssueInstant = issue
	out.NotAfter = notAfter
	out.Token = raw.Token
	out.Extra = extra
	out.Validity = ValidityCertain
	return out, nil
}

func parseISOInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, s)
}

// ParseLauncherLogin parses the Minecraft services login_with_xbox response
// into the game-session token.
func ParseLauncherLogin(data []byte, now time.Time) (Token, error) {
	var raw struct {
		Username    string          `json:"username"`
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}
	var out Token
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("response is not valid JSON: %w", err)
	}
	var expiresIn float64
	if raw.ExpiresIn == nil || json.Unmarshal(raw.ExpiresIn, &expiresIn) != nil {
		return out, fmt.Errorf("expires_in is not a valid number")
	}
	if raw.Username == "" {
		return out, fmt.Errorf("username is not valid")
	}
	if raw.AccessToken == "" {
		return out, fmt.Errorf("access_token is not valid")
	}
	out.IssueInstant = now
	out.NotAfter = now.Add(time.Duration(expiresIn) * time.Second)
	out.Token = raw.AccessToken
	out.Validity = ValidityCertain
	return out, nil
}

// ParseMinecraftProfile parses the Java profile endpoint response. Only the
// active skin is kept; capes are keyed by id with the active one recorded.
func ParseMinecraftProfile(data []byte) (MinecraftProfile, error) {
	var raw struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Skins []struct {
			ID      string `json:"id"`
			State   string `json:"state"`
			URL     string `json:"url"`
			Variant string `json:"variant"`
		} `json:"skins"`
		Capes []struct {
			ID    string `json:"id"`
			State string `json:"state"`
			URL   string `json:"url"`
			Alias string `json:"alias"`
		} `json:"capes"`
	}
	var out MinecraftProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if raw.ID == "" {
		return out, fmt.Errorf("profile id is not a string")
	}
	if raw.Name == "" {
		return out, fmt.Errorf("profile name is not a string")
	}
	out.ID = raw.ID
	out.Name = raw.Name

	for _, skin := range raw.Skins {
		if skin.ID == "" || skin.State != "ACTIVE" || skin.URL == "" || skin.Variant == "" {
			continue
		}
		out.Skin = Skin{
			ID: skin.ID,
			// the texture server hands out plain http URLs
			URL:     strings.Replace(skin.URL, "http://textures.minecraft.net", "https://textures.minecraft.net", 1),
			Variant: skin.Variant,
		}
		break
	}

	out.Capes = map[string]Cape{}
	for _, cape := range raw.Capes {
		if cape.ID == "" || cape.URL == "" || cape.Alias == "" {
			continue
		}
		if cape.State == "ACTIVE" {
			out.CurrentCape = cape.ID
		}
		out.Capes[cape.ID] = Cape{ID: cape.ID, URL: cape.URL, Alias: cape.Alias}
	}
	out.Validity = ValidityCertain
	return out, nil
}

// ParseMinecraftEntitlements scans the store items for game ownership.
func ParseMinecraftEntitlements(data []byte) (MinecraftEntitlement, error) {
	var raw struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	var out MinecraftEntitlement
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("response is not valid JSON: %w", err)
	}
	for _, item := range raw.Items {
		switch item.Name {
		case "game_minecraft":
			out.CanPlayMinecraft = true
		case "product_minecraft":
			out.OwnsMinecraft = true
		}
	}
	out.Validity = ValidityCertain
	return out, nil
}

// DecodeXSTSError maps the XErr code of an XSTS "authentication required"
// response to a user-facing cause.
func DecodeXSTSError(data []byte) string {
	var raw struct {
		XErr json.RawMessage `json:"XErr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "cannot parse XSTS error response as JSON"
	}
	var code int64
	if raw.XErr == nil || json.Unmarshal(raw.XErr, &code) != nil {
		return "XErr element is missing from the XSTS error response"
	}
	switch code {
	case 2148916233:
		return "this Microsoft account does not have an Xbox Live profile; buy the game on minecraft.net first"
	case 2148916235:
		return "Xbox Live is not available in your country"
	case 2148916238:
		return "this Microsoft account is underage and is not linked to a family"
	case 2148916236:
		return "this Microsoft account requires proof of age; log in to login.live.com to provide it"
	case 2148916237:
		return "this Microsoft account has reached its playtime limit and has been blocked from logging in"
	case 2148916227:
		return "this Microsoft account was banned by Xbox for violating the community standards"
	case 2148916229:
		return "this Microsoft account is restricted; a guardian has not given permission to play online"
	case 2148916234:
		return "this Microsoft account has not accepted Xbox's terms of service"
	default:
		return fmt.Sprintf("XSTS authentication ended with unrecognized error %d", code)
	}
}
