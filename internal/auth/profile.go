package auth

import (
	"encoding/base64"
)

// Skin is the active skin of a Java profile. Data holds the raw texture
// bytes once the get-skin step has fetched them.
type Skin struct {
	ID      string
	URL     string
	Variant string
	Data    []byte
}

// Cape is one owned cape.
type Cape struct {
	ID    string
	URL   string
	Alias string
	Data  []byte
}

// MinecraftProfile is the Java game profile attached to an account.
type MinecraftProfile struct {
	ID          string
	Name        string
	Skin        Skin
	Capes       map[string]Cape
	CurrentCape string
	Validity    Validity
}

// MinecraftEntitlement says whether the account owns and can play the game.
type MinecraftEntitlement struct {
	OwnsMinecraft    bool
	CanPlayMinecraft bool
	Validity         Validity
}

type skinJSON struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Variant string `json:"variant"`
	Data    string `json:"data,omitempty"`
}

type capeJSON struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Alias string `json:"alias"`
	Data  string `json:"data,omitempty"`
}

type profileJSON struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Cape  string     `json:"cape,omitempty"`
	Skin  skinJSON   `json:"skin"`
	Capes []capeJSON `json:"capes"`
}

type entitlementJSON struct {
	OwnsMinecraft    bool `json:"ownsMinecraft"`
	CanPlayMinecraft bool `json:"canPlayMinecraft"`
}

func profileToJSON(p MinecraftProfile) *profileJSON {
	if p.ID == "" {
		return nil
	}
	out := &profileJSON{
		ID:   p.ID,
		Name: p.Name,
		Cape: p.CurrentCape,
		Skin: skinJSON{
			ID:      p.Skin.ID,
			URL:     p.Skin.URL,
			Variant: p.Skin.Variant,
		},
		Capes: []capeJSON{},
	}
	if len(p.Skin.Data) > 0 {
		out.Skin.Data = base64.StdEncoding.EncodeToString(p.Skin.Data)
	}
	for _, cape := range p.Capes {
		cj := capeJSON{ID: cape.ID, URL: cape.URL, Alias: cape.Alias}
		if len(cape.Data) > 0 {
			cj.Data = base64.StdEncoding.EncodeToString(cape.Data)
		}
		out.Capes = append(out.Capes, cj)
	}
	return out
}

// profileFromJSON rebuilds a stored profile. Missing mandatory fields
// invalidate the whole profile instead of partially populating it.
func profileFromJSON(in *profileJSON) MinecraftProfile {
	var out MinecraftProfile
	if in == nil {
		return out
	}
	if in.ID == "" || in.Name == "" {
		return MinecraftProfile{}
	}
	out.ID = in.ID
	out.Name = in.Name
	out.Skin = Skin{ID: in.Skin.ID, URL: in.Skin.URL, Variant: in.Skin.Variant}
	if in.Skin.Data != "" {
		data, err := base64.StdEncoding.DecodeString(in.Skin.Data)
		if err != nil {
			return MinecraftProfile{}
		}
		out.Skin.Data = data
	}
	out.Capes = map[string]Cape{}
	for _, cj := range in.Capes {
		cape := Cape{ID: cj.ID, URL: cj.URL, Alias: cj.Alias}
		if cj.Data != "" {
			data, err := base64.StdEncoding.DecodeString(cj.Data)
			if err != nil {
				return MinecraftProfile{}
			}
			cape.Data = data
		}
		out.Capes[cape.ID] = cape
	}
	if _, ok := out.Capes[in.Cape]; ok {
		out.CurrentCape = in.Cape
	}
	out.Validity = ValidityAssumed
	return out
}

func entitlementToJSON(e MinecraftEntitlement) *entitlementJSON {
	if e.Validity == ValidityNone {
		return nil
	}
	return &entitlementJSON{
		OwnsMinecraft:    e.OwnsMinecraft,
		CanPlayMinecraft: e.CanPlayMinecraft,
	}
}

func entitlementFromJSON(in *entitlementJSON) (MinecraftEntitlement, bool) {
	if in == nil {
		return MinecraftEntitlement{}, false
	}
	return MinecraftEntitlement{
		OwnsMinecraft:    in.OwnsMinecraft,
		CanPlayMinecraft: in.CanPlayMinecraft,
		Validity:         ValidityAssumed,
	}, true
}
