package auth

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AccountType discriminates the credential pipeline an account uses.
type AccountType string

const (
	AccountTypeMSA     AccountType = "MSA"
	AccountTypeOffline AccountType = "Offline"
)

// AccountState is the user-visible status of an account.
type AccountState int

const (
	Unchecked AccountState = iota
	AccountOffline
	Working
	Online
	Disabled
	Errored
	Expired
	Gone
)

func (s AccountState) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case AccountOffline:
		return "offline"
	case Working:
		return "working"
	case Online:
		return "online"
	case Disabled:
		return "disabled"
	case Errored:
		return "errored"
	case Expired:
		return "expired"
	case Gone:
		return "gone"
	}
	return "unknown"
}

// AccountData is the aggregate root for one stored account: the provider
// token chain, the game profile, and runtime status. It is mutated only by
// the one flow currently bound to it.
type AccountData struct {
	Type        AccountType
	MSAClientID string

	MSAToken            Token
	UserToken           Token
	XboxAPIToken        Token
	MojangServicesToken Token
	YggdrasilToken      Token

	Profile     MinecraftProfile
	Entitlement MinecraftEntitlement

	Validity Validity

	// runtime only, never persisted
	InternalID string
	LastError  string
	State      AccountState
}

// NewAccountData creates empty account state of the given type with a fresh
// internal id.
func NewAccountData(t AccountType) *AccountData {
	d := &AccountData{Type: t, InternalID: uuid.NewString()}
	if t == AccountTypeMSA {
		d.MSAToken.Persistent = true
		d.UserToken.Persistent = true
		d.XboxAPIToken.Persistent = true
		d.MojangServicesToken.Persistent = true
	}
	d.YggdrasilToken.Persistent = true
	return d
}

type accountJSON struct {
	Type        string `json:"type"`
	MSAClientID string `json:"msa-client-id,omitempty"`

	MSA            *tokenJSON `json:"msa,omitempty"`
	UserToken      *tokenJSON `json:"utoken,omitempty"`
	XboxAPI        *tokenJSON `json:"xrp-main,omitempty"`
	MojangServices *tokenJSON `json:"xrp-mc,omitempty"`
	Yggdrasil      *tokenJSON `json:"ygg,omitempty"`

	Profile     *profileJSON     `json:"profile,omitempty"`
	Entitlement *entitlementJSON `json:"entitlement,omitempty"`

	Active bool `json:"active,omitempty"`
}

// SaveState serializes the account into its persisted v3 JSON object.
func (d *AccountData) SaveState() json.RawMessage {
	out := accountJSON{Type: string(d.Type)}
	if d.Type == AccountTypeMSA {
		out.MSAClientID = d.MSAClientID
		out.MSA = tokenToJSON(d.MSAToken)
		out.UserToken = tokenToJSON(d.UserToken)
		out.XboxAPI = tokenToJSON(d.XboxAPIToken)
		out.MojangServices = tokenToJSON(d.MojangServicesToken)
	}
	out.Yggdrasil = tokenToJSON(d.YggdrasilToken)
	out.Profile = profileToJSON(d.Profile)
	out.Entitlement = entitlementToJSON(d.Entitlement)

	raw, _ := json.Marshal(out)
	return raw
}

// ResumeState restores the account from its persisted JSON object. The
// second return value reports whether the entry was marked active.
func (d *AccountData) ResumeState(raw json.RawMessage) (bool, error) {
	var in accountJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return false, fmt.Errorf("parsing account entry: %w", err)
	}
	switch AccountType(in.Type) {
	case AccountTypeMSA:
		d.Type = AccountTypeMSA
	case AccountTypeOffline:
		d.Type = AccountTypeOffline
	default:
		return false, fmt.Errorf("account type %q is not recognized", in.Type)
	}

	if d.Type == AccountTypeMSA {
		d.MSAClientID = in.MSAClientID
		d.MSAToken = tokenFromJSON(in.MSA)
		d.UserToken = tokenFromJSON(in.UserToken)
		d.XboxAPIToken = tokenFromJSON(in.XboxAPI)
		d.MojangServicesToken = tokenFromJSON(in.MojangServices)
	}
	d.YggdrasilToken = tokenFromJSON(in.Yggdrasil)
	d.Profile = profileFromJSON(in.Profile)

	ent, ok := entitlementFromJSON(in.Entitlement)
	if ok {
		d.Entitlement = ent
	} else if d.Profile.Validity != ValidityNone {
		// Old entries predate the entitlement check; a stored profile
		// implies the account could play when it was saved.
		d.Entitlement = MinecraftEntitlement{
			OwnsMinecraft:    true,
			CanPlayMinecraft: true,
			Validity:         ValidityAssumed,
		}
	}

	d.Validity = d.Profile.Validity
	if d.InternalID == "" {
		d.InternalID = uuid.NewString()
	}
	return in.Active, nil
}

// Invalidate is the hard-failure wipe: credentials are cleared and validity
// drops to none, forcing a full re-login.
func (d *AccountData) Invalidate() {
	d.MSAToken.Clear()
	d.UserToken.Clear()
	d.XboxAPIToken.Clear()
	d.MojangServicesToken.Clear()
	d.YggdrasilToken.Clear()
	d.Validity = ValidityNone
	d.Profile.Validity = ValidityNone
	d.Entitlement.Validity = ValidityNone
}

// AccessToken is the game-session token.
func (d *AccountData) AccessToken() string {
	return d.YggdrasilToken.Token
}

// ProfileID returns the undashed profile UUID, empty when no profile exists.
func (d *AccountData) ProfileID() string {
	return d.Profile.ID
}

// ProfileName returns the in-game name, empty when no profile exists.
func (d *AccountData) ProfileName() string {
	return d.Profile.Name
}

// DisplayString is the account-level identity shown in lists: the gamertag
// for MSA accounts, the profile name otherwise.
func (d *AccountData) DisplayString() string {
	if d.Type == AccountTypeMSA {
		if gtg, ok := d.XboxAPIToken.Extra["gtg"]; ok && gtg != "" {
			return gtg
		}
		if d.Profile.Name != "" {
			return d.Profile.Name
		}
		return "<Xbox profile missing>"
	}
	return d.Profile.Name
}
