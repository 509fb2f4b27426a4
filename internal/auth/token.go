package auth

import (
	"time"
)

// Validity expresses how much trust we have in a piece of account state.
// It only moves forward during a successful step; a hard failure resets it.
type Validity int

const (
	// ValidityNone - we know nothing about the validity.
	ValidityNone Validity = iota
	// ValidityAssumed - loaded from storage, not verified against the
	// provider this session.
	ValidityAssumed
	// ValidityCertain - verified against the provider this session.
	ValidityCertain
)

func (v Validity) String() string {
	switch v {
	case ValidityAssumed:
		return "assumed"
	case ValidityCertain:
		return "certain"
	default:
		return "none"
	}
}

// Token is one provider credential. Extra carries provider claims verbatim
// (for example the Xbox user hash under "uhs").
type Token struct {
	IssueInstant time.Time
	NotAfter     time.Time
	Token        string
	RefreshToken string
	Extra        map[string]string
	Validity     Validity
	Persistent   bool
}

// Present reports whether the token carries an actual credential. A token
// with an empty string is treated as absent everywhere, including the codec.
func (t Token) Present() bool {
	return t.Token != ""
}

// Clear wipes the secrets and resets validity, keeping persistence intact.
func (t *Token) Clear() {
	t.Token = ""
	t.RefreshToken = ""
	t.Extra = nil
	t.IssueInstant = time.Time{}
	t.NotAfter = time.Time{}
	t.Validity = ValidityNone
}

// tokenJSON is the persisted v3 shape: unix-second iat/exp plus the raw
// credential strings and the opaque extra map.
type tokenJSON struct {
	Iat          *int64            `json:"iat,omitempty"`
	Exp          *int64            `json:"exp,omitempty"`
	Token        string            `json:"token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

func tokenToJSON(t Token) *tokenJSON {
	if !t.Persistent {
		return nil
	}
	out := &tokenJSON{}
	if !t.IssueInstant.IsZero() {
		iat := t.IssueInstant.Unix()
		out.Iat = &iat
	}
	if !t.NotAfter.IsZero() {
		exp := t.NotAfter.Unix()
		out.Exp = &exp
	}
	save := false
	if t.Token != "" {
		out.Token = t.Token
		save = true
	}
	if t.RefreshToken != "" {
		out.RefreshToken = t.RefreshToken
		save = true
	}
	if len(t.Extra) > 0 {
		out.Extra = t.Extra
		save = true
	}
	if !save {
		return nil
	}
	return out
}

func tokenFromJSON(in *tokenJSON) Token {
	var out Token
	out.Persistent = true
	if in == nil {
		return out
	}
	if in.Iat != nil {
		out.IssueInstant = time.Unix(*in.Iat, 0).UTC()
	}
	if in.Exp != nil {
		out.NotAfter = time.Unix(*in.Exp, 0).UTC()
	}
	if in.Token != "" {
		out.Token = in.Token
		out.Validity = ValidityAssumed
	}
	out.RefreshToken = in.RefreshToken
	if len(in.Extra) > 0 {
		out.Extra = in.Extra
	}
	return out
}
