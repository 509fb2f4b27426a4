package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/quasar/craftauth/internal/oauth"
)

// Game sessions last a day; refresh once less than half of that remains.
const (
	sessionLifetime  = 24 * time.Hour
	refreshThreshold = 12 * time.Hour
)

// ErrFlowInProgress is returned when a login or refresh is requested while
// another flow is still bound to the account.
var ErrFlowInProgress = errors.New("an authentication task is already running for this account")

// MinecraftAccount wraps AccountData with the runtime coordination the data
// itself does not carry: the currently bound flow and the count of game
// sessions using the credentials.
type MinecraftAccount struct {
	mu       sync.Mutex
	data     *AccountData
	flow     *Flow
	useCount int
}

// NewMSAAccount creates an empty Microsoft account awaiting its first login.
func NewMSAAccount() *MinecraftAccount {
	return &MinecraftAccount{data: NewAccountData(AccountTypeMSA)}
}

// NewOfflineAccount creates an account with a locally synthesized profile.
// The offline flow does no network work, so it runs inline.
func NewOfflineAccount(username string) *MinecraftAccount {
	a := &MinecraftAccount{data: NewAccountData(AccountTypeOffline)}
	NewOfflineFlow(Env{}, a.data, nil, username).Run(context.Background())
	return a
}

// LoadAccount restores an account from one persisted v3 entry. The second
// return value reports whether the entry was the active account.
func LoadAccount(raw json.RawMessage) (*MinecraftAccount, bool, error) {
	data := &AccountData{}
	active, err := data.ResumeState(raw)
	if err != nil {
		return nil, false, err
	}
	return &MinecraftAccount{data: data}, active, nil
}

// SaveState serializes the account for persistence.
func (a *MinecraftAccount) SaveState() json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data.SaveState()
}

// Data exposes the underlying account state. Callers must not retain the
// pointer across a running flow.
func (a *MinecraftAccount) Data() *AccountData {
	return a.data
}

func (a *MinecraftAccount) InternalID() string    { return a.data.InternalID }
func (a *MinecraftAccount) ProfileID() string     { return a.data.ProfileID() }
func (a *MinecraftAccount) ProfileName() string   { return a.data.ProfileName() }
func (a *MinecraftAccount) DisplayString() string { return a.data.DisplayString() }
func (a *MinecraftAccount) Type() AccountType     { return a.data.Type }

// State returns the user-visible status plus the last error message.
func (a *MinecraftAccount) State() (AccountState, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data.State, a.data.LastError
}

// Login binds an interactive device-code flow to the account. Only one flow
// may run at a time.
func (a *MinecraftAccount) Login(env Env, observer Observer) (*Flow, error) {
	return a.bindFlow(func() *Flow { return NewLoginFlow(env, a.data, a.watch(observer)) })
}

// Refresh binds a silent refresh flow to the account.
func (a *MinecraftAccount) Refresh(env Env, observer Observer) (*Flow, error) {
	return a.bindFlow(func() *Flow { return NewRefreshFlow(env, a.data, a.watch(observer)) })
}

func (a *MinecraftAccount) bindFlow(build func() *Flow) (*Flow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flow != nil {
		return nil, ErrFlowInProgress
	}
	f := build()
	a.flow = f
	return f, nil
}

// watch wraps the caller's observer so the account unbinds the flow when it
// reaches a terminal state.
func (a *MinecraftAccount) watch(inner Observer) Observer {
	return &flowWatcher{account: a, inner: inner}
}

type flowWatcher struct {
	account *MinecraftAccount
	inner   Observer
}

func (w *flowWatcher) AuthStateChanged(state TaskState, message string) {
	if state.Terminal() {
		w.account.mu.Lock()
		w.account.flow = nil
		w.account.mu.Unlock()
	}
	if w.inner != nil {
		w.inner.AuthStateChanged(state, message)
	}
}

func (w *flowWatcher) AuthorizeWithBrowser(v oauth.Verification) {
	if w.inner != nil {
		w.inner.AuthorizeWithBrowser(v)
	}
}

// BeginUse marks the credentials as held by a game session and returns a
// release function. Refresh scheduling skips accounts that are in use.
func (a *MinecraftAccount) BeginUse() func() {
	a.mu.Lock()
	a.useCount++
	a.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.useCount--
			a.mu.Unlock()
		})
	}
}

// InUse reports whether any game session currently holds the credentials.
func (a *MinecraftAccount) InUse() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.useCount > 0
}

// credentialsNotAfter is the instant the session token stops being trusted,
// defaulting to a day past issuance when the provider gave no expiry.
func (a *MinecraftAccount) credentialsNotAfter() time.Time {
	t := a.data.YggdrasilToken
	if !t.NotAfter.IsZero() {
		return t.NotAfter
	}
	return t.IssueInstant.Add(sessionLifetime)
}

// ShouldRefresh decides whether the scheduler may refresh this account now.
// Accounts in use, mid-flow, or with no credentials at all are never
// refreshed; assumed-valid ones always are; certainly-valid ones only once
// the session token nears expiry.
func (a *MinecraftAccount) ShouldRefresh(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.useCount > 0 || a.flow != nil {
		return false
	}
	if a.data.Type == AccountTypeOffline {
		return false
	}
	switch a.data.Validity {
	case ValidityNone:
		return false
	case ValidityAssumed:
		return true
	}
	return a.credentialsNotAfter().Sub(now) < refreshThreshold
}
