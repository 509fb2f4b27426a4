// Package ui provides TUI view messages shared between components.
package ui

import (
	"github.com/quasar/craftauth/internal/auth"
	"github.com/quasar/craftauth/internal/oauth"
)

// Navigation messages
type (
	// NavigateToAccounts returns to the account list
	NavigateToAccounts struct{}

	// NavigateToLogin opens the Microsoft device-code login screen
	NavigateToLogin struct{}

	// NavigateToOffline opens the offline account prompt
	NavigateToOffline struct{}

	// RemoveAccount requests removal of the selected account
	RemoveAccount struct {
		Account *auth.MinecraftAccount
	}

	// SetDefaultAccount marks the selected account as the default
	SetDefaultAccount struct {
		Account *auth.MinecraftAccount
	}

	// RefreshAccount queues an immediate refresh for the selected account
	RefreshAccount struct {
		Account *auth.MinecraftAccount
	}
)

// Action messages
type (
	// AccountsLoaded is sent when the account store has been read. Notice
	// carries a one-shot warning to show above the list.
	AccountsLoaded struct {
		Accounts []*auth.MinecraftAccount
		Default  *auth.MinecraftAccount
		Notice   string
		Error    error
	}

	// OfflineAccountCreated is sent when an offline profile has been made
	OfflineAccountCreated struct {
		Account *auth.MinecraftAccount
	}

	// AuthEvent carries one progress update from a running login flow
	AuthEvent struct {
		State        auth.TaskState
		Message      string
		Verification *oauth.Verification
	}

	// LoginFinished is sent when the login flow reached a terminal state
	LoginFinished struct {
		State   auth.TaskState
		Message string
		Account *auth.MinecraftAccount
	}
)

// FlowObserver adapts auth flow callbacks onto a channel the TUI can drain
// one message at a time.
type FlowObserver struct {
	Events chan AuthEvent
}

// NewFlowObserver creates an observer with enough buffer that a flow never
// blocks on a slow terminal.
func NewFlowObserver() *FlowObserver {
	return &FlowObserver{Events: make(chan AuthEvent, 32)}
}

func (o *FlowObserver) AuthStateChanged(state auth.TaskState, message string) {
	o.Events <- AuthEvent{State: state, Message: message}
	if state.Terminal() {
		close(o.Events)
	}
}

func (o *FlowObserver) AuthorizeWithBrowser(v oauth.Verification) {
	o.Events <- AuthEvent{State: auth.StateWorking, Message: "waiting for sign-in", Verification: &v}
}
