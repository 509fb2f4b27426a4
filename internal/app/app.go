// Package app contains the main Bubbletea application model.
// This is the central hub that manages app state and delegates to child views.
package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/quasar/craftauth/internal/auth"
	"github.com/quasar/craftauth/internal/config"
	"github.com/quasar/craftauth/internal/requests"
	"github.com/quasar/craftauth/internal/skins"
	"github.com/quasar/craftauth/internal/ui"
)

// State represents the current view/screen of the application
type State int

const (
	StateAccounts State = iota
	StateLogin
	StateOffline
)

// Model is the main application model
type Model struct {
	state  State
	width  int
	height int

	// Child models for each view
	accounts *ui.AccountsModel
	login    *ui.LoginModel
	offline  *ui.OfflineModel

	// Core services
	cfg       *config.Config
	store     *auth.AccountList
	env       auth.Env
	scheduler *auth.Scheduler
	log       *zap.Logger

	// Login state
	loginFlow *auth.Flow

	// One-shot warning delivered with the next account list load
	notice string

	// Key bindings
	keys keyMap

	// Shared state
	ready bool
}

// keyMap defines the keybindings for the app
type keyMap struct {
	Quit key.Binding
	Back key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// New creates a new application model with all its services wired up.
func New() (*Model, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	log := newLogger(cfg.DataDir)

	env := auth.Env{
		Requests:  requests.New(nil, log),
		Skins:     skins.NewFetcher(),
		ClientID:  cfg.MSAClientID,
		Endpoints: auth.DefaultEndpoints(),
		Log:       log,
	}

	store := auth.NewAccountList(cfg.AccountsPath(), log)
	if err := store.Load(); err != nil {
		return nil, err
	}

	scheduler := auth.NewScheduler(store, env)
	scheduler.AfterRefresh = func(*auth.MinecraftAccount, auth.TaskState) {
		if err := store.Save(); err != nil {
			log.Warn("could not save account store", zap.Error(err))
		}
	}

	return &Model{
		state:     StateAccounts,
		accounts:  ui.NewAccountsModel(),
		cfg:       cfg,
		store:     store,
		env:       env,
		scheduler: scheduler,
		log:       log,
		keys:      defaultKeyMap(),
	}, nil
}

// newLogger writes structured logs to a file so they never fight the TUI
// for the terminal.
func newLogger(dataDir string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{filepath.Join(dataDir, "craftauth.log")}
	zcfg.ErrorOutputPaths = zcfg.OutputPaths
	log, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// StartBackground launches the refresh scheduler; it stops when ctx ends.
func (m *Model) StartBackground(ctx context.Context) {
	go m.scheduler.Run(ctx)
}

// Close flushes the logger.
func (m *Model) Close() {
	m.log.Sync()
}

// Store exposes the account list for headless commands.
func (m *Model) Store() *auth.AccountList { return m.store }

// Env exposes the auth environment for headless commands.
func (m *Model) Env() auth.Env { return m.env }

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.accounts.Init(),
		m.loadAccounts(),
	)
}

func (m *Model) loadAccounts() tea.Cmd {
	notice := m.notice
	m.notice = ""
	return func() tea.Msg {
		return ui.AccountsLoaded{
			Accounts: m.store.Accounts(),
			Default:  m.store.DefaultAccount(),
			Notice:   notice,
		}
	}
}

func (m *Model) saveStore() {
	if err := m.store.Save(); err != nil {
		m.log.Warn("could not save account store", zap.Error(err))
	}
}

// startLogin creates a fresh MSA account, binds an interactive flow to it
// and runs the flow on its own goroutine. The login view drains the
// observer's events.
func (m *Model) startLogin() tea.Cmd {
	account := auth.NewMSAAccount()
	observer := ui.NewFlowObserver()

	flow, err := account.Login(m.env, observer)
	if err != nil {
		// Fresh account, cannot happen; keep the list view.
		return nil
	}
	m.loginFlow = flow
	m.login = ui.NewLoginModel(account, observer.Events)
	m.login.SetSize(m.width, m.height)

	go flow.Run(context.Background())
	return m.login.Init()
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Propagate size to child models
		m.accounts.SetSize(msg.Width, msg.Height)
		if m.login != nil {
			m.login.SetSize(msg.Width, msg.Height)
		}
		if m.offline != nil {
			m.offline.SetSize(msg.Width, msg.Height)
		}

	// Navigation messages
	case ui.NavigateToAccounts:
		if m.loginFlow != nil {
			m.loginFlow.Abort()
			m.loginFlow = nil
		}
		m.state = StateAccounts
		return m, m.loadAccounts()

	case ui.NavigateToLogin:
		m.state = StateLogin
		return m, m.startLogin()

	case ui.NavigateToOffline:
		m.state = StateOffline
		m.offline = ui.NewOfflineModel()
		m.offline.SetSize(m.width, m.height)
		return m, m.offline.Init()

	// Account management
	case ui.LoginFinished:
		m.loginFlow = nil
		if msg.State == auth.StateSucceeded && msg.Account != nil {
			switch err := m.store.Add(msg.Account); {
			case errors.Is(err, auth.ErrNoProfile):
				// The 404-profile login: valid credentials, nothing to store.
				m.notice = "Signed in, but the account has no Minecraft profile yet. " +
					"Create one on minecraft.net, then sign in again."
				m.log.Info("login finished without a game profile")
			case err != nil:
				m.log.Warn("could not store account", zap.Error(err))
			default:
				if m.store.DefaultAccount() == nil {
					m.store.SetDefault(msg.Account.InternalID())
				}
				m.saveStore()
			}
		}
		return m, nil

	case ui.OfflineAccountCreated:
		if err := m.store.Add(msg.Account); err != nil {
			m.log.Warn("could not store offline account", zap.Error(err))
		} else {
			if m.store.DefaultAccount() == nil {
				m.store.SetDefault(msg.Account.InternalID())
			}
			m.saveStore()
		}
		m.state = StateAccounts
		return m, m.loadAccounts()

	case ui.RemoveAccount:
		if m.store.Remove(msg.Account.InternalID()) {
			m.saveStore()
		}
		return m, m.loadAccounts()

	case ui.SetDefaultAccount:
		m.store.SetDefault(msg.Account.InternalID())
		m.saveStore()
		return m, m.loadAccounts()

	case ui.RefreshAccount:
		m.scheduler.RequestRefresh(msg.Account.InternalID())
		return m, nil

	// Global key handlers
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.state == StateAccounts {
				return m, tea.Quit
			}
		}
	}

	// Delegate to current view
	switch m.state {
	case StateAccounts:
		newAccounts, cmd := m.accounts.Update(msg)
		m.accounts = newAccounts.(*ui.AccountsModel)
		cmds = append(cmds, cmd)

	case StateLogin:
		if m.login != nil {
			newLogin, cmd := m.login.Update(msg)
			m.login = newLogin.(*ui.LoginModel)
			cmds = append(cmds, cmd)
		}

	case StateOffline:
		if m.offline != nil {
			newOffline, cmd := m.offline.Update(msg)
			m.offline = newOffline.(*ui.OfflineModel)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	// Delegate to current view
	switch m.state {
	case StateAccounts:
		return m.accounts.View()
	case StateLogin:
		if m.login != nil {
			return m.login.View()
		}
	case StateOffline:
		if m.offline != nil {
			return m.offline.View()
		}
	}

	return "Unknown state"
}
