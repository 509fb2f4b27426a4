// Package ui contains all TUI view components.
// Each view is a Bubbletea model that can be composed into the main app.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/quasar/craftauth/internal/auth"
)

// AccountsModel is the main account list view
type AccountsModel struct {
	list     list.Model
	accounts []*auth.MinecraftAccount
	def      *auth.MinecraftAccount
	width    int
	height   int
	keys     accountsKeyMap
	loading  bool
	notice   string
}

type accountsKeyMap struct {
	Login      key.Binding
	Offline    key.Binding
	Delete     key.Binding
	SetDefault key.Binding
	Refresh    key.Binding
}

func defaultAccountsKeyMap() accountsKeyMap {
	return accountsKeyMap{
		Login: key.NewBinding(
			key.WithKeys("l", "n"),
			key.WithHelp("l", "login"),
		),
		Offline: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "offline"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		SetDefault: key.NewBinding(
			key.WithKeys("enter", "*"),
			key.WithHelp("enter", "set default"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// accountItem represents one stored account in the list
type accountItem struct {
	account   *auth.MinecraftAccount
	isDefault bool
}

func (i accountItem) Title() string {
	title := i.account.DisplayString()
	if title == "" {
		title = "<no profile>"
	}
	if i.isDefault {
		title += " ★"
	}
	return title
}

func (i accountItem) Description() string {
	d := i.account.Data()
	kind := "Microsoft"
	if d.Type == auth.AccountTypeOffline {
		kind = "Offline"
	}

	state, lastError := i.account.State()
	status := state.String()
	if lastError != "" && state != auth.Online {
		status += ": " + lastError
	}

	expiry := "session " + describeExpiry(d.YggdrasilToken)
	return fmt.Sprintf("%s • %s • %s", kind, status, expiry)
}

func (i accountItem) FilterValue() string { return i.account.DisplayString() }

func describeExpiry(t auth.Token) string {
	if t.Token == "" {
		return "absent"
	}
	notAfter := t.NotAfter
	if notAfter.IsZero() {
		notAfter = t.IssueInstant.Add(24 * time.Hour)
	}
	if time.Now().After(notAfter) {
		return "expired " + humanize.Time(notAfter)
	}
	return "expires " + humanize.Time(notAfter)
}

// NewAccountsModel creates the account list view
func NewAccountsModel() *AccountsModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderLeftForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSecondary).
		BorderLeftForeground(ColorPrimary)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "🔑 Minecraft Accounts"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle
	l.SetShowHelp(false)

	return &AccountsModel{
		list:    l,
		keys:    defaultAccountsKeyMap(),
		loading: true,
	}
}

// SetAccounts updates the account list
func (m *AccountsModel) SetAccounts(accounts []*auth.MinecraftAccount, def *auth.MinecraftAccount) {
	m.accounts = accounts
	m.def = def
	m.loading = false

	items := make([]list.Item, len(accounts))
	for i, a := range accounts {
		items[i] = accountItem{account: a, isDefault: a == def}
	}
	m.list.SetItems(items)
}

// SelectedAccount returns the currently selected account
func (m *AccountsModel) SelectedAccount() *auth.MinecraftAccount {
	if item, ok := m.list.SelectedItem().(accountItem); ok {
		return item.account
	}
	return nil
}

// SetSize updates the dimensions of the view
func (m *AccountsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-3)
}

// Init implements tea.Model
func (m *AccountsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *AccountsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case AccountsLoaded:
		if msg.Error == nil {
			m.SetAccounts(msg.Accounts, msg.Default)
		}
		m.notice = msg.Notice
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Login):
			return m, func() tea.Msg { return NavigateToLogin{} }
		case key.Matches(msg, m.keys.Offline):
			return m, func() tea.Msg { return NavigateToOffline{} }
		case key.Matches(msg, m.keys.Delete):
			if a := m.SelectedAccount(); a != nil {
				return m, func() tea.Msg { return RemoveAccount{Account: a} }
			}
		case key.Matches(msg, m.keys.SetDefault):
			if a := m.SelectedAccount(); a != nil {
				return m, func() tea.Msg { return SetDefaultAccount{Account: a} }
			}
		case key.Matches(msg, m.keys.Refresh):
			if a := m.SelectedAccount(); a != nil {
				return m, func() tea.Msg { return RefreshAccount{Account: a} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *AccountsModel) View() string {
	if m.loading {
		return SubtleStyle.Render("Loading accounts...")
	}

	sections := []string{m.list.View()}
	if len(m.accounts) == 0 {
		sections = append(sections,
			SubtleStyle.Render("No accounts yet. Press 'l' to sign in with Microsoft."))
	}
	if m.notice != "" {
		sections = append(sections, NoticeStyle.Render(m.notice))
	}

	help := "[enter] set default • [l] login • [o] offline • [r] refresh • [d] delete • [q] quit"
	if len(m.accounts) == 0 {
		help = "\n[l] login • [o] offline account • [q] quit"
	}
	sections = append(sections, HelpStyle.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
