package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasar/craftauth/internal/auth"
	"github.com/quasar/craftauth/internal/oauth"
)

type AuthState int

const (
	AuthStateStarting AuthState = iota
	AuthStateWaitingForUser // Polling
	AuthStateWorking        // Walking the token chain
	AuthStateSuccess
	AuthStateError
)

// LoginModel renders a running Microsoft login flow. The flow itself runs on
// its own goroutine; this model only drains its event channel.
type LoginModel struct {
	width  int
	height int

	state        AuthState
	verification *oauth.Verification
	stepMessage  string
	errMessage   string
	account      *auth.MinecraftAccount
	copied       bool
	browserErr   string

	spinner spinner.Model
	events  chan AuthEvent
}

// NewLoginModel creates the login view over an observer's event channel.
// The account is the one the flow is mutating; it is reported back to the
// app once the flow succeeds.
func NewLoginModel(account *auth.MinecraftAccount, events chan AuthEvent) *LoginModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return &LoginModel{
		state:   AuthStateStarting,
		spinner: s,
		events:  events,
		account: account,
	}
}

func (m *LoginModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
	)
}

func (m *LoginModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// waitForEvent blocks on the next flow event. A closed channel means the
// flow already reported its terminal state.
func (m *LoginModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return ev
	}
}

func (m *LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			return m, func() tea.Msg { return NavigateToAccounts{} }
		case "o":
			if m.state == AuthStateWaitingForUser && m.verification != nil {
				m.launchBrowser()
			}
		case "c":
			if m.state == AuthStateWaitingForUser && m.verification != nil {
				copyToClipboard(m.verification.UserCode)
				m.copied = true
				return m, tea.Tick(2*time.Second, func(_ time.Time) tea.Msg { return clearCopiedMsg{} })
			}
		case "enter":
			if m.state == AuthStateSuccess {
				return m, func() tea.Msg { return NavigateToAccounts{} }
			}
		}

	case AuthEvent:
		return m.applyEvent(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openBrowserMsg:
		if m.verification != nil {
			m.launchBrowser()
		}
		return m, nil

	case clearCopiedMsg:
		m.copied = false
		return m, nil
	}

	return m, nil
}

func (m *LoginModel) applyEvent(ev AuthEvent) (tea.Model, tea.Cmd) {
	if ev.Verification != nil {
		m.verification = ev.Verification
		m.state = AuthStateWaitingForUser
		// Auto-copy the code and open the browser shortly after
		copyToClipboard(ev.Verification.UserCode)
		m.copied = true
		return m, tea.Batch(
			m.waitForEvent(),
			tea.Tick(1*time.Second, func(_ time.Time) tea.Msg { return openBrowserMsg{} }),
			tea.Tick(3*time.Second, func(_ time.Time) tea.Msg { return clearCopiedMsg{} }),
		)
	}

	switch {
	case ev.State == auth.StateSucceeded:
		m.state = AuthStateSuccess
		return m, tea.Batch(
			func() tea.Msg {
				return LoginFinished{State: ev.State, Message: ev.Message, Account: m.account}
			},
			tea.Tick(2*time.Second, func(_ time.Time) tea.Msg { return NavigateToAccounts{} }),
		)
	case ev.State.Terminal():
		m.state = AuthStateError
		m.errMessage = ev.Message
		return m, func() tea.Msg {
			return LoginFinished{State: ev.State, Message: ev.Message}
		}
	default:
		m.stepMessage = ev.Message
		// The first progress event after the verification screen means the
		// user finished signing in and the token chain is being walked.
		if m.verification != nil {
			m.state = AuthStateWorking
		}
		return m, m.waitForEvent()
	}
}

func (m *LoginModel) View() string {
	doc := lipgloss.NewStyle().Padding(2, 4).Width(m.width).Height(m.height)

	var content string

	switch m.state {
	case AuthStateStarting:
		content = fmt.Sprintf("%s Contacting Microsoft...", m.spinner.View())

	case AuthStateWaitingForUser:
		codeText := m.verification.UserCode
		if m.copied {
			codeText += "  ✓ Copied!"
		} else {
			codeText += "  📋"
		}

		box := CodeBoxStyle.Render(codeText)

		actionText := "[c] Copy code"
		if m.copied {
			actionText = "[✓] Copied!"
		}

		content = fmt.Sprintf(`
%s

To sign in, use a web browser to open the page:
%s

And enter the code:
%s

%s Waiting for you to sign in...
%s • [o] Open browser automatically
`, "Microsoft Authentication",
			LinkStyle.Render(m.verification.URI),
			box,
			m.spinner.View(),
			actionText)
		if m.browserErr != "" {
			content += "\n" + ErrorStyle.Render(m.browserErr)
		}

	case AuthStateWorking:
		content = fmt.Sprintf("%s %s", m.spinner.View(), m.stepMessage)

	case AuthStateSuccess:
		content = SuccessStyle.Render(
			fmt.Sprintf("✅ Successfully logged in as %s!", m.account.DisplayString())) +
			"\n\nRedirecting..."

	case AuthStateError:
		content = ErrorStyle.Render(fmt.Sprintf("❌ Login failed: %s", m.errMessage)) +
			"\n\n" + HelpStyle.Render("[Esc] Back")
	}

	return doc.Render(content)
}

// launchBrowser opens the verification page and keeps the failure around so
// the waiting view can tell the user to use the link by hand.
func (m *LoginModel) launchBrowser() {
	if err := browserLauncher(m.verification.URI); err != nil {
		m.browserErr = "Could not open a browser: " + err.Error()
	}
}

// swapped out by tests
var browserLauncher = openBrowser

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	}
	return fmt.Errorf("no known browser opener for %s", runtime.GOOS)
}

func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		// Try wl-copy first, then xclip
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	default:
		return fmt.Errorf("unsupported platform")
	}

	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := in.Write([]byte(text)); err != nil {
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}

	return cmd.Wait()
}

type clearCopiedMsg struct{}
type openBrowserMsg struct{}
