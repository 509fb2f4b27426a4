// Package ui offline provides the offline account creation prompt.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasar/craftauth/internal/auth"
)

// OfflineModel asks for a player name and creates a local account from it.
type OfflineModel struct {
	width  int
	height int

	nameInput textinput.Model
	err       string
}

// NewOfflineModel creates the offline account prompt
func NewOfflineModel() *OfflineModel {
	ti := textinput.New()
	ti.Placeholder = "Player"
	ti.CharLimit = 16
	ti.Width = 24
	ti.Focus()

	return &OfflineModel{nameInput: ti}
}

func (m *OfflineModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *OfflineModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *OfflineModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToAccounts{} }
		case "enter":
			name := strings.TrimSpace(m.nameInput.Value())
			if name == "" {
				m.err = "a player name is required"
				return m, nil
			}
			account := auth.NewOfflineAccount(name)
			return m, func() tea.Msg { return OfflineAccountCreated{Account: account} }
		}
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *OfflineModel) View() string {
	doc := lipgloss.NewStyle().Padding(2, 4).Width(m.width).Height(m.height)

	title := TitleStyle.Render("Offline Account")

	body := fmt.Sprintf("%s\n\nPlayer name:\n%s\n\n%s",
		title, m.nameInput.View(), HelpStyle.Render("[enter] create • [esc] back"))
	if m.err != "" {
		body += "\n\n" + ErrorStyle.Render(m.err)
	}
	return doc.Render(body)
}
