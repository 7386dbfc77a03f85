// Package accounts provides the connections tab where providers are
// logged in and out.
package accounts

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/app"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/ui/components"
	"github.com/j-veylop/codequota/internal/ui/styles"
)

// providers lists the table rows in display order.
var providers = []models.Provider{models.ProviderClaude, models.ProviderCopilot}

// keyMap defines the key bindings specific to the accounts tab.
type keyMap struct {
	Enter         key.Binding
	ConnectClaude key.Binding
	ConnectGitHub key.Binding
	Disconnect    key.Binding
	Copy          key.Binding
	Escape        key.Binding
}

// defaultKeyMap returns the default key bindings for the accounts tab.
func defaultKeyMap() keyMap {
	return keyMap{
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect selected"),
		),
		ConnectClaude: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connect Claude"),
		),
		ConnectGitHub: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "connect GitHub"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "disconnect"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y", "ctrl+y"),
			key.WithHelp("y", "copy link/code"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel login"),
		),
	}
}

// Model represents the accounts tab state.
type Model struct {
	state             *app.State
	table             table.Model
	codeInput         textinput.Model
	spinner           components.LoadingSpinner
	keys              keyMap
	width             int
	height            int
	confirmDisconnect bool
	disconnectTarget  models.Provider
}

// New creates a new accounts model.
func New(state *app.State) *Model {
	codeInput := textinput.New()
	codeInput.Placeholder = "Paste the authorization code..."
	codeInput.CharLimit = 512
	codeInput.Width = 50

	columns := []table.Column{
		{Title: "Provider", Width: 10},
		{Title: "Status", Width: 18},
		{Title: "Account", Width: 24},
		{Title: "Usage", Width: 8},
		{Title: "Updated", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(providers)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtle).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Primary)
	s.Selected = s.Selected.
		Foreground(styles.TextPrimary).
		Background(styles.BgAccent).
		Bold(true)
	t.SetStyles(s)

	m := &Model{
		state:     state,
		table:     t,
		codeInput: codeInput,
		spinner:   components.NewSpinner("Waiting for authorization..."),
		keys:      defaultKeyMap(),
	}
	m.updateTableData()
	return m
}

// Init initializes the accounts tab.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// CapturingInput reports whether keys should bypass the global bindings.
func (m *Model) CapturingInput() bool {
	return m.codeInput.Focused() || m.confirmDisconnect
}

// Update handles messages for the accounts tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	// The pending URL is cleared once the Claude flow leaves the
	// awaiting-code phase, whichever way it ended.
	if m.codeInput.Focused() && m.state.GetPendingAuthURL() == "" {
		m.closeCodeInput()
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKeyMsg(msg)

	case app.ClaudeLoginStartedMsg:
		if msg.Error == nil && m.state.GetPendingAuthURL() != "" {
			m.codeInput.SetValue("")
			return m, m.codeInput.Focus()
		}

	case app.DeviceLoginStartedMsg:
		if msg.Error == nil {
			return m, m.spinner.Init()
		}

	case app.StateLoadedMsg, app.ServiceEventMsg:
		m.updateTableData()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.codeInput.Focused() {
		var cmd tea.Cmd
		m.codeInput, cmd = m.codeInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	if m.confirmDisconnect {
		return m.handleDisconnectConfirm(msg)
	}
	if m.codeInput.Focused() {
		return m.handleCodeInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.ConnectClaude):
		return connectCmd(models.ProviderClaude)

	case key.Matches(msg, m.keys.ConnectGitHub):
		return connectCmd(models.ProviderCopilot)

	case key.Matches(msg, m.keys.Enter):
		provider := m.selectedProvider()
		if m.authStatus(provider).Connected {
			return nil
		}
		return connectCmd(provider)

	case key.Matches(msg, m.keys.Disconnect):
		provider := m.selectedProvider()
		if m.authStatus(provider).Connected {
			m.confirmDisconnect = true
			m.disconnectTarget = provider
		}
		return nil

	case key.Matches(msg, m.keys.Copy):
		return m.copyCmd()

	case key.Matches(msg, m.keys.Escape):
		for _, provider := range providers {
			if m.authStatus(provider).InProgress() {
				return cancelCmd(provider)
			}
		}
		return nil

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return cmd
	}
}

// handleCodeInputKey handles keys while the authorization code is typed.
func (m *Model) handleCodeInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.closeCodeInput()
		return cancelCmd(models.ProviderClaude)

	case "enter":
		code := m.codeInput.Value()
		if code == "" {
			return nil
		}
		m.closeCodeInput()
		return func() tea.Msg {
			return app.SubmitCodeMsg{Code: code}
		}

	case "ctrl+y":
		return m.copyCmd()
	}

	var cmd tea.Cmd
	m.codeInput, cmd = m.codeInput.Update(msg)
	return cmd
}

// handleDisconnectConfirm handles the disconnect confirmation.
func (m *Model) handleDisconnectConfirm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "Y":
		provider := m.disconnectTarget
		m.confirmDisconnect = false
		m.disconnectTarget = ""
		return func() tea.Msg {
			return app.DisconnectMsg{Provider: provider}
		}
	case "n", "N", "esc":
		m.confirmDisconnect = false
		m.disconnectTarget = ""
	}
	return nil
}

func (m *Model) closeCodeInput() {
	m.codeInput.Blur()
	m.codeInput.SetValue("")
}

// copyCmd copies the Claude authorization link while it is pending, or the
// GitHub user code while the device flow polls.
func (m *Model) copyCmd() tea.Cmd {
	if url := m.state.GetPendingAuthURL(); url != "" {
		return func() tea.Msg {
			return app.CopyToClipboardMsg{Text: url, Label: "authorization link"}
		}
	}

	status := m.authStatus(models.ProviderCopilot)
	if status.Session != nil && status.Session.UserCode != "" {
		code := status.Session.UserCode
		return func() tea.Msg {
			return app.CopyToClipboardMsg{Text: code, Label: "GitHub code"}
		}
	}

	return nil
}

func connectCmd(provider models.Provider) tea.Cmd {
	return func() tea.Msg {
		return app.ConnectMsg{Provider: provider}
	}
}

func cancelCmd(provider models.Provider) tea.Cmd {
	return func() tea.Msg {
		return app.CancelLoginMsg{Provider: provider}
	}
}

func (m *Model) selectedProvider() models.Provider {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(providers) {
		return providers[0]
	}
	return providers[cursor]
}

func (m *Model) authStatus(provider models.Provider) models.AuthStatus {
	snapshot := m.state.Services()
	if provider == models.ProviderCopilot {
		return snapshot.CopilotAuth
	}
	return snapshot.ClaudeAuth
}

// updateTableData updates the table with the current connection state.
func (m *Model) updateTableData() {
	snapshot := m.state.Services()
	rows := make([]table.Row, 0, len(providers))

	for _, provider := range providers {
		status := m.authStatus(provider)

		account := "-"
		if status.Username != "" {
			account = status.Username
		}

		usage := "-"
		updated := "-"
		switch provider {
		case models.ProviderClaude:
			if snapshot.Claude.State.IsLoaded() {
				usage = formatPercent(snapshot.Claude.State.Usage.MaxPercent())
			}
			if status.Connected {
				updated = snapshot.Claude.LastUpdateText
			}
		case models.ProviderCopilot:
			if snapshot.Copilot.State.IsLoaded() {
				usage = formatPercent(snapshot.Copilot.State.Usage.Percent)
			}
			if status.Connected {
				updated = snapshot.Copilot.LastUpdateText
			}
		}

		rows = append(rows, table.Row{
			provider.DisplayName(),
			statusText(status),
			account,
			usage,
			updated,
		})
	}

	m.table.SetRows(rows)
}

// statusText describes the connection phase for the table.
func statusText(status models.AuthStatus) string {
	switch status.Phase {
	case models.PhaseConnected:
		return "● connected"
	case models.PhaseAwaitingCode:
		return "◐ waiting for code"
	case models.PhaseExchanging:
		return "◐ exchanging code"
	case models.PhaseRequesting:
		return "◐ requesting code"
	case models.PhasePolling:
		return "◐ waiting for GitHub"
	}
	if status.Connected {
		return "● connected"
	}
	if status.Error != "" {
		return "✗ login failed"
	}
	return "○ not connected"
}

// formatPercent formats a percentage for display.
func formatPercent(p float64) string {
	if p >= 100 {
		return "100%"
	}
	if p > 0 && p < 1 {
		return "<1%"
	}
	return fmt.Sprintf("%.0f%%", p)
}

// SetSize sets the available size for the accounts tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height

	accountWidth := min(max(width-70, 16), 40)

	m.table.SetColumns([]table.Column{
		{Title: "Provider", Width: 10},
		{Title: "Status", Width: 20},
		{Title: "Account", Width: accountWidth},
		{Title: "Usage", Width: 8},
		{Title: "Updated", Width: 12},
	})
	m.codeInput.Width = min(max(width-20, 20), 80)
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	if m.codeInput.Focused() {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit code")),
			key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy link")),
			m.keys.Escape,
		}
	}
	return []key.Binding{
		m.keys.ConnectClaude,
		m.keys.ConnectGitHub,
		m.keys.Disconnect,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ConnectClaude, m.keys.ConnectGitHub, m.keys.Enter},
		{m.keys.Disconnect, m.keys.Copy, m.keys.Escape},
	}
}
