package accounts

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/codequota/internal/app"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(t *testing.T, snapshot services.State) (*Model, *app.State) {
	t.Helper()

	state := app.NewState()
	state.SetServices(snapshot)

	m := New(state)
	m.SetSize(120, 40)
	return m, state
}

func connectedClaude() services.State {
	return services.State{
		ClaudeAuth: models.AuthStatus{
			Provider:  models.ProviderClaude,
			Phase:     models.PhaseConnected,
			Connected: true,
		},
		CopilotAuth: models.AuthStatus{Provider: models.ProviderCopilot},
		Claude: models.Snapshot[models.ClaudeUsage]{
			Provider:       models.ProviderClaude,
			LastUpdateText: "just now",
			State: models.Loaded(models.ClaudeUsage{
				FiveHour: models.UsageBucket{Percent: 12},
				WeeklyAll: models.UsageBucket{Percent: 64},
			}),
		},
		Metric: models.DefaultMetric,
	}
}

func send(t *testing.T, m *Model, msg tea.Msg) tea.Msg {
	t.Helper()

	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestNew(t *testing.T) {
	m, _ := newModel(t, services.State{})
	if m == nil {
		t.Fatal("New returned nil")
	}
	if got := len(m.table.Rows()); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
	if m.CapturingInput() {
		t.Error("new model should not capture input")
	}
}

func TestModel_View(t *testing.T) {
	m, _ := newModel(t, connectedClaude())
	view := ansi.Strip(m.View())

	for _, want := range []string{
		"Connections",
		"1 of 2 providers connected",
		"Claude",
		"Copilot",
		"● connected",
		"○ not connected",
		"64%",
		"just now",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ConnectKeys(t *testing.T) {
	tests := []struct {
		want tea.Msg
		name string
		key  string
	}{
		{name: "Claude", key: "c", want: app.ConnectMsg{Provider: models.ProviderClaude}},
		{name: "GitHub", key: "g", want: app.ConnectMsg{Provider: models.ProviderCopilot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newModel(t, services.State{})
			if got := send(t, m, runeKey(tt.key)); got != tt.want {
				t.Errorf("msg = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestModel_EnterConnectsSelected(t *testing.T) {
	m, _ := newModel(t, connectedClaude())

	if got := send(t, m, tea.KeyMsg{Type: tea.KeyEnter}); got != nil {
		t.Errorf("enter on a connected row = %#v, want nil", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	want := app.ConnectMsg{Provider: models.ProviderCopilot}
	if got := send(t, m, tea.KeyMsg{Type: tea.KeyEnter}); got != want {
		t.Errorf("enter on Copilot = %#v, want %#v", got, want)
	}
}

func TestModel_ClaudeCodeEntry(t *testing.T) {
	m, state := newModel(t, services.State{})

	state.SetPendingAuthURL("https://claude.test/oauth/authorize?code=true")
	m.Update(app.ClaudeLoginStartedMsg{URL: state.GetPendingAuthURL()})

	if !m.CapturingInput() {
		t.Fatal("code input should capture keys")
	}

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "https://claude.test/oauth/authorize") {
		t.Error("view should show the authorization link")
	}

	if got := send(t, m, tea.KeyMsg{Type: tea.KeyEnter}); got != nil {
		t.Errorf("empty code submitted %#v", got)
	}

	for _, r := range "abc#xyz" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	got := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if want := (app.SubmitCodeMsg{Code: "abc#xyz"}); got != want {
		t.Errorf("msg = %#v, want %#v", got, want)
	}
	if m.CapturingInput() {
		t.Error("input should close after submitting")
	}
}

func TestModel_ClaudeCodeEntryCancel(t *testing.T) {
	m, state := newModel(t, services.State{})

	state.SetPendingAuthURL("https://claude.test/oauth/authorize")
	m.Update(app.ClaudeLoginStartedMsg{URL: state.GetPendingAuthURL()})

	// Global keys land in the input while it is focused.
	m.Update(runeKey("q"))
	if got := m.codeInput.Value(); got != "q" {
		t.Errorf("input = %q, want q", got)
	}

	copied := send(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if want := (app.CopyToClipboardMsg{Text: "https://claude.test/oauth/authorize", Label: "authorization link"}); copied != want {
		t.Errorf("copy = %#v, want %#v", copied, want)
	}

	got := send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if want := (app.CancelLoginMsg{Provider: models.ProviderClaude}); got != want {
		t.Errorf("msg = %#v, want %#v", got, want)
	}
	if m.CapturingInput() {
		t.Error("input should close after cancel")
	}
}

func TestModel_ClaudeCodeEntryClosesWhenFlowEnds(t *testing.T) {
	m, state := newModel(t, services.State{})

	state.SetPendingAuthURL("https://claude.test/oauth/authorize")
	m.Update(app.ClaudeLoginStartedMsg{URL: state.GetPendingAuthURL()})

	state.ApplyEvent(services.AuthChangedEvent{
		Status: models.AuthStatus{Provider: models.ProviderClaude, Phase: models.PhaseIdle},
	})
	m.Update(app.ServiceEventMsg{})

	if m.CapturingInput() {
		t.Error("input should close once the pending URL is cleared")
	}
}

func TestModel_LoginStartFailedKeepsInputClosed(t *testing.T) {
	m, _ := newModel(t, services.State{})
	m.Update(app.ClaudeLoginStartedMsg{Error: errors.New("boom")})
	if m.CapturingInput() {
		t.Error("failed login start should not open the input")
	}
}

func TestModel_DeviceLogin(t *testing.T) {
	snapshot := services.State{
		CopilotAuth: models.AuthStatus{
			Provider: models.ProviderCopilot,
			Phase:    models.PhasePolling,
			Session: &models.DeviceSession{
				UserCode:        "WDJB-MJHT",
				VerificationURL: "https://github.com/login/device",
				ExpiresAt:       time.Now().Add(15 * time.Minute),
			},
		},
	}
	m, _ := newModel(t, snapshot)

	view := ansi.Strip(m.View())
	for _, want := range []string{"WDJB-MJHT", "https://github.com/login/device", "Code expires in", "◐ waiting for GitHub"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	if got, want := send(t, m, runeKey("y")), (app.CopyToClipboardMsg{Text: "WDJB-MJHT", Label: "GitHub code"}); got != want {
		t.Errorf("copy = %#v, want %#v", got, want)
	}

	if got, want := send(t, m, tea.KeyMsg{Type: tea.KeyEsc}), (app.CancelLoginMsg{Provider: models.ProviderCopilot}); got != want {
		t.Errorf("esc = %#v, want %#v", got, want)
	}
}

func TestModel_CopyWithNothingPending(t *testing.T) {
	m, _ := newModel(t, services.State{})
	if got := send(t, m, runeKey("y")); got != nil {
		t.Errorf("copy = %#v, want nil", got)
	}
	if got := send(t, m, tea.KeyMsg{Type: tea.KeyEsc}); got != nil {
		t.Errorf("esc = %#v, want nil", got)
	}
}

func TestModel_Disconnect(t *testing.T) {
	t.Run("Confirm", func(t *testing.T) {
		m, _ := newModel(t, connectedClaude())

		if got := send(t, m, runeKey("d")); got != nil {
			t.Errorf("d = %#v, want nil", got)
		}
		if !m.confirmDisconnect || !m.CapturingInput() {
			t.Fatal("d should open the confirmation")
		}
		if view := ansi.Strip(m.View()); !strings.Contains(view, "Disconnect?") {
			t.Error("view should show the confirmation")
		}

		got := send(t, m, runeKey("y"))
		if want := (app.DisconnectMsg{Provider: models.ProviderClaude}); got != want {
			t.Errorf("msg = %#v, want %#v", got, want)
		}
		if m.confirmDisconnect {
			t.Error("confirmation should close")
		}
	})

	t.Run("Decline", func(t *testing.T) {
		m, _ := newModel(t, connectedClaude())
		m.Update(runeKey("d"))
		if got := send(t, m, runeKey("n")); got != nil {
			t.Errorf("n = %#v, want nil", got)
		}
		if m.confirmDisconnect {
			t.Error("confirmation should close")
		}
	})

	t.Run("NotConnected", func(t *testing.T) {
		m, _ := newModel(t, connectedClaude())
		m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m.Update(runeKey("d"))
		if m.confirmDisconnect {
			t.Error("disconnecting an unconnected provider should do nothing")
		}
	})
}

func TestModel_LoginError(t *testing.T) {
	snapshot := services.State{
		ClaudeAuth: models.AuthStatus{Provider: models.ProviderClaude, Error: "authorization denied"},
	}
	m, _ := newModel(t, snapshot)

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "authorization denied") || !strings.Contains(view, "✗ login failed") {
		t.Error("view should show the login error")
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		want   string
		status models.AuthStatus
	}{
		{status: models.AuthStatus{}, want: "○ not connected"},
		{status: models.AuthStatus{Connected: true}, want: "● connected"},
		{status: models.AuthStatus{Phase: models.PhaseAwaitingCode}, want: "◐ waiting for code"},
		{status: models.AuthStatus{Phase: models.PhaseExchanging}, want: "◐ exchanging code"},
		{status: models.AuthStatus{Phase: models.PhaseRequesting}, want: "◐ requesting code"},
		{status: models.AuthStatus{Error: "x"}, want: "✗ login failed"},
	}

	for _, tt := range tests {
		if got := statusText(tt.status); got != tt.want {
			t.Errorf("statusText(%+v) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		want string
		p    float64
	}{
		{p: 0, want: "0%"},
		{p: 0.4, want: "<1%"},
		{p: 42.4, want: "42%"},
		{p: 130, want: "100%"},
	}

	for _, tt := range tests {
		if got := formatPercent(tt.p); got != tt.want {
			t.Errorf("formatPercent(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestModel_Help(t *testing.T) {
	m, _ := newModel(t, services.State{})
	if len(m.ShortHelp()) == 0 || len(m.FullHelp()) == 0 {
		t.Error("help should not be empty")
	}
}
