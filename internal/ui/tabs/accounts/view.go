package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/ui/styles"
)

// View renders the accounts tab.
func (m *Model) View() string {
	var sections []string

	sections = append(sections, m.renderTitle())
	sections = append(sections, m.renderTable())

	if m.confirmDisconnect {
		sections = append(sections, m.renderDisconnectConfirm())
	}

	if panel := m.renderLoginPanel(); panel != "" {
		sections = append(sections, panel)
	}

	sections = append(sections, m.renderFooter())

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	return styles.DocStyle.Render(content)
}

// renderTitle renders the accounts tab title.
func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Connections")

	connected := 0
	for _, provider := range providers {
		if m.authStatus(provider).Connected {
			connected++
		}
	}
	subtitle := styles.HelpStyle.Render(fmt.Sprintf("%d of %d providers connected", connected, len(providers)))

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

// renderTable renders the connections table.
func (m *Model) renderTable() string {
	m.updateTableData()

	cardWidth := max(m.width-8, 60)

	return styles.CardStyle.Width(cardWidth).Render(m.table.View())
}

// renderLoginPanel renders the in-progress login for whichever provider has
// one, or an empty string.
func (m *Model) renderLoginPanel() string {
	if url := m.state.GetPendingAuthURL(); url != "" {
		return m.renderClaudeLogin(url)
	}

	claude := m.authStatus(models.ProviderClaude)
	if claude.Phase == models.PhaseExchanging {
		return m.renderPanel(models.ProviderClaude, []string{
			m.spinner.ViewWith("Exchanging authorization code..."),
		})
	}

	copilot := m.authStatus(models.ProviderCopilot)
	switch copilot.Phase {
	case models.PhaseRequesting:
		return m.renderPanel(models.ProviderCopilot, []string{
			m.spinner.ViewWith("Requesting a device code from GitHub..."),
		})
	case models.PhasePolling:
		if copilot.Session != nil {
			return m.renderDeviceLogin(*copilot.Session)
		}
	}

	for _, status := range []models.AuthStatus{claude, copilot} {
		if status.Error != "" && !status.Connected && !status.InProgress() {
			return m.renderPanel(status.Provider, []string{
				styles.ErrorTextStyle.Render("✗ " + status.Error),
				"",
				styles.HelpStyle.Render("Press c or g to try again."),
			})
		}
	}

	return ""
}

func (m *Model) renderClaudeLogin(url string) string {
	inputWidth := max(m.width-20, 30)

	rows := []string{
		styles.HelpStyle.Render("1. Open this link and approve access:"),
		"",
		styles.InfoTextStyle.Render(url),
		"",
		styles.HelpStyle.Render("2. Paste the code shown after approval:"),
		styles.FocusedBorderStyle.Width(inputWidth).Render(m.codeInput.View()),
	}

	return m.renderPanel(models.ProviderClaude, rows)
}

func (m *Model) renderDeviceLogin(session models.DeviceSession) string {
	rows := []string{
		styles.HelpStyle.Render("Open " + session.VerificationURL + " and enter:"),
		"",
		styles.UserCodeStyle.Render(session.UserCode),
		"",
		m.spinner.ViewWithLabel(),
	}

	if !session.ExpiresAt.IsZero() {
		left := time.Until(session.ExpiresAt).Round(time.Second)
		rows = append(rows, styles.HelpStyle.Render(fmt.Sprintf("Code expires in %s", max(left, 0))))
	}

	return m.renderPanel(models.ProviderCopilot, rows)
}

func (m *Model) renderPanel(provider models.Provider, rows []string) string {
	cardWidth := min(max(m.width-8, 50), 100)

	icon := lipgloss.NewStyle().Foreground(styles.ProviderColor(provider)).Render("◈")
	header := fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render("Connect "+loginName(provider)))

	content := lipgloss.JoinVertical(lipgloss.Left, append([]string{header, ""}, rows...)...)

	return styles.ModalContentStyle.Width(cardWidth).Render(content)
}

func loginName(provider models.Provider) string {
	if provider == models.ProviderCopilot {
		return "GitHub"
	}
	return provider.DisplayName()
}

// renderDisconnectConfirm renders the disconnect confirmation dialog.
func (m *Model) renderDisconnectConfirm() string {
	cardWidth := 50

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		styles.WarningTextStyle.Bold(true).Render("Disconnect?"),
		"",
		"Stored credentials will be removed for:",
		styles.ErrorTextStyle.Render(loginName(m.disconnectTarget)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			styles.ButtonActiveStyle.Render(" (Y)es "),
			"  ",
			styles.ButtonInactiveStyle.Render(" (N)o "),
		),
		"",
	)

	return styles.CenterHorizontal(
		styles.ModalContentStyle.Width(cardWidth).Render(content),
		m.width,
	)
}

// renderFooter renders the footer with keyboard shortcuts.
func (m *Model) renderFooter() string {
	var shortcuts []string

	switch {
	case m.codeInput.Focused():
		shortcuts = []string{
			styles.HelpKeyStyle.Render("Enter") + " submit",
			styles.HelpKeyStyle.Render("Ctrl+Y") + " copy link",
			styles.HelpKeyStyle.Render("Esc") + " cancel",
		}
	case m.confirmDisconnect:
		shortcuts = []string{
			styles.HelpKeyStyle.Render("Y") + " confirm",
			styles.HelpKeyStyle.Render("N") + " cancel",
		}
	default:
		shortcuts = []string{
			styles.HelpKeyStyle.Render("c") + " Claude",
			styles.HelpKeyStyle.Render("g") + " GitHub",
			styles.HelpKeyStyle.Render("d") + " disconnect",
			styles.HelpKeyStyle.Render("y") + " copy",
			styles.HelpKeyStyle.Render("Esc") + " cancel",
		}
	}

	return lipgloss.NewStyle().
		MarginTop(1).
		Foreground(styles.TextMuted).
		Render(strings.Join(shortcuts, styles.HelpSeparatorStyle.Render(" | ")))
}
