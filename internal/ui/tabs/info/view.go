package info

import (
	"fmt"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/config"
	"github.com/j-veylop/codequota/internal/ui/styles"
	"github.com/j-veylop/codequota/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	var sections []string

	sections = append(sections, m.renderTitle())
	sections = append(sections, m.renderConfigCard())
	sections = append(sections, m.renderAboutCard())

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	m.viewport.SetContent(content)

	return styles.DocStyle.Render(m.viewport.View())
}

// renderTitle renders the info tab title.
func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration and application information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.viewport.Width-2, 50), 90)
}

// renderConfigCard renders the configuration card.
func (m *Model) renderConfigCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Configuration"))
	rows = append(rows, "")

	if cfg := m.config; cfg != nil {
		rows = append(rows, m.renderConfigRow("Credential Store", cfg.CredentialStore))
		if cfg.CredentialStore == config.StoreFile {
			rows = append(rows, m.renderConfigRow("Credentials File", cfg.CredentialsPath))
		} else {
			rows = append(rows, m.renderConfigRow("Database", cfg.DatabasePath))
		}
		rows = append(rows, m.renderConfigRow("Log File", orDefault(cfg.LogPath, "stderr")))
		rows = append(rows, m.renderConfigRow("Log Level", orDefault(cfg.LogLevel, "info")))
		rows = append(rows, "")
		rows = append(rows, m.renderConfigRow("Claude Refresh", formatInterval(cfg.ClaudeRefreshInterval)))
		rows = append(rows, m.renderConfigRow("Copilot Refresh", formatInterval(cfg.CopilotRefreshInterval)))
		rows = append(rows, m.renderConfigRow("Notifications", notifyText(cfg)))
	} else {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
	}

	rows = append(rows, "")
	rows = append(rows, styles.HelpStyle.Render("Press 'y' to copy the credentials path"))

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

// renderConfigRow renders a configuration key-value row.
func (m *Model) renderConfigRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

// renderAboutCard renders the version information card.
func (m *Model) renderAboutCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("About codequota"))
	rows = append(rows, "")

	rows = append(rows, m.renderConfigRow("Version", version.GetVersion()))
	rows = append(rows, m.renderConfigRow("Build Date", version.GetDate()))
	rows = append(rows, m.renderConfigRow("Git Commit", version.GetCommit()))
	rows = append(rows, m.renderConfigRow("User Agent", version.UserAgent()))
	rows = append(rows, m.renderConfigRow("Go Version", runtime.Version()))
	rows = append(rows, m.renderConfigRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)))
	rows = append(rows, "")

	snapshot := m.state.Services()
	connected := 0
	for _, status := range []bool{snapshot.ClaudeAuth.Connected, snapshot.CopilotAuth.Connected} {
		if status {
			connected++
		}
	}
	rows = append(rows, fmt.Sprintf("Connected providers: %s",
		styles.InfoTextStyle.Render(fmt.Sprintf("%d", connected))))

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "manual"
	}
	return "every " + d.String()
}

func notifyText(cfg *config.Config) string {
	if !cfg.NotifyEnabled {
		return "off"
	}
	return fmt.Sprintf("at %.0f%% utilization", cfg.NotifyThreshold)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
