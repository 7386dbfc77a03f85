package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
	"github.com/j-veylop/codequota/internal/ui/components"
	"github.com/j-veylop/codequota/internal/ui/styles"
)

const (
	fiveHourWindow = 5 * time.Hour
	weeklyWindow   = 7 * 24 * time.Hour
)

// View renders the dashboard component.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return m.renderLoading()
	}

	snapshot := m.state.Services()
	cardWidth := max(m.viewport.Width-2, 40)

	sections := []string{
		m.renderTitle(snapshot.Metric),
		m.renderClaudeCard(snapshot, cardWidth),
		"",
		m.renderCopilotCard(snapshot, cardWidth),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	m.viewport.SetContent(content)

	return styles.DocStyle.Render(m.viewport.View())
}

// renderLoading renders the loading state.
func (m *Model) renderLoading() string {
	return components.RenderSpinnerCentered(m.spinner, m.width, m.height)
}

// renderTitle renders the dashboard title and the menu bar metric.
func (m *Model) renderTitle(metric models.Metric) string {
	title := styles.TitleStyle.Render("Usage")
	subtitle := styles.HelpStyle.Render("Claude and Copilot subscription quotas")

	selected := fmt.Sprintf("%s %s",
		styles.HelpStyle.Render("Menu bar:"),
		styles.SelectedMetricStyle.Render(metric.ShortName()+" "+metric.DisplayName()),
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "", selected, "")
}

func cardHeader(provider models.Provider, updated string) string {
	icon := lipgloss.NewStyle().Foreground(styles.ProviderColor(provider)).Render("◈")
	header := fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render(provider.DisplayName()))
	if updated != "" {
		header += "  " + styles.HelpStyle.Render("updated "+updated)
	}
	return header
}

func divider(cardWidth int) string {
	dividerWidth := max(cardWidth-8, 20)
	return lipgloss.NewStyle().Foreground(styles.Subtle).Render(
		"  ├" + strings.Repeat("─", dividerWidth) + "┤",
	)
}

func (m *Model) renderClaudeCard(snapshot services.State, cardWidth int) string {
	claude := snapshot.Claude
	contentWidth := max(cardWidth-8, 20)

	updated := ""
	if claude.State.Kind != models.StateNotConnected {
		updated = claude.LastUpdateText
	}

	rows := []string{cardHeader(models.ProviderClaude, updated), ""}
	if name := snapshot.ClaudeAuth.Username; name != "" {
		rows = append(rows, "  "+styles.HelpStyle.Render(name), "")
	}

	switch claude.State.Kind {
	case models.StateNotConnected:
		rows = append(rows, m.renderNotConnected("c")...)
	case models.StateLoading:
		for _, label := range []string{"5-Hour", "Weekly", "Weekly Sonnet"} {
			rows = append(rows, "  "+components.LoadingBar(label, styles.Claude, contentWidth, m.animationFrame))
		}
	case models.StateError:
		rows = append(rows, renderError(claude.State.Message))
	default:
		usage := claude.State.Usage
		now := m.now()
		buckets := []struct {
			metric models.Metric
			label  string
			bucket models.UsageBucket
			window time.Duration
		}{
			{models.MetricClaudeFiveHour, "5-Hour", usage.FiveHour, fiveHourWindow},
			{models.MetricClaudeWeeklyAll, "Weekly", usage.WeeklyAll, weeklyWindow},
			{models.MetricClaudeWeeklyModel, "Weekly Sonnet", usage.WeeklyModel, weeklyWindow},
		}

		for i, b := range buckets {
			rows = append(rows,
				m.selectionMarker(snapshot.Metric, b.metric)+
					components.SimpleUsageBar(m.displayPercent(b.metric, b.bucket.Percent), b.label, contentWidth),
				"  "+components.WindowBar(b.bucket, b.window, now, contentWidth),
			)
			if i < len(buckets)-1 {
				rows = append(rows, "")
			}
		}
	}

	rows = append(rows, "")

	return styles.CardStyle.Width(cardWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderCopilotCard(snapshot services.State, cardWidth int) string {
	copilot := snapshot.Copilot
	contentWidth := max(cardWidth-8, 20)

	updated := ""
	if copilot.State.Kind != models.StateNotConnected {
		updated = copilot.LastUpdateText
	}

	rows := []string{cardHeader(models.ProviderCopilot, updated), ""}
	if name := snapshot.CopilotAuth.Username; name != "" {
		rows = append(rows, "  "+styles.HelpStyle.Render("@"+name), "")
	}

	switch copilot.State.Kind {
	case models.StateNotConnected:
		rows = append(rows, m.renderNotConnected("g")...)
	case models.StateLoading:
		rows = append(rows, "  "+components.LoadingBar("Premium", styles.Copilot, contentWidth, m.animationFrame))
	case models.StateError:
		rows = append(rows, renderError(copilot.State.Message))
	default:
		usage := copilot.State.Usage
		metric := models.MetricCopilotPremium

		rows = append(rows,
			m.selectionMarker(snapshot.Metric, metric)+
				m.usageBar.View(m.displayPercent(metric, usage.Percent), "Premium", contentWidth),
			"  "+renderRequestCount(usage),
		)

		if len(usage.ByModel) > 0 {
			rows = append(rows, "", divider(cardWidth), "")
			rows = append(rows, renderByModel(usage.ByModel, contentWidth)...)
		}
	}

	rows = append(rows, "")

	return styles.CardStyle.Width(cardWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) selectionMarker(selected, metric models.Metric) string {
	if selected == metric {
		return styles.FocusedStyle.Render("▸ ")
	}
	return "  "
}

func (m *Model) renderNotConnected(connectKey string) []string {
	emptyIcon := lipgloss.NewStyle().Foreground(styles.Subtle).Render("○")
	return []string{
		fmt.Sprintf("  %s %s", emptyIcon, styles.HelpStyle.Render("Not connected")),
		"",
		styles.InfoTextStyle.Render(fmt.Sprintf("  ╰─▶ Press a, then %s to connect", connectKey)),
	}
}

func renderError(message string) string {
	return fmt.Sprintf("  %s %s", styles.ErrorTextStyle.Render("✗"), styles.ErrorTextStyle.Render(message))
}

func renderRequestCount(usage models.CopilotUsage) string {
	if usage.Limit == 0 {
		return styles.HelpStyle.Render(fmt.Sprintf("%d requests used, limit unknown", usage.Used))
	}
	return styles.HelpStyle.Render(fmt.Sprintf("%d / %d requests used, %d left this month",
		usage.Used, usage.Limit, usage.Remaining()))
}

func renderByModel(counts []models.ModelCount, width int) []string {
	nameWidth := max(width-12, 10)
	lines := make([]string, 0, len(counts))

	for _, c := range counts {
		name := c.Model
		if lipgloss.Width(name) > nameWidth {
			name = name[:nameWidth-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("  %s%s",
			lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(nameWidth).Render(name),
			lipgloss.NewStyle().Foreground(styles.TextPrimary).Width(8).Align(lipgloss.Right).Render(fmt.Sprint(c.Count)),
		))
	}

	return lines
}
