// Package components provides reusable UI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/ui/styles"
)

// Gradient endpoints for utilization: empty is green, full is red.
const (
	usageLowColor  = "#51cf66"
	usageHighColor = "#ff6b6b"

	windowStartColor = "#ffd93d"
	windowEndColor   = "#6c5ce7"
)

const (
	labelWidth   = 16
	percentWidth = 6
)

// UsageBar renders a utilization progress bar with label and percentage.
type UsageBar struct {
	progress progress.Model
}

// NewUsageBar creates a usage bar with a green to red gradient.
func NewUsageBar() UsageBar {
	return UsageBar{
		progress: progress.New(
			progress.WithScaledGradient(usageLowColor, usageHighColor),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
	}
}

// View renders the bar with its label and percentage in width cells.
func (u UsageBar) View(percent float64, label string, width int) string {
	u.progress.Width = max(10, width-labelWidth-percentWidth-1)

	bar := u.progress.ViewAs(clampPercent(percent) / 100)

	percentStr := styles.UtilizationStyle(percent).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))

	labelStr := styles.ProgressLabelStyle.Width(labelWidth).Render(label)

	return lipgloss.JoinHorizontal(lipgloss.Center, labelStr, bar, " ", percentStr)
}

// ViewCompact renders a compact version without label.
func (u UsageBar) ViewCompact(percent float64, width int) string {
	u.progress.Width = max(5, width-percentWidth-2)

	bar := u.progress.ViewAs(clampPercent(percent) / 100)
	percentStr := styles.UtilizationStyle(percent).Render(fmt.Sprintf("%.0f%%", percent))

	return lipgloss.JoinHorizontal(lipgloss.Center, bar, " ", percentStr)
}

// RenderGradientBar renders just the bar part, colored by position.
func RenderGradientBar(percent float64, width int) string {
	return renderBarChars(clampPercent(percent)/100, width, usageLowColor, usageHighColor)
}

// RenderWindowBarChars renders the elapsed fraction of a quota window.
func RenderWindowBarChars(fraction float64, width int) string {
	return renderBarChars(fraction, width, windowStartColor, windowEndColor)
}

func renderBarChars(fraction float64, width int, fromHex, toHex string) string {
	if width < 1 {
		return ""
	}

	filled := min(max(int(float64(width)*fraction), 0), width)

	var b strings.Builder
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(fromHex, toHex, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Subtle).Render("░"))
		}
	}

	return b.String()
}

// SimpleUsageBar renders a label, a gradient bar and the percentage.
func SimpleUsageBar(percent float64, label string, width int) string {
	barWidth := max(5, width-labelWidth-percentWidth-3)

	labelStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(labelWidth).
		Render(label)

	percentStr := styles.UtilizationStyle(percent).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))

	return fmt.Sprintf("%s[%s] %s", labelStr, RenderGradientBar(percent, barWidth), percentStr)
}

// WindowBar renders how much of a quota window has elapsed, aligned under
// a SimpleUsageBar of the same width. The text shows the time to reset.
func WindowBar(bucket models.UsageBucket, window time.Duration, now time.Time, width int) string {
	barWidth := max(5, width-labelWidth-percentWidth-3)

	fraction := 0.0
	if bucket.ResetAt != nil && window > 0 {
		remaining := bucket.ResetAt.Sub(now)
		fraction = 1 - remaining.Seconds()/window.Seconds()
	}

	timeStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(bucket.TimeRemaining(now))

	return fmt.Sprintf("%s[%s] %s",
		strings.Repeat(" ", labelWidth),
		RenderWindowBarChars(min(max(fraction, 0), 1), barWidth),
		timeStr,
	)
}

// LoadingBar renders a shimmering placeholder bar for frame.
func LoadingBar(label string, accent lipgloss.Color, width, frame int) string {
	barWidth := max(5, width-labelWidth-percentWidth-3)

	const cycle = 120
	t := float64(frame%cycle) / float64(cycle)
	p := t * 2
	if t >= 0.5 {
		p = (1 - t) * 2
	}
	eased := p * p * (3 - 2*p)
	shimmerPos := int(eased * float64(barWidth))

	var b strings.Builder
	for i := range barWidth {
		dist := shimmerPos - i
		if dist < 0 {
			dist = -dist
		}

		switch {
		case dist < 3:
			b.WriteString(lipgloss.NewStyle().Foreground(accent).Render("▓"))
		case dist < 5:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("▒"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	dots := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	dot := lipgloss.NewStyle().
		Width(percentWidth).
		Align(lipgloss.Right).
		Foreground(accent).
		Render(dots[(frame/2)%len(dots)])

	labelStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(labelWidth).
		Render(label)

	return fmt.Sprintf("%s[%s] %s", labelStr, b.String(), dot)
}

func clampPercent(percent float64) float64 {
	return min(max(percent, 0), 100)
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
