package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/codequota/internal/ui/styles"
)

// LoadingSpinner is a dot spinner followed by a muted label.
type LoadingSpinner struct {
	spinner    spinner.Model
	label      string
	labelStyle lipgloss.Style
}

// NewSpinner creates a spinner whose default label is label.
func NewSpinner(label string) LoadingSpinner {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Primary)),
	)

	return LoadingSpinner{
		spinner:    s,
		label:      label,
		labelStyle: lipgloss.NewStyle().Foreground(styles.TextSecondary),
	}
}

// Init starts the tick chain.
func (l LoadingSpinner) Init() tea.Cmd {
	return l.spinner.Tick
}

// Update advances the animation on the spinner's own ticks.
func (l LoadingSpinner) Update(msg tea.Msg) (LoadingSpinner, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

// View renders the spinner glyph alone.
func (l LoadingSpinner) View() string {
	return l.spinner.View()
}

// ViewWithLabel renders the spinner with its default label.
func (l LoadingSpinner) ViewWithLabel() string {
	return l.ViewWith(l.label)
}

// ViewWith renders the spinner with label in place of the default one.
func (l LoadingSpinner) ViewWith(label string) string {
	return l.spinner.View() + " " + l.labelStyle.Render(label)
}

// RenderSpinnerCentered renders a labelled spinner centered in width x height.
func RenderSpinnerCentered(s LoadingSpinner, width, height int) string {
	return styles.CenterBoth(s.ViewWithLabel(), width, height)
}
