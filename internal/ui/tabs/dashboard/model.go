// Package dashboard provides the usage overview tab.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/codequota/internal/app"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/ui/components"
	"github.com/j-veylop/codequota/internal/ui/styles"
)

const animationDuration = 1.5 // seconds

type animationTickMsg time.Time

func animationTickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*40, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// keyMap defines the key bindings specific to the dashboard tab.
type keyMap struct {
	RefreshClaude  key.Binding
	RefreshCopilot key.Binding
	Connect        key.Binding
	ScrollUp       key.Binding
	ScrollDown     key.Binding
}

// defaultKeyMap returns the default key bindings for the dashboard tab.
func defaultKeyMap() keyMap {
	return keyMap{
		RefreshClaude: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "refresh Claude"),
		),
		RefreshCopilot: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "refresh Copilot"),
		),
		Connect: key.NewBinding(
			key.WithKeys("a", "enter"),
			key.WithHelp("a", "manage accounts"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
	}
}

// AnimationState tracks the state of an animation.
type AnimationState struct {
	StartTime      time.Time
	CurrentPercent float64
	TargetPercent  float64
	StartPercent   float64
}

// Model represents the dashboard tab state.
type Model struct {
	state          *app.State
	animations     map[models.Metric]*AnimationState
	now            func() time.Time
	spinner        components.LoadingSpinner
	keys           keyMap
	viewport       viewport.Model
	usageBar       components.UsageBar
	width          int
	height         int
	animationFrame int
	ticking        bool
}

// New creates a new dashboard model.
func New(state *app.State) *Model {
	return &Model{
		state:      state,
		spinner:    components.NewSpinner("Loading usage..."),
		usageBar:   components.NewUsageBar(),
		keys:       defaultKeyMap(),
		viewport:   viewport.New(0, 0),
		animations: make(map[models.Metric]*AnimationState),
		now:        time.Now,
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	m.ticking = true
	return tea.Batch(m.spinner.Init(), animationTickCmd())
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case animationTickMsg:
		cmds = append(cmds, m.handleAnimationTick(msg))

	case app.ServiceEventMsg, app.StateLoadedMsg:
		animating := m.syncAnimationTargets(m.now())
		if (animating || m.state.AnyLoading()) && !m.ticking {
			m.ticking = true
			cmds = append(cmds, animationTickCmd())
		}

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleAnimationTick(msg animationTickMsg) tea.Cmd {
	m.animationFrame++
	now := time.Time(msg)

	m.syncAnimationTargets(now)
	m.stepAnimations(now)

	if m.animating() || m.state.AnyLoading() {
		return animationTickCmd()
	}
	m.ticking = false
	return nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.RefreshClaude):
		return func() tea.Msg { return app.RefreshMsg{Provider: models.ProviderClaude} }
	case key.Matches(msg, m.keys.RefreshCopilot):
		return func() tea.Msg { return app.RefreshMsg{Provider: models.ProviderCopilot} }
	case key.Matches(msg, m.keys.Connect):
		return func() tea.Msg { return app.TabSwitchMsg{Tab: app.TabAccounts} }
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
}

// SetSize sets the available size for the dashboard.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-styles.DocStyle.GetHorizontalFrameSize(), 0)
	m.viewport.Height = max(height-styles.DocStyle.GetVerticalFrameSize(), 0)
}

// syncAnimationTargets points every loaded metric at its latest value. It
// reports whether any bar still has to move.
func (m *Model) syncAnimationTargets(now time.Time) (animating bool) {
	snapshot := m.state.Services()

	for _, metric := range models.AllMetrics {
		percent, ok := snapshot.MetricPercent(metric)
		if !ok {
			delete(m.animations, metric)
			continue
		}
		if m.updateAnimationState(metric, percent, now) {
			animating = true
		}
	}

	return animating
}

func (m *Model) updateAnimationState(metric models.Metric, target float64, now time.Time) bool {
	state, exists := m.animations[metric]
	if !exists {
		state = &AnimationState{StartTime: now}
		m.animations[metric] = state
	}

	if target != state.TargetPercent {
		state.StartPercent = state.CurrentPercent
		state.TargetPercent = target
		state.StartTime = now
	}

	return state.CurrentPercent != state.TargetPercent
}

func (m *Model) stepAnimations(now time.Time) {
	for _, state := range m.animations {
		if state.CurrentPercent == state.TargetPercent {
			continue
		}

		elapsed := now.Sub(state.StartTime).Seconds()
		if elapsed >= animationDuration {
			state.CurrentPercent = state.TargetPercent
			continue
		}

		progress := elapsed / animationDuration
		ease := 1.0 - (1.0-progress)*(1.0-progress)
		state.CurrentPercent = state.StartPercent + (state.TargetPercent-state.StartPercent)*ease
	}
}

func (m *Model) animating() bool {
	for _, state := range m.animations {
		if state.CurrentPercent != state.TargetPercent {
			return true
		}
	}
	return false
}

// displayPercent returns the animated value of metric, or its target when
// no animation is tracked.
func (m *Model) displayPercent(metric models.Metric, target float64) float64 {
	if state, ok := m.animations[metric]; ok {
		return state.CurrentPercent
	}
	return target
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.RefreshClaude,
		m.keys.RefreshCopilot,
		m.keys.Connect,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.RefreshClaude, m.keys.RefreshCopilot},
		{m.keys.Connect},
		{m.keys.ScrollUp, m.keys.ScrollDown},
	}
}
