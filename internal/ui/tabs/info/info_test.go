package info

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/codequota/internal/app"
	"github.com/j-veylop/codequota/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		CredentialStore:        config.StoreSQLite,
		DatabasePath:           "/tmp/codequota/codequota.db",
		CredentialsPath:        "/tmp/codequota/credentials.json",
		LogLevel:               "debug",
		ClaudeRefreshInterval:  30 * time.Second,
		CopilotRefreshInterval: 2 * time.Minute,
		NotifyEnabled:          true,
		NotifyThreshold:        95,
	}
}

func TestNew(t *testing.T) {
	m := New(app.NewState(), testConfig())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() != nil {
		t.Error("Init should return nil")
	}
}

func TestModel_View(t *testing.T) {
	m := New(app.NewState(), testConfig())
	m.SetSize(100, 60)

	view := ansi.Strip(m.View())
	for _, want := range []string{
		"Configuration",
		"sqlite",
		"/tmp/codequota/codequota.db",
		"every 30s",
		"every 2m0s",
		"at 95% utilization",
		"stderr",
		"User Agent",
		"codequota/",
		"Connected providers: 0",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "credentials.json") {
		t.Error("sqlite store should not show the credentials file")
	}
}

func TestModel_ViewWithoutConfig(t *testing.T) {
	m := New(app.NewState(), nil)
	m.SetSize(80, 40)

	if view := m.View(); !strings.Contains(view, "Configuration not loaded") {
		t.Error("view should say the configuration is missing")
	}
}

func TestModel_Copy(t *testing.T) {
	tests := []struct {
		cfg  *config.Config
		name string
		want string
	}{
		{name: "SQLite", cfg: testConfig(), want: "/tmp/codequota/codequota.db"},
		{
			name: "File",
			cfg: func() *config.Config {
				cfg := testConfig()
				cfg.CredentialStore = config.StoreFile
				return cfg
			}(),
			want: "/tmp/codequota/credentials.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(app.NewState(), tt.cfg)
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
			if cmd == nil {
				t.Fatal("expected a copy command")
			}
			msg, ok := cmd().(app.CopyToClipboardMsg)
			if !ok || msg.Text != tt.want {
				t.Errorf("msg = %#v, want text %q", msg, tt.want)
			}
		})
	}

	m := New(app.NewState(), nil)
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}); cmd != nil {
		t.Error("copy without config should do nothing")
	}
}

func TestFormatInterval(t *testing.T) {
	if got := formatInterval(0); got != "manual" {
		t.Errorf("formatInterval(0) = %q", got)
	}
	if got := formatInterval(time.Minute); got != "every 1m0s" {
		t.Errorf("formatInterval(1m) = %q", got)
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState(), testConfig())
	if len(m.ShortHelp()) == 0 || len(m.FullHelp()) == 0 {
		t.Error("help should not be empty")
	}
}
