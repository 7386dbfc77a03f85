// Package main is the entry point for codequota. Without a subcommand it
// runs the Bubble Tea dashboard; the subcommands cover scripting use.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/codequota/internal/app"
	"github.com/j-veylop/codequota/internal/config"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/services"
	"github.com/j-veylop/codequota/internal/ui/tabs/accounts"
	"github.com/j-veylop/codequota/internal/ui/tabs/dashboard"
	"github.com/j-veylop/codequota/internal/ui/tabs/info"
	"github.com/j-veylop/codequota/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "codequota",
		Short: "Terminal monitor for Claude and GitHub Copilot subscription quotas",
		Long: `codequota tracks the Claude 5-hour and weekly windows and the monthly
GitHub Copilot premium request allowance.

Configuration is read from the first .env file found in the current
directory, ~/.config/codequota/.env or ~/.codequota/.env, then from the
environment (DATABASE_PATH, CREDENTIAL_STORE, CREDENTIALS_PATH,
CLAUDE_REFRESH_INTERVAL, COPILOT_REFRESH_INTERVAL, NOTIFY_ENABLED,
NOTIFY_THRESHOLD, LOG_LEVEL, LOG_PATH).`,
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runDashboard(cfg)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(
		newStatusCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newVersionCommand(),
	)

	return root
}

// runDashboard runs the TUI until the user quits.
func runDashboard(cfg *config.Config) error {
	// The alternate screen owns stderr, so logs go to a file.
	logFile, err := openLogFile(cfg.LogPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.Configure(logFile, logger.ParseLevel(cfg.LogLevel))

	mgr, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	mgr.StartAutoRefresh()

	state := app.NewState()
	model := app.NewModel(mgr, state)
	model.SetTabs([]app.Tab{
		dashboard.New(state),
		accounts.New(state),
		info.New(state, cfg),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-sigChan
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func openLogFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
