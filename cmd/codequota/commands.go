package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codequota/internal/config"
	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
	"github.com/j-veylop/codequota/internal/services"
	"github.com/j-veylop/codequota/internal/version"
)

// statusTimeout bounds the fetches made by the status command.
const statusTimeout = 30 * time.Second

var errLoginCanceled = errors.New("login canceled")

// withManager loads the configuration, builds a manager and runs fn with a
// context canceled on SIGINT or SIGTERM.
func withManager(fn func(ctx context.Context, mgr *services.Manager) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Configure(os.Stderr, logger.ParseLevel(cfg.LogLevel))

	mgr, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			logger.Warn("error closing services", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, mgr)
}

func newStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch and print current usage for the connected providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(func(ctx context.Context, mgr *services.Manager) error {
				ctx, cancel := context.WithTimeout(ctx, statusTimeout)
				defer cancel()

				state, fetchErr := mgr.FetchAll(ctx)
				report := buildReport(state, time.Now())

				var err error
				if asJSON {
					err = writeJSONReport(cmd.OutOrStdout(), report)
				} else {
					err = writeTextReport(cmd.OutOrStdout(), report)
				}
				return errors.Join(err, fetchErr)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "login claude|github",
		Short:     "Connect a provider account",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"claude", "github"},
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			return withManager(func(ctx context.Context, mgr *services.Manager) error {
				if provider == models.ProviderClaude {
					return loginClaude(ctx, mgr, cmd.InOrStdin(), cmd.OutOrStdout())
				}
				return loginGitHub(ctx, mgr, cmd.OutOrStdout())
			})
		},
	}
}

// loginClaude prints the authorization URL and exchanges the code read
// from in.
func loginClaude(ctx context.Context, mgr *services.Manager, in io.Reader, out io.Writer) error {
	url, err := mgr.BeginClaudeLogin()
	if err != nil {
		return fmt.Errorf("failed to start Claude login: %w", err)
	}

	fmt.Fprintf(out, "Open this link and approve access:\n\n  %s\n\nPaste the code shown after approval: ", url)

	codes := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			codes <- strings.TrimSpace(scanner.Text())
		}
		close(codes)
	}()

	var code string
	select {
	case c, ok := <-codes:
		if !ok || c == "" {
			_ = mgr.CancelLogin(models.ProviderClaude)
			return errLoginCanceled
		}
		code = c
	case <-ctx.Done():
		_ = mgr.CancelLogin(models.ProviderClaude)
		return errLoginCanceled
	}

	if err := mgr.SubmitClaudeCode(ctx, code); err != nil {
		return fmt.Errorf("claude login failed: %w", err)
	}

	fmt.Fprintln(out, "Connected to Claude.")
	return nil
}

// loginGitHub runs the device flow and waits for the user to approve it.
func loginGitHub(ctx context.Context, mgr *services.Manager, out io.Writer) error {
	events, _ := mgr.Subscribe()
	defer mgr.Unsubscribe(events)

	session, err := mgr.StartCopilotLogin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start GitHub login: %w", err)
	}

	fmt.Fprintf(out, "Open %s and enter the code:\n\n  %s\n\nWaiting for authorization...\n",
		session.VerificationURL, session.UserCode)

	status, err := waitForDeviceLogin(ctx, events)
	if err != nil {
		_ = mgr.CancelLogin(models.ProviderCopilot)
		return err
	}

	if status.Username != "" {
		fmt.Fprintf(out, "Connected to GitHub as %s.\n", status.Username)
	} else {
		fmt.Fprintln(out, "Connected to GitHub.")
	}
	return nil
}

// waitForDeviceLogin blocks until the Copilot auth client connects or the
// flow fails.
func waitForDeviceLogin(ctx context.Context, events <-chan services.ServiceEvent) (models.AuthStatus, error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return models.AuthStatus{}, errLoginCanceled
			}
			changed, isAuth := event.(services.AuthChangedEvent)
			if !isAuth || changed.Status.Provider != models.ProviderCopilot {
				continue
			}
			if changed.Status.Connected {
				return changed.Status, nil
			}
			if changed.Error != nil {
				return changed.Status, fmt.Errorf("github login failed: %w", changed.Error)
			}
			if changed.Status.Phase == models.PhaseIdle {
				return changed.Status, errLoginCanceled
			}
		case <-ctx.Done():
			return models.AuthStatus{}, errLoginCanceled
		}
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "logout [claude|github|all]",
		Short:     "Remove stored credentials",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"claude", "github", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			var targets []models.Provider
			if strings.EqualFold(target, "all") {
				targets = []models.Provider{models.ProviderClaude, models.ProviderCopilot}
			} else {
				provider, err := parseProvider(target)
				if err != nil {
					return err
				}
				targets = []models.Provider{provider}
			}

			return withManager(func(ctx context.Context, mgr *services.Manager) error {
				var errs []error
				for _, provider := range targets {
					if err := mgr.Disconnect(ctx, provider); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", provider, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Disconnected from %s.\n", provider.DisplayName())
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// parseProvider maps a command-line name to a provider. GitHub and Copilot
// name the same account.
func parseProvider(name string) (models.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "claude", "anthropic":
		return models.ProviderClaude, nil
	case "github", "copilot":
		return models.ProviderCopilot, nil
	default:
		return "", fmt.Errorf("%w: %q (want claude or github)", services.ErrUnknownProvider, name)
	}
}
