// Package version provides build version information and runtime metadata.
package version

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	// These are set via ldflags at build time
	Version = ""
	Commit  = ""
	Date    = ""

	once sync.Once

	// ldflags values captured before any git fallback ran.
	buildVersion = Version
	buildCommit  = Commit
	buildDate    = Date

	// git runs a git subcommand in the working directory and returns its
	// trimmed output.
	git = runGit
)

// gitTimeout bounds each git invocation.
const gitTimeout = 2 * time.Second

func ensureInitialized() {
	once.Do(func() {
		if Date == "" {
			Date = time.Now().Format("2006-01-02")
		}
		if Commit == "" {
			Commit = getGitCommit()
		}
		if Version == "" {
			Version = getGitVersion()
		}
	})
}

// Reset clears the resolved values so the next accessor resolves them again.
func Reset() {
	once = sync.Once{}
	Version = buildVersion
	Commit = buildCommit
	Date = buildDate
}

func runGit(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func gitOr(fallback string, args ...string) string {
	out, err := git(args...)
	if err != nil || out == "" {
		return fallback
	}
	return out
}

func getGitCommit() string {
	return gitOr("unknown", "rev-parse", "--short", "HEAD")
}

func getGitVersion() string {
	return gitOr("dev", "describe", "--tags", "--abbrev=0")
}

// GetVersion returns the release version, "dev" outside a tagged checkout.
func GetVersion() string {
	ensureInitialized()
	return Version
}

// GetCommit returns the commit the binary was built from.
func GetCommit() string {
	ensureInitialized()
	return Commit
}

// GetDate returns the build date.
func GetDate() string {
	ensureInitialized()
	return Date
}

// UserAgent returns the User-Agent sent on outgoing requests.
func UserAgent() string {
	return "codequota/" + strings.TrimPrefix(GetVersion(), "v")
}

// Info returns a one-line description of the build.
func Info() string {
	ensureInitialized()
	return fmt.Sprintf("codequota %s (commit: %s, built: %s, %s/%s)",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
