package quota

import (
	"fmt"
	"time"
)

// FormatUpdatedAgo describes how long ago lastUpdated was, as of now.
func FormatUpdatedAgo(lastUpdated, now time.Time) string {
	if lastUpdated.IsZero() {
		return "never"
	}

	elapsed := now.Sub(lastUpdated)
	if elapsed < 5*time.Second {
		return "just now"
	}

	if elapsed < time.Minute {
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	}

	if elapsed < time.Hour {
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	}

	return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
}
