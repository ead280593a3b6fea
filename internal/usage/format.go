package usage

import "fmt"

// FormatMinutes formats a minute count for display, e.g. "3h 45m".
func FormatMinutes(minutes int) string {
	hours := minutes / 60
	mins := minutes % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
