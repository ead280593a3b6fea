package portal

import (
	"errors"
	"regexp"
	"strconv"
)

// ErrNoDataFound is returned when neither the primary nor the fallback
// pattern matches the page text.
var ErrNoDataFound = errors.New("portal: no usage data found in page")

// Result is the structured usage information scraped from the portal
// dashboard.
type Result struct {
	Username string
	Minutes  int
}

var (
	usernameRe = regexp.MustCompile(`(?i)Username:\s+(\w+)`)
	minutesRe  = regexp.MustCompile(`(?i)Total Use:\s+(\d+)\s*Minute`)

	// fallbackRe matches any 4-6 digit count followed by "Minute" when
	// the dashboard layout changed and the labelled pattern is gone.
	fallbackRe = regexp.MustCompile(`\b([1-9]\d{3,5})\s*Minute\b`)
)

// Extract pulls {username, minutes} out of the portal page text. The
// primary pattern needs both the "Username:" and "Total Use:" labels;
// when it fails, any plausible minute count is accepted with the username
// defaulting to "unknown".
func Extract(pageText string) (Result, error) {
	usernameMatch := usernameRe.FindStringSubmatch(pageText)
	minutesMatch := minutesRe.FindStringSubmatch(pageText)

	if minutesMatch != nil && usernameMatch != nil {
		minutes, err := strconv.Atoi(minutesMatch[1])
		if err != nil {
			return Result{}, ErrNoDataFound
		}
		return Result{Username: usernameMatch[1], Minutes: minutes}, nil
	}

	if fallback := fallbackRe.FindStringSubmatch(pageText); fallback != nil {
		minutes, err := strconv.Atoi(fallback[1])
		if err != nil {
			return Result{}, ErrNoDataFound
		}
		username := "unknown"
		if usernameMatch != nil {
			username = usernameMatch[1]
		}
		return Result{Username: username, Minutes: minutes}, nil
	}

	return Result{}, ErrNoDataFound
}
