package usage

import "time"

// ShouldReset reports whether the monthly reset boundary has been crossed
// since lastReset. A zero lastReset means nothing has ever been reset and
// yields false. The decision is pure; the caller applies the reset and
// persists the new lastReset.
//
// A reset is due when either the calendar month changed and today is at or
// past the reset day, or the month is unchanged but the previous reset
// happened before this month's boundary and today is at or past it (the
// reset day setting moved later within the month).
func ShouldReset(resetDay int, lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return false
	}

	day := effectiveResetDay(resetDay, now)
	sameMonth := lastReset.Year() == now.Year() && lastReset.Month() == now.Month()

	if !sameMonth {
		return now.Day() >= day
	}

	return lastReset.Day() < day && now.Day() >= day
}

// NextResetDate returns the next reset boundary after now, at midnight in
// now's location. Reset days beyond the end of a month clamp to that
// month's last day, so resetDay 31 fires on April 30.
func NextResetDate(resetDay int, now time.Time) time.Time {
	day := effectiveResetDay(resetDay, now)
	if now.Day() < day {
		return time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	}

	next := now.AddDate(0, 1, -now.Day()+1) // first of next month
	day = effectiveResetDay(resetDay, next)
	return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, now.Location())
}

// effectiveResetDay clamps the configured reset day to the number of days
// in the month containing t.
func effectiveResetDay(resetDay int, t time.Time) int {
	if resetDay < 1 {
		resetDay = 1
	}
	last := daysIn(t.Year(), t.Month())
	if resetDay > last {
		return last
	}
	return resetDay
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
