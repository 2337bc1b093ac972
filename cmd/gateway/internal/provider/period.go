package provider

import (
	"strings"
	"time"
)

const DefaultPeriod = "1mo"

// periodStart resolves a Yahoo style period ("5d", "1mo", "ytd", "max") to the
// first instant of the window ending at now.
func periodStart(period string, now time.Time) (time.Time, bool) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1d":
		return now.AddDate(0, 0, -1), true
	case "5d":
		return now.AddDate(0, 0, -5), true
	case "", "1mo":
		return now.AddDate(0, -1, 0), true
	case "3mo":
		return now.AddDate(0, -3, 0), true
	case "6mo":
		return now.AddDate(0, -6, 0), true
	case "1y":
		return now.AddDate(-1, 0, 0), true
	case "2y":
		return now.AddDate(-2, 0, 0), true
	case "5y":
		return now.AddDate(-5, 0, 0), true
	case "10y":
		return now.AddDate(-10, 0, 0), true
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	case "max":
		return time.Unix(0, 0).In(now.Location()), true
	}
	return time.Time{}, false
}
