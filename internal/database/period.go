package database

import (
	"time"
)

const dayLayout = "2006-01-02"

// GetToday returns today's date in the local time zone as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(dayLayout)
}

// FormatDayDisplay formats a day key for human-readable display,
// e.g. "Feb 06, 2026". Unparseable keys are returned unchanged.
func FormatDayDisplay(day string) string {
	d, err := time.Parse(dayLayout, day)
	if err != nil {
		return day
	}
	return d.Format("Jan 02, 2006")
}
