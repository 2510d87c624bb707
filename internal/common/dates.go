// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// BaselineDateFormat is the wire format for baseline dates.
const BaselineDateFormat = "2006-01-02"

// ParseBaselineDate parses a baseline date string. An empty string means
// "as of now" and resolves to today's UTC date.
func ParseBaselineDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return DateOnly(now.UTC()), nil
	}
	parsed, err := time.Parse(BaselineDateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", value, err)
	}
	return DateOnly(parsed), nil
}

// DateOnly truncates a time to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsHistoricalDate reports whether the baseline date falls strictly before
// today's UTC date. Today and future dates count as realtime.
func IsHistoricalDate(date time.Time, now time.Time) bool {
	return DateOnly(date).Before(DateOnly(now))
}

// IsTradingDay reports whether the date is a US trading day: a weekday
// that is not in the holiday list. Holidays are compared by calendar date.
func IsTradingDay(t time.Time, holidays []time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	tDate := DateOnly(t)
	for _, h := range holidays {
		if tDate.Equal(DateOnly(h)) {
			return false
		}
	}
	return true
}

// LastTradingDay returns the most recent trading day on or before the given
// date, walking backwards up to 10 calendar days (covers long holiday runs).
func LastTradingDay(t time.Time, holidays []time.Time) time.Time {
	current := DateOnly(t)
	for i := 0; i < 10; i++ {
		if IsTradingDay(current, holidays) {
			return current
		}
		current = current.AddDate(0, 0, -1)
	}
	return DateOnly(t)
}

// PreviousTradingDay returns the nearest trading day strictly before the
// given date.
func PreviousTradingDay(t time.Time, holidays []time.Time) time.Time {
	return LastTradingDay(DateOnly(t).AddDate(0, 0, -1), holidays)
}

// TradingDaysBack walks backwards from the given date, one trading day at a
// time, and returns the dates visited (most recent first). The starting date
// itself is included when it is a trading day. Used to probe nearby sessions
// when a vendor has no bar for the exact requested date.
func TradingDaysBack(t time.Time, n int, holidays []time.Time) []time.Time {
	dates := make([]time.Time, 0, n)
	current := LastTradingDay(t, holidays)
	for i := 0; i < n; i++ {
		dates = append(dates, current)
		current = PreviousTradingDay(current, holidays)
	}
	return dates
}
