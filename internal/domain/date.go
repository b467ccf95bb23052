package domain

import (
	"fmt"
	"time"
)

// DayFormat is the canonical day representation used for price snapshots
// and derived series keys. ISO dates compare correctly as strings, which
// the ledger relies on for range scans.
const DayFormat = "2006-01-02"

// DayOf truncates a timestamp to its calendar day in UTC.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD string into a midnight-UTC time.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return t, nil
}

// NextDay returns the day after the given YYYY-MM-DD day.
func NextDay(day string) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return DayOf(t.AddDate(0, 0, 1)), nil
}

// DaysBetween returns every calendar day from first to last inclusive,
// in ascending order. Returns nil if last is before first.
func DaysBetween(first, last string) ([]string, error) {
	start, err := ParseDay(first)
	if err != nil {
		return nil, err
	}
	end, err := ParseDay(last)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, nil
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, DayOf(d))
	}
	return days, nil
}
