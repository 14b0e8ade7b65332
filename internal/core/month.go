package core

import (
	"fmt"
	"regexp"
	"time"
)

const monthLayout = "2006-01"

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// MonthKey buckets a timestamp into its YYYY-MM month, in the process-local
// time zone.
func MonthKey(t time.Time) string {
	return t.In(time.Local).Format(monthLayout)
}

// CurrentMonth returns the month key for now.
func CurrentMonth() string {
	return MonthKey(time.Now())
}

// ValidateMonth checks the YYYY-MM shape and the month range.
func ValidateMonth(month string) error {
	if !monthPattern.MatchString(month) {
		return fmt.Errorf("%w: %q must be in YYYY-MM format", ErrInvalidMonth, month)
	}
	if _, err := time.ParseInLocation(monthLayout, month, time.Local); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return nil
}

// ParseMonth returns midnight on the first day of month, local time.
func ParseMonth(month string) (time.Time, error) {
	if err := ValidateMonth(month); err != nil {
		return time.Time{}, err
	}
	t, _ := time.ParseInLocation(monthLayout, month, time.Local)
	return t, nil
}

// PreviousMonth returns the calendar month immediately before month.
func PreviousMonth(month string) (string, error) {
	t, err := ParseMonth(month)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, -1, 0).Format(monthLayout), nil
}

// MonthLabel renders a month key as "January 2006". Invalid keys are
// returned unchanged.
func MonthLabel(month string) string {
	t, err := ParseMonth(month)
	if err != nil {
		return month
	}
	return t.Format("January 2006")
}

// ShortMonthLabel renders a month key as "Jan 2006".
func ShortMonthLabel(month string) string {
	t, err := ParseMonth(month)
	if err != nil {
		return month
	}
	return t.Format("Jan 2006")
}

// ParseDate accepts a calendar date (2006-01-02, local midnight) or an
// RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
