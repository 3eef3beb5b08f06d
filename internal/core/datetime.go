package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	isoDateLayout     = "2006-01-02"
	displayDateLayout = "02/01/2006"
	clockLayout       = "15:04:05"
	shortClockLayout  = "15:04"
)

// FormatDate turns an API date (2024-03-01) into its display form (01/03/2024).
func FormatDate(iso string) (string, error) {
	t, err := time.Parse(isoDateLayout, strings.TrimSpace(iso))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, iso)
	}
	return t.Format(displayDateLayout), nil
}

// ParseDisplayDate parses a DD/MM/YYYY date in UTC.
func ParseDisplayDate(s string) (time.Time, error) {
	t, err := time.Parse(displayDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DisplayToISODate converts DD/MM/YYYY to YYYY-MM-DD.
func DisplayToISODate(s string) (string, error) {
	t, err := ParseDisplayDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(isoDateLayout), nil
}

// FormatTime turns an API time (14:30:00) into its display form (14h30).
func FormatTime(clock string) (string, error) {
	t, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02dh%02d", t.Hour(), t.Minute()), nil
}

// ParseClock accepts HH:MM:SS (fractional seconds allowed) or HH:MM.
func ParseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(clockLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(shortClockLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// ParseDuration parses a service duration written as HH:MM:SS or HH:MM.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// ISOWeek returns the ISO-8601 week number (weeks start on Monday and
// week 1 contains the year's first Thursday).
func ISOWeek(t time.Time) int {
	_, w := t.ISOWeek()
	return w
}
