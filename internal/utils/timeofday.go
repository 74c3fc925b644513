package utils

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	DateLayout   = "2006-01-02"
	MinutesInDay = 24 * 60
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidDate       = errors.New("invalid date")
)

var clockRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock converts "HH:MM" to minutes after midnight. "24:00" is accepted
// so that a window can run to the end of the day.
func ParseClock(s string) (int, error) {
	if s == "24:00" {
		return MinutesInDay, nil
	}
	if !clockRe.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// At combines a calendar date and a wall-clock time in loc. The result is
// the wall-clock instant, so it stays right on daylight saving changeover
// days; 24:00 is the next day's midnight.
func At(date string, minutes int, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if minutes >= MinutesInDay {
		return time.Date(d.Year(), d.Month(), d.Day()+1, 0, minutes-MinutesInDay, 0, 0, loc), nil
	}
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

// Overlaps is the half-open interval test [aStart,aEnd) ∩ [bStart,bEnd) ≠ ∅.
// Every occupancy decision in the engine goes through it.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// ParseRange parses an inclusive [from,to] date range of at most maxDays days.
func ParseRange(from, to string, maxDays int) (time.Time, time.Time, error) {
	f, err := ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	t, err := ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if t.Before(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is before %s", ErrInvalidDate, to, from)
	}
	if days := int(t.Sub(f).Hours()/24) + 1; maxDays > 0 && days > maxDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range of %d days exceeds %d", ErrInvalidDate, days, maxDays)
	}
	return f, t, nil
}
