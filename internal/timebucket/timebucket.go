// Package timebucket holds the pure date arithmetic behind the scheduled jobs:
// per-user local time, the midnight rollover gate and reminder targets.
package timebucket

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DateLayout = "2006-01-02"

	// RolloverWindow is how many minutes past local midnight the rollover gate stays open.
	RolloverWindow = 5

	Today    = "today"
	Tomorrow = "tomorrow"
)

var locations sync.Map

// Location returns the named IANA zone, falling back to UTC when the name is
// empty or unknown.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	if loc, ok := locations.Load(tz); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	locations.Store(tz, loc)
	return loc
}

// ValidTimezone reports whether tz names a loadable zone.
func ValidTimezone(tz string) bool {
	_, err := time.LoadLocation(tz)
	return tz != "" && err == nil
}

// LocalNow converts now to the user's zone.
func LocalNow(now time.Time, tz string) time.Time {
	return now.In(Location(tz))
}

// DateKey formats t as a calendar day in its own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// DayOfWeek returns the English weekday name of t.
func DayOfWeek(t time.Time) string {
	return t.Weekday().String()
}

// DayOfWeekFor returns the weekday name of a YYYY-MM-DD date.
func DayOfWeekFor(date string) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", errors.Wrapf(err, "parse date %q", date)
	}
	return DayOfWeek(d), nil
}

// ShouldRollover is the midnight gate: local hour 0 and minute within [0, RolloverWindow].
func ShouldRollover(now time.Time, tz string) bool {
	local := LocalNow(now, tz)
	return local.Hour() == 0 && local.Minute() <= RolloverWindow
}

// Days returns yesterday, today and tomorrow as local calendar keys.
func Days(now time.Time, tz string) (yesterday, today, tomorrow string) {
	local := LocalNow(now, tz)
	return DateKey(local.AddDate(0, 0, -1)), DateKey(local), DateKey(local.AddDate(0, 0, 1))
}

// ResolveDay maps "today" or "tomorrow" to the user's local calendar date.
func ResolveDay(now time.Time, tz, which string) (string, error) {
	_, today, tomorrow := Days(now, tz)
	switch which {
	case Today, "":
		return today, nil
	case Tomorrow:
		return tomorrow, nil
	default:
		return "", fmt.Errorf("unknown day %q, expected %q or %q", which, Today, Tomorrow)
	}
}

// StartMinutes converts a fractional start hour to minutes since midnight.
func StartMinutes(startTime float64) int {
	return int(math.Round(startTime * 60))
}

// ReminderTarget returns the wall-clock hour and minute at which a reminder
// for a task starting at startTime should fire, leadMinutes before the start.
// ok is false when the target falls before midnight of the task's day.
func ReminderTarget(startTime float64, leadMinutes int) (hour, minute int, ok bool) {
	target := StartMinutes(startTime) - leadMinutes
	if target < 0 {
		return 0, 0, false
	}
	return target / 60, target % 60, true
}

// ShouldRemind reports whether now, in the user's zone, is exactly the reminder
// minute for a task on the given date.
func ShouldRemind(now time.Time, tz, date string, startTime float64, leadMinutes int) bool {
	local := LocalNow(now, tz)
	if DateKey(local) != date {
		return false
	}
	hour, minute, ok := ReminderTarget(startTime, leadMinutes)
	if !ok {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

// FormatClock renders a fractional hour as HH:MM.
func FormatClock(hours float64) string {
	m := StartMinutes(hours)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseClock parses HH:MM into a fractional hour.
func ParseClock(raw string) (float64, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, errors.Errorf("invalid time %q, expected HH:MM", raw)
	}
	return float64(t.Hour()) + float64(t.Minute())/60, nil
}
