package retention

import (
	"fmt"
	"time"
)

// Defaults for the monthly retention policy.
const (
	DefaultReminderThresholdDays = 7
	DefaultCleanupWindowDays     = 3
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now implements Clock.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }

// Policy holds the retention thresholds.
type Policy struct {
	ReminderThresholdDays int
	CleanupWindowDays     int
}

// DefaultPolicy returns the standard 7 day reminder and 3 day cleanup window.
func DefaultPolicy() Policy {
	return Policy{
		ReminderThresholdDays: DefaultReminderThresholdDays,
		CleanupWindowDays:     DefaultCleanupWindowDays,
	}
}

func (p Policy) normalized() Policy {
	if p.ReminderThresholdDays < 0 {
		p.ReminderThresholdDays = 0
	}
	if p.CleanupWindowDays <= 0 {
		p.CleanupWindowDays = DefaultCleanupWindowDays
	}
	return p
}

// Window is the derived retention view for a moment in time.
type Window struct {
	CurrentMonthLabel  string
	Year               int
	Month              time.Month
	DaysUntilMonthEnd  int
	IsCleanupWindow    bool
	ShouldShowReminder bool
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysUntilMonthEnd is the number of whole days left after today in the month of now.
func DaysUntilMonthEnd(now time.Time) int {
	return DaysInMonth(now.Year(), now.Month()) - now.Day()
}

// IsCleanupWindow reports whether now falls on one of the first days of its month.
func (p Policy) IsCleanupWindow(now time.Time) bool {
	return now.Day() <= p.normalized().CleanupWindowDays
}

// ShouldShowReminder is true near month end while the period is still open.
func (p Policy) ShouldShowReminder(now time.Time, completed bool) bool {
	if completed {
		return false
	}
	return DaysUntilMonthEnd(now) <= p.normalized().ReminderThresholdDays
}

// Compute derives the retention window for now and the completion state of the current period.
func (p Policy) Compute(now time.Time, completed bool) Window {
	return Window{
		CurrentMonthLabel:  MonthLabel(now.Year(), now.Month()),
		Year:               now.Year(),
		Month:              now.Month(),
		DaysUntilMonthEnd:  DaysUntilMonthEnd(now),
		IsCleanupWindow:    p.IsCleanupWindow(now),
		ShouldShowReminder: p.ShouldShowReminder(now, completed),
	}
}

// IsCleanupWindow applies the default policy.
func IsCleanupWindow(now time.Time) bool {
	return DefaultPolicy().IsCleanupWindow(now)
}

// ShouldShowReminder applies the default policy.
func ShouldShowReminder(now time.Time, completed bool) bool {
	return DefaultPolicy().ShouldShowReminder(now, completed)
}

// MonthLabel renders "June 2025".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month.String(), year)
}

// MonthOf returns the year and month of t.
func MonthOf(t time.Time) (int, time.Month) {
	return t.Year(), t.Month()
}

// PreviousMonth returns the month before year/month.
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

// MonthBounds returns [first instant of the month, first instant of the next month) in loc.
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// Before reports whether year/month precedes otherYear/otherMonth.
func Before(year int, month time.Month, otherYear int, otherMonth time.Month) bool {
	if year != otherYear {
		return year < otherYear
	}
	return month < otherMonth
}
