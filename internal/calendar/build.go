package calendar

import (
	"time"
)

// BuildWeekdaySessions generates one Session per weekday in [start, end]
// (inclusive, UTC calendar dates) at the given market-local open/close wall
// times, converting to UTC at construction time so DST transitions are
// resolved once here rather than duplicated or dropped at lookup time
// (§4.1 edge cases).
func BuildWeekdaySessions(loc *time.Location, openHour, openMin, closeHour, closeMin int, start, end time.Time, holidays map[string]bool) []Session {
	var sessions []Session
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	for !day.After(last) {
		wd := day.Weekday()
		dateStr := day.Format("2006-01-02")
		if wd != time.Saturday && wd != time.Sunday && !holidays[dateStr] {
			open := time.Date(day.Year(), day.Month(), day.Day(), openHour, openMin, 0, 0, loc)
			close := time.Date(day.Year(), day.Month(), day.Day(), closeHour, closeMin, 0, 0, loc)
			sessions = append(sessions, Session{
				Date:        dateStr,
				MarketOpen:  open.UTC().Unix(),
				MarketClose: close.UTC().Unix(),
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return sessions
}

// NewNYSE builds a regular-hours NYSE calendar (9:30-16:00 America/New_York)
// over [start, end]. Holidays is an optional set of YYYY-MM-DD dates to
// exclude (early closes are not modeled — callers needing them should pass a
// trimmed session table built another way).
func NewNYSE(start, end time.Time, holidays map[string]bool) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	sessions := BuildWeekdaySessions(loc, 9, 30, 16, 0, start, end, holidays)
	return New("NYSE", sessions), nil
}

// NewUSFutures builds a near-continuous us_futures session table
// (18:00-17:00 next day America/Chicago, Sun-Fri) approximated here as one
// full-day 00:00-24:00 UTC session per calendar day, Sunday included and
// Saturday closed — callers
// needing exact CME hours should supply their own session table via New.
func NewUSFutures(start, end time.Time, holidays map[string]bool) *Calendar {
	var sessions []Session
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		if day.Weekday() != time.Saturday && !holidays[day.Format("2006-01-02")] {
			open := day
			close := day.Add(24 * time.Hour)
			sessions = append(sessions, Session{
				Date:        day.Format("2006-01-02"),
				MarketOpen:  open.Unix(),
				MarketClose: close.Unix(),
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return New("us_futures", sessions)
}
