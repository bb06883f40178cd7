package sessions

import "time"

// Cash session bounds on the New York clock.
const (
	cashOpenHour   = 9
	cashOpenMinute = 30
	cashCloseHour  = 16
)

// MarketHours answers whether the equity cash session is open, honoring
// weekends and full-day exchange holidays.
type MarketHours struct {
	holidays map[string]bool // yyyy-mm-dd keys on the ET calendar
}

// NewMarketHours seeds the current holiday calendar.
func NewMarketHours() *MarketHours {
	m := &MarketHours{holidays: make(map[string]bool)}
	for _, d := range []string{
		// 2025
		"2025-01-01", "2025-01-20", "2025-02-17", "2025-04-18",
		"2025-05-26", "2025-06-19", "2025-07-04", "2025-09-01",
		"2025-11-27", "2025-12-25",
		// 2026 (July 4 observed on the 3rd)
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03",
		"2026-05-25", "2026-06-19", "2026-07-03", "2026-09-07",
		"2026-11-26", "2026-12-25",
	} {
		m.holidays[d] = true
	}
	return m
}

// IsHoliday reports whether t falls on a full-day exchange holiday.
func (m *MarketHours) IsHoliday(t time.Time) bool {
	return m.holidays[t.In(Eastern()).Format("2006-01-02")]
}

// IsWeekend reports whether t falls on Saturday or Sunday in ET.
func (m *MarketHours) IsWeekend(t time.Time) bool {
	wd := t.In(Eastern()).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsOpen reports whether the cash session is trading at t: weekdays
// 09:30 to 16:00 ET, close exclusive, excluding holidays.
func (m *MarketHours) IsOpen(t time.Time) bool {
	if m.IsWeekend(t) || m.IsHoliday(t) {
		return false
	}
	et := t.In(Eastern())
	open := time.Date(et.Year(), et.Month(), et.Day(), cashOpenHour, cashOpenMinute, 0, 0, Eastern())
	close := time.Date(et.Year(), et.Month(), et.Day(), cashCloseHour, 0, 0, 0, Eastern())
	return !et.Before(open) && et.Before(close)
}

// NextOpen returns the next 09:30 ET at or after t that lands on a
// trading day.
func (m *MarketHours) NextOpen(t time.Time) time.Time {
	et := t.In(Eastern())
	candidate := time.Date(et.Year(), et.Month(), et.Day(), cashOpenHour, cashOpenMinute, 0, 0, Eastern())
	if !et.Before(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for m.IsWeekend(candidate) || m.IsHoliday(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
