// Package levels computes the reference level set and Fibonacci pivot
// sets the scorers consume: time-anchored opens, session extremes and
// prior-period ranges derived from a raw bar snapshot. Levels whose
// history is absent from the snapshot are omitted, never fabricated.
package levels

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/sessions"
)

// Calculator derives reference levels and pivots for one instrument.
// It is stateless; every call works off the supplied snapshot alone.
type Calculator struct {
	instrument string
}

func NewCalculator(instrument string) *Calculator {
	return &Calculator{instrument: instrument}
}

// Levels computes every reference level derivable from the snapshot as
// of the given time: the weekly/monthly/daily/NY/4H/1H opens, the most
// recent Asian session extremes and the previous UTC day's extremes.
// A nil result means no bars were supplied; an empty one means the
// snapshot held no usable history for any level.
func (c *Calculator) Levels(bars []domain.Bar, asOf time.Time) []domain.ReferenceLevel {
	if len(bars) == 0 {
		return nil
	}

	asOf = asOf.UTC()
	out := []domain.ReferenceLevel{}

	appendOpen := func(t domain.LevelType, at time.Time) {
		if open, ok := openAt(bars, at); ok {
			out = append(out, domain.ReferenceLevel{Type: t, Value: open})
		}
	}

	appendOpen(domain.LevelWeeklyOpen, weekStartUTC(asOf))
	appendOpen(domain.LevelMonthlyOpen, monthStartUTC(asOf))
	appendOpen(domain.LevelDailyOpen, dayStartUTC(asOf))
	appendOpen(domain.LevelNYOpen, nyOpenUTC(asOf))
	appendOpen(domain.LevelH4Open, h4StartUTC(asOf))
	appendOpen(domain.LevelH1Open, asOf.Truncate(time.Hour))

	asianStart := asianSessionStart(asOf)
	if high, low, ok := rangeOver(bars, asianStart, asianStart.Add(asianSessionLength)); ok {
		out = append(out,
			domain.ReferenceLevel{Type: domain.LevelAsianHigh, Value: high},
			domain.ReferenceLevel{Type: domain.LevelAsianLow, Value: low},
		)
	}

	prevDayStart := dayStartUTC(asOf).AddDate(0, 0, -1)
	if high, low, ok := rangeOver(bars, prevDayStart, prevDayStart.AddDate(0, 0, 1)); ok {
		out = append(out,
			domain.ReferenceLevel{Type: domain.LevelPrevDayHigh, Value: high},
			domain.ReferenceLevel{Type: domain.LevelPrevDayLow, Value: low},
		)
	}

	log.Debug().
		Str("instrument", c.instrument).
		Time("as_of", asOf).
		Int("levels", len(out)).
		Msg("computed reference levels")
	return out
}

const asianSessionLength = 8 * time.Hour

// asianSessionStart finds the 18:00 ET start of the most recently
// started Asian session: tonight's once it opens, otherwise last
// night's, so the completed range stays readable through the following
// trading day.
func asianSessionStart(asOf time.Time) time.Time {
	et := asOf.In(sessions.Eastern())
	day := time.Date(et.Year(), et.Month(), et.Day(), 18, 0, 0, 0, sessions.Eastern())
	if et.Hour() < 18 {
		day = day.AddDate(0, 0, -1)
	}
	return day.UTC()
}

// weekStartUTC is Monday 00:00 UTC of the week containing t.
func weekStartUTC(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return dayStartUTC(t).AddDate(0, 0, -daysSinceMonday)
}

func monthStartUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dayStartUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// nyOpenUTC is today's 08:30 ET in UTC, DST-correct.
func nyOpenUTC(t time.Time) time.Time {
	et := t.In(sessions.Eastern())
	return time.Date(et.Year(), et.Month(), et.Day(), 8, 30, 0, 0, sessions.Eastern()).UTC()
}

// h4StartUTC is the start of the current 4-hour UTC slot.
func h4StartUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), (t.Hour()/4)*4, 0, 0, 0, time.UTC)
}

// openAt returns the open of the earliest bar stamped at or after the
// target time. False when the snapshot ends before the target.
func openAt(bars []domain.Bar, target time.Time) (float64, bool) {
	var first *domain.Bar
	for i := range bars {
		ts := bars[i].Timestamp
		if ts.Before(target) {
			continue
		}
		if first == nil || ts.Before(first.Timestamp) {
			first = &bars[i]
		}
	}
	if first == nil {
		return 0, false
	}
	return first.Open, true
}

// rangeOver returns the extreme high and low over [start, end). False
// when the window holds no bars.
func rangeOver(bars []domain.Bar, start, end time.Time) (high, low float64, ok bool) {
	for i := range bars {
		ts := bars[i].Timestamp
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		if !ok || bars[i].High > high {
			high = bars[i].High
		}
		if !ok || bars[i].Low < low {
			low = bars[i].Low
		}
		ok = true
	}
	return high, low, ok
}
