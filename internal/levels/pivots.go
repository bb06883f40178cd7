package levels

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Fibonacci ratios applied to the prior period's range.
const (
	fibInner = 0.382 // R1/S1
	fibMid   = 0.618 // R2/S2
	fibOuter = 1.000 // R3/S3
)

// Pivots computes the weekly and daily Fibonacci pivot sets from the
// prior week's and prior UTC day's high/low/close. A set whose prior
// period has no bars is omitted. A nil result means no bars were
// supplied at all.
func (c *Calculator) Pivots(bars []domain.Bar, asOf time.Time) []domain.PivotSet {
	if len(bars) == 0 {
		return nil
	}

	asOf = asOf.UTC()
	out := []domain.PivotSet{}

	weekStart := weekStartUTC(asOf)
	if set, ok := pivotSet(bars, domain.PivotWeekly, weekStart.AddDate(0, 0, -7), weekStart); ok {
		out = append(out, set)
	}

	dayStart := dayStartUTC(asOf)
	if set, ok := pivotSet(bars, domain.PivotDaily, dayStart.AddDate(0, 0, -1), dayStart); ok {
		out = append(out, set)
	}

	log.Debug().
		Str("instrument", c.instrument).
		Time("as_of", asOf).
		Int("sets", len(out)).
		Msg("computed fibonacci pivots")
	return out
}

func pivotSet(bars []domain.Bar, timeframe string, start, end time.Time) (domain.PivotSet, bool) {
	high, low, lastClose, ok := periodHLC(bars, start, end)
	if !ok {
		return domain.PivotSet{}, false
	}

	pp := (high + low + lastClose) / 3
	priceRange := high - low
	return domain.PivotSet{
		Timeframe: timeframe,
		Pivot:     pp,
		R1:        pp + fibInner*priceRange,
		R2:        pp + fibMid*priceRange,
		R3:        pp + fibOuter*priceRange,
		S1:        pp - fibInner*priceRange,
		S2:        pp - fibMid*priceRange,
		S3:        pp - fibOuter*priceRange,
	}, true
}

// periodHLC aggregates the high, low and final close over [start, end).
func periodHLC(bars []domain.Bar, start, end time.Time) (high, low, lastClose float64, ok bool) {
	var last *domain.Bar
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
		if last == nil || ts.After(last.Timestamp) {
			last = &bars[i]
		}
		ok = true
	}
	if !ok {
		return 0, 0, 0, false
	}
	lastClose = last.Close
	return high, low, lastClose, true
}
