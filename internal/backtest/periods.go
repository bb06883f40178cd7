package backtest

import (
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Periods generates the test periods for [from, to] under the config's
// mode. A period whose start falls on the range end is still included;
// the completeness filter drops it later if its bars are missing.
func Periods(from, to time.Time, config Config) []domain.Period {
	if config.Mode == ModeSession {
		return sessionPeriods(from.UTC(), to.UTC(), config)
	}
	return alignedPeriods(from.UTC(), to.UTC(), config.TimeframeMinutes)
}

// alignedPeriods tiles the clock 24/7: the range start is floored to
// its period boundary and periods step by the timeframe from there. A
// two-hour clock over a year yields roughly 4380 periods, a four-hour
// clock half that.
func alignedPeriods(from, to time.Time, timeframeMinutes int) []domain.Period {
	step := time.Duration(timeframeMinutes) * time.Minute
	var periods []domain.Period
	for start := domain.PeriodAt(from, timeframeMinutes).Start; !start.After(to); start = start.Add(step) {
		periods = append(periods, domain.Period{Start: start, TimeframeMinutes: timeframeMinutes})
	}
	return periods
}

// sessionPeriods opens one period per day at the session hour, skipping
// weekends. Sessions before the range start are dropped rather than
// shifted.
func sessionPeriods(from, to time.Time, config Config) []domain.Period {
	var periods []domain.Period
	day := time.Date(from.Year(), from.Month(), from.Day(), config.SessionStartHour, 0, 0, 0, time.UTC)
	for ; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if day.Before(from) {
			continue
		}
		periods = append(periods, domain.Period{Start: day, TimeframeMinutes: config.TimeframeMinutes})
	}
	return periods
}
