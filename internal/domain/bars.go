package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV candle. The timestamp marks the bar open and is
// always UTC.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the single-bar invariants: finite positive prices,
// high at or above low, and non-negative finite volume.
func (b Bar) Validate() error {
	for name, p := range map[string]float64{
		"open":  b.Open,
		"high":  b.High,
		"low":   b.Low,
		"close": b.Close,
	} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidBar("non-finite price").
				WithField("field", name).
				WithField("timestamp", b.Timestamp.Format(time.RFC3339))
		}
		if p <= 0 {
			return InvalidBar("non-positive price").
				WithField("field", name).
				WithField("timestamp", b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.High < b.Low {
		return InvalidBar("high below low").
			WithField("high", b.High).
			WithField("low", b.Low).
			WithField("timestamp", b.Timestamp.Format(time.RFC3339))
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return InvalidBar("invalid volume").
			WithField("volume", b.Volume).
			WithField("timestamp", b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

const (
	// BlocksPerPeriod is the fixed number of equal sub-blocks a period
	// is divided into.
	BlocksPerPeriod = 7

	// ObservableBlocks is how many leading blocks feed the prediction;
	// the rest of the period is the outcome window.
	ObservableBlocks = 5
)

// Period is one prediction window on an instrument's clock. It is split
// into seven equal blocks of which only the first five are observable
// before the prediction locks.
type Period struct {
	Start            time.Time `json:"start"`
	TimeframeMinutes int       `json:"timeframe_minutes"`
}

func (p Period) Duration() time.Duration {
	return time.Duration(p.TimeframeMinutes) * time.Minute
}

func (p Period) End() time.Time {
	return p.Start.Add(p.Duration())
}

// BlockDuration is one seventh of the period.
func (p Period) BlockDuration() time.Duration {
	return p.Duration() / BlocksPerPeriod
}

// Checkpoint is the instant the prediction locks: the end of block five.
// No bar at or after this instant may influence the prediction.
func (p Period) Checkpoint() time.Time {
	return p.Start.Add(ObservableBlocks * p.BlockDuration())
}

// BlockWindow returns the [start, end) bounds of block n, 1-based.
func (p Period) BlockWindow(n int) (time.Time, time.Time) {
	d := p.BlockDuration()
	start := p.Start.Add(time.Duration(n-1) * d)
	return start, start.Add(d)
}

// Contains reports whether t falls inside [start, end).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End())
}

func (p Period) String() string {
	return fmt.Sprintf("%s/%dm", p.Start.UTC().Format(time.RFC3339), p.TimeframeMinutes)
}

// PeriodAt returns the aligned period containing t. Periods tile each
// UTC day from midnight in timeframe-sized steps, so a 120-minute
// clock starts periods at 00:00, 02:00, 04:00 and so on.
func PeriodAt(t time.Time, timeframeMinutes int) Period {
	utc := t.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	step := time.Duration(timeframeMinutes) * time.Minute
	start := midnight.Add(utc.Sub(midnight).Truncate(step))
	return Period{Start: start, TimeframeMinutes: timeframeMinutes}
}

// Block is the aggregate view of one sub-block of a period. Deviation
// and the time fractions are relative to the period open, not the
// block's own open.
type Block struct {
	Number            int       `json:"number"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Close             float64   `json:"close"`
	Volume            float64   `json:"volume"`
	BarCount          int       `json:"bar_count"`
	Coverage          float64   `json:"coverage"`
	Complete          bool      `json:"complete"`
	DeviationFromOpen float64   `json:"deviation_from_open"`
	CrossesOpen       bool      `json:"crosses_open"`
	TimeAboveOpen     float64   `json:"time_above_open"`
	TimeBelowOpen     float64   `json:"time_below_open"`
}
