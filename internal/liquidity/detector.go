// Package liquidity detects raids of tracked reference levels: bars
// that sweep beyond a level, graded by how decisively the sweep closed
// and how long price held beyond the level afterwards.
package liquidity

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// EventWeights carries the pool weight per event family.
type EventWeights struct {
	AsiaRange float64
	PrevDayHL float64
	EqualHL   float64
	SessionHL float64
}

// For maps an event type to its weight.
func (w EventWeights) For(t domain.EventType) float64 {
	switch t {
	case domain.EventAsiaRange:
		return w.AsiaRange
	case domain.EventPrevDayHL:
		return w.PrevDayHL
	case domain.EventEqualHL:
		return w.EqualHL
	default:
		return w.SessionHL
	}
}

// QualityFactors maps sweep grades to score multipliers.
type QualityFactors struct {
	Clean    float64
	Wick     float64
	NearMiss float64
	Failed   float64
}

// Config bounds raid detection and owns the hold-bonus table. Holds
// are measured in minutes of consecutive closed bars beyond the level.
type Config struct {
	Tolerance   float64 // points beyond the level that count as a sweep
	Lookback    time.Duration
	BarInterval time.Duration

	LongHoldMinutes   int
	MediumHoldMinutes int
	ShortHoldMinutes  int
	LongHoldBonus     float64
	MediumHoldBonus   float64
	ShortHoldBonus    float64

	Weights EventWeights
	Quality QualityFactors
}

func DefaultConfig() *Config {
	return &Config{
		Tolerance:         0.5,
		Lookback:          4 * time.Hour,
		BarInterval:       time.Minute,
		LongHoldMinutes:   15,
		MediumHoldMinutes: 5,
		ShortHoldMinutes:  1,
		LongHoldBonus:     0.20,
		MediumHoldBonus:   0.10,
		ShortHoldBonus:    0.05,
		Weights: EventWeights{
			AsiaRange: 3.0,
			PrevDayHL: 2.5,
			EqualHL:   2.0,
			SessionHL: 1.5,
		},
		Quality: QualityFactors{
			Clean:    1.0,
			Wick:     0.8,
			NearMiss: 0.4,
			Failed:   0.0,
		},
	}
}

// Detector scans recent bars for sweeps of the supplied levels.
type Detector struct {
	instrument string
	config     *Config
}

func NewDetector(instrument string, config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{instrument: instrument, config: config}
}

// DetectEvents scans the lookback window ending at asOf for raids of
// each level, at most one event per level: a sweep below it first
// (bullish, sell-side taken), otherwise a sweep above (bearish). A nil
// result means the detector had no bars or no levels to work with; an
// empty one means it scanned and found no raid.
func (d *Detector) DetectEvents(bars []domain.Bar, levels []domain.ReferenceLevel, asOf time.Time) []domain.LiquidityEvent {
	if len(bars) == 0 || len(levels) == 0 {
		return nil
	}

	cutoff := asOf.Add(-d.config.Lookback)
	recent := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(cutoff) || b.Timestamp.After(asOf) {
			continue
		}
		recent = append(recent, b)
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].Timestamp.Before(recent[j].Timestamp) })

	out := []domain.LiquidityEvent{}
	for _, lvl := range levels {
		if ev, ok := d.detectRaid(recent, lvl); ok {
			out = append(out, ev)
		}
	}

	log.Debug().
		Str("instrument", d.instrument).
		Time("as_of", asOf).
		Int("events", len(out)).
		Msg("liquidity raid scan")
	return out
}

// detectRaid finds the deepest sweep of one level inside the window.
func (d *Detector) detectRaid(recent []domain.Bar, lvl domain.ReferenceLevel) (domain.LiquidityEvent, bool) {
	tol := d.config.Tolerance

	// Sweep below the level: deepest low wins.
	var below *domain.Bar
	for i := range recent {
		if recent[i].Low > lvl.Value-tol {
			continue
		}
		if below == nil || recent[i].Low < below.Low {
			below = &recent[i]
		}
	}
	if below != nil {
		return d.buildEvent(recent, lvl, *below, domain.DirectionUp), true
	}

	// Sweep above: highest high wins.
	var above *domain.Bar
	for i := range recent {
		if recent[i].High < lvl.Value+tol {
			continue
		}
		if above == nil || recent[i].High > above.High {
			above = &recent[i]
		}
	}
	if above != nil {
		return d.buildEvent(recent, lvl, *above, domain.DirectionDown), true
	}

	return domain.LiquidityEvent{}, false
}

func (d *Detector) buildEvent(recent []domain.Bar, lvl domain.ReferenceLevel, sweep domain.Bar, direction domain.Direction) domain.LiquidityEvent {
	quality := d.assessQuality(sweep, lvl.Value, direction)
	holdMinutes := d.holdMinutes(recent, sweep.Timestamp, lvl.Value, direction)

	eventType := eventTypeFor(lvl.Type)
	sweepPrice := sweep.Low
	if direction == domain.DirectionDown {
		sweepPrice = sweep.High
	}

	return domain.LiquidityEvent{
		Type:          eventType,
		Level:         lvl.Type,
		Direction:     direction,
		LevelPrice:    lvl.Value,
		SweepPrice:    sweepPrice,
		Quality:       quality,
		QualityFactor: d.qualityFactor(quality),
		HoldMinutes:   holdMinutes,
		HoldBonus:     d.holdBonus(holdMinutes),
		Weight:        d.config.Weights.For(eventType),
		Timestamp:     sweep.Timestamp,
	}
}

// assessQuality grades the sweep bar: closing beyond the level is a
// clean take, piercing it but closing back is a wick, anything else a
// near miss.
func (d *Detector) assessQuality(sweep domain.Bar, level float64, direction domain.Direction) domain.RaidQuality {
	if direction == domain.DirectionUp {
		switch {
		case sweep.Close < level:
			return domain.RaidClean
		case sweep.Low < level && level < sweep.Close:
			return domain.RaidWick
		default:
			return domain.RaidNearMiss
		}
	}
	switch {
	case sweep.Close > level:
		return domain.RaidClean
	case sweep.High > level && level > sweep.Close:
		return domain.RaidWick
	default:
		return domain.RaidNearMiss
	}
}

func (d *Detector) qualityFactor(q domain.RaidQuality) float64 {
	switch q {
	case domain.RaidClean:
		return d.config.Quality.Clean
	case domain.RaidWick:
		return d.config.Quality.Wick
	case domain.RaidNearMiss:
		return d.config.Quality.NearMiss
	default:
		return d.config.Quality.Failed
	}
}

// holdMinutes counts consecutive bars after the sweep that stayed
// beyond the level, stopping at the first reclaim.
func (d *Detector) holdMinutes(recent []domain.Bar, sweepTime time.Time, level float64, direction domain.Direction) int {
	held := 0
	for _, b := range recent {
		if !b.Timestamp.After(sweepTime) {
			continue
		}
		beyond := b.High < level
		if direction == domain.DirectionDown {
			beyond = b.Low > level
		}
		if !beyond {
			break
		}
		held++
	}
	return held * int(d.config.BarInterval/time.Minute)
}

func (d *Detector) holdBonus(minutes int) float64 {
	switch {
	case minutes >= d.config.LongHoldMinutes:
		return d.config.LongHoldBonus
	case minutes >= d.config.MediumHoldMinutes:
		return d.config.MediumHoldBonus
	case minutes >= d.config.ShortHoldMinutes:
		return d.config.ShortHoldBonus
	default:
		return 0
	}
}

// eventTypeFor groups a level into its liquidity pool family.
func eventTypeFor(t domain.LevelType) domain.EventType {
	switch t {
	case domain.LevelAsianHigh, domain.LevelAsianLow:
		return domain.EventAsiaRange
	case domain.LevelPrevDayHigh, domain.LevelPrevDayLow:
		return domain.EventPrevDayHL
	default:
		return domain.EventSessionHL
	}
}
