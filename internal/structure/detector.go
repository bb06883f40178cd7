package structure

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Config tunes the structure detector. Zero values are never valid on
// their own; callers either take DefaultConfig or derive from it.
type Config struct {
	// Timeframes the 1m feed is resampled to before swing analysis.
	Timeframes []time.Duration

	// BreakLookback bounds how far back resampled bars are considered.
	BreakLookback time.Duration

	// StrongDisplacement is the close-to-close move, in points, above
	// which a break counts as strong.
	StrongDisplacement float64

	// MajorWeight is stamped on strong breaks, IntermediateWeight on
	// moderate ones and MinorWeight on the rest.
	MajorWeight        float64
	IntermediateWeight float64
	MinorWeight        float64

	// GapTimeframe is the chart fair value gaps are read from, and
	// GapLookback how far back. Gaps narrower than MinGapSize points
	// are noise and dropped.
	GapTimeframe time.Duration
	GapLookback  time.Duration
	MinGapSize   float64
}

func DefaultConfig() *Config {
	return &Config{
		Timeframes:         []time.Duration{15 * time.Minute, time.Hour, 4 * time.Hour},
		BreakLookback:      7 * 24 * time.Hour,
		StrongDisplacement: 20.0,
		MajorWeight:        3.0,
		IntermediateWeight: 2.0,
		MinorWeight:        1.0,
		GapTimeframe:       15 * time.Minute,
		GapLookback:        24 * time.Hour,
		MinGapSize:         2.0,
	}
}

// Detector finds breaks of structure and changes of character from
// two-bar swing points on resampled charts.
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

// swing is a confirmed swing point: a bar whose extreme exceeds the two
// bars on either side.
type swing struct {
	timestamp time.Time
	price     float64
}

// DetectBreaks scans every configured timeframe for structure breaks
// within the lookback ending at asOf. A nil result means no usable
// bars; an empty non-nil slice means the scan ran and found nothing.
func (d *Detector) DetectBreaks(bars []domain.Bar, asOf time.Time) []domain.StructureBreak {
	if len(bars) == 0 {
		return nil
	}

	out := []domain.StructureBreak{}
	for _, tf := range d.config.Timeframes {
		resampled := d.window(Resample(bars, tf), asOf, d.config.BreakLookback)
		if len(resampled) < 3 {
			continue
		}
		out = append(out, d.scanTimeframe(resampled, timeframeLabel(tf))...)
	}

	log.Debug().
		Str("instrument", d.instrument).
		Time("as_of", asOf).
		Int("breaks", len(out)).
		Msg("structure scan")
	return out
}

// window keeps bars inside [asOf-lookback, asOf], sorted ascending.
func (d *Detector) window(bars []domain.Bar, asOf time.Time, lookback time.Duration) []domain.Bar {
	cutoff := asOf.Add(-lookback)
	kept := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(cutoff) || b.Timestamp.After(asOf) {
			continue
		}
		kept = append(kept, b)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Timestamp.Before(kept[j].Timestamp) })
	return kept
}

func (d *Detector) scanTimeframe(bars []domain.Bar, timeframe string) []domain.StructureBreak {
	swingHighs, swingLows := findSwings(bars)

	var out []domain.StructureBreak
	out = append(out, d.findBreaks(bars, swingHighs, swingLows, timeframe)...)
	out = append(out, d.findCharacterChanges(swingHighs, swingLows, timeframe)...)
	return out
}

// findSwings collects confirmed swing points: strict extremes against
// the two neighbours on each side, so the first and last two bars can
// never qualify.
func findSwings(bars []domain.Bar) ([]swing, []swing) {
	var highs, lows []swing
	for i := 2; i < len(bars)-2; i++ {
		b := bars[i]
		if b.High > bars[i-1].High && b.High > bars[i-2].High &&
			b.High > bars[i+1].High && b.High > bars[i+2].High {
			highs = append(highs, swing{timestamp: b.Timestamp, price: b.High})
		}
		if b.Low < bars[i-1].Low && b.Low < bars[i-2].Low &&
			b.Low < bars[i+1].Low && b.Low < bars[i+2].Low {
			lows = append(lows, swing{timestamp: b.Timestamp, price: b.Low})
		}
	}
	return highs, lows
}

// findBreaks emits a BOS wherever a bar first trades through the most
// recent swing level of the window: the bar's extreme crosses the level
// while the previous bar's did not.
func (d *Detector) findBreaks(bars []domain.Bar, swingHighs, swingLows []swing, timeframe string) []domain.StructureBreak {
	var out []domain.StructureBreak
	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]

		if len(swingHighs) > 0 {
			level := swingHighs[len(swingHighs)-1].price
			if cur.High > level && prev.High <= level {
				out = append(out, d.breakAt(domain.BreakBOS, domain.DirectionUp, timeframe, level, cur, prev))
			}
		}
		if len(swingLows) > 0 {
			level := swingLows[len(swingLows)-1].price
			if cur.Low < level && prev.Low >= level {
				out = append(out, d.breakAt(domain.BreakBOS, domain.DirectionDown, timeframe, level, cur, prev))
			}
		}
	}
	return out
}

func (d *Detector) breakAt(breakType domain.BreakType, direction domain.Direction, timeframe string, level float64, cur, prev domain.Bar) domain.StructureBreak {
	displacement := domain.DisplacementWeak
	if move := cur.Close - prev.Close; move >= d.config.StrongDisplacement || -move >= d.config.StrongDisplacement {
		displacement = domain.DisplacementStrong
	}
	return domain.StructureBreak{
		Type:         breakType,
		Direction:    direction,
		Timeframe:    timeframe,
		Level:        level,
		Displacement: displacement,
		Weight:       d.weightFor(displacement),
		Timestamp:    cur.Timestamp,
	}
}

// findCharacterChanges compares the last two swings of each kind: a
// higher swing low flips character bullish, a lower swing high flips it
// bearish. A CHoCH is always graded moderate; confirmation of the new
// trend arrives later as a BOS.
func (d *Detector) findCharacterChanges(swingHighs, swingLows []swing, timeframe string) []domain.StructureBreak {
	var out []domain.StructureBreak

	if len(swingLows) >= 2 {
		last, prev := swingLows[len(swingLows)-1], swingLows[len(swingLows)-2]
		if last.price > prev.price {
			out = append(out, domain.StructureBreak{
				Type:         domain.BreakCHoCH,
				Direction:    domain.DirectionUp,
				Timeframe:    timeframe,
				Level:        last.price,
				Displacement: domain.DisplacementModerate,
				Weight:       d.weightFor(domain.DisplacementModerate),
				Timestamp:    last.timestamp,
			})
		}
	}
	if len(swingHighs) >= 2 {
		last, prev := swingHighs[len(swingHighs)-1], swingHighs[len(swingHighs)-2]
		if last.price < prev.price {
			out = append(out, domain.StructureBreak{
				Type:         domain.BreakCHoCH,
				Direction:    domain.DirectionDown,
				Timeframe:    timeframe,
				Level:        last.price,
				Displacement: domain.DisplacementModerate,
				Weight:       d.weightFor(domain.DisplacementModerate),
				Timestamp:    last.timestamp,
			})
		}
	}
	return out
}

func (d *Detector) weightFor(displacement domain.Displacement) float64 {
	switch displacement {
	case domain.DisplacementStrong:
		return d.config.MajorWeight
	case domain.DisplacementModerate:
		return d.config.IntermediateWeight
	default:
		return d.config.MinorWeight
	}
}

func timeframeLabel(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dm", int(d/time.Minute))
}
