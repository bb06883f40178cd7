package structure

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// DetectGaps finds three-candle imbalances on the gap timeframe inside
// the lookback ending at asOf. A bullish gap is the void between the
// first candle's high and the third candle's low when the middle candle
// displaced straight through it; bearish is the mirror. The gap is
// stamped with the middle candle's time. Nil means no usable bars, an
// empty non-nil slice means the scan ran and found nothing.
func (d *Detector) DetectGaps(bars []domain.Bar, asOf time.Time) []domain.FairValueGap {
	if len(bars) == 0 {
		return nil
	}

	out := []domain.FairValueGap{}
	resampled := d.window(Resample(bars, d.config.GapTimeframe), asOf, d.config.GapLookback)
	for i := 0; i+2 < len(resampled); i++ {
		first, middle, third := resampled[i], resampled[i+1], resampled[i+2]

		if size := third.Low - first.High; size >= d.config.MinGapSize {
			out = append(out, domain.FairValueGap{
				Direction: domain.DirectionUp,
				Top:       third.Low,
				Bottom:    first.High,
				Size:      size,
				Timestamp: middle.Timestamp,
			})
			continue
		}
		if size := first.Low - third.High; size >= d.config.MinGapSize {
			out = append(out, domain.FairValueGap{
				Direction: domain.DirectionDown,
				Top:       first.Low,
				Bottom:    third.High,
				Size:      size,
				Timestamp: middle.Timestamp,
			})
		}
	}

	log.Debug().
		Str("instrument", d.instrument).
		Time("as_of", asOf).
		Int("gaps", len(out)).
		Msg("fair value gap scan")
	return out
}
