// Package structure detects swing-based market structure: breaks of
// structure, changes of character and fair value gaps, evaluated on
// bars resampled up from the 1-minute feed.
package structure

import (
	"sort"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Resample aggregates bars into interval buckets aligned to the epoch:
// open of the first bar, extreme high/low, close of the last, summed
// volume. Buckets without bars are dropped, never fabricated.
func Resample(bars []domain.Bar, interval time.Duration) []domain.Bar {
	if len(bars) == 0 {
		return nil
	}

	ordered := make([]domain.Bar, len(bars))
	copy(ordered, bars)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })

	var out []domain.Bar
	for _, b := range ordered {
		bucket := b.Timestamp.Truncate(interval)
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(bucket) {
			out = append(out, domain.Bar{
				Timestamp: bucket,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
			continue
		}

		last := &out[len(out)-1]
		if b.High > last.High {
			last.High = b.High
		}
		if b.Low < last.Low {
			last.Low = b.Low
		}
		last.Close = b.Close
		last.Volume += b.Volume
	}
	return out
}
