package structure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

func gapBar(ts time.Time, o, h, l, c float64) domain.Bar {
	return domain.Bar{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func TestDetectGaps_BullishImbalance(t *testing.T) {
	start := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		gapBar(start, 21425, 21430, 21420, 21429),
		gapBar(start.Add(15*time.Minute), 21430, 21445, 21429, 21444),
		gapBar(start.Add(30*time.Minute), 21444, 21450, 21435, 21448),
	}

	gaps := NewDetector("NQ", nil).DetectGaps(bars, bars[2].Timestamp)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.Equal(t, domain.DirectionUp, g.Direction)
	assert.Equal(t, 21435.0, g.Top, "third candle's low caps the gap")
	assert.Equal(t, 21430.0, g.Bottom, "first candle's high floors it")
	assert.Equal(t, 5.0, g.Size)
	assert.Equal(t, start.Add(15*time.Minute), g.Timestamp, "stamped with the displacing middle candle")
}

func TestDetectGaps_BearishImbalance(t *testing.T) {
	start := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		gapBar(start, 21410, 21415, 21400, 21402),
		gapBar(start.Add(15*time.Minute), 21400, 21401, 21380, 21382),
		gapBar(start.Add(30*time.Minute), 21382, 21390, 21375, 21378),
	}

	gaps := NewDetector("NQ", nil).DetectGaps(bars, bars[2].Timestamp)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.Equal(t, domain.DirectionDown, g.Direction)
	assert.Equal(t, 21400.0, g.Top)
	assert.Equal(t, 21390.0, g.Bottom)
	assert.Equal(t, 10.0, g.Size)
	assert.Equal(t, start.Add(15*time.Minute), g.Timestamp)
}

func TestDetectGaps_BelowMinimumSizeIgnored(t *testing.T) {
	start := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		gapBar(start, 21425, 21430, 21420, 21429),
		gapBar(start.Add(15*time.Minute), 21430, 21445, 21429, 21444),
		gapBar(start.Add(30*time.Minute), 21444, 21450, 21431.5, 21448),
	}

	gaps := NewDetector("NQ", nil).DetectGaps(bars, bars[2].Timestamp)
	require.NotNil(t, gaps)
	assert.Empty(t, gaps, "a 1.5 point void is noise, not a gap")
}

// A staircase leaves an imbalance in every sliding three-candle window.
func TestDetectGaps_OverlappingWindows(t *testing.T) {
	start := time.Date(2025, 6, 3, 13, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		gapBar(start, 1002, 1005, 1000, 1004),
		gapBar(start.Add(15*time.Minute), 1012, 1015, 1010, 1014),
		gapBar(start.Add(30*time.Minute), 1022, 1025, 1020, 1024),
		gapBar(start.Add(45*time.Minute), 1032, 1035, 1030, 1034),
	}

	gaps := NewDetector("NQ", nil).DetectGaps(bars, bars[3].Timestamp)
	require.Len(t, gaps, 2)

	assert.Equal(t, 1020.0, gaps[0].Top)
	assert.Equal(t, 1005.0, gaps[0].Bottom)
	assert.Equal(t, start.Add(15*time.Minute), gaps[0].Timestamp)

	assert.Equal(t, 1030.0, gaps[1].Top)
	assert.Equal(t, 1015.0, gaps[1].Bottom)
	assert.Equal(t, start.Add(30*time.Minute), gaps[1].Timestamp)
}

// The gap lives on the resampled chart: no single pair of 1m bars shows
// it, but the aggregated 15m candles do.
func TestDetectGaps_ReadsTheResampledChart(t *testing.T) {
	start := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		minuteBar(start, 1000, 1004, 998, 1002, 10),
		minuteBar(start.Add(5*time.Minute), 1002, 1005, 999, 1003, 10),
		minuteBar(start.Add(15*time.Minute), 1003, 1012, 1003, 1011, 10),
		minuteBar(start.Add(30*time.Minute), 1011, 1014, 1010, 1013, 10),
		minuteBar(start.Add(40*time.Minute), 1013, 1016, 1012, 1015, 10),
	}

	gaps := NewDetector("NQ", nil).DetectGaps(bars, bars[len(bars)-1].Timestamp)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.Equal(t, domain.DirectionUp, g.Direction)
	assert.Equal(t, 1010.0, g.Top, "lowest low of the third 15m candle")
	assert.Equal(t, 1005.0, g.Bottom, "highest high of the first 15m candle")
	assert.Equal(t, start.Add(15*time.Minute), g.Timestamp)
}

func TestDetectGaps_LookbackAndInputContract(t *testing.T) {
	detector := NewDetector("NQ", nil)
	asOf := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	assert.Nil(t, detector.DetectGaps(nil, asOf), "no bars means the scan never ran")

	old := asOf.Add(-25 * time.Hour)
	bars := []domain.Bar{
		gapBar(old, 21425, 21430, 21420, 21429),
		gapBar(old.Add(15*time.Minute), 21430, 21445, 21429, 21444),
		gapBar(old.Add(30*time.Minute), 21444, 21450, 21435, 21448),
		gapBar(asOf, 21440, 21441, 21439, 21440),
	}
	gaps := detector.DetectGaps(bars, asOf)
	require.NotNil(t, gaps, "stale gaps leave an empty scan, not a missing one")
	assert.Empty(t, gaps)
}
