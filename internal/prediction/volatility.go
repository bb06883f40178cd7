package prediction

import (
	"math"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// FallbackVolatilityRatio scales the period open into a floor estimate
// when returns are unavailable or degenerate.
const FallbackVolatilityRatio = 0.01

// EstimateVolatility derives the deviation scale for a period: the
// population standard deviation of simple close-to-close returns
// multiplied by the mean close. With fewer than two closes, or when the
// product degenerates to exactly zero, it falls back to one percent of
// the period open. Zero closes is an error, not a fallback.
func EstimateVolatility(closes []float64, periodOpen float64) (float64, error) {
	if len(closes) == 0 {
		return 0, domain.InsufficientData("no closes for volatility estimate")
	}
	if len(closes) < 2 {
		return periodOpen * FallbackVolatilityRatio, nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (closes[i]-prev)/prev)
	}
	if len(returns) == 0 {
		return periodOpen * FallbackVolatilityRatio, nil
	}

	meanReturn := 0.0
	for _, r := range returns {
		meanReturn += r
	}
	meanReturn /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - meanReturn
		variance += d * d
	}
	variance /= float64(len(returns)) // population variance

	meanClose := 0.0
	for _, c := range closes {
		meanClose += c
	}
	meanClose /= float64(len(closes))

	vol := math.Sqrt(variance) * meanClose
	if vol == 0 || math.IsNaN(vol) || math.IsInf(vol, 0) {
		return periodOpen * FallbackVolatilityRatio, nil
	}
	return vol, nil
}
