package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EarlyBias is the provisional read taken from blocks one and two.
// Strength is the absolute block-two deviation, halved when either
// block crossed the period open.
type EarlyBias struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Halved    bool      `json:"halved"`
}

// CounterSignal flags the first counter-trend block found while
// scanning blocks three through five in order. Direction is the side
// the reversal points at, always opposite the early bias.
type CounterSignal struct {
	Detected    bool      `json:"detected"`
	Direction   Direction `json:"direction,omitempty"`
	BlockNumber int       `json:"block_number,omitempty"`
	TimeAgainst float64   `json:"time_against,omitempty"`
}

// PredictionResult is the locked directional call for one period.
type PredictionResult struct {
	Instrument       string        `json:"instrument"`
	Period           Period        `json:"period"`
	Direction        Direction     `json:"direction"`
	Strength         Strength      `json:"strength"`
	PeriodOpen       float64       `json:"period_open"`
	Volatility       float64       `json:"volatility"`
	Blocks           []Block       `json:"blocks"`
	EarlyBias        EarlyBias     `json:"early_bias"`
	Counter          CounterSignal `json:"counter"`
	FinalDeviation   float64       `json:"final_deviation"`
	InsufficientData bool          `json:"insufficient_data"`
	Warnings         []string      `json:"warnings,omitempty"`
	LockedAt         time.Time     `json:"locked_at"`
	EvaluationTimeMs int64         `json:"evaluation_time_ms"`
}

// ComponentScore is one scored component for one direction.
type ComponentScore struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	MissingData bool    `json:"missing_data,omitempty"`
}

// BiasRating buckets the winning side's total into a confidence grade.
type BiasRating int

const (
	RatingPoor BiasRating = iota
	RatingMarginal
	RatingAcceptable
	RatingHigh
	RatingElite
)

func (r BiasRating) String() string {
	switch r {
	case RatingElite:
		return "ELITE"
	case RatingHigh:
		return "HIGH"
	case RatingAcceptable:
		return "ACCEPTABLE"
	case RatingMarginal:
		return "MARGINAL"
	default:
		return "POOR"
	}
}

// ParseBiasRating converts a wire string back into a BiasRating.
func ParseBiasRating(s string) (BiasRating, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ELITE":
		return RatingElite, nil
	case "HIGH":
		return RatingHigh, nil
	case "ACCEPTABLE":
		return RatingAcceptable, nil
	case "MARGINAL":
		return RatingMarginal, nil
	case "POOR", "":
		return RatingPoor, nil
	default:
		return RatingPoor, fmt.Errorf("unknown bias rating %q", s)
	}
}

func (r BiasRating) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *BiasRating) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseBiasRating(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// DualScore is the independent bullish and bearish assessment of an
// instrument at a point in time. Totals are clipped to [0, 105].
type DualScore struct {
	Instrument              string           `json:"instrument"`
	Price                   float64          `json:"price"`
	BullishTotal            float64          `json:"bullish_total"`
	BearishTotal            float64          `json:"bearish_total"`
	BullishComponents       []ComponentScore `json:"bullish_components"`
	BearishComponents       []ComponentScore `json:"bearish_components"`
	Bias                    Direction        `json:"bias"`
	Rating                  BiasRating       `json:"rating"`
	StarRating              int              `json:"star_rating"`
	DataCompletenessPercent float64          `json:"data_completeness_percent"`
	Warnings                []string         `json:"warnings,omitempty"`
	CalculatedAt            time.Time        `json:"calculated_at"`
	EvaluationTimeMs        int64            `json:"evaluation_time_ms"`
}
