package domain

import "time"

// LevelType identifies a higher-timeframe reference level.
type LevelType string

const (
	LevelWeeklyOpen  LevelType = "WEEKLY_OPEN"
	LevelMonthlyOpen LevelType = "MONTHLY_OPEN"
	LevelDailyOpen   LevelType = "DAILY_OPEN"
	LevelNYOpen      LevelType = "NY_OPEN"
	LevelH4Open      LevelType = "H4_OPEN"
	LevelH1Open      LevelType = "H1_OPEN"
	LevelAsianHigh   LevelType = "ASIAN_HIGH"
	LevelAsianLow    LevelType = "ASIAN_LOW"
	LevelPrevDayHigh LevelType = "PREV_DAY_HIGH"
	LevelPrevDayLow  LevelType = "PREV_DAY_LOW"
)

// ReferenceLevel is a named higher-timeframe price with the weight it
// carries in directional scoring. Levels the calculator could not
// derive from the available bars are simply absent.
type ReferenceLevel struct {
	Type   LevelType `json:"type"`
	Value  float64   `json:"value"`
	Weight float64   `json:"weight"`
}

// Pivot set timeframes.
const (
	PivotWeekly = "WEEKLY"
	PivotDaily  = "DAILY"
)

// PivotSet holds Fibonacci pivots derived from one prior period's
// high, low and close.
type PivotSet struct {
	Timeframe string  `json:"timeframe"`
	Pivot     float64 `json:"pivot"`
	R1        float64 `json:"r1"`
	R2        float64 `json:"r2"`
	R3        float64 `json:"r3"`
	S1        float64 `json:"s1"`
	S2        float64 `json:"s2"`
	S3        float64 `json:"s3"`
}

// Levels returns all seven pivot prices keyed by name.
func (p PivotSet) Levels() map[string]float64 {
	return map[string]float64{
		"PP": p.Pivot,
		"R1": p.R1, "R2": p.R2, "R3": p.R3,
		"S1": p.S1, "S2": p.S2, "S3": p.S3,
	}
}

// EventType groups raided levels into liquidity pools for weighting.
type EventType string

const (
	EventAsiaRange EventType = "ASIA_RANGE"
	EventPrevDayHL EventType = "PREV_DAY_HL"
	EventEqualHL   EventType = "EQUAL_HL"
	EventSessionHL EventType = "SESSION_HL"
)

// RaidQuality grades how decisively a sweep took a level.
type RaidQuality string

const (
	RaidClean    RaidQuality = "CLEAN"     // closed beyond the level
	RaidWick     RaidQuality = "WICK"      // pierced and closed back
	RaidNearMiss RaidQuality = "NEAR_MISS" // came within tolerance
	RaidFailed   RaidQuality = "FAILED"
)

// LiquidityEvent records one sweep of a tracked level. Direction UP
// means sell-side liquidity below price was taken, which supports the
// bullish case; DOWN is the mirror.
type LiquidityEvent struct {
	Type          EventType   `json:"type"`
	Level         LevelType   `json:"level"`
	Direction     Direction   `json:"direction"`
	LevelPrice    float64     `json:"level_price"`
	SweepPrice    float64     `json:"sweep_price"`
	Quality       RaidQuality `json:"quality"`
	QualityFactor float64     `json:"quality_factor"`
	HoldMinutes   int         `json:"hold_minutes"`
	HoldBonus     float64     `json:"hold_bonus"`
	Weight        float64     `json:"weight"`
	Timestamp     time.Time   `json:"timestamp"`
}

// BreakType distinguishes continuation breaks from reversals.
type BreakType string

const (
	BreakBOS   BreakType = "BOS"   // break of structure, with trend
	BreakCHoCH BreakType = "CHOCH" // change of character, against trend
)

// Displacement grades the conviction of the move that broke structure.
type Displacement string

const (
	DisplacementStrong   Displacement = "STRONG"
	DisplacementModerate Displacement = "MODERATE"
	DisplacementWeak     Displacement = "WEAK"
	DisplacementNone     Displacement = "NONE"
)

// StructureBreak records a break of swing structure on one timeframe.
type StructureBreak struct {
	Type         BreakType    `json:"type"`
	Direction    Direction    `json:"direction"`
	Timeframe    string       `json:"timeframe"`
	Level        float64      `json:"level"`
	Displacement Displacement `json:"displacement"`
	Weight       float64      `json:"weight"`
	Timestamp    time.Time    `json:"timestamp"`
}

// FairValueGap is a three-candle imbalance left on the 15m chart. The
// timestamp is the middle candle's open.
type FairValueGap struct {
	Direction Direction `json:"direction"`
	Top       float64   `json:"top"`
	Bottom    float64   `json:"bottom"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Midpoint is the gap's consequent encroachment, the price magnets
// watch for a fill.
func (g FairValueGap) Midpoint() float64 {
	return (g.Top + g.Bottom) / 2
}
