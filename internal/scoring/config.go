package scoring

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// ScoreConfig holds every weight, cap and table the dual-direction
// scorer uses. Weight tables are enumerated fields rather than open
// maps so a missing or mistyped weight fails at load, not by silently
// scoring zero.
type ScoreConfig struct {
	MaxHTFBias      float64 `yaml:"max_htf_bias"`     // 30 pts: higher-timeframe level agreement
	MaxKillZone     float64 `yaml:"max_kill_zone"`    // 20 pts: session timing quality
	MaxPDArray      float64 `yaml:"max_pd_array"`     // 25 pts: premium/discount array confluence
	MaxLiquidity    float64 `yaml:"max_liquidity"`    // 15 pts: liquidity raid quality
	MaxStructure    float64 `yaml:"max_structure"`    // 10 pts: structure break alignment
	EquilibriumSpan float64 `yaml:"equilibrium_span"` // ±5 pts: symmetric open-agreement bonus

	Levels      LevelWeights      `yaml:"levels"`
	Sessions    SessionWeights    `yaml:"sessions"`
	Days        DayMultipliers    `yaml:"days"`
	PDArrays    PDArrayConfig     `yaml:"pd_arrays"`
	Liquidity   LiquidityScoring  `yaml:"liquidity"`
	Structure   StructureScoring  `yaml:"structure"`
	Equilibrium EquilibriumConfig `yaml:"equilibrium"`
}

// LevelWeights assigns bias weight to the eight scored reference
// levels. The Asian range levels carry no direct bias weight; they feed
// the liquidity detector instead.
type LevelWeights struct {
	WeeklyOpen  float64 `yaml:"weekly_open"`
	DailyOpen   float64 `yaml:"daily_open"`
	PrevDayHigh float64 `yaml:"prev_day_high"`
	PrevDayLow  float64 `yaml:"prev_day_low"`
	NYOpen      float64 `yaml:"ny_open"`
	H4Open      float64 `yaml:"h4_open"`
	H1Open      float64 `yaml:"h1_open"`
	MonthlyOpen float64 `yaml:"monthly_open"`
}

// For returns the configured weight for a level type; false means the
// type carries no bias weight.
func (w LevelWeights) For(t domain.LevelType) (float64, bool) {
	switch t {
	case domain.LevelWeeklyOpen:
		return w.WeeklyOpen, true
	case domain.LevelDailyOpen:
		return w.DailyOpen, true
	case domain.LevelPrevDayHigh:
		return w.PrevDayHigh, true
	case domain.LevelPrevDayLow:
		return w.PrevDayLow, true
	case domain.LevelNYOpen:
		return w.NYOpen, true
	case domain.LevelH4Open:
		return w.H4Open, true
	case domain.LevelH1Open:
		return w.H1Open, true
	case domain.LevelMonthlyOpen:
		return w.MonthlyOpen, true
	default:
		return 0, false
	}
}

// SessionWeights grades how much each named session matters to timing.
type SessionWeights struct {
	NYAM     float64 `yaml:"ny_am"`
	London   float64 `yaml:"london"`
	NYPM     float64 `yaml:"ny_pm"`
	Asian    float64 `yaml:"asian"`
	OffHours float64 `yaml:"off_hours"` // outside every named session
}

// For maps a session name to its weight; unknown names read as off-hours.
func (w SessionWeights) For(name string) float64 {
	switch name {
	case "NY_AM":
		return w.NYAM
	case "LONDON":
		return w.London
	case "NY_PM":
		return w.NYPM
	case "ASIAN":
		return w.Asian
	default:
		return w.OffHours
	}
}

// DayMultipliers scale timing by day of week.
type DayMultipliers struct {
	Monday    float64 `yaml:"monday"`
	Tuesday   float64 `yaml:"tuesday"`
	Wednesday float64 `yaml:"wednesday"`
	Thursday  float64 `yaml:"thursday"`
	Friday    float64 `yaml:"friday"`
	Saturday  float64 `yaml:"saturday"`
	Sunday    float64 `yaml:"sunday"`
}

func (d DayMultipliers) For(wd time.Weekday) float64 {
	switch wd {
	case time.Monday:
		return d.Monday
	case time.Tuesday:
		return d.Tuesday
	case time.Wednesday:
		return d.Wednesday
	case time.Thursday:
		return d.Thursday
	case time.Friday:
		return d.Friday
	case time.Saturday:
		return d.Saturday
	default:
		return d.Sunday
	}
}

// PDArrayConfig weights the premium/discount arrays and bounds how far
// price may sit from one and still earn credit.
type PDArrayConfig struct {
	WeeklyPivotWeight float64 `yaml:"weekly_pivot_weight"`
	DailyPivotWeight  float64 `yaml:"daily_pivot_weight"`
	FVGWeight         float64 `yaml:"fvg_weight"`
	PrevDayWeight     float64 `yaml:"prev_day_weight"`
	EquilibriumWeight float64 `yaml:"equilibrium_weight"` // prior-day midpoint boundary
	Tolerance         float64 `yaml:"tolerance"`          // full credit within this many points
	MaxDistanceMult   float64 `yaml:"max_distance_mult"`  // credit fades to zero at tolerance x this
}

// LiquidityScoring bounds which liquidity events are recent enough to
// score. Quality factors and hold bonuses travel on the event itself.
type LiquidityScoring struct {
	LookbackMinutes int `yaml:"lookback_minutes"`
}

// StructureScoring maps displacement grades to multipliers.
type StructureScoring struct {
	StrongFactor   float64 `yaml:"strong_factor"`
	ModerateFactor float64 `yaml:"moderate_factor"`
	WeakFactor     float64 `yaml:"weak_factor"`
}

// DisplacementFactor grades a break's displacement; NONE scores zero.
func (s StructureScoring) DisplacementFactor(d domain.Displacement) float64 {
	switch d {
	case domain.DisplacementStrong:
		return s.StrongFactor
	case domain.DisplacementModerate:
		return s.ModerateFactor
	case domain.DisplacementWeak:
		return s.WeakFactor
	default:
		return 0
	}
}

// EquilibriumConfig weights the five secondary reference opens used
// for the agreement bonus.
type EquilibriumConfig struct {
	MonthlyWeight float64 `yaml:"monthly_weight"`
	DailyWeight   float64 `yaml:"daily_weight"`
	NYWeight      float64 `yaml:"ny_weight"`
	H4Weight      float64 `yaml:"h4_weight"`
	H1Weight      float64 `yaml:"h1_weight"`
}

// DefaultScoreConfig returns the production weight tables.
func DefaultScoreConfig() *ScoreConfig {
	return &ScoreConfig{
		MaxHTFBias:      30.0,
		MaxKillZone:     20.0,
		MaxPDArray:      25.0,
		MaxLiquidity:    15.0,
		MaxStructure:    10.0,
		EquilibriumSpan: 5.0,

		Levels: LevelWeights{
			WeeklyOpen:  3.0,
			DailyOpen:   3.0,
			PrevDayHigh: 2.5,
			PrevDayLow:  2.5,
			NYOpen:      2.0,
			H4Open:      1.5,
			H1Open:      1.0,
			MonthlyOpen: 1.0,
		},
		Sessions: SessionWeights{
			NYAM:     3.0,
			London:   2.5,
			NYPM:     2.0,
			Asian:    1.5,
			OffHours: 0.5,
		},
		Days: DayMultipliers{
			Monday:    1.00,
			Tuesday:   1.15,
			Wednesday: 1.15,
			Thursday:  0.85,
			Friday:    0.70,
			Saturday:  0.70,
			Sunday:    1.00,
		},
		PDArrays: PDArrayConfig{
			WeeklyPivotWeight: 2.5,
			DailyPivotWeight:  2.0,
			FVGWeight:         2.5,
			PrevDayWeight:     2.0,
			EquilibriumWeight: 1.5,
			Tolerance:         5.0,
			MaxDistanceMult:   5.0,
		},
		Liquidity: LiquidityScoring{
			LookbackMinutes: 240,
		},
		Structure: StructureScoring{
			StrongFactor:   1.0,
			ModerateFactor: 0.7,
			WeakFactor:     0.4,
		},
		Equilibrium: EquilibriumConfig{
			MonthlyWeight: 1.0,
			DailyWeight:   3.0,
			NYWeight:      2.0,
			H4Weight:      1.5,
			H1Weight:      1.0,
		},
	}
}

// LoadScoreConfig reads weight tables from a YAML file, layering them
// over the defaults so partial files stay valid.
func LoadScoreConfig(configPath string) (*ScoreConfig, error) {
	data, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultScoreConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Validate rejects weight tables that cannot produce sane scores.
func (c *ScoreConfig) Validate() error {
	for name, v := range map[string]float64{
		"max_htf_bias":     c.MaxHTFBias,
		"max_kill_zone":    c.MaxKillZone,
		"max_pd_array":     c.MaxPDArray,
		"max_liquidity":    c.MaxLiquidity,
		"max_structure":    c.MaxStructure,
		"equilibrium_span": c.EquilibriumSpan,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, v)
		}
	}

	for name, v := range map[string]float64{
		"levels.weekly_open":   c.Levels.WeeklyOpen,
		"levels.daily_open":    c.Levels.DailyOpen,
		"levels.prev_day_high": c.Levels.PrevDayHigh,
		"levels.prev_day_low":  c.Levels.PrevDayLow,
		"levels.ny_open":       c.Levels.NYOpen,
		"levels.h4_open":       c.Levels.H4Open,
		"levels.h1_open":       c.Levels.H1Open,
		"levels.monthly_open":  c.Levels.MonthlyOpen,
		"sessions.ny_am":       c.Sessions.NYAM,
		"sessions.london":      c.Sessions.London,
		"sessions.ny_pm":       c.Sessions.NYPM,
		"sessions.asian":       c.Sessions.Asian,
		"sessions.off_hours":   c.Sessions.OffHours,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %f", name, v)
		}
	}

	for name, v := range map[string]float64{
		"structure.strong_factor":   c.Structure.StrongFactor,
		"structure.moderate_factor": c.Structure.ModerateFactor,
		"structure.weak_factor":     c.Structure.WeakFactor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %f", name, v)
		}
	}

	if c.PDArrays.Tolerance <= 0 {
		return fmt.Errorf("pd_arrays.tolerance must be positive, got %f", c.PDArrays.Tolerance)
	}
	if c.PDArrays.MaxDistanceMult < 1 {
		return fmt.Errorf("pd_arrays.max_distance_mult must be at least 1, got %f", c.PDArrays.MaxDistanceMult)
	}
	if c.Liquidity.LookbackMinutes <= 0 {
		return fmt.Errorf("liquidity.lookback_minutes must be positive, got %d", c.Liquidity.LookbackMinutes)
	}
	return nil
}
