package backtest

import (
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Mode selects how test periods are generated over the date range.
type Mode string

const (
	// ModeAligned tiles the clock 24/7 in timeframe-sized steps, the
	// way the live scheduler sees periods.
	ModeAligned Mode = "aligned"

	// ModeSession opens one period per weekday at a fixed hour, for
	// instruments that only trade a daily session.
	ModeSession Mode = "session"
)

// Config holds a backtest run's settings.
type Config struct {
	Instrument       string `json:"instrument"`
	TimeframeMinutes int    `json:"timeframe_minutes"`
	Mode             Mode   `json:"mode"`

	// SessionStartHour is the UTC hour a session-mode period opens.
	// Ignored in aligned mode.
	SessionStartHour int `json:"session_start_hour"`

	// WarmupHours widens the per-period bar slice backwards so early
	// blocks have history behind them.
	WarmupHours int `json:"warmup_hours"`

	// CompletenessMinPercent skips periods whose bar coverage falls
	// below it. Zero disables the filter.
	CompletenessMinPercent float64 `json:"completeness_min_percent"`

	OutputDir string `json:"output_dir"`
}

// DefaultConfig returns the settings the CLI starts from.
func DefaultConfig() Config {
	return Config{
		Instrument:             "NQ=F",
		TimeframeMinutes:       120,
		Mode:                   ModeAligned,
		SessionStartHour:       10,
		WarmupHours:            1,
		CompletenessMinPercent: 5,
		OutputDir:              "out/backtest",
	}
}

// PeriodOutcome is one period's locked prediction scored against what
// the market actually did.
type PeriodOutcome struct {
	Period           domain.Period    `json:"period"`
	Predicted        domain.Direction `json:"predicted"`
	Strength         domain.Strength  `json:"strength"`
	PeriodOpen       float64          `json:"period_open"`
	ActualClose      float64          `json:"actual_close"`
	Realized         domain.Direction `json:"realized"`
	Correct          bool             `json:"correct"`
	Excluded         bool             `json:"excluded"`
	DeviationAtLock  float64          `json:"deviation_at_lock"`
	DataCompleteness float64          `json:"data_completeness"`
	InsufficientData bool             `json:"insufficient_data"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// Diagnostics counts generated periods that never produced an outcome,
// so a low accuracy can be told apart from a thin dataset.
type Diagnostics struct {
	Generated    int `json:"generated"`
	NoBars       int `json:"no_bars"`
	Insufficient int `json:"insufficient"`
	Errors       int `json:"errors"`
	Analyzed     int `json:"analyzed"`
}

// Summary aggregates one run. Accuracy counts only decided periods:
// a period whose realized direction is neutral is excluded rather than
// marked wrong.
type Summary struct {
	RunID            string    `json:"run_id"`
	Instrument       string    `json:"instrument"`
	TimeframeMinutes int       `json:"timeframe_minutes"`
	Mode             Mode      `json:"mode"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`

	// BarCoverage is fetched bars as a percentage of the one-minute
	// bars the range should contain.
	BarCoverage float64 `json:"bar_coverage_percent"`

	Total     int     `json:"total"`
	Decided   int     `json:"decided"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy_percent"`

	UpPredictions   int     `json:"up_predictions"`
	UpCorrect       int     `json:"up_correct"`
	UpAccuracy      float64 `json:"up_accuracy_percent"`
	DownPredictions int     `json:"down_predictions"`
	DownCorrect     int     `json:"down_correct"`
	DownAccuracy    float64 `json:"down_accuracy_percent"`

	// NeutralPredictions counts periods where the engine itself called
	// no direction, whatever the outcome.
	NeutralPredictions int `json:"neutral_predictions"`

	Diagnostics Diagnostics `json:"diagnostics"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Results couples a run's summary with every evaluated period.
type Results struct {
	Summary  Summary         `json:"summary"`
	Outcomes []PeriodOutcome `json:"outcomes"`
}

// summarize folds the outcomes into the run summary counters.
func summarize(summary *Summary, outcomes []PeriodOutcome) {
	summary.Total = len(outcomes)
	for _, o := range outcomes {
		if o.Predicted == domain.DirectionNeutral {
			summary.NeutralPredictions++
		}
		if o.Excluded {
			continue
		}
		summary.Decided++
		if o.Correct {
			summary.Correct++
		}
		switch o.Predicted {
		case domain.DirectionUp:
			summary.UpPredictions++
			if o.Correct {
				summary.UpCorrect++
			}
		case domain.DirectionDown:
			summary.DownPredictions++
			if o.Correct {
				summary.DownCorrect++
			}
		}
	}
	summary.Incorrect = summary.Decided - summary.Correct
	if summary.Decided > 0 {
		summary.Accuracy = float64(summary.Correct) / float64(summary.Decided) * 100
	}
	if summary.UpPredictions > 0 {
		summary.UpAccuracy = float64(summary.UpCorrect) / float64(summary.UpPredictions) * 100
	}
	if summary.DownPredictions > 0 {
		summary.DownAccuracy = float64(summary.DownCorrect) / float64(summary.DownPredictions) * 100
	}
}
