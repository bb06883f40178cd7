package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ArtifactPaths locates everything a run wrote to disk.
type ArtifactPaths struct {
	OutputDir   string `json:"output_dir"`
	OutcomesCSV string `json:"outcomes_csv"`
	ResultsJSON string `json:"results_json"`
	ReportMD    string `json:"report_md"`
}

// Writer lands run artifacts under a per-run directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a writer rooted at outputDir. Each run writes into
// its own run-ID subdirectory.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// RunDir returns the directory a run's artifacts land in.
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.outputDir, runID)
}

// WriteAll writes the outcome CSV, the full results JSON and the
// markdown report for a run.
func (w *Writer) WriteAll(results *Results) (ArtifactPaths, error) {
	dir := w.RunDir(results.Summary.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ArtifactPaths{}, fmt.Errorf("create output dir: %w", err)
	}

	paths := ArtifactPaths{
		OutputDir:   dir,
		OutcomesCSV: filepath.Join(dir, "outcomes.csv"),
		ResultsJSON: filepath.Join(dir, "results.json"),
		ReportMD:    filepath.Join(dir, "report.md"),
	}

	if err := w.writeOutcomesCSV(paths.OutcomesCSV, results); err != nil {
		return ArtifactPaths{}, err
	}
	if err := w.writeResultsJSON(paths.ResultsJSON, results); err != nil {
		return ArtifactPaths{}, err
	}
	if err := w.writeReport(paths.ReportMD, results, paths); err != nil {
		return ArtifactPaths{}, err
	}
	return paths, nil
}

var csvHeader = []string{
	"period_start",
	"timeframe_minutes",
	"predicted",
	"strength",
	"realized",
	"correct",
	"excluded",
	"period_open",
	"actual_close",
	"deviation_at_lock",
	"data_completeness",
	"insufficient_data",
}

func (w *Writer) writeOutcomesCSV(path string, results *Results) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create outcomes csv: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range results.Outcomes {
		row := []string{
			o.Period.Start.UTC().Format(time.RFC3339),
			strconv.Itoa(o.Period.TimeframeMinutes),
			o.Predicted.String(),
			o.Strength.String(),
			o.Realized.String(),
			strconv.FormatBool(o.Correct),
			strconv.FormatBool(o.Excluded),
			strconv.FormatFloat(o.PeriodOpen, 'f', -1, 64),
			strconv.FormatFloat(o.ActualClose, 'f', -1, 64),
			strconv.FormatFloat(o.DeviationAtLock, 'f', -1, 64),
			strconv.FormatFloat(o.DataCompleteness, 'f', -1, 64),
			strconv.FormatBool(o.InsufficientData),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush outcomes csv: %w", err)
	}
	return nil
}

func (w *Writer) writeResultsJSON(path string, results *Results) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results json: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("encode results json: %w", err)
	}
	return nil
}

func (w *Writer) writeReport(path string, results *Results, paths ArtifactPaths) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(renderReport(results, paths)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func renderReport(results *Results, paths ArtifactPaths) string {
	s := results.Summary
	var report strings.Builder

	report.WriteString("# Backtest Report\n\n")
	report.WriteString(fmt.Sprintf("**Run ID**: %s\n", s.RunID))
	report.WriteString(fmt.Sprintf("**Instrument**: %s (%dm, %s)\n", s.Instrument, s.TimeframeMinutes, s.Mode))
	report.WriteString(fmt.Sprintf("**Range**: %s to %s\n", s.From.Format("2006-01-02 15:04"), s.To.Format("2006-01-02 15:04")))
	report.WriteString(fmt.Sprintf("**Generated**: %s\n\n", s.FinishedAt.Format("2006-01-02 15:04:05 UTC")))

	report.WriteString("## Accuracy\n\n")
	report.WriteString(fmt.Sprintf("- **Overall**: %.2f%% (%d correct of %d decided)\n", s.Accuracy, s.Correct, s.Decided))
	if s.UpPredictions > 0 {
		report.WriteString(fmt.Sprintf("- **UP calls**: %.2f%% (%d of %d)\n", s.UpAccuracy, s.UpCorrect, s.UpPredictions))
	}
	if s.DownPredictions > 0 {
		report.WriteString(fmt.Sprintf("- **DOWN calls**: %.2f%% (%d of %d)\n", s.DownAccuracy, s.DownCorrect, s.DownPredictions))
	}
	report.WriteString(fmt.Sprintf("- **Neutral calls**: %d\n", s.NeutralPredictions))
	report.WriteString(fmt.Sprintf("- **Neutral outcomes excluded**: %d\n\n", s.Total-s.Decided))

	report.WriteString("## Coverage\n\n")
	d := s.Diagnostics
	report.WriteString(fmt.Sprintf("- **Bar coverage**: %.1f%% of the expected one-minute bars\n", s.BarCoverage))
	report.WriteString(fmt.Sprintf("- **Periods**: %d generated, %d analyzed\n", d.Generated, d.Analyzed))
	report.WriteString(fmt.Sprintf("- **Skipped**: %d without bars, %d under the completeness minimum, %d failed analysis\n\n", d.NoBars, d.Insufficient, d.Errors))

	report.WriteString("## Artifacts\n\n")
	report.WriteString(fmt.Sprintf("- **Outcomes CSV**: `%s`\n", paths.OutcomesCSV))
	report.WriteString(fmt.Sprintf("- **Results JSON**: `%s`\n", paths.ResultsJSON))

	return report.String()
}
