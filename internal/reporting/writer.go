package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/rs/zerolog"
)

// File names inside a report directory.
const (
	SummaryFile    = "scenarios_comparison_summary.csv"
	ReportFile     = "summary_report.txt"
	GrowthFile     = "portfolio_growth_chart.png"
	dirPermissions = 0755
)

// Writer lays out a report directory for one run.
type Writer struct {
	Charts         bool
	YearOfInterest int
	log            zerolog.Logger
}

// NewWriter creates a new report writer.
func NewWriter(charts bool, yearOfInterest int, log zerolog.Logger) *Writer {
	return &Writer{
		Charts:         charts,
		YearOfInterest: yearOfInterest,
		log:            log.With().Str("component", "report_writer").Logger(),
	}
}

// WriteRun writes one directory per successful scenario plus the comparison
// CSV, and returns the paths written. Failed scenarios get no directory.
// Names that sanitize to the same directory get a numeric suffix.
// A chart that fails to render is logged and skipped.
func (w *Writer) WriteRun(dir string, outcomes []scenarios.Outcome) ([]string, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	written := make([]string, 0, 2*len(outcomes)+1)
	used := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}

		base := ScenarioDirName(o.Scenario.Name)
		name := uniqueDirName(base, used)
		if name != base {
			w.log.Warn().Str("scenario", o.Scenario.Name).Str("dir", name).Msg("Scenario directory name collides, using suffix")
		}
		scenarioDir := filepath.Join(dir, name)
		if err := os.MkdirAll(scenarioDir, dirPermissions); err != nil {
			return written, fmt.Errorf("failed to create scenario directory: %w", err)
		}

		reportPath := filepath.Join(scenarioDir, ReportFile)
		if err := os.WriteFile(reportPath, []byte(TextReport(o)), 0644); err != nil {
			return written, fmt.Errorf("failed to write report for %s: %w", o.Scenario.Name, err)
		}
		written = append(written, reportPath)

		if !w.Charts {
			continue
		}
		png, err := GrowthChart(o)
		if err != nil {
			w.log.Warn().Err(err).Str("scenario", o.Scenario.Name).Msg("Failed to render growth chart")
			continue
		}
		chartPath := filepath.Join(scenarioDir, GrowthFile)
		if err := os.WriteFile(chartPath, png, 0644); err != nil {
			return written, fmt.Errorf("failed to write chart for %s: %w", o.Scenario.Name, err)
		}
		written = append(written, chartPath)
	}

	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, scenarios.SummaryRows(outcomes, w.YearOfInterest), w.YearOfInterest); err != nil {
		return written, err
	}
	summaryPath := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(summaryPath, buf.Bytes(), 0644); err != nil {
		return written, fmt.Errorf("failed to write summary: %w", err)
	}
	written = append(written, summaryPath)

	w.log.Info().Str("dir", dir).Int("files", len(written)).Msg("Reports written")
	return written, nil
}

// uniqueDirName appends _2, _3, ... until name is unused. Names are compared
// case-insensitively so reports survive case-insensitive filesystems.
func uniqueDirName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// ScenarioDirName turns a scenario name into a safe directory name.
func ScenarioDirName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "scenario"
	}
	return clean
}
