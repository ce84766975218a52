package audit

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/series"
	"github.com/ohlc-tools/history-repair/internal/store"
	"github.com/ohlc-tools/history-repair/internal/timeframe"
)

const _yearMillis = 365 * 24 * int64(time.Hour/time.Millisecond)

// Auditor compares expected vs actual bar counts per timeframe after
// repair and records gaps that survived the repair attempts.
type Auditor struct {
	store         *store.Store
	reportsDir    string
	lookbackYears int

	now func() time.Time

	logger logger.Logger
}

func NewAuditor(st *store.Store, reportsDir string, lookbackYears int, logger logger.Logger) *Auditor {
	return &Auditor{
		store:         st,
		reportsDir:    reportsDir,
		lookbackYears: lookbackYears,
		now:           time.Now,
		logger:        logger,
	}
}

// Audit builds the alignment report for one symbol from its finished
// units. It reloads each repaired file, so it must only run after every
// timeframe unit of the symbol reached a terminal state.
func (a *Auditor) Audit(symbol string, units []model.UnitStats) (model.AlignmentReport, error) {
	now := a.now().UTC()
	windowEnd := now.UnixMilli()
	windowStart := windowEnd - int64(a.lookbackYears)*_yearMillis

	report := model.AlignmentReport{
		Symbol:      symbol,
		GeneratedAt: now,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Timeframes:  make(map[string]model.TimeframeAlignment, len(units)),
		Status:      "ok",
	}

	var totalExpected int64
	for _, unit := range units {
		tfReport, err := a.auditTimeframe(symbol, unit, windowStart, windowEnd)
		if err != nil {
			return report, fmt.Errorf("can't audit %s %s: %w", symbol, unit.Timeframe, err)
		}
		report.Timeframes[unit.Timeframe] = tfReport

		totalExpected += tfReport.ExpectedBars
		report.TotalBars += tfReport.ActualBars
		report.TotalGaps += tfReport.ResidualGaps
	}

	report.Score = alignmentScore(report.TotalBars, totalExpected)
	if report.TotalGaps > 0 {
		report.Status = "warning"
	}
	return report, nil
}

func (a *Auditor) auditTimeframe(symbol string, unit model.UnitStats, windowStart, windowEnd int64) (model.TimeframeAlignment, error) {
	interval, err := timeframe.IntervalMillis(unit.Timeframe)
	if err != nil {
		return model.TimeframeAlignment{}, err
	}
	expected, err := timeframe.ExpectedBars(unit.Timeframe, windowStart, windowEnd)
	if err != nil {
		return model.TimeframeAlignment{}, err
	}

	s, _, err := a.store.Load(symbol, unit.Timeframe)
	if err != nil {
		return model.TimeframeAlignment{}, err
	}
	residual := series.DetectGaps(s, interval)

	out := model.TimeframeAlignment{
		ExpectedBars: expected,
		ActualBars:   int64(len(s)),
		GapsFixed:    unit.GapsFixed,
		ResidualGaps: len(residual),
		Gaps:         residual,
		Status:       "ok",
		Score:        alignmentScore(int64(len(s)), expected),
		CheckedAt:    a.now().UTC(),
	}
	if out.ResidualGaps > 0 {
		out.Status = "warning"
	}
	return out, nil
}

// alignmentScore is actual/expected*100, rounded to 2 decimals, capped
// at 100 (history can legitimately hold more bars than the window).
func alignmentScore(actual, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	score := float64(actual) / float64(expected) * 100
	score = math.Round(score*100) / 100
	if score > 100 {
		score = 100
	}
	return score
}

// Write persists one report per symbol per run, never overwriting a
// previous artifact.
func (a *Auditor) Write(report model.AlignmentReport) (string, error) {
	dir := filepath.Join(a.reportsDir, "alignment")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("can't create alignment dir: %w", err)
	}

	name := fmt.Sprintf("%s_alignment_%s.json", report.Symbol, report.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := sonic.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("can't marshal report: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("can't create report file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("can't write report: %w", err)
	}

	a.logger.Infof("alignment report for %s: score %.2f, %d residual gaps", report.Symbol, report.Score, report.TotalGaps)
	return path, nil
}
