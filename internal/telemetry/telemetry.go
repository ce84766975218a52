package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
)

// RunTelemetry is the run-level counter state: created at run start,
// populated by each completed unit, persisted once at run end.
type RunTelemetry struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalUnits     int `json:"total_units"`
	CompletedUnits int `json:"completed_units"`
	WarningUnits   int `json:"warning_units"`
	ErrorUnits     int `json:"error_units"`

	RowsBefore    int `json:"rows_before"`
	RowsAfter     int `json:"rows_after"`
	NewRows       int `json:"new_rows"`
	DupRemoved    int `json:"dup_removed"`
	GapsFixed     int `json:"gaps_fixed"`
	Retries       int `json:"retries"`
	RateLimitHits int `json:"rate_limit_hits"`
	APIErrors     int `json:"api_errors"`
	FilesWritten  int `json:"files_written"`

	Units []model.UnitStats `json:"units"`
}

// Aggregator accumulates unit stats across workers. All methods are safe
// for concurrent use.
type Aggregator struct {
	mu  sync.Mutex
	run RunTelemetry

	reportsDir string
	logger     logger.Logger
}

func NewAggregator(reportsDir string, logger logger.Logger) *Aggregator {
	return &Aggregator{
		run: RunTelemetry{
			StartedAt: time.Now().UTC(),
		},
		reportsDir: reportsDir,
		logger:     logger,
	}
}

func (a *Aggregator) SetTotalUnits(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.run.TotalUnits = n
}

func (a *Aggregator) Record(stats model.UnitStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch stats.Status {
	case model.UnitCompleted:
		a.run.CompletedUnits++
	case model.UnitWarning:
		a.run.WarningUnits++
	case model.UnitError:
		a.run.ErrorUnits++
	}

	a.run.RowsBefore += stats.RowsBefore
	a.run.RowsAfter += stats.RowsAfter
	a.run.NewRows += stats.NewRows
	a.run.DupRemoved += stats.DupRemoved
	a.run.GapsFixed += stats.GapsFixed
	a.run.Retries += stats.Retries
	a.run.RateLimitHits += stats.RateLimitHits
	a.run.APIErrors += stats.APIErrors
	a.run.FilesWritten += stats.FilesWritten

	a.run.Units = append(a.run.Units, stats)
}

// Snapshot returns a copy of the accumulated state.
func (a *Aggregator) Snapshot() RunTelemetry {
	a.mu.Lock()
	defer a.mu.Unlock()

	run := a.run
	run.Units = make([]model.UnitStats, len(a.run.Units))
	copy(run.Units, a.run.Units)
	return run
}

func (a *Aggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.run.ErrorUnits > 0
}

// Persist writes the run summary to a new timestamped file. Reports are
// append-only artifacts: an existing file is never overwritten.
func (a *Aggregator) Persist() (string, error) {
	a.mu.Lock()
	a.run.FinishedAt = time.Now().UTC()
	run := a.run
	a.mu.Unlock()

	if err := os.MkdirAll(a.reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("can't create reports dir: %w", err)
	}

	name := fmt.Sprintf("repair_telemetry_%s.json", run.FinishedAt.Format("20060102_150405"))
	path := filepath.Join(a.reportsDir, name)

	data, err := sonic.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("can't marshal telemetry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("can't create telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("can't write telemetry: %w", err)
	}
	return path, nil
}

type symbolSummary struct {
	units      int
	dupRemoved int
	gapsFixed  int
	newRows    int
	errors     int
	errorUnits []string
}

// RenderSummary prints the per-symbol run summary table, calling out any
// unit that ended in error so operators can re-run just that unit.
func (a *Aggregator) RenderSummary(w io.Writer) {
	run := a.Snapshot()

	bySymbol := make(map[string]*symbolSummary)
	for _, u := range run.Units {
		s, ok := bySymbol[u.Symbol]
		if !ok {
			s = &symbolSummary{}
			bySymbol[u.Symbol] = s
		}
		s.units++
		s.dupRemoved += u.DupRemoved
		s.gapsFixed += u.GapsFixed
		s.newRows += u.NewRows
		s.errors += len(u.Errors)
		if u.Status == model.UnitError {
			s.errorUnits = append(s.errorUnits, u.Symbol+"/"+u.Timeframe)
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	totalErrors := 0
	for sym, s := range bySymbol {
		symbols = append(symbols, sym)
		totalErrors += s.errors
	}
	sort.Strings(symbols)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"SYMBOL", "UNITS", "DUPS REMOVED", "GAPS FIXED", "NEW ROWS", "ERRORS"})
	for _, sym := range symbols {
		s := bySymbol[sym]
		tw.AppendRow(table.Row{sym, s.units, s.dupRemoved, s.gapsFixed, s.newRows, s.errors})
	}
	tw.AppendFooter(table.Row{"TOTAL", run.TotalUnits, run.DupRemoved, run.GapsFixed, run.NewRows, totalErrors})
	tw.Render()

	for _, sym := range symbols {
		for _, unit := range bySymbol[sym].errorUnits {
			fmt.Fprintf(w, "unit %s ended in error, re-run it separately\n", unit)
		}
	}
}
