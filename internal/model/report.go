package model

import "time"

type TimeframeAlignment struct {
	ExpectedBars int64     `json:"expected_bars"`
	ActualBars   int64     `json:"actual_bars"`
	GapsFixed    int       `json:"gaps_fixed"`
	ResidualGaps int       `json:"residual_gaps"`
	Status       string    `json:"status"`
	Score        float64   `json:"alignment_score"`
	Gaps         []Gap     `json:"gaps,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// AlignmentReport is the per-symbol multi-timeframe audit written once per run.
type AlignmentReport struct {
	Symbol      string                        `json:"symbol"`
	GeneratedAt time.Time                     `json:"generated_at"`
	WindowStart int64                         `json:"window_start_ms"`
	WindowEnd   int64                         `json:"window_end_ms"`
	Timeframes  map[string]TimeframeAlignment `json:"timeframes"`
	TotalBars   int64                         `json:"total_bars"`
	TotalGaps   int                           `json:"total_residual_gaps"`
	Score       float64                       `json:"alignment_score"`
	Status      string                        `json:"status"` // ok | warning
}

// ProgressSnapshot is what the external notifier polls. Single writer
// (the orchestrator), any number of readers.
type ProgressSnapshot struct {
	TotalUnits       int           `json:"total_units"`
	CompletedUnits   int           `json:"completed_units"`
	CurrentSymbol    string        `json:"current_symbol"`
	CurrentTimeframe string        `json:"current_timeframe"`
	CurrentAction    string        `json:"current_action"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	LastUnitStats    *UnitStats    `json:"last_unit_stats,omitempty"`
}
