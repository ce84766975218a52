package progress

import (
	"sync"
	"time"

	"github.com/ohlc-tools/history-repair/internal/model"
)

// Tracker holds the live run progress. The orchestrator is the only
// writer; the notifier endpoint reads snapshots at its own pace, so the
// engine never blocks on delivery.
type Tracker struct {
	mu      sync.RWMutex
	started time.Time
	current model.ProgressSnapshot
}

func NewTracker(totalUnits int) *Tracker {
	return &Tracker{
		started: time.Now(),
		current: model.ProgressSnapshot{
			TotalUnits: totalUnits,
		},
	}
}

// SetAction records what the run is busy with right now.
func (t *Tracker) SetAction(symbol, timeframe, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.CurrentSymbol = symbol
	t.current.CurrentTimeframe = timeframe
	t.current.CurrentAction = action
}

// UnitDone bumps the completed counter and keeps the unit's stats around
// for the notifier to render.
func (t *Tracker) UnitDone(stats model.UnitStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.CompletedUnits++
	s := stats
	t.current.LastUnitStats = &s
}

func (t *Tracker) Snapshot() model.ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := t.current
	snap.Elapsed = time.Since(t.started)
	if t.current.LastUnitStats != nil {
		stats := *t.current.LastUnitStats
		snap.LastUnitStats = &stats
	}
	return snap
}
