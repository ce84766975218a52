package repair

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ohlc-tools/history-repair/internal/exchange"
	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/series"
	"github.com/ohlc-tools/history-repair/internal/timeframe"
)

// Unit is one (symbol, timeframe) repair target. Each unit exclusively
// owns its file and series, so units never need locking between them.
type Unit struct {
	Symbol    string
	Timeframe string
}

type unitState int

const (
	statePending unitState = iota
	stateLoaded
	stateDeduped
	stateGapsDetected
	statePatched
	stateValidated
	stateWritten
)

func (s unitState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateLoaded:
		return "loaded"
	case stateDeduped:
		return "deduped"
	case stateGapsDetected:
		return "gaps_detected"
	case statePatched:
		return "patched"
	case stateValidated:
		return "validated"
	case stateWritten:
		return "written"
	}
	return "unknown"
}

const (
	_maxAttempts   = 3
	_maxBackoffExp = 6 // caps the delay factor at 2^6 = 64
)

// ErrRetryExhausted marks a gap whose fetch budget ran out. The gap stays
// unrepaired and the unit ends at least in warning.
var ErrRetryExhausted = errors.New("fetch retry budget exhausted")

// runUnit drives one unit through the full pipeline:
// load -> dedup -> sort -> detect gaps -> fetch patches -> merge ->
// validate -> write. Every failure is captured into the unit's stats and
// never aborts the rest of the run.
func (o *Orchestrator) runUnit(ctx context.Context, unit Unit) model.UnitStats {
	stats := model.UnitStats{
		Symbol:    unit.Symbol,
		Timeframe: unit.Timeframe,
		Status:    model.UnitProcessing,
	}
	state := statePending

	interval, err := timeframe.IntervalMillis(unit.Timeframe)
	if err != nil {
		return o.failUnit(&stats, state, err)
	}

	o.tracker.SetAction(unit.Symbol, unit.Timeframe, "loading")
	s, dropped, err := o.store.Load(unit.Symbol, unit.Timeframe)
	if err != nil {
		return o.failUnit(&stats, state, err)
	}
	state = stateLoaded
	stats.RowsBefore = len(s)
	if dropped > 0 {
		o.logger.Warnf("%s %s: dropped %d unparsable rows on load", unit.Symbol, unit.Timeframe, dropped)
	}

	s, stats.DupRemoved = series.Dedupe(s)
	state = stateDeduped

	series.SortAscending(s)
	gaps := series.DetectGaps(s, interval)
	state = stateGapsDetected
	stats.GapsFixed = len(gaps)
	o.logger.Debugf("%s %s: state %s, %d gaps, %d dups removed", unit.Symbol, unit.Timeframe, state, len(gaps), stats.DupRemoved)

	for _, gap := range gaps {
		if ctx.Err() != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("gap [%d, %d]: %s", gap.StartMS, gap.EndMS, ctx.Err()))
			stats.Status = stats.Status.Demote(model.UnitWarning)
			break
		}
		o.tracker.SetAction(unit.Symbol, unit.Timeframe, fmt.Sprintf("fetching gap [%d, %d]", gap.StartMS, gap.EndMS))

		patch, err := o.fetchWithRetry(ctx, unit, gap, &stats)
		if err != nil {
			o.logger.Warnf("%s %s: gap [%d, %d] left unrepaired: %s", unit.Symbol, unit.Timeframe, gap.StartMS, gap.EndMS, err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("gap [%d, %d]: %s", gap.StartMS, gap.EndMS, err))
			stats.Status = stats.Status.Demote(model.UnitWarning)
			continue
		}
		s, _ = series.Merge(s, patch)
	}
	state = statePatched

	o.tracker.SetAction(unit.Symbol, unit.Timeframe, "validating")
	if violations := series.Validate(s, o.now().UnixMilli()); len(violations) > 0 {
		// invalid rows are persisted as-is, the unit just loses "completed"
		stats.Errors = append(stats.Errors, violations...)
		stats.Status = stats.Status.Demote(model.UnitWarning)
	}
	state = stateValidated

	o.tracker.SetAction(unit.Symbol, unit.Timeframe, "writing")
	if err := o.store.WriteAtomic(unit.Symbol, unit.Timeframe, s); err != nil {
		return o.failUnit(&stats, state, err)
	}
	state = stateWritten
	stats.FilesWritten = 1
	stats.RowsAfter = len(s)
	stats.NewRows = stats.RowsAfter - stats.RowsBefore

	if stats.Status == model.UnitProcessing {
		stats.Status = model.UnitCompleted
	}
	o.logger.Infof("%s %s: state %s, status %s, rows %d -> %d", unit.Symbol, unit.Timeframe, state, stats.Status, stats.RowsBefore, stats.RowsAfter)
	return stats
}

func (o *Orchestrator) failUnit(stats *model.UnitStats, state unitState, err error) model.UnitStats {
	o.logger.Errorf("%s %s: failed in state %s: %s", stats.Symbol, stats.Timeframe, state, err)
	stats.Errors = append(stats.Errors, err.Error())
	stats.Status = model.UnitError
	return *stats
}

// fetchWithRetry fetches one gap's patch with capped exponential backoff:
// up to 3 attempts, sleeping min(2^attempt, 64) backoff units between them.
// Rate-limit and server/timeout failures are retried; anything else aborts
// this gap immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, unit Unit, gap model.Gap, stats *model.UnitStats) (model.Series, error) {
	for attempt := 0; attempt < _maxAttempts; attempt++ {
		patch, err := o.fetcher.FetchRange(ctx, unit.Symbol, unit.Timeframe, gap.StartMS, gap.EndMS)
		if err == nil {
			return patch, nil
		}

		switch {
		case errors.Is(err, exchange.ErrRateLimited):
			stats.Retries++
			stats.RateLimitHits++
		case errors.Is(err, exchange.ErrServerError) || isTimeout(err):
			stats.Retries++
		default:
			stats.APIErrors++
			return nil, err
		}
		o.logger.Warnf("%s %s: fetch attempt %d failed: %s", unit.Symbol, unit.Timeframe, attempt+1, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(attempt, o.backoffBase)):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrRetryExhausted, _maxAttempts)
}

func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt > _maxBackoffExp {
		attempt = _maxBackoffExp
	}
	return time.Duration(1<<attempt) * base
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
