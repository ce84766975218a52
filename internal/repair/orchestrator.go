package repair

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ohlc-tools/history-repair/internal/audit"
	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/progress"
	"github.com/ohlc-tools/history-repair/internal/store"
	"github.com/ohlc-tools/history-repair/internal/telemetry"
)

const _backoffBaseDefault = 1 * time.Second

// Fetcher pulls candles for a gap from the remote market-data source.
type Fetcher interface {
	FetchRange(ctx context.Context, symbol, timeframe string, sinceMS, untilMS int64) (model.Series, error)
}

// Orchestrator runs every (symbol, timeframe) unit through the repair
// pipeline on a bounded worker pool and triggers the alignment audit for
// a symbol as soon as all of that symbol's units reach a terminal state.
type Orchestrator struct {
	store   *store.Store
	fetcher Fetcher
	auditor *audit.Auditor

	aggregator *telemetry.Aggregator
	tracker    *progress.Tracker

	concurrency int
	backoffBase time.Duration
	now         func() time.Time

	mu       sync.Mutex
	bySymbol map[string]*symbolProgress

	logger logger.Logger
}

type symbolProgress struct {
	remaining int
	units     []model.UnitStats
}

func NewOrchestrator(
	st *store.Store,
	fetcher Fetcher,
	auditor *audit.Auditor,
	aggregator *telemetry.Aggregator,
	tracker *progress.Tracker,
	concurrency int,
	logger logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		fetcher:     fetcher,
		auditor:     auditor,
		aggregator:  aggregator,
		tracker:     tracker,
		concurrency: concurrency,
		backoffBase: _backoffBaseDefault,
		now:         time.Now,
		bySymbol:    make(map[string]*symbolProgress),
		logger:      logger,
	}
}

// Run repairs all symbol x timeframe units. Unit failures never abort the
// run; the only early exit is context cancellation.
func (o *Orchestrator) Run(ctx context.Context, symbols, timeframes []string) error {
	units := make([]Unit, 0, len(symbols)*len(timeframes))
	for _, symbol := range symbols {
		for _, tf := range timeframes {
			units = append(units, Unit{Symbol: symbol, Timeframe: tf})
		}
	}

	o.aggregator.SetTotalUnits(len(units))
	o.mu.Lock()
	for _, symbol := range symbols {
		o.bySymbol[symbol] = &symbolProgress{remaining: len(timeframes)}
	}
	o.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for _, unit := range units {
		g.Go(func() error {
			if ctx.Err() != nil {
				o.finishUnit(o.skipUnit(unit, ctx.Err()))
				return nil
			}
			o.finishUnit(o.runUnit(ctx, unit))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (o *Orchestrator) skipUnit(unit Unit, cause error) model.UnitStats {
	return model.UnitStats{
		Symbol:    unit.Symbol,
		Timeframe: unit.Timeframe,
		Status:    model.UnitError,
		Errors:    []string{"skipped: " + cause.Error()},
	}
}

// finishUnit records the unit everywhere and, if it was the symbol's last
// unit, runs the per-symbol alignment audit while other symbols continue.
func (o *Orchestrator) finishUnit(stats model.UnitStats) {
	o.aggregator.Record(stats)
	o.tracker.UnitDone(stats)

	o.mu.Lock()
	sp := o.bySymbol[stats.Symbol]
	sp.units = append(sp.units, stats)
	sp.remaining--
	last := sp.remaining == 0
	units := sp.units
	o.mu.Unlock()

	if !last {
		return
	}

	o.tracker.SetAction(stats.Symbol, "", "auditing")
	report, err := o.auditor.Audit(stats.Symbol, units)
	if err != nil {
		o.logger.Errorf("%s: can't audit alignment: %s", stats.Symbol, err)
		return
	}
	if _, err := o.auditor.Write(report); err != nil {
		o.logger.Errorf("%s: can't write alignment report: %s", stats.Symbol, err)
	}
}
