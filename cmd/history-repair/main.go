package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ohlc-tools/history-repair/internal/audit"
	"github.com/ohlc-tools/history-repair/internal/config"
	"github.com/ohlc-tools/history-repair/internal/exchange"
	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/progress"
	"github.com/ohlc-tools/history-repair/internal/repair"
	"github.com/ohlc-tools/history-repair/internal/server"
	"github.com/ohlc-tools/history-repair/internal/store"
	"github.com/ohlc-tools/history-repair/internal/telemetry"
)

const _repairCfgFilePath = "./configs/repair.yaml"

func main() {
	zapLogger, loggerSync, err := logger.NewZapLogger(logger.Info)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if err := godotenv.Load(); err != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := _repairCfgFilePath
	if v := os.Getenv("REPAIR_CONFIG"); v != "" {
		cfgPath = v
	}

	cfg, err := config.LoadRepairConfig(cfgPath)
	if err != nil {
		zapLogger.Fatalf("%s: can't load repair cfg", err)
	}

	st := store.NewStore(cfg.DataDir, zapLogger)
	client := exchange.NewClient(cfg.Exchange, zapLogger)
	auditor := audit.NewAuditor(st, cfg.ReportsDir, cfg.LookbackYears, zapLogger)
	aggregator := telemetry.NewAggregator(cfg.ReportsDir, zapLogger)
	tracker := progress.NewTracker(len(cfg.Symbols) * len(cfg.Timeframes))

	if cfg.ProgressPort != "" {
		srv := server.NewHTTPServer(ctx, cfg.ProgressPort, tracker)
		go func() {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLogger.Errorf("%s: progress server stopped", err)
			}
		}()
	}

	orchestrator := repair.NewOrchestrator(st, client, auditor, aggregator, tracker, cfg.Concurrency, zapLogger)
	if err := orchestrator.Run(ctx, cfg.Symbols, cfg.Timeframes); err != nil {
		zapLogger.Errorf("%s: run interrupted", err)
	}

	if path, err := aggregator.Persist(); err != nil {
		zapLogger.Errorf("%s: can't persist telemetry", err)
	} else {
		zapLogger.Infof("telemetry written to %s", path)
	}

	aggregator.RenderSummary(os.Stdout)

	if aggregator.HasErrors() {
		loggerSync()
		os.Exit(1)
	}
}
