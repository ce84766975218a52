package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
)

func TestAggregatorCounters(t *testing.T) {
	a := NewAggregator(t.TempDir(), logger.NewNop())
	a.SetTotalUnits(3)

	a.Record(model.UnitStats{Symbol: "BTCUSDT", Timeframe: "1h", Status: model.UnitCompleted, DupRemoved: 1, GapsFixed: 2, NewRows: 4, Retries: 1})
	a.Record(model.UnitStats{Symbol: "BTCUSDT", Timeframe: "1d", Status: model.UnitWarning, RateLimitHits: 2, Retries: 3, Errors: []string{"gap left unrepaired"}})
	a.Record(model.UnitStats{Symbol: "ETHUSDT", Timeframe: "1h", Status: model.UnitError, APIErrors: 1, Errors: []string{"io failed"}})

	run := a.Snapshot()
	assert.Equal(t, 3, run.TotalUnits)
	assert.Equal(t, 1, run.CompletedUnits)
	assert.Equal(t, 1, run.WarningUnits)
	assert.Equal(t, 1, run.ErrorUnits)
	assert.Equal(t, 1, run.DupRemoved)
	assert.Equal(t, 2, run.GapsFixed)
	assert.Equal(t, 4, run.Retries)
	assert.Equal(t, 2, run.RateLimitHits)
	assert.Equal(t, 1, run.APIErrors)
	assert.Len(t, run.Units, 3)
	assert.True(t, a.HasErrors())
}

func TestPersistWritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	a := NewAggregator(filepath.Join(dir, "reports"), logger.NewNop())
	a.SetTotalUnits(1)
	a.Record(model.UnitStats{Symbol: "BTCUSDT", Timeframe: "1h", Status: model.UnitCompleted})

	path, err := a.Persist()
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "repair_telemetry_")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var run RunTelemetry
	require.NoError(t, sonic.Unmarshal(data, &run))
	assert.Equal(t, 1, run.TotalUnits)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRenderSummaryCallsOutErrorUnits(t *testing.T) {
	a := NewAggregator(t.TempDir(), logger.NewNop())
	a.SetTotalUnits(2)
	a.Record(model.UnitStats{Symbol: "BTCUSDT", Timeframe: "1h", Status: model.UnitCompleted, DupRemoved: 2})
	a.Record(model.UnitStats{Symbol: "ETHUSDT", Timeframe: "4h", Status: model.UnitError, Errors: []string{"disk full"}})

	var buf bytes.Buffer
	a.RenderSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
	assert.Contains(t, out, "unit ETHUSDT/4h ended in error")
}
