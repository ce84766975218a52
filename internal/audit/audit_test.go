package audit

import (
	"os"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/store"
)

func TestAlignmentScore(t *testing.T) {
	assert.Equal(t, 95.0, alignmentScore(950, 1000))
	assert.Equal(t, 33.33, alignmentScore(1, 3))
	assert.Equal(t, 100.0, alignmentScore(1200, 1000), "score is capped at 100")
	assert.Equal(t, 0.0, alignmentScore(10, 0))
}

func TestAuditSymbol(t *testing.T) {
	dir := t.TempDir()
	st := store.NewStore(dir, logger.NewNop())

	const interval = int64(3_600_000)
	nowMS := int64(1_700_000_000_000)
	start := nowMS - 10*interval

	// 1h history: full coverage except one missing bar
	var s model.Series
	for ts := start; ts < nowMS; ts += interval {
		if ts == start+5*interval {
			continue
		}
		s = append(s, model.Candle{OpenTime: ts, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	require.NoError(t, st.WriteAtomic("BTCUSDT", "1h", s))

	a := NewAuditor(st, dir, 5, logger.NewNop())
	a.now = func() time.Time { return time.UnixMilli(nowMS) }

	report, err := a.Audit("BTCUSDT", []model.UnitStats{
		{Symbol: "BTCUSDT", Timeframe: "1h", GapsFixed: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", report.Symbol)
	assert.Equal(t, "warning", report.Status, "residual gap demotes the symbol")
	assert.Equal(t, 1, report.TotalGaps)

	tf, ok := report.Timeframes["1h"]
	require.True(t, ok)
	assert.Equal(t, int64(9), tf.ActualBars)
	assert.Equal(t, 2, tf.GapsFixed)
	assert.Equal(t, 1, tf.ResidualGaps)
	assert.Equal(t, "warning", tf.Status)
}

func TestAuditCleanSymbolIsOK(t *testing.T) {
	dir := t.TempDir()
	st := store.NewStore(dir, logger.NewNop())

	const interval = int64(86_400_000)
	nowMS := int64(1_700_000_000_000)

	var s model.Series
	for ts := nowMS - 20*interval; ts < nowMS; ts += interval {
		s = append(s, model.Candle{OpenTime: ts, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	require.NoError(t, st.WriteAtomic("ETHUSDT", "1d", s))

	a := NewAuditor(st, dir, 5, logger.NewNop())
	a.now = func() time.Time { return time.UnixMilli(nowMS) }

	report, err := a.Audit("ETHUSDT", []model.UnitStats{{Symbol: "ETHUSDT", Timeframe: "1d"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Status)
	assert.Zero(t, report.TotalGaps)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	st := store.NewStore(dir, logger.NewNop())
	a := NewAuditor(st, dir, 5, logger.NewNop())

	report := model.AlignmentReport{
		Symbol:      "BTCUSDT",
		GeneratedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Timeframes:  map[string]model.TimeframeAlignment{},
		Status:      "ok",
	}

	path, err := a.Write(report)
	require.NoError(t, err)
	assert.Contains(t, path, "BTCUSDT_alignment_20260825_120000.json")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.AlignmentReport
	require.NoError(t, sonic.Unmarshal(data, &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)

	// append-only: a second write with the same timestamp must not clobber
	_, err = a.Write(report)
	require.Error(t, err)
}
