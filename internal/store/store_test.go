package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohlc-tools/history-repair/internal/logger"
	"github.com/ohlc-tools/history-repair/internal/model"
)

func testSeries() model.Series {
	return model.Series{
		{OpenTime: 1_600_000_000_000, Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 10, CloseTime: 1_600_003_599_999},
		{OpenTime: 1_600_003_600_000, Open: 1.8, High: 2.2, Low: 1.7, Close: 2.1, Volume: 12, CloseTime: 1_600_007_199_999},
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(t.TempDir(), logger.NewNop())

	got, dropped, err := s.Load("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, dropped)
}

func TestWriteAtomicRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), logger.NewNop())
	want := testSeries()

	require.NoError(t, s.WriteAtomic("BTCUSDT", "1h", want))

	got, dropped, err := s.Load("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, want, got)

	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "BTCUSDT"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1h.csv", entries[0].Name())
}

func TestLoadDropsBadRows(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, logger.NewNop())

	path := s.Path("ETHUSDT", "1m")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	raw := "open_time,open,high,low,close,volume,close_time\n" +
		"1600000000000,1,2,0.5,1.5,10,1600000059999\n" +
		"not-a-timestamp,1,2,0.5,1.5,10,0\n" + // bad open_time
		"1600000060000,1,broken,0.5,1.5,10,0\n" + // bad high
		"1600000120000,1,2,0.5\n" + // too few fields
		"1600000180000,2,3,1.5,2.5,20,1600000239999\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, dropped, err := s.Load("ETHUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1_600_000_000_000), got[0].OpenTime)
	assert.Equal(t, int64(1_600_000_180_000), got[1].OpenTime)
}

func TestWriteAtomicCrashBeforeRename(t *testing.T) {
	s := NewStore(t.TempDir(), logger.NewNop())
	require.NoError(t, s.WriteAtomic("BTCUSDT", "1h", testSeries()))

	path := s.Path("BTCUSDT", "1h")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// a crash between temp-write and rename is exactly "temp written,
	// rename never ran": the destination must be byte-for-byte intact
	_, err = writeTemp(path, model.Series{{OpenTime: 42, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}})
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteAtomicReplacesPrevious(t *testing.T) {
	s := NewStore(t.TempDir(), logger.NewNop())
	require.NoError(t, s.WriteAtomic("BTCUSDT", "1h", testSeries()))

	next := testSeries()
	next = append(next, model.Candle{OpenTime: 1_600_007_200_000, Open: 2, High: 2, Low: 2, Close: 2, Volume: 5})
	require.NoError(t, s.WriteAtomic("BTCUSDT", "1h", next))

	got, _, err := s.Load("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, next, got)
}
