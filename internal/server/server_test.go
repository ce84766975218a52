package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohlc-tools/history-repair/internal/model"
	"github.com/ohlc-tools/history-repair/internal/progress"
)

func TestProgressHandler(t *testing.T) {
	tracker := progress.NewTracker(10)
	tracker.SetAction("BTCUSDT", "1h", "fetching gaps")
	tracker.UnitDone(model.UnitStats{Symbol: "BTCUSDT", Timeframe: "1h", Status: model.UnitCompleted})

	srv := httptest.NewServer(NewProgressHandler(tracker))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var snap model.ProgressSnapshot
	require.NoError(t, sonic.Unmarshal(body, &snap))
	assert.Equal(t, 10, snap.TotalUnits)
	assert.Equal(t, 1, snap.CompletedUnits)
	assert.Equal(t, "BTCUSDT", snap.CurrentSymbol)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
