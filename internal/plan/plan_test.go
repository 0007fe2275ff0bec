package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxtrader/internal/models"
)

const sample = `[
  {"id": 1, "pair": "EUR/USD", "side": "Buy", "lot_size": "0.1", "entry_time": "09:00:00", "exit_time": "09:05:00"},
  {"id": 2, "pair": "USD/JPY", "side": "Sell", "lot_size": "0.5", "entry_time": "14:30:00", "exit_time": "15:00:00", "allowed_weekdays": ["Monday", "Tuesday"]}
]`

func writePlan(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestJSONSource_LoadParsesTradesAndOffsets(t *testing.T) {
	path := writePlan(t, sample)
	trades, err := (JSONSource{}).Load(path)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, models.SideBuy, trades[0].Side)
	assert.Equal(t, 9*time.Hour, trades[0].EntryTime)
	assert.Equal(t, 9*time.Hour+5*time.Minute, trades[0].ExitTime)
	assert.Equal(t, models.StatusPending, trades[0].Status)

	require.Len(t, trades[1].AllowedWeekdays, 2)
	assert.Equal(t, time.Monday, trades[1].AllowedWeekdays[0])
}

func TestJSONSource_Load_RejectsUnknownSide(t *testing.T) {
	path := writePlan(t, `[{"id":1,"pair":"EUR/USD","side":"Hold","lot_size":"0.1","entry_time":"09:00:00","exit_time":"09:05:00"}]`)
	_, err := (JSONSource{}).Load(path)
	assert.Error(t, err)
}

func TestJSONSource_Load_RejectsMalformedLotSize(t *testing.T) {
	path := writePlan(t, `[{"id":1,"pair":"EUR/USD","side":"Buy","lot_size":"abc","entry_time":"09:00:00","exit_time":"09:05:00"}]`)
	_, err := (JSONSource{}).Load(path)
	assert.Error(t, err)
}
