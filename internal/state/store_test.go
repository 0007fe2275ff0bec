package state

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fxtrader/internal/models"
)

func TestSaveThenLoad_RoundTripsPrices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_status.json")
	store := NewStore(path, zap.NewNop())

	original := []*models.Trade{
		{ID: 1, Status: models.StatusEntered, EntryOrderID: "O1", PositionID: "P1", EntryFillPrice: decimal.RequireFromString("1.10523")},
	}
	require.NoError(t, store.Save(original))

	reloaded := []*models.Trade{{ID: 1, Status: models.StatusPending}}
	recovered, err := store.Load(reloaded)
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, models.StatusEntered, reloaded[0].Status)
	assert.True(t, decimal.RequireFromString("1.10523").Equal(reloaded[0].EntryFillPrice))
	assert.Equal(t, "O1", reloaded[0].EntryOrderID)
}

func TestLoad_MissingFileReturnsNotRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_status.json")
	store := NewStore(path, zap.NewNop())

	recovered, err := store.Load([]*models.Trade{{ID: 1}})
	require.NoError(t, err)
	assert.False(t, recovered)
}

func TestDelete_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_status.json")
	store := NewStore(path, zap.NewNop())
	assert.NoError(t, store.Delete())
}

func TestSave_IsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_status.json")
	store := NewStore(path, zap.NewNop())

	require.NoError(t, store.Save([]*models.Trade{{ID: 1, Status: models.StatusPending}}))
	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".trade_status-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp file should survive a successful save")
}
