package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fxtrader/internal/models"
)

type fakeChecker struct {
	present map[int]bool
	err     error
}

func (f *fakeChecker) CheckExistingPositionsAndOrders(ctx context.Context, uic int) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	return f.present[uic], "", nil
}

type fakePersister struct {
	saved []*models.Trade
	calls int
}

func (f *fakePersister) Save(trades []*models.Trade) error {
	f.calls++
	f.saved = trades
	return nil
}

func TestReconcile_OrphanedTradeFlaggedClosedPriceUnknown(t *testing.T) {
	trades := []*models.Trade{
		{ID: 1, UIC: 21, Status: models.StatusEntered},
		{ID: 2, UIC: 22, Status: models.StatusPending},
	}
	checker := &fakeChecker{present: map[int]bool{}}
	persister := &fakePersister{}

	orphans := Reconcile(context.Background(), checker, persister, trades, zap.NewNop())

	require.Len(t, orphans, 1)
	assert.Equal(t, models.StatusClosedPriceUnknown, trades[0].Status)
	assert.Equal(t, models.StatusPending, trades[1].Status)
	assert.Equal(t, 1, persister.calls)
}

func TestReconcile_MatchingPositionLeavesStatusAlone(t *testing.T) {
	trades := []*models.Trade{
		{ID: 1, UIC: 21, Status: models.StatusEntered},
	}
	checker := &fakeChecker{present: map[int]bool{21: true}}
	persister := &fakePersister{}

	orphans := Reconcile(context.Background(), checker, persister, trades, zap.NewNop())

	assert.Empty(t, orphans)
	assert.Equal(t, models.StatusEntered, trades[0].Status)
	assert.Equal(t, 0, persister.calls)
}

func TestReconcile_CheckFailureIsNotTreatedAsOrphan(t *testing.T) {
	trades := []*models.Trade{
		{ID: 1, UIC: 21, Status: models.StatusExitSubmitted},
	}
	checker := &fakeChecker{err: assert.AnError}
	persister := &fakePersister{}

	orphans := Reconcile(context.Background(), checker, persister, trades, zap.NewNop())

	assert.Empty(t, orphans)
	assert.Equal(t, models.StatusExitSubmitted, trades[0].Status)
	assert.Equal(t, 0, persister.calls)
}
