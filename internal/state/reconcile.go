package state

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fxtrader/internal/models"
)

// PositionChecker is the subset of broker.Client the recovery pass
// needs to discover whether a recovered trade's position still exists.
type PositionChecker interface {
	CheckExistingPositionsAndOrders(ctx context.Context, uic int) (present bool, summary string, err error)
}

// Persister is the subset of Store the recovery pass needs to persist
// its status corrections immediately, rather than waiting for the
// orchestrator's next transition to write trade_status.json.
type Persister interface {
	Save(trades []*models.Trade) error
}

// Reconcile implements the recovery pass: for every trade recovered
// into HasOpenPosition() by Load, confirm the broker still shows a
// position or working order on that instrument. A trade that claims an
// open position the broker no longer has is an orphan record from a
// crash between order fill and state write; since there is no way to
// recover its exit price, it is flagged closed (price-unknown) per
// spec.md §4.6/§7 rather than left to be re-driven by a scheduler that
// will never see it again (its exit time has already passed by the
// time recovery runs). The corrected statuses are saved immediately so
// a second crash before the orchestrator's first transition doesn't
// lose the correction.
func Reconcile(ctx context.Context, broker PositionChecker, store Persister, trades []*models.Trade, logger *zap.Logger) []string {
	var orphans []string
	dirty := false
	for _, t := range trades {
		if !t.Status.HasOpenPosition() {
			continue
		}
		present, _, err := broker.CheckExistingPositionsAndOrders(ctx, t.UIC)
		if err != nil {
			logger.Warn("state: recovery reconciliation check failed", zap.Int("trade_id", t.ID), zap.Error(err))
			continue
		}
		if !present {
			logger.Error("state: recovered trade has no matching broker position, flagging closed (price-unknown)",
				zap.Int("trade_id", t.ID), zap.String("status", string(t.Status)))
			orphans = append(orphans, fmt.Sprintf("trade %d (%s)", t.ID, t.Status))
			t.Status = models.StatusClosedPriceUnknown
			dirty = true
		}
	}
	if dirty {
		if err := store.Save(trades); err != nil {
			logger.Warn("state: failed to persist reconciliation status corrections", zap.Error(err))
		}
	}
	return orphans
}
