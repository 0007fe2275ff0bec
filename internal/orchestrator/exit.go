package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fxtrader/internal/models"
	"fxtrader/internal/money"
	"fxtrader/internal/notify"
	"fxtrader/internal/scheduler"
)

// runExit implements spec.md §4.4's exit workflow for a trade that has
// reached entered.
func (o *Orchestrator) runExit(ctx context.Context, t *models.Trade) {
	target := o.dayAt(t.ExitTime)
	_, err := o.wait(ctx, target)
	if err != nil {
		o.logger.Warn("orchestrator: exit wait aborted", zap.Int("trade_id", t.ID), zap.Error(err))
		if errors.Is(err, scheduler.ErrPreCheckFailed) {
			o.transition(t, models.StatusSkippedPreCheckFailed)
		}
		return
	}

	present, _, err := o.broker.CheckExistingPositionsAndOrders(ctx, t.UIC)
	if err == nil && !present {
		o.transition(t, models.StatusClosedPreClosed)
		return
	}

	extRef := models.ExternalReference(o.today, t.ID, models.LegExit)

	orderID, alreadyClosed, err := o.closePositionWithRetry(ctx, t, extRef)
	if err != nil {
		o.transition(t, models.StatusExitFailedOrderError)
		return
	}
	if alreadyClosed {
		o.transition(t, models.StatusClosedPreClosed)
		return
	}

	t.ExitOrderID = orderID
	o.transition(t, models.StatusExitSubmitted)

	o.confirmExitFill(ctx, t)
}

// closePositionWithRetry implements spec.md §4.4 steps 3-4: cancel any
// still-working bracket orders for the instrument, then up to 2 close
// attempts, re-checking whether the position persists between tries.
// actionMu is held for the duration so two trades never mutate orders
// concurrently, per spec.md §5.
func (o *Orchestrator) closePositionWithRetry(ctx context.Context, t *models.Trade, extRef string) (orderID string, alreadyClosed bool, err error) {
	o.actionMu.Lock()
	defer o.actionMu.Unlock()

	if err := o.broker.CancelRelatedOrdersForUIC(ctx, t.UIC); err != nil {
		o.logger.Warn("orchestrator: cancel_related_orders_for_uic failed", zap.Int("trade_id", t.ID), zap.Error(err))
	}

	for attempt := 1; attempt <= 2; attempt++ {
		orderID, alreadyClosed, err = o.broker.ClosePositionMarket(ctx, t.PositionID, t.UIC, t.Amount(), t.Side, extRef)
		if err == nil {
			return orderID, alreadyClosed, nil
		}
		if attempt == 1 {
			present, _, checkErr := o.broker.CheckExistingPositionsAndOrders(ctx, t.UIC)
			if checkErr == nil && !present {
				return "", true, nil
			}
		}
	}
	return "", false, err
}

// confirmExitFill implements spec.md §4.4 step 5: await order_fill on
// the close order id (with audit fallback), then poll until flat.
func (o *Orchestrator) confirmExitFill(ctx context.Context, t *models.Trade) {
	timeout := time.Duration(o.cfg.FillTimeoutSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	event, err := o.waiters.Register(waitCtx, t.ExitOrderID, t.UIC, models.EventOrderFill)
	if err != nil {
		audit, auditErr := o.broker.CheckOrderStatusViaAudit(ctx, t.ExitOrderID)
		if auditErr != nil || audit == nil {
			o.logger.Error("orchestrator: exit fill unconfirmable", zap.Int("trade_id", t.ID), zap.String("order_id", t.ExitOrderID))
			o.transition(t, models.StatusExitFailedUnconfirmed)
			o.notifier.Notify(ctx, notify.LevelError, "exit fill could not be confirmed", map[string]any{"trade_id": t.ID})
			return
		}
		t.ExitFillPrice = audit.ExecutionPrice
		t.ExitTimestampActual = audit.ExecutionTime
	} else {
		t.ExitFillPrice = event.ExecutionPrice
		t.ExitTimestampActual = event.ExecutionTime
	}

	if !o.confirmFlat(ctx, t.UIC) {
		o.transition(t, models.StatusExitFailedUnconfirmed)
		return
	}

	if t.ExitFillPrice.IsZero() {
		o.transition(t, models.StatusClosedPriceUnknown)
		return
	}

	pipValue := models.PipValueForSymbol(t.Pair)
	t.PipsProfit = money.PipsProfit(t.EntryFillPrice, t.ExitFillPrice, t.Side == models.SideBuy, pipValue)
	o.transition(t, models.StatusClosed)
}

// confirmFlat polls the position every second, up to 60 seconds, per
// spec.md §4.4 step 5's confirm_flat(uic).
func (o *Orchestrator) confirmFlat(ctx context.Context, uic int) bool {
	deadline := time.Now().Add(60 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		present, _, err := o.broker.CheckExistingPositionsAndOrders(ctx, uic)
		if err == nil && !present {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}
