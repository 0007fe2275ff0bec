package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxtrader/internal/models"
	"fxtrader/internal/notify"
	"fxtrader/internal/scheduler"
)

// runEntry implements spec.md §4.4's entry workflow for a single trade,
// running inside that trade's own goroutine (see Orchestrator.runTrade).
// It blocks until the trade reaches entry-submitted (or a terminal
// skip/failure), then calls confirmEntryFill; other trades' entry/exit
// workflows proceed concurrently in their own goroutines throughout.
func (o *Orchestrator) runEntry(ctx context.Context, t *models.Trade) {
	target := o.dayAt(t.EntryTime)
	past, err := o.wait(ctx, target)
	if err != nil {
		o.logger.Warn("orchestrator: entry wait aborted", zap.Int("trade_id", t.ID), zap.Error(err))
		if errors.Is(err, scheduler.ErrPreCheckFailed) {
			o.transition(t, models.StatusSkippedPreCheckFailed)
		}
		return
	}
	if past {
		o.transition(t, models.StatusSkippedTimePast)
		return
	}

	present, summary, err := o.broker.CheckExistingPositionsAndOrders(ctx, t.UIC)
	if err != nil {
		o.logger.Error("orchestrator: pre-entry guard check failed", zap.Int("trade_id", t.ID), zap.Error(err))
		o.transition(t, models.StatusSkippedPreCheckFailed)
		return
	}
	if present {
		o.logger.Info("orchestrator: skipping trade, position/order already exists", zap.Int("trade_id", t.ID), zap.String("summary", summary))
		o.transition(t, models.StatusSkippedExisting)
		return
	}

	prices, err := o.broker.FetchPriceInfos(ctx, []int{t.UIC})
	if err != nil {
		o.transition(t, models.StatusEntryFailedOrderError)
		return
	}
	price, ok := prices[t.UIC]
	if !ok {
		o.transition(t, models.StatusSkippedUICMissing)
		return
	}

	pipValue := models.PipValueForSymbol(t.Pair)
	spread := price.SpreadPips(pipValue)
	if spread.GreaterThan(o.cfg.SpreadPipsLimit) {
		o.transition(t, models.StatusSkippedSpread)
		return
	}

	reference := price.Ask
	if t.Side == models.SideSell {
		reference = price.Bid
	}

	extRef := models.ExternalReference(o.today, t.ID, models.LegEntry)
	deadline := target.Add(3 * time.Second)

	orderID, err := o.submitEntryWithDeadline(ctx, t, reference, pipValue, extRef, deadline)
	if err != nil {
		if errors.Is(err, errAmbiguousHalt) {
			o.logger.Error("orchestrator: ambiguous entry outcome with no matching order, halting trading", zap.Int("trade_id", t.ID))
			o.transition(t, models.StatusEntryFailedUnknown)
			o.halt()
			return
		}
		if errors.Is(err, errDeadlineExceeded) {
			o.transition(t, models.StatusEntryFailedTimeExceeded)
			return
		}
		o.transition(t, models.StatusEntryFailedOrderError)
		return
	}

	t.EntryOrderID = orderID
	o.transition(t, models.StatusEntrySubmitted)

	o.confirmEntryFill(ctx, t)
}

// submitEntryWithDeadline allows up to 2 attempts within a 3-second
// deadline after the scheduled entry moment, per spec.md §4.4 step 3.
// actionMu is held for the duration so two trades never submit orders
// concurrently, per spec.md §5.
func (o *Orchestrator) submitEntryWithDeadline(ctx context.Context, t *models.Trade, reference, pipValue decimal.Decimal, extRef string, deadline time.Time) (string, error) {
	o.actionMu.Lock()
	defer o.actionMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if time.Now().After(deadline) {
			return "", errDeadlineExceeded
		}

		var orderID string
		var err error
		if o.cfg.BracketsEnabled {
			orderID, err = o.broker.PlaceMarketOrderWithBrackets(ctx, t.UIC, t.Side, t.Amount(), reference,
				o.cfg.StopLossPips, o.cfg.TakeProfitPips, pipValue, int32(t.Decimals), extRef)
		} else {
			orderID, err = o.broker.PlaceMarketOrder(ctx, t.UIC, t.Side, t.Amount(), extRef)
		}

		if err == nil && orderID != "" {
			return orderID, nil
		}

		lookup, lookupErr := o.broker.FindOrderByExternalReference(ctx, extRef)
		if lookupErr == nil && lookup != nil {
			return lookup.OrderID, nil
		}
		if lookupErr == nil && lookup == nil {
			// No order exists under this reference: idempotency forbids
			// resubmission. Halt rather than risk a double-submit.
			return "", errAmbiguousHalt
		}

		lastErr = err
		if attempt < 2 && time.Now().Before(deadline) {
			continue
		}
	}
	if lastErr == nil {
		lastErr = errDeadlineExceeded
	}
	return "", lastErr
}

// confirmEntryFill implements spec.md §4.4 step 6: await order_fill on
// the entry order id, falling back to the REST audit trail on timeout.
func (o *Orchestrator) confirmEntryFill(ctx context.Context, t *models.Trade) {
	timeout := time.Duration(o.cfg.FillTimeoutSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	event, err := o.waiters.Register(waitCtx, t.EntryOrderID, t.UIC, models.EventOrderFill)
	if err != nil {
		audit, auditErr := o.broker.CheckOrderStatusViaAudit(ctx, t.EntryOrderID)
		if auditErr != nil || audit == nil {
			o.logger.Error("orchestrator: entry fill unconfirmable", zap.Int("trade_id", t.ID), zap.String("order_id", t.EntryOrderID))
			o.transition(t, models.StatusEntryFailedUnknown)
			o.notifier.Notify(ctx, notify.LevelError, "entry fill could not be confirmed", map[string]any{"trade_id": t.ID})
			return
		}
		t.EntryFillPrice = audit.ExecutionPrice
		t.EntryTimestampActual = audit.ExecutionTime
		t.EntryFilledAmount = t.Amount()
		o.resolvePositionID(ctx, t)
		o.transition(t, models.StatusEntered)
		return
	}

	t.EntryFillPrice = event.ExecutionPrice
	t.PositionID = event.PositionID
	t.EntryTimestampActual = event.ExecutionTime
	t.EntryFilledAmount = event.FilledAmount
	if t.PositionID == "" {
		o.resolvePositionID(ctx, t)
	}
	o.transition(t, models.StatusEntered)
}

// resolvePositionID fills in t.PositionID via a REST lookup when the
// fill confirmation path (ENS event or audit fallback) left it unset.
// close_position_market falls back to matching the sole open position
// on the instrument when this still comes back empty, so a lookup
// failure here is logged and not fatal to the entry.
func (o *Orchestrator) resolvePositionID(ctx context.Context, t *models.Trade) {
	id, err := o.broker.ResolvePositionID(ctx, t.UIC)
	if err != nil {
		o.logger.Warn("orchestrator: position id lookup failed", zap.Int("trade_id", t.ID), zap.Error(err))
		return
	}
	t.PositionID = id
}
