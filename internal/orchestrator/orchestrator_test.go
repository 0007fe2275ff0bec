package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fxtrader/internal/broker"
	"fxtrader/internal/models"
	"fxtrader/internal/notify"
	"fxtrader/internal/waiter"
)

// fakeBroker is a minimal, goroutine-safe stand-in for internal/broker.Client,
// used to drive the orchestrator's entry/exit workflows without a network.
type fakeBroker struct {
	mu             sync.Mutex
	inFlightOrders int
	maxConcurrent  int
	positions      map[int]bool
	waiters        *waiter.Registry
}

func newFakeBroker(w *waiter.Registry) *fakeBroker {
	return &fakeBroker{positions: map[int]bool{}, waiters: w}
}

func (f *fakeBroker) CheckExistingPositionsAndOrders(ctx context.Context, uic int) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[uic], "", nil
}

func (f *fakeBroker) FetchPriceInfos(ctx context.Context, uics []int) (map[int]broker.PriceInfo, error) {
	out := map[int]broker.PriceInfo{}
	for _, u := range uics {
		out[u] = broker.PriceInfo{Bid: decimal.NewFromFloat(1.1000), Ask: decimal.NewFromFloat(1.1001), Decimals: 4}
	}
	return out, nil
}

func (f *fakeBroker) track(orderID string, uic int) {
	f.mu.Lock()
	f.inFlightOrders++
	if f.inFlightOrders > f.maxConcurrent {
		f.maxConcurrent = f.inFlightOrders
	}
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	f.inFlightOrders--
	f.positions[uic] = true
	f.mu.Unlock()

	go func() {
		f.waiters.Dispatch(models.Event{
			Type:           models.EventOrderFill,
			OrderID:        orderID,
			UIC:            uic,
			Status:         "filled",
			ExecutionPrice: decimal.NewFromFloat(1.1001),
			FilledAmount:   decimal.NewFromInt(1000),
		})
	}()
}

func (f *fakeBroker) PlaceMarketOrderWithBrackets(ctx context.Context, uic int, side models.Side, amount decimal.Decimal, reference decimal.Decimal, slPips, tpPips decimal.Decimal, pipValue decimal.Decimal, decimals int32, externalRef string) (string, error) {
	orderID := "entry-" + externalRef
	f.track(orderID, uic)
	return orderID, nil
}

func (f *fakeBroker) PlaceMarketOrder(ctx context.Context, uic int, side models.Side, amount decimal.Decimal, externalRef string) (string, error) {
	orderID := "entry-" + externalRef
	f.track(orderID, uic)
	return orderID, nil
}

func (f *fakeBroker) FindOrderByExternalReference(ctx context.Context, extRef string) (*broker.OrderLookup, error) {
	return nil, nil
}

func (f *fakeBroker) CheckOrderStatusViaAudit(ctx context.Context, orderID string) (*broker.AuditFillEvent, error) {
	return nil, assert.AnError
}

func (f *fakeBroker) CancelRelatedOrdersForUIC(ctx context.Context, uic int) error {
	return nil
}

func (f *fakeBroker) ClosePositionMarket(ctx context.Context, positionID string, uic int, amount decimal.Decimal, originalSide models.Side, externalRef string) (string, bool, error) {
	f.mu.Lock()
	if !f.positions[uic] {
		f.mu.Unlock()
		return "", true, nil
	}
	f.mu.Unlock()
	orderID := "exit-" + externalRef
	f.mu.Lock()
	f.inFlightOrders++
	if f.inFlightOrders > f.maxConcurrent {
		f.maxConcurrent = f.inFlightOrders
	}
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	f.inFlightOrders--
	f.positions[uic] = false
	f.mu.Unlock()

	go func() {
		f.waiters.Dispatch(models.Event{
			Type:           models.EventOrderFill,
			OrderID:        orderID,
			UIC:            uic,
			Status:         "filled",
			ExecutionPrice: decimal.NewFromFloat(1.1010),
		})
	}()
	return orderID, false, nil
}

func (f *fakeBroker) ResolvePositionID(ctx context.Context, uic int) (string, error) {
	return "", nil
}

func (f *fakeBroker) ValidateTokenLiveness(ctx context.Context) error { return nil }

type noopPersister struct{}

func (noopPersister) Save([]*models.Trade) error { return nil }

func newTestOrchestrator(b Broker, w *waiter.Registry) *Orchestrator {
	return New(b, w, notify.NewZapNotifier(zap.NewNop()), noopPersister{}, zap.NewNop(), Config{
		StopLossPips:       decimal.NewFromInt(1),
		TakeProfitPips:     decimal.NewFromInt(10),
		SpreadPipsLimit:    decimal.NewFromFloat(3.5),
		BracketsEnabled:    true,
		FillTimeoutSeconds: 5,
		Timezone:           time.UTC,
	})
}

// TestRun_OverlappingSchedulesProgressIndependently verifies that one
// trade's exit is not blocked behind another trade's later entry: both
// trades enter within a fraction of a second of "now", and trade 1 must
// be closed while trade 2 is still waiting for its much later exit,
// without either trade waiting on the other's full lifecycle to finish.
func TestRun_OverlappingSchedulesProgressIndependently(t *testing.T) {
	w := waiter.NewRegistry()
	b := newFakeBroker(w)
	o := newTestOrchestrator(b, w)

	now := time.Now().UTC()
	sinceMidnight := now.Sub(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))

	trades := []*models.Trade{
		// Entry and exit both arrive quickly and close out well inside
		// the context deadline.
		{ID: 1, Pair: "EUR/USD", Side: models.SideBuy, LotSize: decimal.NewFromFloat(0.1), UIC: 101,
			EntryTime: sinceMidnight + 100*time.Millisecond, ExitTime: sinceMidnight + 300*time.Millisecond, Status: models.StatusPending},
		// Entry overlaps trade 1's window; exit is scheduled far beyond
		// the context deadline, so this trade is still mid-exit-wait
		// when the context is cancelled — it must not have blocked
		// trade 1's own entry/exit from completing first.
		{ID: 2, Pair: "EUR/USD", Side: models.SideBuy, LotSize: decimal.NewFromFloat(0.1), UIC: 102,
			EntryTime: sinceMidnight + 150*time.Millisecond, ExitTime: sinceMidnight + 5*time.Second, Status: models.StatusPending},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Run(ctx, trades)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("Run did not return: a trade's lifecycle blocked another's progress")
	}

	// Trade 1's short entry/exit window completes well before the
	// context deadline, independently of trade 2's much longer exit wait.
	assert.Equal(t, models.StatusClosed, trades[0].Status)
	// Trade 2 entered but its exit wait is cut short by the context
	// deadline; it must still have entered rather than sit pending
	// behind trade 1.
	require.Equal(t, models.StatusEntered, trades[1].Status)

	assert.LessOrEqual(t, b.maxConcurrent, 1, "actionMu must serialize order-mutating calls across trades")
}

func TestRun_SkipsTerminalAndDisallowedWeekday(t *testing.T) {
	w := waiter.NewRegistry()
	b := newFakeBroker(w)
	o := newTestOrchestrator(b, w)

	trades := []*models.Trade{
		{ID: 1, Status: models.StatusSkippedSpread},
		{ID: 2, Status: models.StatusPending, AllowedWeekdays: []time.Weekday{time.Saturday, time.Sunday}},
	}
	o.Run(context.Background(), trades)
	assert.Equal(t, models.StatusSkippedSpread, trades[0].Status)
}
