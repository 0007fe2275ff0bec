package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxtrader/internal/metrics"
	"fxtrader/internal/models"
	"fxtrader/internal/notify"
	"fxtrader/internal/scheduler"
	"fxtrader/internal/waiter"
)

var (
	errAmbiguousHalt    = errors.New("orchestrator: ambiguous order outcome with no matching order found")
	errDeadlineExceeded = errors.New("orchestrator: entry deadline exceeded")
)

// Config mirrors config.TradingConfig, converted to the fixed-precision
// types the entry/exit workflows compute with.
type Config struct {
	StopLossPips       decimal.Decimal
	TakeProfitPips     decimal.Decimal
	SpreadPipsLimit    decimal.Decimal
	BracketsEnabled    bool
	FillTimeoutSeconds int
	Timezone           *time.Location
}

// StatePersister is the subset of state.Store the orchestrator calls
// after every transition to keep trade_status.json current.
type StatePersister interface {
	Save(trades []*models.Trade) error
}

// Orchestrator drives the day's trade plan: one entry/exit action at a
// time (serialized per spec.md §4.4's concurrency note), with
// confirmation tasks running concurrently in background goroutines.
// Grounded on the teacher's internal/bot run-loop, generalized from a
// continuous arbitrage scan to a scheduled one-shot plan per trade.
type Orchestrator struct {
	broker   Broker
	waiters  *waiter.Registry
	notifier notify.Notifier
	state    StatePersister
	logger   *zap.Logger
	cfg      Config
	today    time.Time

	tradesMu sync.Mutex
	trades   []*models.Trade

	wg sync.WaitGroup

	// actionMu serializes the actual order-mutating REST calls (submit,
	// cancel, close) across trades per spec.md §5: "only one entry/exit
	// action runs at a time". Waiting, guard checks, and confirmation
	// (ENS/audit polling) are deliberately outside this lock so trades
	// with overlapping schedules still make progress concurrently.
	actionMu sync.Mutex

	haltedMu sync.Mutex
	halted   bool
}

// New builds an Orchestrator for today's date (in cfg.Timezone).
func New(broker Broker, waiters *waiter.Registry, notifier notify.Notifier, state StatePersister, logger *zap.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		broker:   broker,
		waiters:  waiters,
		notifier: notifier,
		state:    state,
		logger:   logger,
		cfg:      cfg,
		today:    time.Now().In(cfg.Timezone),
	}
}

// Run executes the day's plan. Each trade's full lifecycle (scheduled
// wait, pre-flight guard, order submission, fill confirmation,
// scheduled exit wait, close, exit confirmation) runs in its own
// goroutine, since a plan routinely interleaves trades whose entry and
// exit moments overlap (trade A's exit can fall before trade B's
// entry). The only cross-trade serialization spec.md §5 requires is on
// the order-mutating REST calls themselves, enforced by actionMu; the
// scheduled waits and fill confirmations proceed independently per
// trade. Run blocks until every eligible trade's lifecycle completes.
func (o *Orchestrator) Run(ctx context.Context, trades []*models.Trade) {
	o.tradesMu.Lock()
	o.trades = trades
	o.tradesMu.Unlock()

	for _, t := range trades {
		if t.Status.IsTerminal() {
			continue
		}
		if !t.AllowedToday(o.today.Weekday()) {
			continue
		}
		trade := t
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runTrade(ctx, trade)
		}()
	}
	o.wg.Wait()
}

// runTrade drives one trade from its current status through to a
// terminal state: entry (if still pending) then, only if entry
// resolved to entered, exit.
func (o *Orchestrator) runTrade(ctx context.Context, t *models.Trade) {
	if o.isHalted() || ctx.Err() != nil {
		return
	}
	if t.Status == models.StatusPending {
		o.runEntry(ctx, t)
	}
	if o.isHalted() || ctx.Err() != nil {
		return
	}
	if t.Status == models.StatusEntered {
		o.runExit(ctx, t)
	}
}

func (o *Orchestrator) wait(ctx context.Context, target time.Time) (past bool, err error) {
	return scheduler.Wait(ctx, target, 3*time.Second, livenessAdapter{o.broker})
}

type livenessAdapter struct{ b Broker }

func (l livenessAdapter) ValidateTokenLiveness(ctx context.Context) error {
	return l.b.ValidateTokenLiveness(ctx)
}

func (o *Orchestrator) dayAt(offset time.Duration) time.Time {
	midnight := time.Date(o.today.Year(), o.today.Month(), o.today.Day(), 0, 0, 0, 0, o.cfg.Timezone)
	return midnight.Add(offset)
}

func (o *Orchestrator) halt() {
	o.haltedMu.Lock()
	o.halted = true
	o.haltedMu.Unlock()
}

func (o *Orchestrator) isHalted() bool {
	o.haltedMu.Lock()
	defer o.haltedMu.Unlock()
	return o.halted
}

// transition moves t to status, rejecting illegal lifecycle edges
// (logged, not panicked, since a bad transition must never crash a
// running trade day), persists state, and records the metric.
func (o *Orchestrator) transition(t *models.Trade, status models.Status) {
	if !CanTransition(t.Status, status) {
		o.logger.Error("orchestrator: rejected illegal state transition",
			zap.Int("trade_id", t.ID), zap.String("from", string(t.Status)), zap.String("to", string(status)))
		return
	}
	t.Status = status
	metrics.TradesTotal.WithLabelValues(string(status)).Inc()
	if o.state != nil {
		o.tradesMu.Lock()
		snapshot := o.trades
		o.tradesMu.Unlock()
		if err := o.state.Save(snapshot); err != nil {
			o.logger.Warn("orchestrator: state persistence failed", zap.Int("trade_id", t.ID), zap.Error(err))
		}
	}
}
