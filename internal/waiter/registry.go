// Package waiter implements the process-wide rendezvous between the ENS
// event stream and scheduled workflows awaiting a specific outcome:
// register a one-shot wait keyed by (order_id?, uic, expected kinds),
// dispatch normalizes ENS events onto matching waiters, and a bounded
// backlog lets a late-registering waiter still observe an event that
// arrived first.
package waiter

import (
	"context"
	"sync"

	"fxtrader/internal/metrics"
	"fxtrader/internal/models"
)

// backlogCapacity bounds the ring buffer of undelivered events, per
// spec.md §3/§8: the backlog never exceeds 100 entries, oldest evicted
// first.
const backlogCapacity = 100

// waiter is one registered rendezvous. Exactly one goroutine ever reads
// from ch: the caller of Register.
type waiter struct {
	orderID       string
	uic           int
	expectedKinds map[models.EventType]bool
	ch            chan models.Event
	resolved      bool
}

func (w *waiter) matches(e models.Event) bool {
	if !w.expectedKinds[e.Type] {
		return false
	}
	if e.UIC != w.uic {
		return false
	}
	switch e.Type {
	case models.EventOrderFill:
		if w.orderID == "" || w.orderID != e.OrderID {
			return false
		}
		switch e.Status {
		case "filled", "fill", "finalfill":
		default:
			return false
		}
		return true
	case models.EventOrderStatusChange:
		return w.orderID != "" && w.orderID == e.OrderID
	case models.EventPositionClosed:
		return true
	default:
		return false
	}
}

// Registry is the mutex-guarded slice of waiters plus the bounded
// backlog, per spec.md §9's own design note ("the registry is a slice
// under a mutex").
type Registry struct {
	mu      sync.Mutex
	waiters []*waiter
	backlog []models.Event
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register waits for an event matching orderID, uic and expectedKinds.
// orderID is ignored for position_closed; order_fill and
// order_status_change events match only a waiter whose non-empty
// orderID equals the event's. The backlog is drained first: if a
// matching event is already buffered, Register returns it immediately
// without blocking and removes it from the backlog. Otherwise it blocks
// until Dispatch delivers a match or ctx is done; on ctx done the
// waiter is unregistered.
func (r *Registry) Register(ctx context.Context, orderID string, uic int, expectedKinds ...models.EventType) (models.Event, error) {
	kinds := make(map[models.EventType]bool, len(expectedKinds))
	for _, k := range expectedKinds {
		kinds[k] = true
	}
	w := &waiter{orderID: orderID, uic: uic, expectedKinds: kinds, ch: make(chan models.Event, 1)}

	r.mu.Lock()
	for i, e := range r.backlog {
		if w.matches(e) {
			r.backlog = append(r.backlog[:i], r.backlog[i+1:]...)
			r.mu.Unlock()
			metrics.WaiterBacklogDepth.Set(float64(len(r.backlog)))
			return e, nil
		}
	}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	select {
	case e := <-w.ch:
		return e, nil
	case <-ctx.Done():
		r.unregister(w)
		return models.Event{}, ctx.Err()
	}
}

// unregister removes w from the live waiter list. Called on timeout or
// cancellation so a resolved-but-abandoned waiter never leaks; safe to
// call even if w was already resolved and removed by Dispatch.
func (r *Registry) unregister(w *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.waiters {
		if existing == w {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// Dispatch delivers event to every matching waiter (at least one is the
// common case; more than one is allowed, e.g. two confirmation tasks
// both awaiting position_closed on the same uic). If nothing matches,
// event is pushed into the bounded backlog for a later Register to
// drain.
func (r *Registry) Dispatch(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := false
	remaining := r.waiters[:0]
	for _, w := range r.waiters {
		if !w.resolved && w.matches(event) {
			w.resolved = true
			w.ch <- event
			matched = true
			continue
		}
		remaining = append(remaining, w)
	}
	r.waiters = remaining

	if !matched {
		r.backlog = append(r.backlog, event)
		if len(r.backlog) > backlogCapacity {
			r.backlog = r.backlog[len(r.backlog)-backlogCapacity:]
		}
	}
	metrics.WaiterBacklogDepth.Set(float64(len(r.backlog)))
}
