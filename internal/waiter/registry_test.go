package waiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxtrader/internal/models"
)

func TestRegister_DrainsBacklogFirst(t *testing.T) {
	r := NewRegistry()
	r.Dispatch(models.Event{Type: models.EventPositionClosed, UIC: 21})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e, err := r.Register(ctx, "", 21, models.EventPositionClosed)
	require.NoError(t, err)
	assert.Equal(t, models.EventPositionClosed, e.Type)
}

func TestDispatch_ResolvesMatchingWaiter(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := make(chan models.Event, 1)
	go func() {
		e, err := r.Register(ctx, "O1", 21, models.EventOrderFill)
		require.NoError(t, err)
		result <- e
	}()

	// Give the goroutine a moment to register before dispatching.
	time.Sleep(10 * time.Millisecond)
	r.Dispatch(models.Event{Type: models.EventOrderFill, OrderID: "O1", UIC: 21, Status: "finalfill"})

	select {
	case e := <-result:
		assert.Equal(t, "O1", e.OrderID)
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved")
	}
}

func TestDispatch_UnmatchedEventGoesToBacklog(t *testing.T) {
	r := NewRegistry()
	r.Dispatch(models.Event{Type: models.EventOrderFill, OrderID: "O9", UIC: 21, Status: "finalfill"})

	r.mu.Lock()
	depth := len(r.backlog)
	r.mu.Unlock()
	assert.Equal(t, 1, depth)
}

func TestDispatch_BacklogIsBoundedFIFO(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < backlogCapacity+10; i++ {
		r.Dispatch(models.Event{Type: models.EventPositionClosed, UIC: i})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.backlog, backlogCapacity)
	assert.Equal(t, 10, r.backlog[0].UIC, "oldest entries should have been evicted")
}

func TestRegister_ContextCancelUnregisters(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Register(ctx, "O1", 21, models.EventOrderFill)
	assert.Error(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.waiters, 0)
}
