package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fxtrader/internal/models"
)

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, CanTransition(models.StatusPending, models.StatusEntrySubmitted))
	assert.True(t, CanTransition(models.StatusEntrySubmitted, models.StatusEntered))
	assert.True(t, CanTransition(models.StatusEntered, models.StatusExitSubmitted))
	assert.True(t, CanTransition(models.StatusExitSubmitted, models.StatusClosed))
}

func TestCanTransition_RejectsSkippingStates(t *testing.T) {
	assert.False(t, CanTransition(models.StatusPending, models.StatusClosed))
	assert.False(t, CanTransition(models.StatusPending, models.StatusEntered))
}

func TestCanTransition_SameStateIsNoOp(t *testing.T) {
	assert.True(t, CanTransition(models.StatusEntered, models.StatusEntered))
}

func TestCanTransition_TerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	assert.False(t, CanTransition(models.StatusClosed, models.StatusEntered))
	assert.False(t, CanTransition(models.StatusSkippedSpread, models.StatusEntrySubmitted))
}
