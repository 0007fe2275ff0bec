// Package orchestrator drives the per-trade lifecycle: scheduled entry
// and exit, pre-flight guards, order placement, fill confirmation via
// the waiter registry with an audit-API fallback, and pips-profit
// accounting. Grounded on the teacher's internal/bot/state_machine.go
// transition-table idiom, generalized to the trade states this engine
// defines.
package orchestrator

import "fxtrader/internal/models"

// validTransitions enumerates the lifecycle edges a trade may take.
// Anything not listed is rejected by CanTransition, the same defensive
// posture the teacher's state machine takes against programmer error.
var validTransitions = map[models.Status][]models.Status{
	models.StatusPending: {
		models.StatusEntrySubmitted,
		models.StatusSkippedTimePast,
		models.StatusSkippedUICMissing,
		models.StatusSkippedSpread,
		models.StatusSkippedExisting,
		models.StatusSkippedPreCheckFailed,
		models.StatusEntryFailedOrderError,
		models.StatusEntryFailedUnknown,
		models.StatusEntryFailedTimeExceeded,
	},
	models.StatusEntrySubmitted: {
		models.StatusEntered,
		models.StatusEntryFailedUnknown, // confirm_entry_fill exhausted the audit fallback
	},
	models.StatusEntered: {
		models.StatusExitSubmitted,
		models.StatusClosedPreClosed,
		models.StatusClosedPriceUnknown, // recovery reconciliation found no matching broker position
		models.StatusSkippedPreCheckFailed,
	},
	models.StatusExitSubmitted: {
		models.StatusClosed,
		models.StatusClosedPriceUnknown,
		models.StatusExitFailedOrderError,
		models.StatusExitFailedUnconfirmed,
	},
}

// CanTransition reports whether moving a trade from from to to is a
// legal lifecycle edge.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
