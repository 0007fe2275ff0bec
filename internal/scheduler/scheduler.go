// Package scheduler implements the wall-clock waits the orchestrator's
// entry and exit workflows block on: a randomized-jitter wait to a
// target moment with pre-execution liveness pings, and the periodic
// token-refresh loop that keeps the streaming context authorized.
// Grounded on the teacher's internal/bot run-loop idiom, generalized
// from crypto polling intervals to scheduled wall-clock targets.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrPreCheckFailed is returned by Wait when a pre-execution liveness
// ping fails, per spec.md §4.5: the caller marks the waited action
// `skipped (pre-check-failed)` rather than proceeding blind.
var ErrPreCheckFailed = errors.New("scheduler: pre-execution liveness check failed")

// LivenessChecker validates the broker session is still usable. The
// scheduler calls it at F-60s and F-30s before a scheduled action.
type LivenessChecker interface {
	ValidateTokenLiveness(ctx context.Context) error
}

// Wait blocks until target, inserting randomized jitter and
// pre-execution liveness pings, per spec.md §4.5:
//
//	advance ~ Uniform(0, min(randomDelay, remaining))
//	F = target - advance
//	pings at F-60s and F-30s (only if still future)
//
// If target is already in the past, Wait returns immediately with
// past=true and the caller marks the action `skipped (time-past)`.
func Wait(ctx context.Context, target time.Time, randomDelay time.Duration, checker LivenessChecker) (past bool, err error) {
	now := time.Now()
	remaining := target.Sub(now)
	if remaining <= 0 {
		return true, nil
	}

	advance := time.Duration(0)
	if randomDelay > 0 {
		bound := randomDelay
		if remaining < bound {
			bound = remaining
		}
		advance = time.Duration(rand.Int63n(int64(bound) + 1))
	}

	finalMoment := target.Add(-advance)

	for _, lead := range []time.Duration{60 * time.Second, 30 * time.Second} {
		pingAt := finalMoment.Add(-lead)
		if pingAt.Before(time.Now()) {
			continue
		}
		if err := sleepUntil(ctx, pingAt); err != nil {
			return false, err
		}
		if checker != nil {
			if err := checker.ValidateTokenLiveness(ctx); err != nil {
				return false, ErrPreCheckFailed
			}
		}
	}

	if err := sleepUntil(ctx, finalMoment); err != nil {
		return false, err
	}
	return false, nil
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
