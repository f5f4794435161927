package ledger

import (
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// admit applies the per-identity rate limit and records the operation.
// A caller is admitted when its last admitted operation lies at least
// RateLimitWindow ticks in the past, or when it has used fewer than
// MaxOpsPerTick operations at the current tick. Admission writes share the
// operation's transaction, so a later failure also rolls the bookkeeping back.
func (l *Ledger) admit(tx Tx, caller models.Identity, now uint64) error {
	limits := tx.RateLimits()

	last, err := limits.LastOperationBlock(caller)
	if err != nil {
		return err
	}
	count, err := limits.OpCount(caller, now)
	if err != nil {
		return err
	}

	// The clock is monotone, so now >= last always holds.
	if now-last < l.params.RateLimitWindow && count >= l.params.MaxOpsPerTick {
		return ErrRateLimitExceeded
	}

	if err := limits.SetLastOperationBlock(caller, now); err != nil {
		return err
	}
	next, err := safemath.Add(count, 1)
	if err != nil {
		return err
	}
	return limits.SetOpCount(caller, now, next)
}
