package ledger

import (
	"context"
	"fmt"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/entity"
	"github.com/mrsandwich/backoffice/store"
)

// RedeemPoints consumes pointsToRedeem across the customer's entries
// oldest-first, splitting the last touched entry and deleting any entry
// driven to zero. All-or-nothing from the caller's perspective: it
// either returns the full amount redeemed or an error, never a partial
// amount.
//
// The underlying batch write is NOT atomic. When some sub-operations
// fail to apply, the ledger is left partially updated and a
// PartialRedemptionError is returned; retrying the identical call is
// safe because available points are recomputed from current state on
// every attempt.
func (e *Engine) RedeemPoints(ctx context.Context, customerID string, pointsToRedeem int64) (int64, error) {
	if pointsToRedeem <= 0 {
		return 0, apperr.InvalidArgumentf("points to redeem must be positive, got %d", pointsToRedeem)
	}
	if err := entity.ValidateID("customer", customerID); err != nil {
		return 0, err
	}

	unlock := e.locks.lock(customerID)
	defer unlock()

	entries, err := e.fetchEntries(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, apperr.NotFoundf("no rewards for customer %s", customerID)
	}

	var available int64
	for _, entry := range entries {
		available += entry.Points
	}
	if available < pointsToRedeem {
		return 0, &apperr.InsufficientPointsError{Available: available, Requested: pointsToRedeem}
	}

	// fetchEntries already sorted ascending by entry id: oldest-earned
	// points are spent first.
	remaining := pointsToRedeem
	var ops []store.WriteOp
	for _, entry := range entries {
		if remaining == 0 {
			break
		}
		deduct := min(entry.Points, remaining)
		entry.Points -= deduct
		remaining -= deduct

		key, err := entity.RewardKey(customerID, entry.EntryID)
		if err != nil {
			return 0, err
		}
		if entry.Points == 0 {
			ops = append(ops, store.DeleteOp(key))
			continue
		}
		item, err := entity.Marshal(entry)
		if err != nil {
			return 0, err
		}
		ops = append(ops, store.PutOp(key, item))
	}

	// Last cancellation point. Once the batch is issued, the outcome is
	// reported truthfully even if the context dies: writes may already
	// have applied, and pretending the redemption did not happen would
	// corrupt the caller's view of the ledger.
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: redemption aborted before write: %v", apperr.ErrUnavailable, err)
	}

	res, batchErr := e.store.BatchWrite(ctx, ops...)
	if batchErr != nil && len(res.Unprocessed) == 0 {
		// A bare error carries no per-operation accounting: nothing is
		// known to have applied, so this must not count as success.
		return 0, fmt.Errorf("%w: redemption write failed: %v", apperr.ErrUnavailable, batchErr)
	}
	applied := len(ops) - len(res.Unprocessed)
	if !res.Done() {
		if applied == 0 && batchErr != nil {
			return 0, fmt.Errorf("%w: redemption write failed: %v", apperr.ErrUnavailable, batchErr)
		}
		return 0, &apperr.PartialRedemptionError{Applied: applied, Failed: len(res.Unprocessed)}
	}
	return pointsToRedeem, nil
}
