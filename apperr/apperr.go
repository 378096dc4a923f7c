// Package apperr defines the error taxonomy shared by every service in
// this repository. The API layer maps these kinds onto HTTP statuses;
// raw store errors never cross a service boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument: malformed or missing input. Never retried;
	// the caller must fix the request.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: duplicate reward type, duplicate coupon code, or a
	// mismatched delete guard.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable: the store timed out or throttled. Retriable with
	// backoff; a timed-out operation must not be assumed to have
	// partially succeeded.
	ErrUnavailable = errors.New("unavailable")
)

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// InsufficientPointsError rejects a redemption that asks for more
// points than the customer holds. It carries the numbers the caller
// needs to self-correct without a follow-up query.
type InsufficientPointsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

// PartialRedemptionError reports a redemption whose batch write only
// partially applied. Retriable: a retry recomputes available points
// from current state, so it converges without double-deducting.
type PartialRedemptionError struct {
	Applied int
	Failed  int
}

func (e *PartialRedemptionError) Error() string {
	return fmt.Sprintf("redemption partially applied: %d writes applied, %d failed; retry to converge", e.Applied, e.Failed)
}
