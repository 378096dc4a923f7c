// Package ledger owns the reward-entry lifecycle: accrual with a
// duplicate-type guard, enumeration, point mutation, deletion, and the
// FIFO redemption algorithm that consumes points across entries
// oldest-first.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/entity"
	"github.com/mrsandwich/backoffice/store"
)

// CustomerLookup is the read-only capability the engine uses to verify
// a customer exists and to denormalize name/phone/DOB into new entries.
// The engine never writes customer records.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID string) (*entity.Customer, error)
}

type Engine struct {
	store     store.Store
	customers CustomerLookup
	locks     *customerLocks
	now       func() time.Time
}

type Option func(*Engine)

// WithClock overrides the entry-id clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st store.Store, customers CustomerLookup, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		customers: customers,
		locks:     newCustomerLocks(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateReward accrues a new entry for the customer and returns its
// entry id. Fails NotFound when the customer does not exist and
// Conflict when an active entry of the same type already exists.
func (e *Engine) CreateReward(ctx context.Context, customerID, rewardType string, points int64, period string) (int64, error) {
	if rewardType == "" {
		return 0, apperr.InvalidArgumentf("reward type is empty")
	}
	if points <= 0 {
		return 0, apperr.InvalidArgumentf("points must be positive, got %d", points)
	}
	if err := entity.ValidateID("customer", customerID); err != nil {
		return 0, err
	}

	unlock := e.locks.lock(customerID)
	defer unlock()

	customer, err := e.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}

	entries, err := e.fetchEntries(ctx, customerID)
	if err != nil {
		return 0, err
	}
	// One ACTIVE entry per type at a time: a fully redeemed entry is
	// deleted, so the type becomes creatable again.
	for _, existing := range entries {
		if existing.RewardType == rewardType && existing.Points > 0 {
			return 0, apperr.Conflictf("reward type %q already active for customer %s", rewardType, customerID)
		}
	}

	now := e.now()
	entryID := now.UnixMilli()
	for taken(entries, entryID) {
		entryID++
	}

	key, err := entity.RewardKey(customerID, entryID)
	if err != nil {
		return 0, err
	}
	item, err := entity.Marshal(entity.RewardEntry{
		EntryID:     entryID,
		CustomerID:  customerID,
		RewardType:  rewardType,
		Points:      points,
		Period:      period,
		Name:        customer.Name,
		PhoneNumber: customer.PhoneNumber,
		DateOfBirth: customer.DateOfBirth,
		RecordType:  entity.RecordTypeReward,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}
	if err := e.store.Put(ctx, key, item); err != nil {
		return 0, e.translate("saving reward", err)
	}
	return entryID, nil
}

// ListRewards returns every entry for the customer in creation order.
// A customer with no entries yields an empty slice, not NotFound.
func (e *Engine) ListRewards(ctx context.Context, customerID string) ([]entity.RewardEntry, error) {
	if err := entity.ValidateID("customer", customerID); err != nil {
		return nil, err
	}
	return e.fetchEntries(ctx, customerID)
}

// ListAllRewards is an administrative full-table scan. O(table size).
func (e *Engine) ListAllRewards(ctx context.Context) ([]entity.RewardEntry, error) {
	items, err := e.store.ScanAttribute(ctx, entity.RecordTypeAttr, entity.RecordTypeReward)
	if err != nil {
		return nil, e.translate("scanning rewards", err)
	}
	entries, err := decodeEntries(items)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateReward overwrites points, type and optionally period of an
// existing entry. A missing entry fails NotFound; it is never created.
// Forcing points to zero deletes the entry, same as redemption would.
func (e *Engine) UpdateReward(ctx context.Context, customerID string, entryID int64, points int64, rewardType, period string) error {
	if rewardType == "" {
		return apperr.InvalidArgumentf("reward type is empty")
	}
	if points < 0 {
		return apperr.InvalidArgumentf("points must be non-negative, got %d", points)
	}
	key, err := entity.RewardKey(customerID, entryID)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(customerID)
	defer unlock()

	entry, err := e.getEntry(ctx, key, customerID, entryID)
	if err != nil {
		return err
	}

	if points == 0 {
		if err := e.store.Delete(ctx, key); err != nil {
			return e.translate("deleting exhausted reward", err)
		}
		return nil
	}

	entry.Points = points
	entry.RewardType = rewardType
	if period != "" {
		entry.Period = period
	}
	item, err := entity.Marshal(entry)
	if err != nil {
		return err
	}
	if err := e.store.Put(ctx, key, item); err != nil {
		return e.translate("updating reward", err)
	}
	return nil
}

// DeleteReward removes an entry after checking its type against
// expectedRewardType, guarding against deleting the wrong entry when
// callers address entries loosely.
func (e *Engine) DeleteReward(ctx context.Context, customerID string, entryID int64, expectedRewardType string) error {
	key, err := entity.RewardKey(customerID, entryID)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(customerID)
	defer unlock()

	entry, err := e.getEntry(ctx, key, customerID, entryID)
	if err != nil {
		return err
	}
	if entry.RewardType != expectedRewardType {
		return apperr.Conflictf("reward %d has type %q, not %q", entryID, entry.RewardType, expectedRewardType)
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return e.translate("deleting reward", err)
	}
	return nil
}

func (e *Engine) getEntry(ctx context.Context, key store.Key, customerID string, entryID int64) (entity.RewardEntry, error) {
	item, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return entity.RewardEntry{}, apperr.NotFoundf("reward %d for customer %s", entryID, customerID)
	}
	if err != nil {
		return entity.RewardEntry{}, e.translate("fetching reward", err)
	}
	var entry entity.RewardEntry
	if err := entity.Unmarshal(item, &entry); err != nil {
		return entity.RewardEntry{}, err
	}
	return entry, nil
}

func (e *Engine) fetchEntries(ctx context.Context, customerID string) ([]entity.RewardEntry, error) {
	items, err := e.store.QueryPrefix(ctx, entity.CustomerPartitionPrefix+customerID, entity.RewardSortPrefix)
	if err != nil {
		return nil, e.translate("fetching rewards", err)
	}
	entries, err := decodeEntries(items)
	if err != nil {
		return nil, err
	}
	// The store iterates sort keys ascending, but redemption order is
	// defined by the numeric entry id, so sort explicitly.
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryID < entries[j].EntryID })
	return entries, nil
}

func decodeEntries(items []store.Item) ([]entity.RewardEntry, error) {
	entries := make([]entity.RewardEntry, 0, len(items))
	for _, item := range items {
		var entry entity.RewardEntry
		if err := entity.Unmarshal(item, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func taken(entries []entity.RewardEntry, entryID int64) bool {
	for _, e := range entries {
		if e.EntryID == entryID {
			return true
		}
	}
	return false
}

// translate converts store-level failures into the shared taxonomy so
// raw store errors never propagate past the engine.
func (e *Engine) translate(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", apperr.ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
