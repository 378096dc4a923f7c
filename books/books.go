// Package books keeps the daily bookkeeping records of a restaurant:
// expense entries and sale entries, both keyed by date under the
// restaurant's partition.
package books

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/entity"
	"github.com/mrsandwich/backoffice/store"
)

type Service struct {
	store        store.Store
	restaurantID string
	now          func() time.Time
}

func New(st store.Store, restaurantID string) *Service {
	return &Service{store: st, restaurantID: restaurantID, now: time.Now}
}

// Filter narrows list queries. Date and range are mutually exclusive;
// Category is applied after the key-range query.
type Filter struct {
	Date      string
	StartDate string
	EndDate   string
	Category  string
}

func (f Filter) validate() error {
	if f.Date != "" && (f.StartDate != "" || f.EndDate != "") {
		return apperr.InvalidArgumentf("date and date range are mutually exclusive")
	}
	if (f.StartDate == "") != (f.EndDate == "") {
		return apperr.InvalidArgumentf("start and end date must both be set")
	}
	for _, d := range []string{f.Date, f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if err := entity.ValidateDate(d); err != nil {
			return err
		}
	}
	if f.StartDate != "" && f.StartDate > f.EndDate {
		return apperr.InvalidArgumentf("start date is after end date")
	}
	return nil
}

func newEntryID(kind string, t time.Time) string {
	return fmt.Sprintf("%s-%d-%04d", kind, t.UnixMilli(), rand.Intn(10000))
}

// ExpenseInput carries the caller-supplied fields of an expense.
type ExpenseInput struct {
	Category      string
	Description   string
	Amount        float64
	Date          string
	PaymentMethod string
	Vendor        string
	Notes         string
}

func (in ExpenseInput) validate() error {
	if in.Category == "" {
		return apperr.InvalidArgumentf("category is required")
	}
	if in.Amount <= 0 {
		return apperr.InvalidArgumentf("amount must be positive")
	}
	if in.PaymentMethod == "" {
		return apperr.InvalidArgumentf("payment method is required")
	}
	return entity.ValidateDate(in.Date)
}

// CreateExpense records a new expense entry.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (*entity.ExpenseEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := entity.ExpenseEntry{
		EntryID:       newEntryID("EXP", now),
		RestaurantID:  s.restaurantID,
		Category:      in.Category,
		Description:   in.Description,
		Amount:        in.Amount,
		Date:          in.Date,
		PaymentMethod: in.PaymentMethod,
		Vendor:        in.Vendor,
		Notes:         in.Notes,
		RecordType:    entity.RecordTypeExpense,
		CreatedAt:     now.Format(time.RFC3339),
		UpdatedAt:     now.Format(time.RFC3339),
	}
	if err := s.putExpense(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) putExpense(ctx context.Context, e entity.ExpenseEntry) error {
	key, err := entity.ExpenseKey(s.restaurantID, e.Date, e.EntryID)
	if err != nil {
		return err
	}
	item, err := entity.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, item); err != nil {
		return fmt.Errorf("saving expense: %w", err)
	}
	return nil
}

// ListExpenses returns expense entries matching the filter, ordered by
// date.
func (s *Service) ListExpenses(ctx context.Context, f Filter) ([]entity.ExpenseEntry, error) {
	items, err := s.queryEntries(ctx, entity.ExpenseSortPrefix, f)
	if err != nil {
		return nil, err
	}
	entries := make([]entity.ExpenseEntry, 0, len(items))
	for _, item := range items {
		var e entity.ExpenseEntry
		if err := entity.Unmarshal(item, &e); err != nil {
			return nil, err
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateExpense replaces the mutable fields of an expense. A date
// change moves the record: the sort key embeds the date, so the old row
// is deleted and a new one written.
func (s *Service) UpdateExpense(ctx context.Context, date, entryID string, in ExpenseInput) (*entity.ExpenseEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	key, err := entity.ExpenseKey(s.restaurantID, date, entryID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("expense %s on %s", entryID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching expense: %w", err)
	}
	var e entity.ExpenseEntry
	if err := entity.Unmarshal(item, &e); err != nil {
		return nil, err
	}

	e.Category = in.Category
	e.Description = in.Description
	e.Amount = in.Amount
	e.PaymentMethod = in.PaymentMethod
	e.Vendor = in.Vendor
	e.Notes = in.Notes
	e.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if in.Date != e.Date {
		e.Date = in.Date
		if err := s.putExpense(ctx, e); err != nil {
			return nil, err
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("removing old expense row: %w", err)
		}
		return &e, nil
	}
	if err := s.putExpense(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) DeleteExpense(ctx context.Context, date, entryID string) error {
	key, err := entity.ExpenseKey(s.restaurantID, date, entryID)
	if err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, key); errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundf("expense %s on %s", entryID, date)
	} else if err != nil {
		return fmt.Errorf("fetching expense: %w", err)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	return nil
}

// SaleInput carries the caller-supplied fields of a sale.
type SaleInput struct {
	ItemName      string
	Category      string
	Quantity      float64
	UnitPrice     float64
	Date          string
	PaymentMethod string
	CustomerName  string
	Notes         string
}

func (in SaleInput) validate() error {
	if in.ItemName == "" {
		return apperr.InvalidArgumentf("item name is required")
	}
	if in.Category == "" {
		return apperr.InvalidArgumentf("category is required")
	}
	if in.Quantity <= 0 {
		return apperr.InvalidArgumentf("quantity must be positive")
	}
	if in.UnitPrice < 0 {
		return apperr.InvalidArgumentf("unit price must not be negative")
	}
	if in.PaymentMethod == "" {
		return apperr.InvalidArgumentf("payment method is required")
	}
	return entity.ValidateDate(in.Date)
}

// CreateSale records a new sale entry. The total is computed, never
// caller-supplied.
func (s *Service) CreateSale(ctx context.Context, in SaleInput) (*entity.SaleEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := entity.SaleEntry{
		EntryID:       newEntryID("SALE", now),
		RestaurantID:  s.restaurantID,
		ItemName:      in.ItemName,
		Category:      in.Category,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalAmount:   in.Quantity * in.UnitPrice,
		Date:          in.Date,
		PaymentMethod: in.PaymentMethod,
		CustomerName:  in.CustomerName,
		Notes:         in.Notes,
		RecordType:    entity.RecordTypeSale,
		CreatedAt:     now.Format(time.RFC3339),
		UpdatedAt:     now.Format(time.RFC3339),
	}
	if err := s.putSale(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) putSale(ctx context.Context, e entity.SaleEntry) error {
	key, err := entity.SaleKey(s.restaurantID, e.Date, e.EntryID)
	if err != nil {
		return err
	}
	item, err := entity.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, item); err != nil {
		return fmt.Errorf("saving sale: %w", err)
	}
	return nil
}

// ListSales returns sale entries matching the filter, ordered by date.
func (s *Service) ListSales(ctx context.Context, f Filter) ([]entity.SaleEntry, error) {
	items, err := s.queryEntries(ctx, entity.SaleSortPrefix, f)
	if err != nil {
		return nil, err
	}
	entries := make([]entity.SaleEntry, 0, len(items))
	for _, item := range items {
		var e entity.SaleEntry
		if err := entity.Unmarshal(item, &e); err != nil {
			return nil, err
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateSale replaces the mutable fields of a sale, recomputing the
// total. Date changes move the row like UpdateExpense.
func (s *Service) UpdateSale(ctx context.Context, date, entryID string, in SaleInput) (*entity.SaleEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	key, err := entity.SaleKey(s.restaurantID, date, entryID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("sale %s on %s", entryID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching sale: %w", err)
	}
	var e entity.SaleEntry
	if err := entity.Unmarshal(item, &e); err != nil {
		return nil, err
	}

	e.ItemName = in.ItemName
	e.Category = in.Category
	e.Quantity = in.Quantity
	e.UnitPrice = in.UnitPrice
	e.TotalAmount = in.Quantity * in.UnitPrice
	e.PaymentMethod = in.PaymentMethod
	e.CustomerName = in.CustomerName
	e.Notes = in.Notes
	e.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if in.Date != e.Date {
		e.Date = in.Date
		if err := s.putSale(ctx, e); err != nil {
			return nil, err
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("removing old sale row: %w", err)
		}
		return &e, nil
	}
	if err := s.putSale(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) DeleteSale(ctx context.Context, date, entryID string) error {
	key, err := entity.SaleKey(s.restaurantID, date, entryID)
	if err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, key); errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundf("sale %s on %s", entryID, date)
	} else if err != nil {
		return fmt.Errorf("fetching sale: %w", err)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting sale: %w", err)
	}
	return nil
}

// queryEntries runs the sort-key range query the filter describes.
func (s *Service) queryEntries(ctx context.Context, sortPrefix string, f Filter) ([]store.Item, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	partition, err := entity.RestaurantPartition(s.restaurantID)
	if err != nil {
		return nil, err
	}
	var items []store.Item
	switch {
	case f.Date != "":
		items, err = s.store.QueryPrefix(ctx, partition, sortPrefix+f.Date+"#")
	case f.StartDate != "":
		low := sortPrefix + f.StartDate
		high := entity.DateRangeBound(sortPrefix, f.EndDate)
		items, err = s.store.QueryRange(ctx, partition, low, high)
	default:
		items, err = s.store.QueryPrefix(ctx, partition, sortPrefix)
	}
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	return items, nil
}
