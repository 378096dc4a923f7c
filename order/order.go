// Package order records dine-in orders as a header row plus one row
// per line item under the same partition.
package order

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
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// Total sums quantity times unit price over the line items.
func Total(items []entity.OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

func newOrderID(t time.Time) string {
	return fmt.Sprintf("ORD-%d-%04d", t.UnixMilli(), rand.Intn(10000))
}

// Place validates and stores a new order. The header row carries the
// full item list; each item is additionally written as its own ITEM#n
// row so lines can be read back in order.
func (s *Service) Place(ctx context.Context, tableID string, items []entity.OrderItem, payment entity.PaymentDetails) (*entity.Order, error) {
	if tableID == "" {
		return nil, apperr.InvalidArgumentf("table id is required")
	}
	if len(items) == 0 {
		return nil, apperr.InvalidArgumentf("order must contain at least one item")
	}
	for i, it := range items {
		if it.Name == "" {
			return nil, apperr.InvalidArgumentf("item %d: name is required", i)
		}
		if it.Quantity <= 0 {
			return nil, apperr.InvalidArgumentf("item %d: quantity must be positive", i)
		}
		if it.UnitPrice < 0 {
			return nil, apperr.InvalidArgumentf("item %d: unit price must not be negative", i)
		}
	}

	now := s.now().UTC()
	o := entity.Order{
		OrderID:        newOrderID(now),
		TableID:        tableID,
		Items:          items,
		TotalAmount:    Total(items),
		PaymentDetails: payment,
		Status:         entity.OrderStatusPending,
		RecordType:     entity.RecordTypeOrder,
		CreatedAt:      now.Format(time.RFC3339),
	}

	headerKey, err := entity.OrderKey(o.OrderID)
	if err != nil {
		return nil, err
	}
	header, err := entity.Marshal(o)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, headerKey, header); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}

	ops := make([]store.WriteOp, 0, len(items))
	for i, it := range items {
		key, err := entity.OrderItemKey(o.OrderID, i+1)
		if err != nil {
			return nil, err
		}
		line, err := entity.Marshal(entity.OrderLine{
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			AddedAt:   now.Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		ops = append(ops, store.PutOp(key, line))
	}
	res, err := s.store.BatchWrite(ctx, ops...)
	if err != nil {
		return nil, fmt.Errorf("saving order lines: %w", err)
	}
	if !res.Done() {
		return nil, fmt.Errorf("saving order lines: %w", res.Err())
	}
	return &o, nil
}

// Get reads the header and line rows back for one order.
func (s *Service) Get(ctx context.Context, orderID string) (*entity.Order, []entity.OrderLine, error) {
	headerKey, err := entity.OrderKey(orderID)
	if err != nil {
		return nil, nil, err
	}
	item, err := s.store.Get(ctx, headerKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFoundf("order %s", orderID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fetching order: %w", err)
	}
	var header entity.Order
	if err := entity.Unmarshal(item, &header); err != nil {
		return nil, nil, err
	}

	items, err := s.store.QueryPrefix(ctx, entity.OrderPartitionPrefix+orderID, entity.ItemSortPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching order lines: %w", err)
	}
	lines := make([]entity.OrderLine, 0, len(items))
	for _, it := range items {
		var l entity.OrderLine
		if err := entity.Unmarshal(it, &l); err != nil {
			return nil, nil, err
		}
		lines = append(lines, l)
	}
	return &header, lines, nil
}

// List returns every order header.
func (s *Service) List(ctx context.Context) ([]entity.Order, error) {
	items, err := s.store.ScanAttribute(ctx, entity.RecordTypeAttr, entity.RecordTypeOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	orders := make([]entity.Order, 0, len(items))
	for _, item := range items {
		var o entity.Order
		if err := entity.Unmarshal(item, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
