package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/entity"
	"github.com/mrsandwich/backoffice/store/memstore"
	"github.com/mrsandwich/backoffice/table"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memstore.New(table.Default("test-table")))
}

func testItems() []entity.OrderItem {
	return []entity.OrderItem{
		{Name: "club sandwich", UnitPrice: 80, Quantity: 2},
		{Name: "lemonade", UnitPrice: 25, Quantity: 1},
	}
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 185.0, Total(testItems()))
	assert.Zero(t, Total(nil))
}

func TestPlace(t *testing.T) {
	ctx := context.Background()

	t.Run("stores header and one row per line", func(t *testing.T) {
		s := newTestService(t)

		o, err := s.Place(ctx, "T4", testItems(), entity.PaymentDetails{Method: "upi", Amount: 185})
		require.NoError(t, err)
		assert.NotEmpty(t, o.OrderID)
		assert.Equal(t, 185.0, o.TotalAmount)
		assert.Equal(t, entity.OrderStatusPending, o.Status)

		header, lines, err := s.Get(ctx, o.OrderID)
		require.NoError(t, err)
		assert.Equal(t, o.OrderID, header.OrderID)
		require.Len(t, lines, 2)
		assert.Equal(t, "club sandwich", lines[0].Name)
		assert.Equal(t, "lemonade", lines[1].Name)
	})

	t.Run("lines come back in placement order past nine items", func(t *testing.T) {
		s := newTestService(t)

		items := make([]entity.OrderItem, 0, 12)
		for i := 0; i < 12; i++ {
			items = append(items, entity.OrderItem{
				Name:      fmt.Sprintf("item %d", i+1),
				UnitPrice: 10,
				Quantity:  1,
			})
		}
		o, err := s.Place(ctx, "T4", items, entity.PaymentDetails{Method: "cash", Amount: 120})
		require.NoError(t, err)

		_, lines, err := s.Get(ctx, o.OrderID)
		require.NoError(t, err)
		require.Len(t, lines, 12)
		for i, l := range lines {
			assert.Equal(t, fmt.Sprintf("item %d", i+1), l.Name)
		}
	})

	t.Run("validates input", func(t *testing.T) {
		s := newTestService(t)

		_, err := s.Place(ctx, "", testItems(), entity.PaymentDetails{})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

		_, err = s.Place(ctx, "T4", nil, entity.PaymentDetails{})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

		_, err = s.Place(ctx, "T4", []entity.OrderItem{{Name: "", UnitPrice: 10, Quantity: 1}}, entity.PaymentDetails{})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

		_, err = s.Place(ctx, "T4", []entity.OrderItem{{Name: "x", UnitPrice: 10, Quantity: 0}}, entity.PaymentDetails{})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

		_, err = s.Place(ctx, "T4", []entity.OrderItem{{Name: "x", UnitPrice: -1, Quantity: 1}}, entity.PaymentDetails{})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("order ids are unique", func(t *testing.T) {
		s := newTestService(t)
		a, err := s.Place(ctx, "T1", testItems(), entity.PaymentDetails{})
		require.NoError(t, err)
		b, err := s.Place(ctx, "T2", testItems(), entity.PaymentDetails{})
		require.NoError(t, err)
		assert.NotEqual(t, a.OrderID, b.OrderID)
	})
}

func TestGet_Missing(t *testing.T) {
	s := newTestService(t)
	_, _, err := s.Get(context.Background(), "ORD-nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Place(ctx, "T1", testItems(), entity.PaymentDetails{})
	require.NoError(t, err)
	_, err = s.Place(ctx, "T2", testItems(), entity.PaymentDetails{})
	require.NoError(t, err)

	orders, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
