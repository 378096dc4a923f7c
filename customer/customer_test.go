package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/store/memstore"
	"github.com/mrsandwich/backoffice/table"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memstore.New(table.Default("test-table")))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("derives the id from the phone number", func(t *testing.T) {
		s := newTestService(t)
		id, err := s.Create(ctx, "Asha", "0915551234", "1990-04-12")
		require.NoError(t, err)
		assert.Equal(t, "5551234", id)

		c, err := s.GetCustomer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Asha", c.Name)
		assert.Equal(t, "0915551234", c.PhoneNumber)
		assert.Equal(t, "1990-04-12", c.DateOfBirth)
	})

	t.Run("requires name and phone", func(t *testing.T) {
		s := newTestService(t)
		_, err := s.Create(ctx, "", "0915551234", "")
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		_, err = s.Create(ctx, "Asha", "", "")
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("rejects a too-short phone number", func(t *testing.T) {
		s := newTestService(t)
		_, err := s.Create(ctx, "Asha", "091", "")
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})
}

func TestGetCustomer_Missing(t *testing.T) {
	s := newTestService(t)
	_, err := s.GetCustomer(context.Background(), "0000000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Create(ctx, "Asha", "0915551234", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Ben", "0915559876", "")
	require.NoError(t, err)

	customers, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 2)
}
