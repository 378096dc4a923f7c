// Package customer owns the registration flow and the lookup
// capability the reward ledger reads through.
package customer

import (
	"context"
	"errors"
	"fmt"
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

// Create registers a customer. The id is derived from the phone number
// with the national prefix stripped and doubles as the join key rewards
// are co-located under.
func (s *Service) Create(ctx context.Context, name, phoneNumber, dateOfBirth string) (string, error) {
	if name == "" || phoneNumber == "" {
		return "", apperr.InvalidArgumentf("name and phone number are required")
	}
	id, err := entity.CustomerIDFromPhone(phoneNumber)
	if err != nil {
		return "", err
	}
	key, err := entity.CustomerKey(id)
	if err != nil {
		return "", err
	}
	item, err := entity.Marshal(entity.Customer{
		ID:          id,
		Name:        name,
		PhoneNumber: phoneNumber,
		DateOfBirth: dateOfBirth,
		RecordType:  entity.RecordTypeCustomer,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, key, item); err != nil {
		return "", fmt.Errorf("saving customer: %w", err)
	}
	return id, nil
}

// GetCustomer implements ledger.CustomerLookup.
func (s *Service) GetCustomer(ctx context.Context, customerID string) (*entity.Customer, error) {
	key, err := entity.CustomerKey(customerID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("customer %s", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching customer: %w", err)
	}
	var c entity.Customer
	if err := entity.Unmarshal(item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns every registered customer. Full-table scan; small
// datasets only.
func (s *Service) List(ctx context.Context) ([]entity.Customer, error) {
	items, err := s.store.ScanAttribute(ctx, entity.RecordTypeAttr, entity.RecordTypeCustomer)
	if err != nil {
		return nil, fmt.Errorf("scanning customers: %w", err)
	}
	customers := make([]entity.Customer, 0, len(items))
	for _, item := range items {
		var c entity.Customer
		if err := entity.Unmarshal(item, &c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}
