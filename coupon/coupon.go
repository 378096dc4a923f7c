// Package coupon manages promotion codes and their usage counters.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// Create registers a new coupon code. Codes are stored uppercased and
// must be unique.
func (s *Service) Create(ctx context.Context, code, title, description string) (*entity.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || title == "" {
		return nil, apperr.InvalidArgumentf("code and title are required")
	}
	key, err := entity.CouponKey(code)
	if err != nil {
		return nil, err
	}
	c := entity.Coupon{
		Code:        code,
		Title:       title,
		Description: description,
		UsedCount:   0,
		RecordType:  entity.RecordTypeCoupon,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	}
	item, err := entity.Marshal(c)
	if err != nil {
		return nil, err
	}
	err = s.store.PutIfAbsent(ctx, key, item)
	if errors.Is(err, store.ErrExists) {
		return nil, apperr.Conflictf("coupon %s already exists", code)
	}
	if err != nil {
		return nil, fmt.Errorf("saving coupon: %w", err)
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, code string) (*entity.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	key, err := entity.CouponKey(code)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("coupon %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching coupon: %w", err)
	}
	var c entity.Coupon
	if err := entity.Unmarshal(item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) List(ctx context.Context) ([]entity.Coupon, error) {
	items, err := s.store.ScanAttribute(ctx, entity.RecordTypeAttr, entity.RecordTypeCoupon)
	if err != nil {
		return nil, fmt.Errorf("scanning coupons: %w", err)
	}
	coupons := make([]entity.Coupon, 0, len(items))
	for _, item := range items {
		var c entity.Coupon
		if err := entity.Unmarshal(item, &c); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	key, err := entity.CouponKey(code)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting coupon: %w", err)
	}
	return nil
}

// IncrementUsage bumps the coupon's usage counter by one and returns
// the updated count. The increment is a single conditional update, so
// concurrent redemptions never lose counts.
func (s *Service) IncrementUsage(ctx context.Context, code string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	key, err := entity.CouponKey(code)
	if err != nil {
		return 0, err
	}
	item, err := s.store.Update(ctx, key, []store.UpdateOp{store.Add("usedCount", 1)}, true)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.NotFoundf("coupon %s", code)
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing coupon usage: %w", err)
	}
	var c entity.Coupon
	if err := entity.Unmarshal(item, &c); err != nil {
		return 0, err
	}
	return c.UsedCount, nil
}
