package repository

import (
	"context"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

// CreateCoupon сохраняет купон и возвращает его ID.
func (s *Storage) CreateCoupon(ctx context.Context, c models.Coupon) (int, error) {
	const op = "storage.CreateCoupon"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO coupons (code, discount_percentage, expiration_date, max_usage, status)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var id int
	err := s.DB.QueryRowContext(ctx, query,
		c.Code, c.DiscountPercentage, c.ExpirationDate, c.MaxUsage, string(c.Status)).Scan(&id)
	if err != nil {
		return 0, mapErr(op, err)
	}
	return id, nil
}

// GetCouponByCode возвращает купон по нормализованному коду.
func (s *Storage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	const op = "storage.GetCouponByCode"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, code, discount_percentage, expiration_date, max_usage, usage_count, status, created_at
			  FROM coupons
			  WHERE code = $1`
	var c models.Coupon
	err := s.DB.QueryRowContext(ctx, query, code).Scan(&c.ID, &c.Code, &c.DiscountPercentage,
		&c.ExpirationDate, &c.MaxUsage, &c.UsageCount, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return &c, nil
}

// RedeemCoupon атомарно увеличивает счётчик использований, если купон ещё действует
// и лимит не исчерпан. false означает, что списать использование не удалось.
func (s *Storage) RedeemCoupon(ctx context.Context, code string, now time.Time) (bool, error) {
	const op = "storage.RedeemCoupon"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE coupons
			  SET usage_count = usage_count + 1
			  WHERE code = $1
			    AND status = 'active'
			    AND expiration_date > $2
			    AND usage_count < max_usage`
	res, err := s.DB.ExecContext(ctx, query, code, now)
	if err != nil {
		return false, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(op, err)
	}
	return n == 1, nil
}

// ReleaseCoupon возвращает списанное использование, если запись подписки обновить не удалось.
func (s *Storage) ReleaseCoupon(ctx context.Context, code string) error {
	const op = "storage.ReleaseCoupon"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	query := `UPDATE coupons SET usage_count = usage_count - 1 WHERE code = $1 AND usage_count > 0`
	if _, err := s.DB.ExecContext(ctx, query, code); err != nil {
		return mapErr(op, err)
	}
	return nil
}
