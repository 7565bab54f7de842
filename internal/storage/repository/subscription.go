package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/paywall/internal/models"
)

const subscriptionColumns = `id, user_id, scope, category_id, plan_id, plan_name, plan_type,
	total_price, discount_from_plan, discount_from_coupon, coupon_code, final_price,
	start_date, expiry_date, status, payment_id, reminder_sent_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Scope, &s.CategoryID, &s.PlanID, &s.PlanName, &s.PlanType,
		&s.TotalPrice, &s.DiscountFromPlan, &s.DiscountFromCoupon, &s.CouponCode, &s.FinalPrice,
		&s.StartDate, &s.ExpiryDate, &s.Status, &s.PaymentID, &s.ReminderSentAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSubscription вставляет запись подписки. Вторая активная запись того же
// пользователя отклоняется частичным уникальным индексом и возвращается как ErrConflict.
func (s *Storage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.CreateSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO subscriptions (id, user_id, scope, category_id, plan_id, plan_name, plan_type,
			      total_price, discount_from_plan, discount_from_coupon, final_price,
			      start_date, expiry_date, status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`
	_, err := s.DB.ExecContext(ctx, query,
		sub.ID, sub.UserID, string(sub.Scope), sub.CategoryID, sub.PlanID, sub.PlanName, string(sub.PlanType),
		sub.TotalPrice, sub.DiscountFromPlan, sub.DiscountFromCoupon, sub.FinalPrice,
		sub.StartDate, sub.ExpiryDate, string(sub.Status), sub.CreatedAt)
	if err != nil {
		return mapErr(op, err)
	}
	return nil
}

// GetSubscription возвращает запись по её ID.
func (s *Storage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// GetActiveSubscription возвращает любую активную запись пользователя независимо от области.
func (s *Storage) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status = 'active'
			  ORDER BY created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// GetCurrentSubscription возвращает действующую на момент now запись пользователя.
// Категорийная подписка имеет приоритет над глобальной.
func (s *Storage) GetCurrentSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.GetCurrentSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status = 'active' AND expiry_date > $2
			  ORDER BY (scope = 'category') DESC, created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, now))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// GetLatestActiveSubscription возвращает самую свежую активную запись пользователя в заданной
// области. planID = 0 означает любой план.
func (s *Storage) GetLatestActiveSubscription(ctx context.Context, userID string, target models.Target, planID int) (*models.Subscription, error) {
	const op = "storage.GetLatestActiveSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	var categoryID sql.NullString
	if target.Scope == models.ScopeCategory {
		categoryID = sql.NullString{String: target.CategoryID, Valid: true}
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			    AND status = 'active'
			    AND scope = $2
			    AND category_id IS NOT DISTINCT FROM $3::uuid
			    AND ($4 = 0 OR plan_id = $4)
			  ORDER BY created_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, string(target.Scope), categoryID, planID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return sub, nil
}

// ListSubscriptionsByUser возвращает всю историю подписок пользователя, новые первыми.
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptionsByUser"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ApplyCouponDiscount фиксирует скидку купона, только если она ещё не была применена.
// false означает, что запись уже изменена другим запросом или больше не активна.
func (s *Storage) ApplyCouponDiscount(ctx context.Context, id string, couponPct int, couponCode string,
	finalPrice decimal.Decimal, now time.Time) (bool, error) {
	const op = "storage.ApplyCouponDiscount"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions
			  SET discount_from_coupon = $2, coupon_code = $3, final_price = $4, updated_at = $5
			  WHERE id = $1
			    AND status = 'active'
			    AND discount_from_coupon = 0
			    AND coupon_code IS NULL`
	res, err := s.DB.ExecContext(ctx, query, id, couponPct, couponCode, finalPrice, now)
	if err != nil {
		return false, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(op, err)
	}
	return n == 1, nil
}

// ActivateSubscription переводит ожидающую оплаты запись в active. Если у пользователя
// уже есть активная запись, возвращается ErrConflict.
func (s *Storage) ActivateSubscription(ctx context.Context, id, paymentID string, start, expiry time.Time) (bool, error) {
	const op = "storage.ActivateSubscription"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions
			  SET status = 'active', payment_id = $2, start_date = $3, expiry_date = $4, updated_at = $3
			  WHERE id = $1 AND status = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, id, paymentID, start, expiry)
	if err != nil {
		return false, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(op, err)
	}
	return n == 1, nil
}

// ExpireSubscriptions одним запросом помечает истёкшими все активные записи с expiry_date < now
// и возвращает ID затронутых пользователей.
func (s *Storage) ExpireSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ExpireSubscriptions"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE subscriptions
			  SET status = 'expired', updated_at = $1
			  WHERE status = 'active' AND expiry_date < $1
			  RETURNING user_id`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return userIDs, nil
}

// FindExpiringSubscriptions находит активные записи, истекающие в окне (now, until],
// по которым ещё не отправлялось напоминание, вместе с контактом владельца.
func (s *Storage) FindExpiringSubscriptions(ctx context.Context, now, until time.Time) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindExpiringSubscriptions"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT s.id, s.user_id, u.email, u.username, s.plan_name, s.scope, s.expiry_date
			  FROM subscriptions s
			  JOIN users u ON u.id = s.user_id
			  WHERE s.status = 'active'
			    AND s.reminder_sent_at IS NULL
			    AND s.expiry_date > $1
			    AND s.expiry_date <= $2
			  ORDER BY s.expiry_date`
	rows, err := s.DB.QueryContext(ctx, query, now, until)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringSubscription
	for rows.Next() {
		var e models.ExpiringSubscription
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.Username, &e.PlanName, &e.Scope, &e.ExpiryDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkReminderSent закрепляет отправку напоминания за вызывающим.
// false означает, что напоминание уже было отмечено.
func (s *Storage) MarkReminderSent(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "storage.MarkReminderSent"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE subscriptions SET reminder_sent_at = $2
			  WHERE id = $1 AND reminder_sent_at IS NULL`
	res, err := s.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(op, err)
	}
	return n == 1, nil
}

// DeleteStalePending удаляет записи, оплата которых так и не была подтверждена до olderThan.
func (s *Storage) DeleteStalePending(ctx context.Context, olderThan time.Time) (int, error) {
	const op = "storage.DeleteStalePending"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	query := `DELETE FROM subscriptions WHERE status = 'pending' AND created_at < $1`
	res, err := s.DB.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(op, err)
	}
	return int(n), nil
}
