package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/models"
)

func setupMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

var subscriptionRowColumns = []string{"id", "user_id", "scope", "category_id", "plan_id", "plan_name", "plan_type",
	"total_price", "discount_from_plan", "discount_from_coupon", "coupon_code", "final_price",
	"start_date", "expiry_date", "status", "payment_id", "reminder_sent_at", "created_at", "updated_at"}

func subscriptionRows(start time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(subscriptionRowColumns).
		AddRow("sub-1", "user-1", "category", "cat-1", 2, "premium", "monthly",
			"1000.00", 5, 0, nil, "950.00",
			start, start.AddDate(0, 1, 0), "active", nil, nil, start, start)
}

func TestMapErr(t *testing.T) {
	err := mapErr("op", sql.ErrNoRows)
	assert.ErrorIs(t, err, ErrNotFound)

	err = mapErr("op", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_subscriptions_one_active_per_user"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "uq_subscriptions_one_active_per_user")

	for _, code := range []string{
		pgerrcode.ForeignKeyViolation,
		pgerrcode.InvalidTextRepresentation,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
	} {
		err = mapErr("op", &pgconn.PgError{Code: code})
		assert.ErrorIsf(t, err, ErrInvalidData, "sqlstate %s", code)
		assert.ErrorIsf(t, err, apperr.ErrInvalidRequest, "sqlstate %s", code)
		assert.Falsef(t, apperr.IsRetryable(apperr.Unavailable("svc", err)), "sqlstate %s", code)
	}

	cause := errors.New("connection reset")
	err = mapErr("op", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrInvalidData)
}

func TestStorage_CreateSubscription_UnknownUser(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:         "sub-1",
		UserID:     "7a6f1c52-3f0e-4b7e-9a57-0c1d1b2f3e4a",
		Scope:      models.ScopeGlobal,
		PlanID:     2,
		PlanName:   "premium",
		PlanType:   "monthly",
		TotalPrice: decimal.RequireFromString("1000"),
		FinalPrice: decimal.RequireFromString("1000"),
		StartDate:  now,
		ExpiryDate: now.AddDate(0, 1, 0),
		Status:     models.StatusActive,
		CreatedAt:  now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "subscriptions_user_id_fkey"})

	err := s.CreateSubscription(context.Background(), sub)
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.Equal(t, apperr.CodeInvalidRequest, apperr.Code(apperr.Unavailable("subscription.Subscribe", err)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Ping(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_WaitReady(t *testing.T) {
	s, mock := setupMock(t)
	query := regexp.QuoteMeta(`SELECT EXISTS (`)
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, s.WaitReady(context.Background(), 3, time.Millisecond))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_WaitReady_GivesUp(t *testing.T) {
	s, mock := setupMock(t)
	query := regexp.QuoteMeta(`SELECT EXISTS (`)
	mock.ExpectQuery(query).WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(query).WillReturnError(errors.New("connection refused"))

	err := s.WaitReady(context.Background(), 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_WaitReady_ZeroAttemptsChecksOnce(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (`)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, s.WaitReady(context.Background(), 0, time.Millisecond))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CanceledContext(t *testing.T) {
	s, mock := setupMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetPlanByName(ctx, "premium")
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetPlanByName(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subscription_plans WHERE name = $1")).
		WithArgs("premium").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "duration_days", "features",
			"discount_percentage", "is_active", "created_at"}).
			AddRow(2, "premium", "1000.00", 30, []byte(`["articles","videos"]`), 5, true, now))

	plan, err := s.GetPlanByName(context.Background(), "premium")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.ID)
	assert.True(t, decimal.RequireFromString("1000").Equal(plan.Price))
	assert.Equal(t, []string{"articles", "videos"}, plan.Features)
	assert.Equal(t, 5, plan.DiscountPercentage)
	assert.True(t, plan.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetPlanByName_NotFound(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subscription_plans WHERE name = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetPlanByName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CreatePlan(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO subscription_plans")).
		WithArgs("basic", decimal.RequireFromString("499").String(), 30, []byte(`["articles"]`), 0, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := s.CreatePlan(context.Background(), models.Plan{
		Name:         "basic",
		Price:        decimal.RequireFromString("499"),
		DurationDays: 30,
		Features:     []string{"articles"},
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_RedeemCoupon(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "use redeemed", affected: 1, want: true},
		{name: "limit reached or coupon no longer valid", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := setupMock(t)
			mock.ExpectExec(regexp.QuoteMeta("SET usage_count = usage_count + 1")).
				WithArgs("SAVE10", now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := s.RedeemCoupon(context.Background(), "SAVE10", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_ReleaseCoupon(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta("SET usage_count = usage_count - 1")).
		WithArgs("SAVE10").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.ReleaseCoupon(context.Background(), "SAVE10"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetCouponByCode(t *testing.T) {
	s, mock := setupMock(t)
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM coupons")).
		WithArgs("SAVE10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "discount_percentage", "expiration_date",
			"max_usage", "usage_count", "status", "created_at"}).
			AddRow(1, "SAVE10", 10, exp, 5, 2, "active", exp.AddDate(-1, 0, 0)))

	c, err := s.GetCouponByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 10, c.DiscountPercentage)
	assert.Equal(t, models.CouponActive, c.Status)
	assert.Equal(t, 2, c.UsageCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CreateSubscription_UniqueViolation(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:         "sub-1",
		UserID:     "user-1",
		Scope:      models.ScopeGlobal,
		PlanID:     2,
		PlanName:   "premium",
		PlanType:   "monthly",
		TotalPrice: decimal.RequireFromString("1000"),
		FinalPrice: decimal.RequireFromString("950"),
		StartDate:  now,
		ExpiryDate: now.AddDate(0, 1, 0),
		Status:     models.StatusActive,
		CreatedAt:  now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_subscriptions_one_active_per_user"})

	err := s.CreateSubscription(context.Background(), sub)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetCurrentSubscription(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY (scope = 'category') DESC")).
		WithArgs("user-1", now).
		WillReturnRows(subscriptionRows(start))

	sub, err := s.GetCurrentSubscription(context.Background(), "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, models.ScopeCategory, sub.Scope)
	require.NotNil(t, sub.CategoryID)
	assert.Equal(t, "cat-1", *sub.CategoryID)
	assert.Nil(t, sub.CouponCode)
	assert.Nil(t, sub.ReminderSentAt)
	assert.True(t, decimal.RequireFromString("950").Equal(sub.FinalPrice))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetLatestActiveSubscription_GlobalScopeUsesNullCategory(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("category_id IS NOT DISTINCT FROM $3::uuid")).
		WithArgs("user-1", "all", nil, 0).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetLatestActiveSubscription(context.Background(), "user-1", models.Target{Scope: models.ScopeGlobal}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListSubscriptionsByUser(t *testing.T) {
	s, mock := setupMock(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("user-1").
		WillReturnRows(subscriptionRows(start))

	subs, err := s.ListSubscriptionsByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub-1", subs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListSubscriptionsByUser_Empty(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns))

	subs, err := s.ListSubscriptionsByUser(context.Background(), "user-2")
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestStorage_ApplyCouponDiscount(t *testing.T) {
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	price := decimal.RequireFromString("855")

	for _, affected := range []int64{1, 0} {
		s, mock := setupMock(t)
		mock.ExpectExec(regexp.QuoteMeta("AND discount_from_coupon = 0")).
			WithArgs("sub-1", 10, "SAVE10", price.String(), now).
			WillReturnResult(sqlmock.NewResult(0, affected))

		ok, err := s.ApplyCouponDiscount(context.Background(), "sub-1", 10, "SAVE10", price, now)
		require.NoError(t, err)
		assert.Equal(t, affected == 1, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestStorage_ActivateSubscription_Conflict(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs("sub-1", "pay-1", now, now.AddDate(0, 1, 0)).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := s.ActivateSubscription(context.Background(), "sub-1", "pay-1", now, now.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ExpireSubscriptions(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'expired'")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-2"))

	ids, err := s.ExpireSubscriptions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ExpireSubscriptions_NoMatches(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'expired'")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	ids, err := s.ExpireSubscriptions(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStorage_FindExpiringSubscriptions(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	until := now.Add(72 * time.Hour)
	exp := now.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN users u ON u.id = s.user_id")).
		WithArgs(now, until).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "email", "username", "plan_name", "scope", "expiry_date"}).
			AddRow("sub-1", "user-1", "a@example.com", "alice", "premium", "all", exp))

	got, err := s.FindExpiringSubscriptions(context.Background(), now, until)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a@example.com", got[0].Email)
	assert.Equal(t, models.ScopeGlobal, got[0].Scope)
	assert.True(t, exp.Equal(got[0].ExpiryDate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_MarkReminderSent(t *testing.T) {
	s, mock := setupMock(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("AND reminder_sent_at IS NULL")).
		WithArgs("sub-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.MarkReminderSent(context.Background(), "sub-1", now)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_DeleteStalePending(t *testing.T) {
	s, mock := setupMock(t)
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subscriptions WHERE status = 'pending'")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteStalePending(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CategoryExists(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)")).
		WithArgs("cat-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.CategoryExists(context.Background(), "cat-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
