package subscription

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	args := m.Called(ctx, categoryID)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *RepoMock) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetLatestActiveSubscription(ctx context.Context, userID string, target models.Target, planID int) (*models.Subscription, error) {
	args := m.Called(ctx, userID, target, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *RepoMock) ApplyCouponDiscount(ctx context.Context, id string, couponPct int, couponCode string, finalPrice decimal.Decimal, now time.Time) (bool, error) {
	args := m.Called(ctx, id, couponPct, couponCode, finalPrice, now)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) ActivateSubscription(ctx context.Context, id, paymentID string, start, expiry time.Time) (bool, error) {
	args := m.Called(ctx, id, paymentID, start, expiry)
	return args.Bool(0), args.Error(1)
}

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) FindPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *CatalogMock) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *CatalogMock) RedeemCoupon(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *CatalogMock) ReleaseCoupon(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

type AccessMock struct{ mock.Mock }

func (m *AccessMock) InvalidateEntitlement(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
