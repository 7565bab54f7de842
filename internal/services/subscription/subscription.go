// Package subscription управляет жизненным циклом записей подписки: оформление,
// оформление через платёжный шлюз, подтверждение оплаты, применение купона и история.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/period"
	"github.com/magabrotheeeer/paywall/internal/lib/pricing"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

// Repository определяет методы хранилища, нужные жизненному циклу подписок.
type Repository interface {
	// CategoryExists сообщает, существует ли категория контента.
	CategoryExists(ctx context.Context, categoryID string) (bool, error)
	// CreateSubscription вставляет запись; вторая активная запись пользователя даёт ErrConflict.
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	// GetActiveSubscription возвращает активную запись пользователя в любой области.
	GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	GetLatestActiveSubscription(ctx context.Context, userID string, target models.Target, planID int) (*models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	// ApplyCouponDiscount — условная запись скидки; false, если купон уже применён.
	ApplyCouponDiscount(ctx context.Context, id string, couponPct int, couponCode string, finalPrice decimal.Decimal, now time.Time) (bool, error)
	// ActivateSubscription переводит pending в active; false, если запись уже не pending.
	ActivateSubscription(ctx context.Context, id, paymentID string, start, expiry time.Time) (bool, error)
}

// Catalog отдаёт планы и ведёт журнал купонов.
type Catalog interface {
	FindPlanByName(ctx context.Context, name string) (*models.Plan, error)
	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	RedeemCoupon(ctx context.Context, code string) (bool, error)
	ReleaseCoupon(ctx context.Context, code string) error
}

// EntitlementCache сбрасывает закешированное право доступа пользователя.
type EntitlementCache interface {
	InvalidateEntitlement(ctx context.Context, userID string) error
}

// Service реализует операции жизненного цикла подписок.
type Service struct {
	repo    Repository
	catalog Catalog
	access  EntitlementCache
	now     func() time.Time
	log     *slog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создает новый экземпляр Service.
func New(repo Repository, catalog Catalog, access EntitlementCache, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		access:  access,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe оформляет активную подписку. Купон только проверяется и попадает
// в разбивку цены; списание использования происходит в ApplyCoupon.
func (s *Service) Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResult, error) {
	return s.create(ctx, "subscription.Subscribe", req, models.StatusActive)
}

// Checkout создает запись в статусе pending до подтверждения оплаты.
// Pending-запись не занимает слот активной подписки и не даёт доступа.
func (s *Service) Checkout(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResult, error) {
	return s.create(ctx, "subscription.Checkout", req, models.StatusPending)
}

func (s *Service) create(ctx context.Context, op string, req models.SubscribeRequest, status models.Status) (*models.SubscribeResult, error) {
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if err := checkUserID(op, req.UserID); err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, op, req.Category, true)
	if err != nil {
		return nil, err
	}
	planType, err := period.Parse(req.PlanType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrInvalidPlanType, err)
	}
	plan, err := s.catalog.FindPlanByName(ctx, req.PlanName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	planPct := plan.DiscountPercentage
	if req.BaseDiscountPct != nil {
		planPct = *req.BaseDiscountPct
	}
	if err := pricing.ValidatePercentage(planPct); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	couponPct := 0
	if strings.TrimSpace(req.CouponCode) != "" {
		coupon, err := s.catalog.FindCouponByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := coupon.Validate(now); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		couponPct = coupon.DiscountPercentage
	}

	if err := s.ensureNoActive(ctx, op, req.UserID); err != nil {
		return nil, err
	}

	breakdown, err := pricing.Quote(plan.Price, planPct, couponPct)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	finalPrice, err := pricing.ComputeFinalPrice(plan.Price, planPct, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &models.Subscription{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		Scope:            target.Scope,
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		PlanType:         planType,
		TotalPrice:       plan.Price,
		DiscountFromPlan: planPct,
		FinalPrice:       finalPrice,
		StartDate:        now,
		ExpiryDate:       period.Expiry(now, planType),
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if target.Scope == models.ScopeCategory {
		categoryID := target.CategoryID
		sub.CategoryID = &categoryID
	}

	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionExists)
		}
		return nil, apperr.Unavailable(op, err)
	}

	if status == models.StatusActive {
		s.invalidate(ctx, log, req.UserID)
	}
	metrics.RecordSubscription(plan.Name, string(sub.Scope), string(status))
	log.Info("subscription created",
		slog.String("id", sub.ID),
		slog.String("status", string(status)),
		slog.String("scope", string(sub.Scope)),
		slog.String("final_price", sub.FinalPrice.String()))

	return &models.SubscribeResult{Subscription: sub, Breakdown: breakdown}, nil
}

// MarkPaymentConfirmed активирует pending-запись после подтверждения оплаты.
// Дата начала сдвигается на момент подтверждения, окончание пересчитывается.
// Повторное подтверждение тем же платежом возвращает уже активную запись.
func (s *Service) MarkPaymentConfirmed(ctx context.Context, recordID, paymentID string) (*models.Subscription, error) {
	const op = "subscription.MarkPaymentConfirmed"
	log := s.log.With(slog.String("op", op), slog.String("id", recordID))

	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%s: empty payment id: %w", op, apperr.ErrInvalidRequest)
	}
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionNotFound)
	}

	sub, err := s.getRecord(ctx, op, recordID)
	if err != nil {
		return nil, err
	}
	if confirmedBy(sub, paymentID) {
		log.Info("payment already confirmed")
		return sub, nil
	}
	if sub.Status != models.StatusPending {
		return nil, fmt.Errorf("%s: record is %s: %w", op, sub.Status, apperr.ErrSubscriptionNotFound)
	}

	now := s.now()
	expiry := period.Expiry(now, sub.PlanType)
	ok, err := s.repo.ActivateSubscription(ctx, recordID, paymentID, now, expiry)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionExists)
		}
		return nil, apperr.Unavailable(op, err)
	}
	if !ok {
		// запись изменилась между чтением и обновлением
		fresh, err := s.getRecord(ctx, op, recordID)
		if err != nil {
			return nil, err
		}
		if confirmedBy(fresh, paymentID) {
			return fresh, nil
		}
		return nil, fmt.Errorf("%s: record is %s: %w", op, fresh.Status, apperr.ErrSubscriptionNotFound)
	}

	sub.Status = models.StatusActive
	sub.PaymentID = &paymentID
	sub.StartDate = now
	sub.ExpiryDate = expiry
	sub.UpdatedAt = now

	s.invalidate(ctx, log, sub.UserID)
	metrics.RecordPaymentConfirmed()
	log.Info("payment confirmed", slog.String("payment_id", paymentID), slog.Time("expiry", expiry))
	return sub, nil
}

func confirmedBy(sub *models.Subscription, paymentID string) bool {
	return sub.Status == models.StatusActive && sub.PaymentID != nil && *sub.PaymentID == paymentID
}

// ApplyCoupon применяет купон к самой свежей активной записи пользователя в
// указанной области. Купон применяется к записи не более одного раза: при
// повторной попытке возвращается запись без изменений и ErrCouponAlreadyApplied.
func (s *Service) ApplyCoupon(ctx context.Context, req models.ApplyCouponRequest) (*models.ApplyCouponResult, error) {
	const op = "subscription.ApplyCoupon"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if err := checkUserID(op, req.UserID); err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, op, req.Category, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	coupon, err := s.catalog.FindCouponByCode(ctx, req.CouponCode)
	switch {
	case errors.Is(err, apperr.ErrCouponNotFound), errors.Is(err, apperr.ErrInvalidCouponCode):
		metrics.RecordCouponApplication("invalid")
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrInvalidOrExpiredCoupon, err)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := coupon.Validate(now); err != nil {
		metrics.RecordCouponApplication("invalid")
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrInvalidOrExpiredCoupon, err)
	}

	sub, err := s.repo.GetLatestActiveSubscription(ctx, req.UserID, target, req.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionNotFound)
		}
		return nil, apperr.Unavailable(op, err)
	}
	if sub.CouponApplied() {
		metrics.RecordCouponApplication("already_applied")
		return &models.ApplyCouponResult{Subscription: sub, DiscountAmount: decimal.Zero},
			fmt.Errorf("%s: %w", op, apperr.ErrCouponAlreadyApplied)
	}

	newFinal, amount, err := pricing.ApplyPercentage(sub.FinalPrice, coupon.DiscountPercentage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redeemed, err := s.catalog.RedeemCoupon(ctx, coupon.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !redeemed {
		metrics.RecordCouponApplication("limit_reached")
		return nil, fmt.Errorf("%s: %s: %w", op, coupon.Code, apperr.ErrCouponUsageLimitReached)
	}

	applied, err := s.repo.ApplyCouponDiscount(ctx, sub.ID, coupon.DiscountPercentage, coupon.Code, newFinal, now)
	if err != nil {
		s.release(ctx, log, coupon.Code)
		return nil, apperr.Unavailable(op, err)
	}
	if !applied {
		s.release(ctx, log, coupon.Code)
		metrics.RecordCouponApplication("already_applied")
		result := &models.ApplyCouponResult{Subscription: sub, DiscountAmount: decimal.Zero}
		if fresh, err := s.repo.GetSubscription(ctx, sub.ID); err == nil {
			result.Subscription = fresh
		}
		return result, fmt.Errorf("%s: %w", op, apperr.ErrCouponAlreadyApplied)
	}

	code := coupon.Code
	sub.DiscountFromCoupon = coupon.DiscountPercentage
	sub.CouponCode = &code
	sub.FinalPrice = newFinal
	sub.UpdatedAt = now

	s.invalidate(ctx, log, req.UserID)
	metrics.RecordCouponApplication("applied")
	log.Info("coupon applied",
		slog.String("id", sub.ID),
		slog.String("coupon", code),
		slog.String("discount", amount.String()),
		slog.String("final_price", newFinal.String()))

	return &models.ApplyCouponResult{Subscription: sub, DiscountAmount: amount}, nil
}

// History возвращает все записи пользователя, новые первыми.
func (s *Service) History(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "subscription.History"
	if err := checkUserID(op, userID); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return subs, nil
}

// checkUserID отвергает идентификатор пользователя, который не является UUID.
func checkUserID(op, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%s: user id %q: %w", op, userID, apperr.ErrInvalidRequest)
	}
	return nil
}

// resolveTarget разбирает "all" или id категории. При mustExist категория
// дополнительно проверяется в хранилище.
func (s *Service) resolveTarget(ctx context.Context, op, category string, mustExist bool) (models.Target, error) {
	target := models.ParseTarget(category)
	if target.Scope == models.ScopeGlobal {
		return target, nil
	}
	id, err := uuid.Parse(target.CategoryID)
	if err != nil {
		return models.Target{}, fmt.Errorf("%s: %q: %w", op, category, apperr.ErrInvalidCategory)
	}
	target.CategoryID = id.String()
	if !mustExist {
		return target, nil
	}

	exists, err := s.repo.CategoryExists(ctx, target.CategoryID)
	if err != nil {
		return models.Target{}, apperr.Unavailable(op, err)
	}
	if !exists {
		return models.Target{}, fmt.Errorf("%s: unknown category %s: %w", op, target.CategoryID, apperr.ErrInvalidCategory)
	}
	return target, nil
}

func (s *Service) ensureNoActive(ctx context.Context, op, userID string) error {
	_, err := s.repo.GetActiveSubscription(ctx, userID)
	switch {
	case err == nil:
		return fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionExists)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return apperr.Unavailable(op, err)
	}
}

func (s *Service) getRecord(ctx context.Context, op, id string) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrSubscriptionNotFound)
		}
		return nil, apperr.Unavailable(op, err)
	}
	return sub, nil
}

func (s *Service) release(ctx context.Context, log *slog.Logger, code string) {
	if err := s.catalog.ReleaseCoupon(ctx, code); err != nil {
		log.Error("failed to release coupon usage", slog.String("coupon", code), sl.Err(err))
	}
}

func (s *Service) invalidate(ctx context.Context, log *slog.Logger, userID string) {
	if err := s.access.InvalidateEntitlement(ctx, userID); err != nil {
		log.Warn("failed to invalidate entitlement cache", sl.Err(err))
	}
}
