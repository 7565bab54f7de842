// Package catalog ведёт каталог планов и журнал купонов.
//
// Планы — неизменяемые справочные данные, поэтому чтения идут через
// in-process LRU с ограниченным временем жизни записи. Купоны всегда читаются
// из хранилища: их счётчик использований меняется конкурентно.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/pricing"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
)

// Repository хранит планы и купоны.
type Repository interface {
	CreatePlan(ctx context.Context, plan models.Plan) (int, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	CreateCoupon(ctx context.Context, c models.Coupon) (int, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	RedeemCoupon(ctx context.Context, code string, now time.Time) (bool, error)
	ReleaseCoupon(ctx context.Context, code string) error
}

type planEntry struct {
	plan     models.Plan
	storedAt time.Time
}

// Service реализует поиск планов и купонов и административное создание.
type Service struct {
	repo  Repository
	plans *lru.Cache[string, planEntry]
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создает каталог. Нулевые размеры кеша заменяются значениями по умолчанию.
func New(repo Repository, cfg config.Catalog, log *slog.Logger, opts ...Option) (*Service, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, planEntry](size)
	if err != nil {
		return nil, fmt.Errorf("catalog.New: %w", err)
	}

	s := &Service{
		repo:  repo,
		plans: cache,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now возвращает текущее время каталога.
func (s *Service) Now() time.Time {
	return s.now()
}

// FindPlanByName ищет план по точному имени. Неактивный план считается отсутствующим.
func (s *Service) FindPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	const op = "catalog.FindPlanByName"

	if e, ok := s.plans.Get(name); ok && s.now().Sub(e.storedAt) < s.ttl {
		return activePlan(op, e.plan)
	}

	plan, err := s.repo.GetPlanByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %q: %w", op, name, apperr.ErrPlanNotFound)
	}
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	s.plans.Add(name, planEntry{plan: *plan, storedAt: s.now()})

	return activePlan(op, *plan)
}

func activePlan(op string, p models.Plan) (*models.Plan, error) {
	if !p.IsActive {
		return nil, fmt.Errorf("%s: %q inactive: %w", op, p.Name, apperr.ErrPlanNotFound)
	}
	p.Features = append([]string(nil), p.Features...)
	return &p, nil
}

// FindCouponByCode нормализует код и ищет купон. Срок и статус не проверяются.
func (s *Service) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	const op = "catalog.FindCouponByCode"

	normalized, err := models.NormalizeCouponCode(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := s.repo.GetCouponByCode(ctx, normalized)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %s: %w", op, normalized, apperr.ErrCouponNotFound)
	}
	if err != nil {
		return nil, apperr.Unavailable(op, err)
	}
	return c, nil
}

// CreatePlan проверяет и сохраняет новый план.
func (s *Service) CreatePlan(ctx context.Context, plan models.Plan) (int, error) {
	const op = "catalog.CreatePlan"

	plan.Name = strings.TrimSpace(plan.Name)
	switch {
	case plan.Name == "":
		return 0, fmt.Errorf("%s: empty name: %w", op, apperr.ErrInvalidRequest)
	case plan.Price.IsNegative():
		return 0, fmt.Errorf("%s: negative price: %w", op, apperr.ErrInvalidRequest)
	case plan.DurationDays <= 0:
		return 0, fmt.Errorf("%s: duration must be positive: %w", op, apperr.ErrInvalidRequest)
	case len(plan.Features) == 0:
		return 0, fmt.Errorf("%s: plan needs at least one feature: %w", op, apperr.ErrInvalidRequest)
	}
	if err := pricing.ValidatePercentage(plan.DiscountPercentage); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.CreatePlan(ctx, plan)
	if errors.Is(err, repository.ErrConflict) {
		return 0, fmt.Errorf("%s: plan %q already exists: %w", op, plan.Name, apperr.ErrInvalidRequest)
	}
	if err != nil {
		return 0, apperr.Unavailable(op, err)
	}
	s.plans.Remove(plan.Name)

	s.log.Info("plan created", slog.String("op", op), slog.Int("id", id), slog.String("name", plan.Name))
	return id, nil
}

// CreateCoupon проверяет и сохраняет новый купон. Пустой статус означает active.
func (s *Service) CreateCoupon(ctx context.Context, c models.Coupon) (int, error) {
	const op = "catalog.CreateCoupon"

	code, err := models.NormalizeCouponCode(c.Code)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	c.Code = code
	if c.Status == "" {
		c.Status = models.CouponActive
	}

	switch {
	case c.DiscountPercentage < 1 || c.DiscountPercentage > 100:
		return 0, fmt.Errorf("%s: %d%%: %w", op, c.DiscountPercentage, apperr.ErrInvalidDiscount)
	case !c.ExpirationDate.After(s.now()):
		return 0, fmt.Errorf("%s: expiration date must be in the future: %w", op, apperr.ErrInvalidRequest)
	case c.MaxUsage < 1:
		return 0, fmt.Errorf("%s: max usage must be at least 1: %w", op, apperr.ErrInvalidRequest)
	case c.Status != models.CouponActive && c.Status != models.CouponInactive:
		return 0, fmt.Errorf("%s: unknown status %q: %w", op, c.Status, apperr.ErrInvalidRequest)
	}

	id, err := s.repo.CreateCoupon(ctx, c)
	if errors.Is(err, repository.ErrConflict) {
		return 0, fmt.Errorf("%s: coupon %s already exists: %w", op, c.Code, apperr.ErrInvalidRequest)
	}
	if err != nil {
		return 0, apperr.Unavailable(op, err)
	}

	s.log.Info("coupon created", slog.String("op", op), slog.Int("id", id), slog.String("code", c.Code))
	return id, nil
}

// RedeemCoupon атомарно списывает одно использование. false означает, что
// купон исчерпан, истёк или выключен к моменту списания.
func (s *Service) RedeemCoupon(ctx context.Context, code string) (bool, error) {
	const op = "catalog.RedeemCoupon"
	ok, err := s.repo.RedeemCoupon(ctx, code, s.now())
	if err != nil {
		return false, apperr.Unavailable(op, err)
	}
	return ok, nil
}

// ReleaseCoupon возвращает списанное использование.
func (s *Service) ReleaseCoupon(ctx context.Context, code string) error {
	const op = "catalog.ReleaseCoupon"
	if err := s.repo.ReleaseCoupon(ctx, code); err != nil {
		return apperr.Unavailable(op, err)
	}
	return nil
}
