// Package access определяет, к какому платному контенту у пользователя есть доступ.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

const (
	defaultCacheTTL = 30 * time.Second
	// generationTTL должен быть заметно больше самого долгого чтения из хранилища.
	generationTTL = 24 * time.Hour
)

// Repository читает текущую активную запись пользователя.
type Repository interface {
	GetCurrentSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
}

// Cache — JSON-кеш с временем жизни и счётчиком поколений на ключ.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Generation(ctx context.Context, genKey string) (string, error)
	SetIfGeneration(ctx context.Context, genKey, gen, key string, value any, expiration time.Duration) (bool, error)
	InvalidateGeneration(ctx context.Context, key, genKey string, genTTL time.Duration) error
}

// Resolver вычисляет право доступа и кеширует его.
type Resolver struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// New создает Resolver. ttl <= 0 заменяется значением по умолчанию.
func New(repo Repository, cache Cache, ttl time.Duration, log *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// WithClock подменяет источник текущего времени.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func cacheKey(userID string) string {
	return "entitlement:" + userID
}

func generationKey(userID string) string {
	return "entitlement:gen:" + userID
}

// ResolveEntitlement возвращает право доступа пользователя. Ошибки кеша
// логируются, и ответ берётся из хранилища.
func (r *Resolver) ResolveEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	const op = "access.ResolveEntitlement"
	log := r.log.With(slog.String("op", op), slog.String("user_id", userID))

	if _, err := uuid.Parse(userID); err != nil {
		return models.NoEntitlement, fmt.Errorf("%s: user id %q: %w", op, userID, apperr.ErrInvalidRequest)
	}

	now := r.now()
	var cached models.Entitlement
	found, err := r.cache.Get(ctx, cacheKey(userID), &cached)
	if err != nil {
		log.Warn("entitlement cache read failed", sl.Err(err))
	}
	if found && (cached.ExpiresAt == nil || now.Before(*cached.ExpiresAt)) {
		metrics.RecordEntitlementLookup(true)
		return cached, nil
	}
	metrics.RecordEntitlementLookup(false)

	// поколение читается до хранилища: инвалидация во время чтения отменит запись в кеш
	gen, genErr := r.cache.Generation(ctx, generationKey(userID))
	if genErr != nil {
		log.Warn("entitlement generation read failed", sl.Err(genErr))
	}

	ent, err := r.resolve(ctx, userID, now)
	if err != nil {
		return models.NoEntitlement, fmt.Errorf("%s: %w", op, err)
	}

	ttl := r.ttl
	if ent.ExpiresAt != nil {
		if left := ent.ExpiresAt.Sub(now); left < ttl {
			ttl = left
		}
	}
	if ttl > 0 && genErr == nil {
		stored, err := r.cache.SetIfGeneration(ctx, generationKey(userID), gen, cacheKey(userID), ent, ttl)
		switch {
		case err != nil:
			log.Warn("entitlement cache write failed", sl.Err(err))
		case !stored:
			log.Debug("entitlement invalidated during lookup, not caching")
		}
	}
	return ent, nil
}

func (r *Resolver) resolve(ctx context.Context, userID string, now time.Time) (models.Entitlement, error) {
	sub, err := r.repo.GetCurrentSubscription(ctx, userID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return models.NoEntitlement, nil
	}
	if err != nil {
		return models.NoEntitlement, apperr.Unavailable("access.resolve", err)
	}

	expiresAt := sub.ExpiryDate
	if sub.Scope == models.ScopeCategory && sub.CategoryID != nil {
		return models.Entitlement{Scope: models.EntitlementCategory, CategoryID: *sub.CategoryID, ExpiresAt: &expiresAt}, nil
	}
	return models.Entitlement{Scope: models.EntitlementAll, ExpiresAt: &expiresAt}, nil
}

// HasAccess сообщает, открыт ли пользователю контент категории categoryID.
func (r *Resolver) HasAccess(ctx context.Context, userID, categoryID string) (bool, error) {
	ent, err := r.ResolveEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return ent.Allows(categoryID), nil
}

// InvalidateEntitlement удаляет закешированное право доступа пользователя.
func (r *Resolver) InvalidateEntitlement(ctx context.Context, userID string) error {
	if err := r.cache.InvalidateGeneration(ctx, cacheKey(userID), generationKey(userID), generationTTL); err != nil {
		return fmt.Errorf("access.InvalidateEntitlement: %w", err)
	}
	return nil
}
