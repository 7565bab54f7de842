package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
)

var couponCodeRe = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// NormalizeCouponCode приводит код к верхнему регистру и проверяет формат.
func NormalizeCouponCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !couponCodeRe.MatchString(c) {
		return "", fmt.Errorf("coupon code %q: %w", code, apperr.ErrInvalidCouponCode)
	}
	return c, nil
}

// CouponStatus задаёт статус купона.
type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponInactive CouponStatus = "inactive"
)

// Coupon — купон со скидкой, сроком действия и лимитом использований.
type Coupon struct {
	ID                 int          `json:"id"`
	Code               string       `json:"code"` // всегда в верхнем регистре
	DiscountPercentage int          `json:"discount_percentage"`
	ExpirationDate     time.Time    `json:"expiration_date"`
	MaxUsage           int          `json:"max_usage"`
	UsageCount         int          `json:"usage_count"`
	Status             CouponStatus `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
}

// IsExpired сообщает, истёк ли купон к моменту now.
func (c *Coupon) IsExpired(now time.Time) bool {
	return now.After(c.ExpirationDate)
}

// Validate проверяет, что купоном можно пользоваться. Счётчик использований
// здесь не учитывается: его проверяет атомарное списание в хранилище.
func (c *Coupon) Validate(now time.Time) error {
	if c.IsExpired(now) {
		return fmt.Errorf("coupon %s: %w", c.Code, apperr.ErrCouponExpired)
	}
	if c.Status != CouponActive {
		return fmt.Errorf("coupon %s: %w", c.Code, apperr.ErrCouponInactive)
	}
	return nil
}
