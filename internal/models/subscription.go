// Package models содержит доменные структуры ядра подписок: записи подписок,
// планы, купоны, право доступа и уведомления, а также структуры запросов,
// приходящих из JSON.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/paywall/internal/lib/period"
	"github.com/magabrotheeeer/paywall/internal/lib/pricing"
)

// ScopeAll задаёт литерал области действия "все категории".
const ScopeAll = "all"

// Scope — дискриминант записи подписки.
type Scope string

const (
	ScopeGlobal   Scope = "all"
	ScopeCategory Scope = "category"
)

// Status — состояние записи подписки.
type Status string

const (
	// StatusPending — платёж инициирован, подтверждения от шлюза ещё нет.
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Subscription — запись подписки. Глобальная и категорийная подписки
// хранятся в одной таблице и различаются полем Scope.
type Subscription struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Scope              Scope           `json:"scope"`
	CategoryID         *string         `json:"category_id,omitempty"` // только для ScopeCategory
	PlanID             int             `json:"plan_id"`
	PlanName           string          `json:"plan_name"`
	PlanType           period.Type     `json:"plan_type"`
	TotalPrice         decimal.Decimal `json:"total_price"` // цена плана на момент создания
	DiscountFromPlan   int             `json:"discount_from_plan"`
	DiscountFromCoupon int             `json:"discount_from_coupon"`
	CouponCode         *string         `json:"coupon_code,omitempty"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	StartDate          time.Time       `json:"start_date"`
	ExpiryDate         time.Time       `json:"expiry_date"`
	Status             Status          `json:"status"`
	PaymentID          *string         `json:"payment_id,omitempty"`
	ReminderSentAt     *time.Time      `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CouponApplied сообщает, был ли к записи уже применён купон.
func (s *Subscription) CouponApplied() bool {
	return s.DiscountFromCoupon != 0 || s.CouponCode != nil
}

// Target — разобранная область подписки: "all" или конкретная категория.
type Target struct {
	Scope      Scope
	CategoryID string
}

// ParseTarget разбирает значение categoryIdOrAll. Литерал "all" сравнивается без учёта регистра.
// Проверка существования категории остаётся за вызывающим.
func ParseTarget(categoryIDOrAll string) Target {
	v := strings.TrimSpace(categoryIDOrAll)
	if strings.EqualFold(v, ScopeAll) {
		return Target{Scope: ScopeGlobal}
	}
	return Target{Scope: ScopeCategory, CategoryID: v}
}

// SubscribeRequest содержит параметры операции subscribe.
type SubscribeRequest struct {
	UserID     string
	Category   string
	PlanName   string
	PlanType   string
	CouponCode string
	// BaseDiscountPct — скидка плана; nil означает скидку из каталога.
	BaseDiscountPct *int
}

// ApplyCouponRequest содержит параметры операции applyCoupon.
type ApplyCouponRequest struct {
	UserID     string
	Category   string
	PlanID     int // 0: любой план
	CouponCode string
}

// DummySubscribe используется для приёма JSON-запроса на оформление подписки.
type DummySubscribe struct {
	Category   string `json:"category" validate:"required"`               // "all" или id категории
	PlanName   string `json:"plan_name" validate:"required"`              // имя плана из каталога
	PlanType   string `json:"plan_type" validate:"required"`              // monthly, quarterly, yearly
	CouponCode string `json:"coupon_code,omitempty" validate:"omitempty"` // код купона (опционально)
}

// DummyApplyCoupon используется для приёма JSON-запроса на применение купона.
type DummyApplyCoupon struct {
	Category   string `json:"category" validate:"required"`
	PlanID     int    `json:"plan_id" validate:"omitempty,gte=0"`
	CouponCode string `json:"coupon_code" validate:"required"`
}

// SubscribeResult — созданная запись и разбивка цены для ответа.
type SubscribeResult struct {
	Subscription *Subscription     `json:"subscription"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
}

// CheckoutResult — ожидающая оплаты подписка и ссылка на подтверждение платежа.
// PaymentID и ConfirmationURL пусты, если платёжный шлюз не настроен.
type CheckoutResult struct {
	Subscription    *Subscription     `json:"subscription"`
	Breakdown       pricing.Breakdown `json:"breakdown"`
	PaymentID       string            `json:"payment_id,omitempty"`
	ConfirmationURL string            `json:"confirmation_url,omitempty"`
}

// ApplyCouponResult описывает итог применения купона.
type ApplyCouponResult struct {
	Subscription   *Subscription   `json:"subscription"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// ExpiringSubscription — активная подписка с близким окончанием и контактом владельца.
type ExpiringSubscription struct {
	ID         string
	UserID     string
	Email      string
	Username   string
	PlanName   string
	Scope      Scope
	ExpiryDate time.Time
}
