// Package pricing выполняет чистый расчёт цены подписки со скидками плана и купона.
//
// Функции пакета детерминированы и не имеют побочных эффектов. Суммы считаются в
// shopspring/decimal и округляются до копеек, итоговая цена никогда не бывает отрицательной.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Breakdown — разбивка цены, которую subscribe возвращает клиенту.
type Breakdown struct {
	OriginalPrice        decimal.Decimal `json:"original_price"`
	DiscountFromPlan     decimal.Decimal `json:"discount_from_plan"`
	DiscountFromCoupon   decimal.Decimal `json:"discount_from_coupon"`
	TotalDiscount        decimal.Decimal `json:"total_discount"`
	FinalPrice           decimal.Decimal `json:"final_price"`
	PlanDiscountPct      int             `json:"plan_discount_pct"`
	CouponDiscountPct    int             `json:"coupon_discount_pct"`
	CouponDiscountQuoted bool            `json:"coupon_discount_quoted"`
}

// ValidatePercentage проверяет, что процент скидки лежит в [0,100].
func ValidatePercentage(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("pricing: %d%%: %w", pct, apperr.ErrInvalidDiscount)
	}
	return nil
}

// ComputeFinalPrice считает base - base*(planPct+couponPct)/100 с полом в ноль.
func ComputeFinalPrice(base decimal.Decimal, planPct, couponPct int) (decimal.Decimal, error) {
	if err := ValidatePercentage(planPct); err != nil {
		return decimal.Zero, err
	}
	if err := ValidatePercentage(couponPct); err != nil {
		return decimal.Zero, err
	}
	if base.IsNegative() {
		return decimal.Zero, fmt.Errorf("pricing: negative base price %s: %w", base, apperr.ErrInvalidRequest)
	}

	discount := base.Mul(decimal.NewFromInt(int64(planPct + couponPct))).Div(hundred)
	return floorZero(base.Sub(discount)).Round(moneyPlaces), nil
}

// ApplyPercentage снимает pct процентов с уже уменьшенной цены.
// Возвращает новую цену и размер снятой суммы.
func ApplyPercentage(price decimal.Decimal, pct int) (decimal.Decimal, decimal.Decimal, error) {
	if err := ValidatePercentage(pct); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	amount := price.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(moneyPlaces)
	return floorZero(price.Sub(amount)).Round(moneyPlaces), amount, nil
}

// Quote строит разбивку для ответа subscribe.
//
// Скидка купона считается от цены после скидки плана, ровно так же, как её потом
// применит ApplyCoupon: 1000 / 5% / 10% даёт 50 + 95 и итог 855.
func Quote(base decimal.Decimal, planPct, couponPct int) (Breakdown, error) {
	afterPlan, err := ComputeFinalPrice(base, planPct, 0)
	if err != nil {
		return Breakdown{}, err
	}
	final, couponAmount, err := ApplyPercentage(afterPlan, couponPct)
	if err != nil {
		return Breakdown{}, err
	}

	base = base.Round(moneyPlaces)
	return Breakdown{
		OriginalPrice:        base,
		DiscountFromPlan:     base.Sub(afterPlan),
		DiscountFromCoupon:   couponAmount,
		TotalDiscount:        base.Sub(final),
		FinalPrice:           final,
		PlanDiscountPct:      planPct,
		CouponDiscountPct:    couponPct,
		CouponDiscountQuoted: couponPct > 0,
	}, nil
}

// FormatAmount форматирует сумму для отображения, например "₽855.00".
func FormatAmount(currencySymbol string, amount decimal.Decimal) string {
	return currencySymbol + amount.StringFixed(moneyPlaces)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
