package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFinalPrice_TableTests(t *testing.T) {
	tests := []struct {
		name      string
		base      decimal.Decimal
		planPct   int
		couponPct int
		want      decimal.Decimal
		wantErr   error
	}{
		{name: "no discounts", base: dec("1000"), want: dec("1000")},
		{name: "plan only", base: dec("1000"), planPct: 5, want: dec("950")},
		{name: "plan and coupon additive", base: dec("1000"), planPct: 5, couponPct: 10, want: dec("850")},
		{name: "exactly hundred", base: dec("499.99"), planPct: 40, couponPct: 60, want: dec("0")},
		{name: "sum above hundred floors at zero", base: dec("100"), planPct: 70, couponPct: 70, want: dec("0")},
		{name: "fractional price rounds to cents", base: dec("99.99"), planPct: 15, want: dec("84.99")},
		{name: "zero base", base: dec("0"), planPct: 50, want: dec("0")},
		{name: "negative plan pct", base: dec("100"), planPct: -1, wantErr: apperr.ErrInvalidDiscount},
		{name: "coupon pct above hundred", base: dec("100"), couponPct: 101, wantErr: apperr.ErrInvalidDiscount},
		{name: "negative base", base: dec("-1"), wantErr: apperr.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeFinalPrice(tt.base, tt.planPct, tt.couponPct)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestComputeFinalPrice_PropertyAllValidPercentages(t *testing.T) {
	base := dec("1234.56")
	for plan := 0; plan <= 100; plan += 5 {
		for coupon := 0; coupon <= 100; coupon += 5 {
			got, err := ComputeFinalPrice(base, plan, coupon)
			require.NoError(t, err)
			require.False(t, got.IsNegative())

			if plan+coupon <= 100 {
				factor := decimal.NewFromInt(int64(100 - plan - coupon)).Div(decimal.NewFromInt(100))
				want := base.Mul(factor).Round(2)
				require.True(t, want.Equal(got), "plan=%d coupon=%d want %s got %s", plan, coupon, want, got)
			} else {
				require.True(t, got.IsZero())
			}
		}
	}
}

func TestApplyPercentage(t *testing.T) {
	price, amount, err := ApplyPercentage(dec("950"), 10)
	require.NoError(t, err)
	assert.True(t, dec("855").Equal(price))
	assert.True(t, dec("95").Equal(amount))

	price, amount, err = ApplyPercentage(dec("950"), 0)
	require.NoError(t, err)
	assert.True(t, dec("950").Equal(price))
	assert.True(t, amount.IsZero())

	_, _, err = ApplyPercentage(dec("950"), 150)
	assert.ErrorIs(t, err, apperr.ErrInvalidDiscount)
}

// 1000 / 5% / 10%: купон считается от уже уменьшенной цены.
// Купон считается от цены после скидки плана (95, а не 100 от базовой цены),
// ровно так же, как его потом списывает ApplyCoupon. Решение записано в DESIGN.md.
func TestQuote_CompoundingScenario(t *testing.T) {
	b, err := Quote(dec("1000"), 5, 10)
	require.NoError(t, err)

	assert.True(t, dec("1000").Equal(b.OriginalPrice))
	assert.True(t, dec("50").Equal(b.DiscountFromPlan))
	assert.True(t, dec("95").Equal(b.DiscountFromCoupon))
	assert.True(t, dec("145").Equal(b.TotalDiscount))
	assert.True(t, dec("855").Equal(b.FinalPrice))
	assert.True(t, b.CouponDiscountQuoted)
	assert.Equal(t, 5, b.PlanDiscountPct)
	assert.Equal(t, 10, b.CouponDiscountPct)
}

func TestQuote_WithoutCoupon(t *testing.T) {
	b, err := Quote(dec("1000"), 5, 0)
	require.NoError(t, err)

	assert.True(t, dec("950").Equal(b.FinalPrice))
	assert.True(t, b.DiscountFromCoupon.IsZero())
	assert.False(t, b.CouponDiscountQuoted)
}

func TestQuote_InvalidDiscount(t *testing.T) {
	_, err := Quote(dec("1000"), 101, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidDiscount)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "₹855.00", FormatAmount("₹", dec("855")))
	assert.Equal(t, "$0.50", FormatAmount("$", dec("0.5")))
}
