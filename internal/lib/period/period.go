// Package period считает дату окончания подписки по типу плана.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Type — длительность оплаченного периода.
type Type string

const (
	Monthly   Type = "monthly"
	Quarterly Type = "quarterly"
	Yearly    Type = "yearly"
)

// Parse нормализует строку типа плана.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("period.Parse: unknown plan type %q", s)
	}
	return t, nil
}

// Valid сообщает, известен ли тип.
func (t Type) Valid() bool {
	switch t {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Months возвращает длину периода в календарных месяцах.
func (t Type) Months() int {
	switch t {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case Yearly:
		return 12
	}
	return 0
}

// Expiry возвращает start плюс период типа t в календарных месяцах.
//
// В отличие от time.AddDate день не переполняется в следующий месяц:
// 31 января + 1 месяц = 28 (29) февраля, 29 февраля + 1 год = 28 февраля.
func Expiry(start time.Time, t Type) time.Time {
	return AddMonths(start, t.Months())
}

// AddMonths прибавляет n календарных месяцев, прижимая день к концу целевого месяца.
func AddMonths(start time.Time, n int) time.Time {
	y, m, d := start.Date()
	hh, mm, ss := start.Clock()

	// первое число целевого месяца
	first := time.Date(y, m+time.Month(n), 1, hh, mm, ss, start.Nanosecond(), start.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, start.Nanosecond(), start.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
