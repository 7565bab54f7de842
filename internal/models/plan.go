package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan — план подписки из каталога. Справочные данные, создаются администратором.
type Plan struct {
	ID                 int             `json:"id"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	DurationDays       int             `json:"duration_days"`
	Features           []string        `json:"features"`
	DiscountPercentage int             `json:"discount_percentage"` // скидка плана, не зависящая от купонов
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
}
