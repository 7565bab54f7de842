package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/paywall/internal/models"
)

const planColumns = `id, name, price, duration_days, features, discount_percentage, is_active, created_at`

// CreatePlan вставляет план в каталог и возвращает его ID.
func (s *Storage) CreatePlan(ctx context.Context, plan models.Plan) (int, error) {
	const op = "storage.CreatePlan"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	features, err := json.Marshal(plan.Features)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscription_plans (name, price, duration_days, features, discount_percentage, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var id int
	err = s.DB.QueryRowContext(ctx, query,
		plan.Name, plan.Price, plan.DurationDays, features, plan.DiscountPercentage, plan.IsActive).Scan(&id)
	if err != nil {
		return 0, mapErr(op, err)
	}
	return id, nil
}

// GetPlanByName возвращает план по точному имени, включая неактивные.
func (s *Storage) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	const op = "storage.GetPlanByName"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE name = $1`
	var (
		p        models.Plan
		features []byte
	)
	err := s.DB.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name, &p.Price, &p.DurationDays,
		&features, &p.DiscountPercentage, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(op, err)
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("%s: features: %w", op, err)
	}
	return &p, nil
}
