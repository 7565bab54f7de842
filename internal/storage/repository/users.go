package repository

import (
	"context"

	"github.com/magabrotheeeer/paywall/internal/models"
)

// GetUser возвращает пользователя по его ID.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, email, username FROM users WHERE id = $1`
	u := &models.User{}
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&u.ID, &u.Email, &u.Username); err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// CategoryExists проверяет существование категории контента.
func (s *Storage) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	const op = "storage.CategoryExists"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`
	if err := s.DB.QueryRowContext(ctx, query, categoryID).Scan(&exists); err != nil {
		return false, mapErr(op, err)
	}
	return exists, nil
}
