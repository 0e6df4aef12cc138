package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// GetAdmin возвращает запись администратора по clerk_id.
func (s *Storage) GetAdmin(ctx context.Context, clerkID string) (*models.Admin, error) {
	const op = "storage.GetAdmin"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT clerk_id, access_level, became_admin_at
			  FROM admins
			  WHERE clerk_id = $1`
	a := &models.Admin{}
	row := s.DB.QueryRowContext(ctx, query, clerkID)
	if err := row.Scan(&a.ClerkID, &a.AccessLevel, &a.BecameAdminAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrAdminNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// UpsertAdmin сохраняет или обновляет запись администратора.
// Аккаунт с таким clerk_id должен существовать — FK на уровне схемы.
func (s *Storage) UpsertAdmin(ctx context.Context, admin models.Admin) error {
	const op = "storage.UpsertAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO admins (clerk_id, access_level, became_admin_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (clerk_id) DO UPDATE
			  SET access_level = EXCLUDED.access_level;`
	if _, err := s.DB.ExecContext(ctx, query,
		admin.ClerkID, admin.AccessLevel, admin.BecameAdminAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveAdmin удаляет запись администратора по clerk_id.
func (s *Storage) RemoveAdmin(ctx context.Context, clerkID string) error {
	const op = "storage.RemoveAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM admins WHERE clerk_id = $1`, clerkID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
