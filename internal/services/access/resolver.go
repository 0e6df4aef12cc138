// Package access реализует двухступенчатое определение уровня админ-доступа.
//
// Быстрый путь — уровень из сессионных claims, медленный — запись
// администратора в хранилище. Claims обновляются реже хранилища и могут
// отставать; возврат помеченного источника делает устаревание наблюдаемым
// вместо молчаливой null-коалесценции.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// Source источник, из которого получен уровень доступа.
type Source string

const (
	// FromClaims уровень взят из сессионных claims.
	FromClaims Source = "claims"
	// FromStore уровень взят из записи администратора в хранилище.
	FromStore Source = "store"
	// Unresolved уровень не найден нигде, доступ запрещён.
	Unresolved Source = "unresolved"
)

// Resolution результат определения уровня доступа.
type Resolution struct {
	Level  models.AccessLevel
	Source Source
}

// AdminRepository определяет доступ к записям администраторов.
type AdminRepository interface {
	GetAdmin(ctx context.Context, clerkID string) (*models.Admin, error)
}

// Resolver выполняет двухступенчатое определение уровня доступа.
type Resolver struct {
	repo AdminRepository
}

// NewResolver создает новый Resolver.
func NewResolver(repo AdminRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve возвращает уровень доступа субъекта и источник решения.
// Пустой уровень в claims запускает запрос к хранилищу; отсутствие записи
// администратора — Unresolved, а не ошибка.
func (r *Resolver) Resolve(ctx context.Context, clerkID string, claimsLevel models.AccessLevel) (Resolution, error) {
	const op = "access.Resolve"

	if claimsLevel.Rank() > 0 {
		return Resolution{Level: claimsLevel, Source: FromClaims}, nil
	}

	admin, err := r.repo.GetAdmin(ctx, clerkID)
	if errors.Is(err, repository.ErrAdminNotFound) {
		return Resolution{Source: Unresolved}, nil
	}
	if err != nil {
		return Resolution{Source: Unresolved}, fmt.Errorf("%s: %w", op, err)
	}
	return Resolution{Level: admin.AccessLevel, Source: FromStore}, nil
}
