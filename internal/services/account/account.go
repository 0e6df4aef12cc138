// Package account содержит бизнес-логику самообслуживания учётной записи:
// обновление профиля, удаление аккаунта и работа с файлами.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// ErrAdminAccount возвращается при попытке самоудаления аккаунта
// с записью администратора. Такой аккаунт удаляется только отдельным
// административным путём — защита от случайной потери привилегий.
var ErrAdminAccount = errors.New("admin accounts cannot self-delete")

// Repository определяет методы хранилища для операций самообслуживания.
type Repository interface {
	GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error)
	GetAdmin(ctx context.Context, clerkID string) (*models.Admin, error)
	UpdateProfile(ctx context.Context, clerkID string, update models.ProfileUpdate) error
	DeleteAccount(ctx context.Context, clerkID string) error
}

// BillingCanceler отменяет подписку на стороне биллинг-провайдера.
type BillingCanceler interface {
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// MediaRemover удаляет файлы во внешнем хранилище.
type MediaRemover interface {
	Destroy(ctx context.Context, publicID string) error
}

// Service реализует операции самообслуживания учётной записи.
type Service struct {
	repo    Repository
	billing BillingCanceler
	media   MediaRemover
	log     *slog.Logger
}

// New создает новый Service.
func New(repo Repository, billing BillingCanceler, media MediaRemover, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		billing: billing,
		media:   media,
		log:     log,
	}
}

// Get возвращает учётную запись вызывающего.
func (s *Service) Get(ctx context.Context, clerkID string) (*models.Account, error) {
	return s.repo.GetAccountByClerkID(ctx, clerkID)
}

// UpdateProfile обновляет поля профиля. Поля подписки и биллинга этим путём
// недостижимы — их пишет только реконсилятор.
func (s *Service) UpdateProfile(ctx context.Context, clerkID string, update models.ProfileUpdate) error {
	const op = "account.UpdateProfile"
	if err := s.repo.UpdateProfile(ctx, clerkID, update); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("profile updated", slog.String("clerk_id", clerkID))
	return nil
}

// Delete удаляет учётную запись вызывающего.
//
// Аккаунт с записью администратора не удаляется и мутации не выполняются.
// Отмена подписки у биллинг-провайдера и чистка файлов — некритичные
// побочные эффекты: ошибка логируется, операция продолжается. Удаление
// строки в хранилище критично: при ошибке операция прерывается с отказом,
// ложный успех не сообщается.
func (s *Service) Delete(ctx context.Context, clerkID string, mediaPublicIDs []string) error {
	const op = "account.Delete"

	account, err := s.repo.GetAccountByClerkID(ctx, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.repo.GetAdmin(ctx, clerkID)
	if err == nil {
		return fmt.Errorf("%s: %w", op, ErrAdminAccount)
	}
	if !errors.Is(err, repository.ErrAdminNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if account.StripeSubscriptionID != nil {
		if err := s.billing.CancelSubscription(ctx, *account.StripeSubscriptionID); err != nil {
			s.log.Warn("failed to cancel subscription during account deletion",
				slog.String("clerk_id", clerkID), sl.Err(err))
		}
	}
	for _, publicID := range mediaPublicIDs {
		if err := s.media.Destroy(ctx, publicID); err != nil {
			s.log.Warn("failed to remove stored file during account deletion",
				slog.String("public_id", publicID), sl.Err(err))
		}
	}

	if err := s.repo.DeleteAccount(ctx, clerkID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account deleted by owner", slog.String("clerk_id", clerkID))
	return nil
}
