// Package credentials содержит парольные сценарии: запрос сброса,
// подтверждение сброса кодом и смену пароля аутентифицированным пользователем.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/password"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/ratelimit"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// ErrTooManyAttempts возвращается при превышении лимита попыток.
var ErrTooManyAttempts = errors.New("too many attempts")

// ErrInvalidCode возвращается при неверном, истёкшем или отсутствующем коде.
// Причины неразличимы намеренно.
var ErrInvalidCode = errors.New("invalid or expired code")

// ErrWrongPassword возвращается при несовпадении текущего пароля.
var ErrWrongPassword = errors.New("current password does not match")

// Repository определяет методы хранилища для парольных сценариев.
type Repository interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, clerkID, passwordHash string) error
}

// CodeIssuer выдаёт и проверяет коды подтверждения.
type CodeIssuer interface {
	Issue(ctx context.Context, subject string, purpose models.Purpose) (string, error)
	Verify(ctx context.Context, subject string, purpose models.Purpose, candidate string) (bool, error)
}

// MailPublisher публикует задание на отправку письма с кодом.
type MailPublisher interface {
	PublishVerificationCode(email string, purpose models.Purpose, code string) error
}

// Service реализует парольные сценарии.
type Service struct {
	repo    Repository
	codes   CodeIssuer
	limiter ratelimit.Limiter
	mail    MailPublisher
	log     *slog.Logger
}

// New создает новый Service.
func New(repo Repository, codes CodeIssuer, limiter ratelimit.Limiter, mail MailPublisher, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		codes:   codes,
		limiter: limiter,
		mail:    mail,
		log:     log,
	}
}

// RequestReset обрабатывает запрос на сброс пароля.
//
// Ответ одинаков для существующей и несуществующей почты — перебор адресов
// по ответам невозможен. Инкремент лимитера выполняется и для несуществующих
// аккаунтов: повторные попытки наказываются независимо от исхода.
func (s *Service) RequestReset(ctx context.Context, email, ip string) error {
	const op = "credentials.RequestReset"
	key := ratelimit.Key{Subject: email, IP: ip, Action: "password_reset"}

	if !s.limiter.Check(key) {
		return fmt.Errorf("%s: %w", op, ErrTooManyAttempts)
	}
	s.limiter.Increment(key)

	account, err := s.repo.GetAccountByEmail(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := s.codes.Issue(ctx, account.Email, models.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.mail.PublishVerificationCode(account.Email, models.PurposePasswordReset, code); err != nil {
		// Код уже в хранилище, письмо не ушло: пользователь запросит повтор,
		// прежний код перезапишется.
		s.log.Error("failed to publish verification mail", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConfirmReset проверяет код и устанавливает новый пароль.
func (s *Service) ConfirmReset(ctx context.Context, email, code, newPassword, ip string) error {
	const op = "credentials.ConfirmReset"
	key := ratelimit.Key{Subject: email, IP: ip, Action: "password_reset_confirm"}

	if !s.limiter.Check(key) {
		return fmt.Errorf("%s: %w", op, ErrTooManyAttempts)
	}
	s.limiter.Increment(key)

	ok, err := s.codes.Verify(ctx, email, models.PurposePasswordReset, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	account, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, account.ClerkID, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password reset confirmed", slog.String("clerk_id", account.ClerkID))
	return nil
}

// ChangePassword меняет пароль аутентифицированного пользователя
// после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, clerkID, current, newPassword string) error {
	const op = "credentials.ChangePassword"

	account, err := s.repo.GetAccountByClerkID(ctx, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(account.PasswordHash, current); err != nil {
		return fmt.Errorf("%s: %w", op, ErrWrongPassword)
	}
	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, clerkID, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password changed", slog.String("clerk_id", clerkID))
	return nil
}
