package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// DefaultTTL время жизни кода подтверждения.
const DefaultTTL = 10 * time.Minute

// Service выдаёт и проверяет коды подтверждения.
type Service struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewService создаёт сервис поверх хранилища. Нулевой ttl заменяется на DefaultTTL.
func NewService(store Store, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

func storageKey(purpose models.Purpose, subject string) string {
	return string(purpose) + ":" + subject
}

// Issue генерирует криптослучайный шестизначный код для пары (subject, purpose)
// и сохраняет его с TTL, перезаписывая предыдущий невостребованный код.
func (s *Service) Issue(ctx context.Context, subject string, purpose models.Purpose) (string, error) {
	const op = "verification.Issue"
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	record := models.VerificationCode{
		Code:      code,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Set(ctx, storageKey(purpose, subject), record); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("issued verification code",
		slog.String("purpose", string(purpose)), slog.String("subject", subject))
	return code, nil
}

// Verify проверяет код и при совпадении удаляет запись — код одноразовый.
// Несовпадение, отсутствие и истечение неразличимы для вызывающего.
// Сверка и удаление выполняются хранилищем атомарно: из конкурентных
// проверок одного кода успешной будет ровно одна, остальные увидят
// отсутствие записи. Истечение перепроверяется при чтении: просроченный
// код не проходит, даже если фоновая очистка до него ещё не дошла.
func (s *Service) Verify(ctx context.Context, subject string, purpose models.Purpose, candidate string) (bool, error) {
	const op = "verification.Verify"
	ok, err := s.store.CompareAndDelete(ctx, storageKey(purpose, subject), candidate, s.now())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// generateCode возвращает шестизначный код из crypto/rand с ведущими нулями.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
