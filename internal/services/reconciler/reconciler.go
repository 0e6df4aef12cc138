// Package reconciler содержит бизнес-логику согласования учётных записей
// с внешними провайдерами. Поля подписки и биллинга в хранилище пишутся
// только отсюда: вебхук-события и административная коррекция — единственные
// пути мутации этих полей.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-reconciler/internal/billing"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
	"github.com/magabrotheeeer/subscription-reconciler/internal/subscription"
)

// ErrMissingEmail возвращается для события identity-created без основной почты.
var ErrMissingEmail = errors.New("identity event has no primary email")

// dedupTTL время хранения отметки об обработанном событии.
const dedupTTL = 24 * time.Hour

// IdentityEvent событие identity-провайдера после проверки подписи.
type IdentityEvent struct {
	ID      string // Идентификатор доставки, пустой допустим
	ClerkID string
	Email   string
	Name    string
}

// AccountRepository определяет методы хранилища, нужные реконсилятору.
type AccountRepository interface {
	UpsertAccount(ctx context.Context, account models.Account) error
	GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error)
	GetAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	UpdateEmail(ctx context.Context, clerkID, email string) error
	SetStripeCustomerID(ctx context.Context, clerkID, customerID string) error
	UpdateSubscriptionFields(ctx context.Context, clerkID string, fields models.SubscriptionFields) error
	DeleteAccount(ctx context.Context, clerkID string) error
}

// Deduper отмечает обработанные события. Повторная доставка того же
// события превращается в no-op.
type Deduper interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// Service реализует согласование хранилища с вебхук-событиями
// и ручные коррекции подписки.
type Service struct {
	repo    AccountRepository
	billing billing.Provider
	dedup   Deduper
	log     *slog.Logger
}

// New создает новый Service.
func New(repo AccountRepository, provider billing.Provider, dedup Deduper, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		billing: provider,
		dedup:   dedup,
		log:     log,
	}
}

// seen отмечает событие обработанным и возвращает ключ отметки.
// dup == true — событие уже встречалось. Если мутация после захвата отметки
// не удалась, обработчик обязан снять её через forget: иначе повторная
// доставка того же события будет молча проглочена и событие потеряется.
func (s *Service) seen(ctx context.Context, eventID string) (dup bool, mark string) {
	if s.dedup == nil {
		return false, ""
	}
	if eventID == "" {
		eventID = uuid.New().String()
	}
	mark = "webhook-event:" + eventID
	first, err := s.dedup.SetNX(ctx, mark, 1, dedupTTL)
	if err != nil {
		// Недоступный дедупликатор не повод терять событие: обработчики идемпотентны.
		s.log.Warn("event dedup unavailable", sl.Err(err))
		return false, ""
	}
	return !first, mark
}

// forget снимает отметку о событии, открывая дорогу повторной доставке.
func (s *Service) forget(ctx context.Context, mark string) {
	if s.dedup == nil || mark == "" {
		return
	}
	if err := s.dedup.Invalidate(ctx, mark); err != nil {
		s.log.Warn("failed to clear event dedup mark", sl.Err(err))
	}
}

// HandleIdentityCreated создаёт учётную запись с бесплатным тарифом.
// Событие без основной почты отклоняется.
func (s *Service) HandleIdentityCreated(ctx context.Context, event IdentityEvent) error {
	const op = "reconciler.HandleIdentityCreated"
	if event.Email == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingEmail)
	}
	dup, mark := s.seen(ctx, event.ID)
	if dup {
		s.log.Info("duplicate identity event ignored", slog.String("event_id", event.ID))
		return nil
	}

	account := models.Account{
		ClerkID:            event.ClerkID,
		Email:              event.Email,
		Name:               event.Name,
		SubscriptionPlanID: models.FreePlanID,
		SubscriptionStatus: string(subscription.StatusFree),
	}
	if err := s.repo.UpsertAccount(ctx, account); err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account created", slog.String("clerk_id", event.ClerkID))
	return nil
}

// HandleIdentityUpdated обновляет почту аккаунта. Поля подписки не трогает.
func (s *Service) HandleIdentityUpdated(ctx context.Context, event IdentityEvent) error {
	const op = "reconciler.HandleIdentityUpdated"
	dup, mark := s.seen(ctx, event.ID)
	if dup {
		return nil
	}

	account, err := s.repo.GetAccountByClerkID(ctx, event.ClerkID)
	if err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	if event.Email == "" || event.Email == account.Email {
		return nil
	}
	if err := s.repo.UpdateEmail(ctx, event.ClerkID, event.Email); err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account email updated", slog.String("clerk_id", event.ClerkID))
	return nil
}

// HandleIdentityDeleted удаляет учётную запись вслед за удалением
// пользователя в identity-провайдере.
func (s *Service) HandleIdentityDeleted(ctx context.Context, event IdentityEvent) error {
	const op = "reconciler.HandleIdentityDeleted"
	dup, mark := s.seen(ctx, event.ID)
	if dup {
		return nil
	}

	err := s.repo.DeleteAccount(ctx, event.ClerkID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		// Аккаунт уже удалён, событие доехало повторно или с опозданием.
		return nil
	}
	if err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account deleted", slog.String("clerk_id", event.ClerkID))
	return nil
}

// HandleSubscriptionUpdated применяет событие subscription-created или
// subscription-updated: находит аккаунт по идентификатору клиента биллинга
// и записывает группу полей подписки одним обновлением. Событие для
// неизвестного клиента — no-op.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, eventID string, sub billing.Subscription) error {
	const op = "reconciler.HandleSubscriptionUpdated"
	dup, mark := s.seen(ctx, eventID)
	if dup {
		return nil
	}

	account, err := s.repo.GetAccountByStripeCustomerID(ctx, sub.CustomerID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		s.log.Warn("subscription event for unlinked customer",
			slog.String("customer_id", sub.CustomerID))
		return nil
	}
	if err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}

	fields, err := s.subscriptionFields(account, sub)
	if err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateSubscriptionFields(ctx, account.ClerkID, *fields); err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription reconciled",
		slog.String("clerk_id", account.ClerkID),
		slog.String("status", fields.Status))
	return nil
}

// HandleSubscriptionDeleted возвращает аккаунт к бесплатному базовому
// состоянию и очищает поля платного тарифа.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, eventID string, sub billing.Subscription) error {
	const op = "reconciler.HandleSubscriptionDeleted"
	dup, mark := s.seen(ctx, eventID)
	if dup {
		return nil
	}

	account, err := s.repo.GetAccountByStripeCustomerID(ctx, sub.CustomerID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		s.log.Warn("subscription deletion for unlinked customer",
			slog.String("customer_id", sub.CustomerID))
		return nil
	}
	if err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}

	fields := models.SubscriptionFields{
		PlanID: models.FreePlanID,
		Status: string(subscription.StatusFree),
	}
	if err := s.repo.UpdateSubscriptionFields(ctx, account.ClerkID, fields); err != nil {
		s.forget(ctx, mark)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription removed, account downgraded to free",
		slog.String("clerk_id", account.ClerkID))
	return nil
}

// ToggleAutoRenew переключает автопродление подписки: перечитывает текущее
// состояние у провайдера, переводит флаг в cancel_at_period_end и зеркалирует
// результат в учётную запись. Перечитывание обязательно — иначе параллельные
// изменения на стороне провайдера затираются устаревшими данными.
// Авторизацию вызывающего выполняет gate-мидлварь до этого вызова.
func (s *Service) ToggleAutoRenew(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	const op = "reconciler.ToggleAutoRenew"

	current, err := s.billing.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// autoRenew == !cancelAtPeriodEnd; flip означает инверсию флага отмены.
	updated, err := s.billing.SetCancelAtPeriodEnd(ctx, subscriptionID, !current.CancelAtPeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.repo.GetAccountByStripeCustomerID(ctx, updated.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fields, err := s.subscriptionFields(account, *updated)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateSubscriptionFields(ctx, account.ClerkID, *fields); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("auto-renew toggled",
		slog.String("clerk_id", account.ClerkID),
		slog.Bool("auto_renew", !updated.CancelAtPeriodEnd))
	return updated, nil
}

// CreateCheckoutSession возвращает URL оплаты выбранного тарифа.
// При отсутствии платёжных отношений сначала создаётся клиент в биллинге
// и аккаунт привязывается к нему — единственный путь записи customer id.
func (s *Service) CreateCheckoutSession(ctx context.Context, clerkID, planID string) (string, error) {
	const op = "reconciler.CreateCheckoutSession"

	plan, ok := models.PlanByID(planID)
	if !ok || plan.StripePriceID == "" {
		return "", fmt.Errorf("%s: plan %q is not purchasable", op, planID)
	}

	account, err := s.repo.GetAccountByClerkID(ctx, clerkID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var customerID string
	if account.StripeCustomerID != nil {
		customerID = *account.StripeCustomerID
	} else {
		customerID, err = s.billing.EnsureCustomer(ctx, clerkID, account.Email)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if err := s.repo.SetStripeCustomerID(ctx, clerkID, customerID); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	url, err := s.billing.CreateCheckoutSession(ctx, customerID, plan.StripePriceID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

// CreatePortalSession возвращает URL личного кабинета биллинга.
// Аккаунту без платёжных отношений кабинет недоступен.
func (s *Service) CreatePortalSession(ctx context.Context, clerkID string) (string, error) {
	const op = "reconciler.CreatePortalSession"

	account, err := s.repo.GetAccountByClerkID(ctx, clerkID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if account.StripeCustomerID == nil {
		return "", fmt.Errorf("%s: account has no billing customer", op)
	}

	url, err := s.billing.CreatePortalSession(ctx, *account.StripeCustomerID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

// subscriptionFields строит группу полей подписки из события, прогоняя
// смену статуса через таблицу переходов.
func (s *Service) subscriptionFields(account *models.Account, sub billing.Subscription) (*models.SubscriptionFields, error) {
	current := subscription.Status(account.SubscriptionStatus)
	if current == "" {
		current = subscription.StatusFree
	}
	next, err := subscription.Parse(sub.Status)
	if err != nil {
		return nil, err
	}
	// Подписка, отменяемая в конце периода, отражается как canceled,
	// а не active: пользователю важно видеть ожидаемое истечение.
	if sub.CancelAtPeriodEnd && next == subscription.StatusActive {
		next = subscription.StatusCanceled
	}
	applied, err := subscription.Apply(current, next)
	if err != nil {
		return nil, err
	}

	planID := account.SubscriptionPlanID
	if plan, ok := models.PlanByPriceID(sub.PriceID); ok {
		planID = plan.ID
	} else {
		s.log.Warn("unknown price id in subscription event", slog.String("price_id", sub.PriceID))
	}

	autoRenew := !sub.CancelAtPeriodEnd
	fields := &models.SubscriptionFields{
		PlanID:    planID,
		Status:    string(applied),
		AutoRenew: &autoRenew,
	}
	if sub.ID != "" {
		id := sub.ID
		fields.SubscriptionID = &id
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		fields.CurrentPeriodEnd = &end
	}
	return fields, nil
}
