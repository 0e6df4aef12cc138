package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

const accountColumns = `clerk_id, email, name, password_hash, subscription_plan_id,
			      subscription_status, stripe_customer_id, stripe_subscription_id,
			      current_period_end, auto_renew, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	var name, passwordHash sql.NullString
	var customerID, subscriptionID sql.NullString
	var periodEnd sql.NullTime
	var autoRenew sql.NullBool
	if err := row.Scan(&a.ClerkID, &a.Email, &name, &passwordHash, &a.SubscriptionPlanID,
		&a.SubscriptionStatus, &customerID, &subscriptionID,
		&periodEnd, &autoRenew, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Name = name.String
	a.PasswordHash = passwordHash.String
	if customerID.Valid {
		a.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		a.StripeSubscriptionID = &subscriptionID.String
	}
	if periodEnd.Valid {
		a.CurrentPeriodEnd = &periodEnd.Time
	}
	if autoRenew.Valid {
		a.AutoRenew = &autoRenew.Bool
	}
	return a, nil
}

// UpsertAccount сохраняет учётную запись по clerk_id. Повторная доставка
// события identity-created обновляет только почту и имя, поля подписки
// повторный upsert не трогает.
func (s *Storage) UpsertAccount(ctx context.Context, account models.Account) error {
	const op = "storage.UpsertAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (clerk_id, email, name, subscription_plan_id, subscription_status)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (clerk_id) DO UPDATE
			  SET email = EXCLUDED.email,
			      name = EXCLUDED.name,
			      updated_at = NOW();`
	if _, err := s.DB.ExecContext(ctx, query,
		account.ClerkID, account.Email, account.Name,
		account.SubscriptionPlanID, account.SubscriptionStatus); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetAccountByClerkID возвращает учётную запись по идентификатору identity-провайдера.
func (s *Storage) GetAccountByClerkID(ctx context.Context, clerkID string) (*models.Account, error) {
	const op = "storage.GetAccountByClerkID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE clerk_id = $1`
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, clerkID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// GetAccountByStripeCustomerID возвращает учётную запись по идентификатору клиента биллинга.
func (s *Storage) GetAccountByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	const op = "storage.GetAccountByStripeCustomerID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE stripe_customer_id = $1`
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// GetAccountByEmail возвращает учётную запись по почте.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccountByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE email = $1`
	a, err := scanAccount(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// UpdateEmail обновляет почту аккаунта. Поля подписки не затрагиваются.
func (s *Storage) UpdateEmail(ctx context.Context, clerkID, email string) error {
	const op = "storage.UpdateEmail"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET email = $1, updated_at = NOW()
			  WHERE clerk_id = $2`
	res, err := s.DB.ExecContext(ctx, query, email, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// UpdateProfile обновляет поля профиля. Поля подписки и биллинга намеренно
// недоступны этому запросу — их пишет только реконсилятор.
func (s *Storage) UpdateProfile(ctx context.Context, clerkID string, update models.ProfileUpdate) error {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET name = COALESCE($1, name),
			      email = COALESCE($2, email),
			      updated_at = NOW()
			  WHERE clerk_id = $3`
	res, err := s.DB.ExecContext(ctx, query, update.Name, update.Email, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// UpdatePasswordHash сохраняет новый хэш пароля.
func (s *Storage) UpdatePasswordHash(ctx context.Context, clerkID, passwordHash string) error {
	const op = "storage.UpdatePasswordHash"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET password_hash = $1, updated_at = NOW()
			  WHERE clerk_id = $2`
	res, err := s.DB.ExecContext(ctx, query, passwordHash, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// SetStripeCustomerID привязывает аккаунт к клиенту биллинга. Поле пишется
// один раз при создании платёжных отношений.
func (s *Storage) SetStripeCustomerID(ctx context.Context, clerkID, customerID string) error {
	const op = "storage.SetStripeCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET stripe_customer_id = $1, updated_at = NOW()
			  WHERE clerk_id = $2 AND stripe_customer_id IS NULL`
	res, err := s.DB.ExecContext(ctx, query, customerID, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// UpdateSubscriptionFields применяет группу полей подписки одним UPDATE.
// Конкурентные доставки вебхуков не перемешивают частичные записи:
// каждое событие ложится в строку целиком либо не ложится вовсе.
func (s *Storage) UpdateSubscriptionFields(ctx context.Context, clerkID string, fields models.SubscriptionFields) error {
	const op = "storage.UpdateSubscriptionFields"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET subscription_plan_id = $1,
			      subscription_status = $2,
			      stripe_subscription_id = $3,
			      current_period_end = $4,
			      auto_renew = $5,
			      updated_at = NOW()
			  WHERE clerk_id = $6`
	res, err := s.DB.ExecContext(ctx, query,
		fields.PlanID, fields.Status, fields.SubscriptionID,
		fields.CurrentPeriodEnd, fields.AutoRenew, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// DeleteAccount удаляет учётную запись. Запись администратора, если есть,
// удаляется каскадом на уровне схемы.
func (s *Storage) DeleteAccount(ctx context.Context, clerkID string) error {
	const op = "storage.DeleteAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM accounts WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}
