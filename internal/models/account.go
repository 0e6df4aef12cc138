// Package models содержит доменные структуры сервиса: учётные записи,
// администраторов, каталог тарифов и коды подтверждения.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// Account представляет учётную запись пользователя, зеркалирующую данные
// провайдера идентификации и биллинга. Поля Stripe* заполняются только
// после возникновения платёжных отношений и могут быть nil.
type Account struct {
	ClerkID              string     // Стабильный идентификатор во внешнем identity-провайдере
	Email                string     // Электронная почта (уникальна среди активных аккаунтов)
	Name                 string     // Отображаемое имя
	PasswordHash         string     // Хэш пароля для парольных сценариев
	SubscriptionPlanID   string     // Идентификатор тарифа из каталога, по умолчанию free
	SubscriptionStatus   string     // Статус подписки: free, active, trialing, past_due, canceled, incomplete
	StripeCustomerID     *string    // Идентификатор клиента в биллинге
	StripeSubscriptionID *string    // Идентификатор подписки в биллинге
	CurrentPeriodEnd     *time.Time // Конец текущего оплаченного периода
	AutoRenew            *bool      // Флаг автопродления, true пока подписка активна
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SubscriptionFields группа полей подписки, которая применяется к аккаунту
// атомарно одним обновлением — по одному вебхук-событию целиком.
type SubscriptionFields struct {
	PlanID           string
	Status           string
	SubscriptionID   *string
	CurrentPeriodEnd *time.Time
	AutoRenew        *bool
}

// ProfileUpdate содержит поля профиля, доступные для обычного обновления.
// Поля подписки и биллинга сюда не входят и не могут быть изменены этим путём.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}
