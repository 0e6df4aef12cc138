// Package billing оборачивает SDK биллинг-провайдера (Stripe): клиенты,
// checkout- и portal-сессии, чтение и обновление подписок. Все мутации
// подписок на стороне провайдера проходят только через этот пакет.
package billing

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/magabrotheeeer/subscription-reconciler/internal/config"
)

// Subscription срез состояния подписки на стороне провайдера,
// достаточный для зеркалирования в учётную запись.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// Provider описывает операции биллинг-провайдера, нужные реконсилятору
// и интерактивным обработчикам. За интерфейсом — для подмены в тестах.
type Provider interface {
	EnsureCustomer(ctx context.Context, clerkID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Client реализует Provider поверх Stripe SDK. Таймауты исходящих вызовов
// обеспечивает сам SDK.
type Client struct {
	successURL string
	cancelURL  string
	returnURL  string
}

// NewClient создаёт клиент и устанавливает API-ключ SDK.
func NewClient(cfg config.Stripe) *Client {
	stripe.Key = cfg.APIKey
	return &Client{
		successURL: cfg.CheckoutSuccessURL,
		cancelURL:  cfg.CheckoutCancelURL,
		returnURL:  cfg.PortalReturnURL,
	}
}

// EnsureCustomer создаёт клиента в биллинге для аккаунта.
func (c *Client) EnsureCustomer(_ context.Context, clerkID, email string) (string, error) {
	const op = "billing.EnsureCustomer"
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"clerk_id": clerkID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession создаёт checkout-сессию в режиме подписки
// и возвращает URL для редиректа.
func (c *Client) CreateCheckoutSession(_ context.Context, customerID, priceID string) (string, error) {
	const op = "billing.CreateCheckoutSession"
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// CreatePortalSession создаёт сессию личного кабинета биллинга.
func (c *Client) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	const op = "billing.CreatePortalSession"
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// GetSubscription перечитывает текущее состояние подписки у провайдера.
func (c *Client) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	const op = "billing.GetSubscription"
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return fromStripe(sub), nil
}

// SetCancelAtPeriodEnd переключает флаг отмены в конце периода
// и возвращает состояние подписки после обновления.
func (c *Client) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	const op = "billing.SetCancelAtPeriodEnd"
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return fromStripe(sub), nil
}

// CancelSubscription отменяет подписку немедленно.
func (c *Client) CancelSubscription(_ context.Context, subscriptionID string) error {
	const op = "billing.CancelSubscription"
	if _, err := subscription.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FromStripeSubscription переводит объект SDK в срез состояния подписки.
// Конец периода и цена берутся из позиций подписки: API provider'а хранит
// их на уровне item.
func FromStripeSubscription(sub *stripe.Subscription) *Subscription {
	return fromStripe(sub)
}

func fromStripe(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}
