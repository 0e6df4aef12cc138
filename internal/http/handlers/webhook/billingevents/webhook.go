// Package billingevents реализует приём вебхуков биллинг-провайдера.
// Подпись заголовка Stripe-Signature проверяется SDK до разбора
// полезной нагрузки.
package billingevents

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/subscription-reconciler/internal/billing"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// Service описывает операции реконсилятора для событий биллинга.
type Service interface {
	HandleSubscriptionUpdated(ctx context.Context, eventID string, sub billing.Subscription) error
	HandleSubscriptionDeleted(ctx context.Context, eventID string, sub billing.Subscription) error
}

// Handler принимает и проверяет вебхуки биллинг-провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет endpoint'а для проверки подписи
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.billingevents"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Error("invalid or missing webhook signature", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Error("failed to unmarshal subscription payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		err = h.service.HandleSubscriptionUpdated(r.Context(), event.ID, *billing.FromStripeSubscription(&sub))
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Error("failed to unmarshal subscription payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		err = h.service.HandleSubscriptionDeleted(r.Context(), event.ID, *billing.FromStripeSubscription(&sub))
	default:
		log.Info("ignored webhook event", slog.String("event", string(event.Type)))
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed successfully",
		slog.String("event", string(event.Type)), slog.String("event_id", event.ID))
	w.WriteHeader(http.StatusOK)
}
