// Package autorenew реализует HTTP-обработчик переключения автопродления
// подписки. Доступ ограничен gate-мидлварью страницы billing: обычный
// пользователь этот путь не проходит.
package autorenew

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-reconciler/internal/billing"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// Request параметры переключения автопродления.
type Request struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
}

// Service описывает интерфейс бизнес-логики переключения автопродления.
type Service interface {
	ToggleAutoRenew(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
}

// Handler управляет HTTP-запросами на переключение автопродления.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Переключить автопродление
// @Description Переключает флаг автопродления подписки и зеркалирует статус в учётную запись.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Идентификатор подписки"
// @Success 200 {object} map[string]any "Состояние подписки после переключения"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 403 {object} response.Response "Недостаточный уровень доступа"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /billing/autorenew [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingops.autorenew"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("invalid request body", response.CodeValidationFailed))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sub, err := h.service.ToggleAutoRenew(r.Context(), req.SubscriptionID)
	if err != nil {
		log.Error("failed to toggle auto-renew", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not toggle auto-renew", response.CodeInternal))
		return
	}

	log.Info("auto-renew toggled", slog.String("subscription_id", sub.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"auto_renew":      !sub.CancelAtPeriodEnd,
	}))
}
