// Package checkout реализует HTTP-обработчик создания checkout-сессии
// для покупки тарифа текущим пользователем.
package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// Request параметры создания checkout-сессии.
type Request struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// Service описывает интерфейс бизнес-логики создания checkout-сессии.
type Service interface {
	CreateCheckoutSession(ctx context.Context, clerkID, planID string) (string, error)
}

// Handler управляет HTTP-запросами на создание checkout-сессии.
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
// @Summary Создать checkout-сессию
// @Description Возвращает URL оплаты выбранного тарифа для текущего пользователя.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Идентификатор тарифа"
// @Success 200 {object} map[string]any "URL для редиректа"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingops.checkout"
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

	clerkID, ok := r.Context().Value(middlewarectx.ClerkID).(string)
	if !ok || clerkID == "" {
		log.Error("clerk id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("unauthorized", response.CodeAuthRequired))
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), clerkID, req.PlanID)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not create checkout session", response.CodeInternal))
		return
	}

	log.Info("checkout session created", slog.String("clerk_id", clerkID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
