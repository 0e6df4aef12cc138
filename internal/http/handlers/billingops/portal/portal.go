// Package portal реализует HTTP-обработчик создания сессии личного
// кабинета биллинга.
package portal

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// Service описывает интерфейс бизнес-логики создания portal-сессии.
type Service interface {
	CreatePortalSession(ctx context.Context, clerkID string) (string, error)
}

// Handler управляет HTTP-запросами на создание portal-сессии.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Открыть кабинет биллинга
// @Description Возвращает URL сессии личного кабинета биллинг-провайдера.
// @Tags Billing
// @Produce  json
// @Success 200 {object} map[string]any "URL для редиректа"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingops.portal"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	clerkID, ok := r.Context().Value(middlewarectx.ClerkID).(string)
	if !ok || clerkID == "" {
		log.Error("clerk id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("unauthorized", response.CodeAuthRequired))
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), clerkID)
	if err != nil {
		log.Error("failed to create portal session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not create portal session", response.CodeInternal))
		return
	}

	log.Info("portal session created", slog.String("clerk_id", clerkID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
