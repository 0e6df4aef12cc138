// Package read реализует HTTP-обработчик чтения профиля текущего
// пользователя.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// Service описывает интерфейс чтения учётной записи.
type Service interface {
	Get(ctx context.Context, clerkID string) (*models.Account, error)
}

// Handler управляет HTTP-запросами на чтение профиля.
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
// @Summary Получить профиль
// @Description Возвращает учётную запись текущего пользователя вместе с состоянием подписки.
// @Tags Profile
// @Produce  json
// @Success 200 {object} models.Account "Учётная запись"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 404 {object} response.Response "Аккаунт не найден"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /profile [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.read"
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

	account, err := h.service.Get(r.Context(), clerkID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			log.Info("account not found", slog.String("clerk_id", clerkID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("account not found", response.CodeNotFound))
			return
		}
		log.Error("failed to read account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not read account", response.CodeInternal))
		return
	}

	render.JSON(w, r, response.OKWithData(account))
}
