// Package update реализует HTTP-обработчик обновления профиля
// текущего пользователя.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// Service описывает интерфейс бизнес-логики обновления профиля.
type Service interface {
	UpdateProfile(ctx context.Context, clerkID string, update models.ProfileUpdate) error
}

// Handler управляет HTTP-запросами на обновление профиля.
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
// @Summary Обновить профиль
// @Description Обновляет имя и почту текущего пользователя. Поля подписки этим путём недостижимы.
// @Tags Profile
// @Accept  json
// @Produce  json
// @Param request body models.ProfileUpdate true "Изменяемые поля профиля"
// @Success 200 {object} response.Response "Профиль обновлён"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 404 {object} response.Response "Аккаунт не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /profile [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.update"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("invalid request body", response.CodeValidationFailed))
		return
	}

	if req.Name == nil && req.Email == nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ErrorWithCode("nothing to update", response.CodeValidationFailed))
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

	if err := h.service.UpdateProfile(r.Context(), clerkID, req); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			log.Info("account not found", slog.String("clerk_id", clerkID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("account not found", response.CodeNotFound))
			return
		}
		log.Error("failed to update profile", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not update profile", response.CodeInternal))
		return
	}

	log.Info("profile updated", slog.String("clerk_id", clerkID))
	render.JSON(w, r, response.OK())
}
