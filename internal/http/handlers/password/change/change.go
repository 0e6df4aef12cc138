// Package change реализует HTTP-обработчик смены пароля
// аутентифицированным пользователем.
package change

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
	"github.com/magabrotheeeer/subscription-reconciler/internal/services/credentials"
)

// Request параметры смены пароля.
type Request struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// Service описывает интерфейс бизнес-логики смены пароля.
type Service interface {
	ChangePassword(ctx context.Context, clerkID, current, newPassword string) error
}

// Handler управляет HTTP-запросами на смену пароля.
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
// @Summary Сменить пароль
// @Description Меняет пароль текущего пользователя после проверки текущего пароля.
// @Tags Password
// @Accept  json
// @Produce  json
// @Param request body Request true "Текущий и новый пароли"
// @Success 200 {object} response.Response "Пароль обновлён"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 422 {object} response.Response "Ошибка валидации или неверный текущий пароль"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /password/change [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.password.change"
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

	if err := h.service.ChangePassword(r.Context(), clerkID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, credentials.ErrWrongPassword) {
			log.Info("wrong current password", slog.String("clerk_id", clerkID))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ErrorWithCode("current password does not match", response.CodeValidationFailed))
			return
		}
		log.Error("failed to change password", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not change password", response.CodeInternal))
		return
	}

	log.Info("password changed", slog.String("clerk_id", clerkID))
	render.JSON(w, r, response.OK())
}
