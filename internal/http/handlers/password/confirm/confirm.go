// Package confirm реализует HTTP-обработчик подтверждения сброса пароля
// одноразовым кодом.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/password/request"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/services/credentials"
)

// Request параметры подтверждения сброса пароля.
type Request struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Service описывает интерфейс бизнес-логики подтверждения сброса пароля.
type Service interface {
	ConfirmReset(ctx context.Context, email, code, newPassword, ip string) error
}

// Handler управляет HTTP-запросами на подтверждение сброса пароля.
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
// @Summary Подтвердить сброс пароля
// @Description Проверяет одноразовый код и устанавливает новый пароль.
// @Tags Password
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта, код и новый пароль"
// @Success 200 {object} response.Response "Пароль обновлён"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 422 {object} response.Response "Ошибка валидации или неверный код"
// @Failure 429 {object} response.Response "Превышен лимит попыток"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /password/reset-confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.password.confirm"
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

	err := h.service.ConfirmReset(r.Context(), req.Email, req.Code, req.NewPassword, request.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrTooManyAttempts):
			log.Info("reset confirm rate limited")
			w.WriteHeader(http.StatusTooManyRequests)
			render.JSON(w, r, response.ErrorWithCode("too many attempts, try again later", response.CodeRateLimited))
		case errors.Is(err, credentials.ErrInvalidCode):
			log.Info("invalid or expired reset code")
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ErrorWithCode("invalid or expired code", response.CodeValidationFailed))
		default:
			log.Error("failed to confirm password reset", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.ErrorWithCode("could not process request", response.CodeInternal))
		}
		return
	}

	log.Info("password reset confirmed")
	render.JSON(w, r, response.OK())
}
