// Package request реализует HTTP-обработчик запроса сброса пароля.
// Ответ одинаков для существующей и несуществующей почты.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/ratelimit"
	"github.com/magabrotheeeer/subscription-reconciler/internal/services/credentials"
)

// Request параметры запроса сброса пароля.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Service описывает интерфейс бизнес-логики запроса сброса пароля.
type Service interface {
	RequestReset(ctx context.Context, email, ip string) error
}

// Handler управляет HTTP-запросами на сброс пароля.
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
// @Summary Запросить сброс пароля
// @Description Отправляет код подтверждения на почту, если аккаунт существует. Ответ не раскрывает существование аккаунта.
// @Tags Password
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта аккаунта"
// @Success 200 {object} response.Response "Запрос принят"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 429 {object} response.Response "Превышен лимит попыток"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /password/reset-request [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.password.request"
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

	if err := h.service.RequestReset(r.Context(), req.Email, ClientIP(r)); err != nil {
		if errors.Is(err, credentials.ErrTooManyAttempts) {
			log.Info("reset request rate limited")
			w.WriteHeader(http.StatusTooManyRequests)
			render.JSON(w, r, response.ErrorWithCode("too many attempts, try again later", response.CodeRateLimited))
			return
		}
		log.Error("failed to request password reset", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not process request", response.CodeInternal))
		return
	}

	log.Info("password reset requested")
	render.JSON(w, r, response.OK())
}

// ClientIP извлекает IP клиента из адреса соединения. При ошибке разбора
// возвращает общий ключ для неизвестных адресов.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return ratelimit.UnknownIP
	}
	return host
}
