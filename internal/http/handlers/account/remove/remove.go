// Package remove реализует HTTP-обработчик удаления собственной
// учётной записи.
package remove

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/services/account"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// Request параметры удаления: идентификаторы файлов пользователя
// во внешнем хранилище, подлежащие чистке. Тело опционально.
type Request struct {
	MediaPublicIDs []string `json:"media_public_ids"`
}

// Service описывает интерфейс бизнес-логики удаления учётной записи.
type Service interface {
	Delete(ctx context.Context, clerkID string, mediaPublicIDs []string) error
}

// Handler управляет HTTP-запросами на удаление учётной записи.
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
// @Summary Удалить учётную запись
// @Description Удаляет аккаунт текущего пользователя, отменяя подписку и чистя файлы. Аккаунт администратора этим путём не удаляется.
// @Tags Account
// @Accept  json
// @Produce  json
// @Param request body Request false "Идентификаторы файлов для чистки"
// @Success 200 {object} response.Response "Аккаунт удалён"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 403 {object} response.Response "Аккаунт администратора"
// @Failure 404 {object} response.Response "Аккаунт не найден"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /account [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.remove"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("invalid request body", response.CodeValidationFailed))
		return
	}

	clerkID, ok := r.Context().Value(middlewarectx.ClerkID).(string)
	if !ok || clerkID == "" {
		log.Error("clerk id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("unauthorized", response.CodeAuthRequired))
		return
	}

	if err := h.service.Delete(r.Context(), clerkID, req.MediaPublicIDs); err != nil {
		switch {
		case errors.Is(err, account.ErrAdminAccount):
			log.Info("admin self-delete rejected", slog.String("clerk_id", clerkID))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.ErrorWithCode("admin accounts cannot self-delete", response.CodePermissionDenied))
		case errors.Is(err, repository.ErrAccountNotFound):
			log.Info("account not found", slog.String("clerk_id", clerkID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("account not found", response.CodeNotFound))
		default:
			log.Error("failed to delete account", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.ErrorWithCode("could not delete account", response.CodeInternal))
		}
		return
	}

	log.Info("account deleted", slog.String("clerk_id", clerkID))
	render.JSON(w, r, response.OK())
}
