// Package remove реализует HTTP-обработчик удаления файла из внешнего
// хранилища.
package remove

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// Remover описывает интерфейс удаления файла во внешнем хранилище.
type Remover interface {
	Destroy(ctx context.Context, publicID string) error
}

// Handler управляет HTTP-запросами на удаление файлов.
type Handler struct {
	log     *slog.Logger
	remover Remover
}

// New создает новый Handler с переданными логгером и клиентом хранилища.
func New(log *slog.Logger, remover Remover) *Handler {
	return &Handler{
		log:     log,
		remover: remover,
	}
}

// ServeHTTP godoc
// @Summary Удалить файл
// @Description Удаляет файл из внешнего хранилища по public_id.
// @Tags Media
// @Produce  json
// @Param publicID path string true "Идентификатор файла в хранилище"
// @Success 200 {object} response.Response "Файл удалён"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 422 {object} response.Response "Пустой идентификатор"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /media/{publicID} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.media.remove"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	publicID := chi.URLParam(r, "publicID")
	if publicID == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ErrorWithCode("public id is required", response.CodeValidationFailed))
		return
	}

	clerkID, ok := r.Context().Value(middlewarectx.ClerkID).(string)
	if !ok || clerkID == "" {
		log.Error("clerk id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("unauthorized", response.CodeAuthRequired))
		return
	}

	if err := h.remover.Destroy(r.Context(), publicID); err != nil {
		log.Error("failed to remove file", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not remove file", response.CodeInternal))
		return
	}

	log.Info("file removed",
		slog.String("clerk_id", clerkID),
		slog.String("public_id", publicID))
	render.JSON(w, r, response.OK())
}
