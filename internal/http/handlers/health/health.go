// Package health реализует проверку живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
)

// StorageChecker проверяет доступность хранилища.
type StorageChecker interface {
	CheckDatabaseReady(ctx context.Context) error
}

// Handler отвечает на запросы проверки живости.
type Handler struct {
	log     *slog.Logger
	storage StorageChecker
}

// New создает новый Handler.
func New(log *slog.Logger, storage StorageChecker) *Handler {
	return &Handler{
		log:     log,
		storage: storage,
	}
}

// ServeHTTP godoc
// @Summary Проверка живости
// @Description Возвращает статус сервиса и доступность хранилища.
// @Tags Health
// @Produce  json
// @Success 200 {object} map[string]any "Сервис работает"
// @Failure 503 {object} response.Response "Хранилище недоступно"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	if err := h.storage.CheckDatabaseReady(r.Context()); err != nil {
		h.log.Error("storage is not ready", slog.String("op", op), sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.ErrorWithCode("storage is not ready", response.CodeInternal))
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": "ok",
	}))
}
