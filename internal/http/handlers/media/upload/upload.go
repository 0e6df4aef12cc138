// Package upload реализует HTTP-обработчик загрузки файла во внешнее
// хранилище от имени текущего пользователя.
package upload

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
	"github.com/magabrotheeeer/subscription-reconciler/internal/mediaprovider"
)

// Request параметры загрузки файла. File — внешний URL или data-URI.
type Request struct {
	File   string `json:"file" validate:"required"`
	Folder string `json:"folder"`
}

// Uploader описывает интерфейс клиента файлового хранилища.
type Uploader interface {
	Upload(ctx context.Context, file, folder string) (*mediaprovider.UploadResult, error)
}

// Handler управляет HTTP-запросами на загрузку файлов.
type Handler struct {
	log      *slog.Logger
	uploader Uploader
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и клиентом хранилища.
func New(log *slog.Logger, uploader Uploader) *Handler {
	return &Handler{
		log:      log,
		uploader: uploader,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Загрузить файл
// @Description Загружает файл во внешнее хранилище и возвращает public_id и постоянную ссылку.
// @Tags Media
// @Accept  json
// @Produce  json
// @Param request body Request true "Файл и папка назначения"
// @Success 200 {object} map[string]any "Результат загрузки"
// @Failure 400 {object} response.Response "Некорректный JSON"
// @Failure 401 {object} response.Response "Пользователь не авторизован"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.Response "Ошибка сервера"
// @Router /media [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.media.upload"
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

	result, err := h.uploader.Upload(r.Context(), req.File, req.Folder)
	if err != nil {
		log.Error("failed to upload file", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.ErrorWithCode("could not upload file", response.CodeInternal))
		return
	}

	log.Info("file uploaded",
		slog.String("clerk_id", clerkID),
		slog.String("public_id", result.PublicID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"public_id":  result.PublicID,
		"secure_url": result.SecureURL,
		"format":     result.Format,
		"bytes":      result.Bytes,
	}))
}
