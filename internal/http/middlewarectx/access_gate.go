package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/access"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
	accessservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/access"
)

// LevelResolver определяет уровень доступа субъекта по claims и хранилищу.
type LevelResolver interface {
	Resolve(ctx context.Context, clerkID string, claimsLevel models.AccessLevel) (accessservice.Resolution, error)
}

// AccessGateMiddleware создает middleware, пропускающий запрос только при
// достаточном уровне админ-доступа для заданной страницы.
//
// Уровень сначала берётся из сессионных claims, при их отсутствии —
// из записи администратора; claims отстают от хранилища, fallback
// гарантирует корректность ценой дополнительного чтения.
func AccessGateMiddleware(log *slog.Logger, resolver LevelResolver, page access.Page) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AccessGateMiddleware"

			clerkID, ok := r.Context().Value(ClerkID).(string)
			if !ok || clerkID == "" {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("unauthorized", response.CodeAuthRequired))
				return
			}

			resolution, err := resolver.Resolve(r.Context(), clerkID, ClaimsLevelFromContext(r.Context()))
			if err != nil {
				log.Error("failed to resolve access level", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.ErrorWithCode("internal service error", response.CodeInternal))
				return
			}

			if !access.CanAccess(resolution.Level, page) {
				log.Warn("access denied",
					slog.String("op", op),
					slog.String("clerk_id", clerkID),
					slog.String("page", string(page)),
					slog.String("source", string(resolution.Source)))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.ErrorWithCode(
					access.UnauthorizedMessage(resolution.Level, page), response.CodePermissionDenied))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
