// Package middlewarectx содержит HTTP middleware для проверки сессионных
// токенов и прав админ-доступа.
//
// JWTMiddleware проверяет наличие и валидность JWT токена в заголовке
// Authorization, и в случае успеха добавляет в контекст идентификатор
// субъекта, почту и уровень доступа из claims для дальнейшего использования
// в обработчиках.
//
// В случае ошибки проверки возвращает HTTP 401 Unauthorized с сообщением об ошибке.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-reconciler/internal/http/response"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// ClerkID — ключ для идентификатора субъекта в контексте
	ClerkID Key = "clerk_id"
	// Email — ключ для почты в контексте
	Email Key = "email"
	// ClaimsLevel — ключ для уровня доступа из claims (может быть пустым)
	ClaimsLevel Key = "claims_level"
)

// TokenParser описывает разбор сессионного токена.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.SessionClaims, error)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
//
// Если токен валиден, добавляет данные сессии в контекст запроса,
// иначе возвращает ошибку с HTTP статусом 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("missing or invalid authorization header", response.CodeAuthRequired))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("invalid or expired token", response.CodeAuthRequired))
				return
			}
			ctx := context.WithValue(r.Context(), ClerkID, claims.ClerkID)
			ctx = context.WithValue(ctx, Email, claims.Email)
			ctx = context.WithValue(ctx, ClaimsLevel, claims.AccessLevel)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsLevelFromContext достаёт уровень доступа из контекста запроса.
// Отсутствие уровня — пустое значение, не ошибка.
func ClaimsLevelFromContext(ctx context.Context) models.AccessLevel {
	level, _ := ctx.Value(ClaimsLevel).(models.AccessLevel)
	return level
}
