// Package subscriptionreconciler предоставляет маршруты и жизненный цикл
// основного приложения.
package subscriptionreconciler

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/subscription-reconciler/internal/access"
	"github.com/magabrotheeeer/subscription-reconciler/internal/config"
	accountremove "github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/account/remove"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/billingops/autorenew"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/billingops/checkout"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/billingops/portal"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/health"
	mediaremove "github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/media/remove"
	mediaupload "github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/media/upload"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/password/change"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/password/confirm"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/password/request"
	profileread "github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/profile/read"
	profileupdate "github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/profile/update"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/webhook/billingevents"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/handlers/webhook/identity"
	"github.com/magabrotheeeer/subscription-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-reconciler/internal/mediaprovider"
	accessservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/access"
	accountservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/account"
	credentialsservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/credentials"
	reconcilerservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/reconciler"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	cfg *config.Config,
	storage *repository.Storage,
	tokenParser middlewarectx.TokenParser,
	resolver *accessservice.Resolver,
	reconciler *reconcilerservice.Service,
	accounts *accountservice.Service,
	credentials *credentialsservice.Service,
	media *mediaprovider.Client,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Вебхуки внешних провайдеров: аутентификация подписью, не токеном
		r.Post("/webhooks/identity", identity.New(logger, reconciler,
			cfg.IdentityWebhook.SigningSecret, cfg.IdentityWebhook.Tolerance).ServeHTTP)
		r.Post("/webhooks/billing", billingevents.New(logger, reconciler,
			cfg.Stripe.WebhookSecret).ServeHTTP)

		// Парольные сценарии без сессии
		r.Post("/password/reset-request", request.New(logger, credentials).ServeHTTP)
		r.Post("/password/reset-confirm", confirm.New(logger, credentials).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenParser, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Get("/profile", profileread.New(logger, accounts).ServeHTTP)
			r.Put("/profile", profileupdate.New(logger, accounts).ServeHTTP)
			r.Delete("/account", accountremove.New(logger, accounts).ServeHTTP)
			r.Post("/password/change", change.New(logger, credentials).ServeHTTP)

			r.Post("/billing/checkout", checkout.New(logger, reconciler).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, reconciler).ServeHTTP)
			r.With(middlewarectx.AccessGateMiddleware(logger, resolver, access.PageBilling)).
				Post("/billing/autorenew", autorenew.New(logger, reconciler).ServeHTTP)

			r.Post("/media", mediaupload.New(logger, media).ServeHTTP)
			r.Delete("/media/{publicID}", mediaremove.New(logger, media).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, storage).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
