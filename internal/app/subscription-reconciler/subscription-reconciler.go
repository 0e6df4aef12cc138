package subscriptionreconciler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-reconciler/internal/billing"
	"github.com/magabrotheeeer/subscription-reconciler/internal/cache"
	"github.com/magabrotheeeer/subscription-reconciler/internal/config"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-reconciler/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-reconciler/internal/mediaprovider"
	"github.com/magabrotheeeer/subscription-reconciler/internal/migrations"
	"github.com/magabrotheeeer/subscription-reconciler/internal/ratelimit"
	accessservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/access"
	accountservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/account"
	credentialsservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/credentials"
	reconcilerservice "github.com/magabrotheeeer/subscription-reconciler/internal/services/reconciler"
	"github.com/magabrotheeeer/subscription-reconciler/internal/storage/repository"
	"github.com/magabrotheeeer/subscription-reconciler/internal/verification"
)

// App собирает зависимости сервиса и управляет его жизненным циклом.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	rabbit *amqp.Connection
}

// New инициализирует хранилище, миграции, кэш, брокер и все сервисы,
// собирает маршрутизатор и возвращает готовое к запуску приложение.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.RabbitConnection, 5, 3*time.Second)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, err
	}

	tokenMaker := jwt.NewMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	billingClient := billing.NewClient(cfg.Stripe)
	mediaClient := mediaprovider.NewClient(cfg.Media)

	codeTTL := cfg.Verification.CodeTTL
	if codeTTL <= 0 {
		codeTTL = verification.DefaultTTL
	}
	codeStore := verification.NewRedisStore(cacheRedis)
	codes := verification.NewService(codeStore, codeTTL, logger)
	if cfg.Verification.SweepInterval > 0 {
		go verification.RunSweeper(ctx, codeStore, cfg.Verification.SweepInterval)
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.Attempts, cfg.RateLimit.Window)
	notifier := rabbitmq.NewNotifier(rabbitCh)

	reconciler := reconcilerservice.New(db, billingClient, cacheRedis, logger)
	accounts := accountservice.New(db, billingClient, mediaClient, logger)
	credentials := credentialsservice.New(db, codes, limiter, notifier, logger)
	resolver := accessservice.NewResolver(db)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, db, tokenMaker, resolver,
		reconciler, accounts, credentials, mediaClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		rabbit: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и блокируется до отмены контекста
// или фатальной ошибки сервера. При отмене выполняет мягкую остановку.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		a.rabbit.Close()
		return err
	}
}
