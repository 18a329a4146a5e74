package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/formaai/ledger-api/internal/config"
	"github.com/formaai/ledger-api/internal/domain/admin"
	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/middleware"
	"github.com/formaai/ledger-api/internal/pkg/database"
	"github.com/formaai/ledger-api/internal/pkg/jwt"
	"github.com/formaai/ledger-api/internal/pkg/logger"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
	"github.com/formaai/ledger-api/internal/pkg/paymob"
	"github.com/formaai/ledger-api/internal/pkg/paypal"
	pkgresponse "github.com/formaai/ledger-api/internal/pkg/response"
	"github.com/formaai/ledger-api/internal/pkg/storage"
	"github.com/formaai/ledger-api/internal/pkg/tokencache"
	"github.com/formaai/ledger-api/internal/pkg/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting FormaAI ledger API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, database.PostgresConfig{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		Attempts:     cfg.DBConnectAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.MigrateOnStart {
		if err := database.MigrateUp(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Redis only backs the provider token cache; without it tokens stay in process.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process token cache")
			rdb = nil
		} else {
			defer database.CloseRedis(rdb)
		}
	}

	archive, err := newArchiveStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create webhook archive storage")
	}

	// ---------- Catalog & providers ----------
	catalog := pkgpayment.DefaultCatalog()
	validator.PackIDs = make(map[string]struct{})
	for _, id := range catalog.IDs() {
		validator.PackIDs[id] = struct{}{}
	}
	correlator := pkgpayment.NewCorrelator(cfg.CorrelationSecret, catalog)
	providers := newProviders(cfg, rdb)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	creditRepo := credit.NewRepository(db)
	adminRepo := admin.NewRepository(db)

	// ---------- Services ----------
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)
	resolver := auth.NewResolver(jwtService, userRepo)
	creditService := credit.NewService(creditRepo)
	paymentStore := payment.NewRepository(db, creditService)
	paymentService := payment.NewService(paymentStore, providers, catalog, correlator, userRepo,
		payment.NewStorageArchive(archive),
		payment.URLs{FrontendURL: cfg.FrontendURL, BackendURL: cfg.BackendURL})
	adminService := admin.NewService(adminRepo, creditService, paymentService, userRepo)

	// ---------- Handlers ----------
	handlers := routerHandlers{
		auth:    auth.NewHandler(userRepo),
		credit:  credit.NewHandler(creditService),
		payment: payment.NewHandler(paymentService, cfg.FrontendURL),
		admin:   admin.NewHandler(adminService),
	}
	router := newRouter(handlers, middleware.Auth(resolver), cfg.AllowedOrigins, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})

	// ---------- Background workers ----------
	reconcileWorker := credit.NewReconcileWorker(creditService, paymentService, cfg.AuditInterval, cfg.PendingReviewAfter)
	reconcileWorker.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	reconcileWorker.Stop()

	log.Info().Msg("Server exited properly")
}

type routerHandlers struct {
	auth    *auth.Handler
	credit  *credit.Handler
	payment *payment.Handler
	admin   *admin.Handler
}

// newRouter builds the HTTP surface. Webhooks are public; everything else
// under /api goes through authMW.
func newRouter(h routerHandlers, authMW func(http.Handler) http.Handler, origins []string, health func(context.Context) error) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(origins))
	r.Use(chimw.Timeout(40 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if health != nil {
			if err := health(ctx); err != nil {
				log.Warn().Err(err).Msg("health check failed")
				pkgresponse.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unavailable")
				return
			}
		}
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/webhooks", h.payment.WebhookRoutes)

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Get("/me", h.auth.Me)
			r.Mount("/credits", h.credit.Routes())
			h.payment.UserRoutes(r)
			r.Mount("/admin", h.admin.Routes())
		})
	})

	return r
}

func newProviders(cfg *config.Config, rdb *redis.Client) *pkgpayment.Registry {
	registry := pkgpayment.NewRegistry()

	if cfg.PayPalEnabled() {
		client := paypal.NewClient(paypal.Config{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			WebhookID:    cfg.PayPalWebhookID,
			Timeout:      cfg.PayPalTimeout,
		}, nil)
		client.SetTokenSource(tokencache.New(rdb, "paypal:access_token", client.FetchToken))
		registry.Register(pkgpayment.NewPayPalProvider(client, cfg.PayPalBrandName))
	} else {
		log.Warn().Msg("PayPal credentials not set, provider disabled")
	}

	if cfg.PaymobEnabled() {
		client := paymob.NewClient(paymob.Config{
			BaseURL:        cfg.PaymobBaseURL,
			SecretKey:      cfg.PaymobSecretKey,
			PublicKey:      cfg.PaymobPublicKey,
			HMACSecret:     cfg.PaymobHMACSecret,
			IntegrationIDs: cfg.PaymobIntegrationIDs,
			Timeout:        cfg.PaymobTimeout,
		})
		registry.Register(pkgpayment.NewPaymobProvider(client, cfg.PaymobCurrency, cfg.PaymobPrices))
	} else {
		log.Warn().Msg("Paymob credentials not set, provider disabled")
	}

	return registry
}

func newArchiveStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.ArchiveBucket != "" {
		log.Info().Str("bucket", cfg.ArchiveBucket).Msg("Archiving webhooks to S3")
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
	}
	if err := os.MkdirAll(cfg.ArchiveLocalDir, 0o750); err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.ArchiveLocalDir).Msg("Archiving webhooks to local disk")
	return storage.NewLocalStorage(cfg.ArchiveLocalDir)
}
