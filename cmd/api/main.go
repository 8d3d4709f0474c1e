package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"palmtell/internal/adapter/repo"
	"palmtell/internal/billing"
	"palmtell/internal/horoscope"
	"palmtell/internal/http/handlers"
	"palmtell/internal/http/httpapi"
	"palmtell/internal/infra"
	"palmtell/internal/infra/geoip"
	"palmtell/internal/infra/google"
	"palmtell/internal/mailer"
	"palmtell/internal/middleware"
	"palmtell/internal/palm"
	"palmtell/internal/queue"
	"palmtell/internal/reading"
	"palmtell/internal/session"
	"palmtell/internal/storage"
	"palmtell/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	if err := infra.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	kv := session.NewRedisKV(redisClient)
	sessions := session.NewStore(kv, logger)
	limiter := session.NewFailureLimiter(kv, logger)

	accounts := repo.NewAccountRepository(dbpool)
	profiles := repo.NewProfileRepository(dbpool)
	subs := repo.NewSubscriptionRepository(dbpool)
	readings := repo.NewReadingRepository(dbpool)

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open file store")
	}
	signer := storage.NewURLSigner(cfg.StorageBaseURL, cfg.StorageSignSecret)

	visionClient, err := vision.NewClient(vision.Options{
		APIKey:  cfg.VisionAPIKey,
		Model:   cfg.VisionModel,
		BaseURL: cfg.VisionBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build vision client")
	}

	publisher := queue.NewPublisher(cfg.QueueURL, cfg.QueueToken, cfg.PublicBaseURL, nil)
	verifier := queue.NewVerifier(cfg.QueueSigningKey)

	palmSvc := palm.NewService(sessions, limiter, files, signer, visionClient, accounts, profiles, logger)
	readingSvc := reading.NewService(accounts, subs, readings, publisher, logger)
	jobRunner := reading.NewJobRunner(readings, signer, visionClient, logger)
	stars := horoscope.NewService(kv, visionClient, logger)

	app := &handlers.App{
		Accounts:       accounts,
		Profiles:       profiles,
		Subs:           subs,
		Palm:           palmSvc,
		Readings:       readingSvc,
		Jobs:           jobRunner,
		Stars:          stars,
		QueueVerifier:  verifier,
		Files:          files,
		Signer:         signer,
		GoogleVerifier: google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID),
		JWTSecret:      cfg.JWTSecret,
		Logger:         logger,
	}

	if cfg.BillingAPIKey != "" {
		variants, err := billing.NewVariantMap(
			cfg.VariantBasicOneTime,
			cfg.VariantProMonthly,
			cfg.VariantProAnnual,
			cfg.VariantUltimateMonthly,
			cfg.VariantUltimateAnnual,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid billing variant map")
		}
		var notifier billing.CancellationNotifier
		if cfg.BrevoAPIKey != "" {
			notifier = mailer.NewBrevo(mailer.Options{
				APIKey:    cfg.BrevoAPIKey,
				FromEmail: cfg.BrevoFromEmail,
				FromName:  cfg.BrevoFromName,
			})
		}
		app.Reconciler = billing.NewReconciler(accounts, subs, variants, notifier, cfg.BillingWebhookSecret, logger)
		app.Checkout = billing.NewCheckout(billing.CheckoutOptions{
			APIKey:      cfg.BillingAPIKey,
			StoreID:     cfg.BillingStoreID,
			Variants:    variants,
			RedirectURL: cfg.BillingRedirectURL,
			PortalURL:   cfg.BillingPortalURL,
		})
	} else {
		logger.Warn().Msg("billing disabled, checkout and webhook endpoints inactive")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
