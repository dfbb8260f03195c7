package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hospital/booking/internal/config"
	"github.com/hospital/booking/internal/domain/booking"
	"github.com/hospital/booking/internal/domain/scheduling"
	"github.com/hospital/booking/internal/platform/auth"
	"github.com/hospital/booking/internal/platform/db"
	"github.com/hospital/booking/internal/platform/metrics"
	"github.com/hospital/booking/internal/platform/middleware"
	"github.com/hospital/booking/internal/platform/notification"
	"github.com/hospital/booking/internal/platform/validation"
)

const version = "0.1.0"

// otpBackend is the configured challenge store plus its health check.
type otpBackend struct {
	store booking.ChallengeStore
	check *db.Check
	close func()
}

func newChallengeStore(cfg *config.Config, pool *pgxpool.Pool) (booking.ChallengeStore, func(), error) {
	b, err := newOTPBackend(cfg, pool)
	if err != nil {
		return nil, nil, err
	}
	return b.store, b.close, nil
}

func newOTPBackend(cfg *config.Config, pool *pgxpool.Pool) (*otpBackend, error) {
	switch cfg.OTPStore {
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		return &otpBackend{
			store: booking.NewChallengeStoreRedis(client, time.Hour),
			check: &db.Check{Name: "redis", Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() }},
			close: func() { client.Close() },
		}, nil
	case "memory":
		return &otpBackend{store: booking.NewMemoryChallengeStore(), close: func() {}}, nil
	}
	return &otpBackend{store: booking.NewChallengeStorePG(pool), close: func() {}}, nil
}

func newGateway(cfg *config.Config, logger zerolog.Logger) notification.Gateway {
	if !cfg.SMSEnabled {
		return notification.NewLogGateway(logger)
	}
	return notification.NewFast2SMSGateway(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderID, cfg.SMSTimeout)
}

func newEmailSender(cfg *config.Config) notification.EmailSender {
	if cfg.SMTPHost == "" {
		return nil
	}
	return notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)})
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development mode without AUTH_SIGNING_KEY: staff routes accept unauthenticated requests as admin")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	otp, err := newOTPBackend(cfg, pool)
	if err != nil {
		return err
	}
	defer otp.close()

	m := metrics.New("booking")

	// Notifications
	audit := notification.NewPGAuditLog(pool)
	dispatcher := notification.NewDispatcher(newGateway(cfg, logger), newEmailSender(cfg), audit,
		notification.Templates{OTP: cfg.SMSOTPTemplateID, Confirmation: cfg.SMSConfirmationTemplateID}, m, logger)
	dispatcher.SetLocation(loc)

	// Domain services
	schedSvc := scheduling.NewService(
		scheduling.NewDoctorRepoPG(pool),
		scheduling.NewExceptionRepoPG(pool),
		scheduling.NewSlotStateRepoPG(pool),
		loc, m, logger)
	bookingSvc := booking.NewService(otp.store, booking.NewAppointmentStorePG(pool), dispatcher, loc,
		booking.Options{OTPTTL: cfg.OTPTTL, OTPPerPhonePerMin: cfg.OTPPerPhonePerMinute, OTPPerPhoneBurst: cfg.OTPPerPhonePerMinute},
		m, logger)
	go bookingSvc.SweepLimiter(ctx, time.Minute)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, "/health", "/metrics"))
	if cfg.MetricsEnabled {
		e.Use(middleware.Metrics(m))
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	var checks []db.Check
	if otp.check != nil {
		checks = append(checks, *otp.check)
	}
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	if cfg.MetricsEnabled {
		e.GET("/metrics", m.Handler())
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	admin := api.Group("/admin", authMiddleware(cfg))

	var otpLimit echo.MiddlewareFunc
	if cfg.OTPRateLimitPerMinute > 0 {
		otpLimit = middleware.RateLimit(middleware.PerMinute(cfg.OTPRateLimitPerMinute))
	}

	scheduling.NewHandler(schedSvc).RegisterRoutes(api, admin)
	booking.NewHandler(bookingSvc).RegisterRoutes(api, otpLimit)
	notification.NewHandler(audit).RegisterRoutes(admin.Group("", auth.RequireRole("admin", "staff")))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("otp_store", cfg.OTPStore).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	// Let in-flight confirmation messages finish before the pool closes.
	bookingSvc.Wait()
	return nil
}
