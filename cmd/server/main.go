// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/opentrusty/auth-service/docs"
	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/config"
	"github.com/opentrusty/auth-service/internal/events"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
	"github.com/opentrusty/auth-service/internal/observability/metrics"
	"github.com/opentrusty/auth-service/internal/observability/tracing"
	"github.com/opentrusty/auth-service/internal/ratelimit"
	"github.com/opentrusty/auth-service/internal/session"
	"github.com/opentrusty/auth-service/internal/store/postgres"
	"github.com/opentrusty/auth-service/internal/tenant"
	"github.com/opentrusty/auth-service/internal/token"
	transportHTTP "github.com/opentrusty/auth-service/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTel:        cfg.Observability.OTELEnabled,
	})
	slog.Info("starting auth service", logger.String("environment", cfg.Environment))

	// CLI commands
	if len(os.Args) > 1 && os.Args[1] == "bootstrap" {
		if err := runBootstrap(cfg); err != nil {
			fmt.Printf("Bootstrap failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Signing keys are checked before any network or database I/O
	codec, err := newCodec(cfg)
	if err != nil {
		slog.Error("failed to initialize token codec", logger.Error(err))
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Environment,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	sessionMetrics, err := metrics.NewSessionMetrics(meter)
	if err != nil {
		slog.Error("failed to register session metrics", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	applied, err := db.Migrate(ctx)
	if err != nil {
		slog.Error("failed to apply migrations", logger.Error(err))
		os.Exit(1)
	}
	for _, name := range applied {
		slog.Info("applied migration", logger.String("migration", name))
	}

	publisher, closePublisher := newPublisher(cfg)
	defer closePublisher()

	limiter, stopLimiter := newLimiter(cfg)
	defer stopLimiter()

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	tokenRepo := postgres.NewTokenRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)

	// Initialize services
	auditLogger := audit.NewSlogLogger()
	sessionService := session.NewService(tokenRepo, codec, sessionMetrics)
	identityService := identity.NewService(
		userRepo,
		identity.NewPasswordHasher(cfg.Security.PasswordHashCost),
		sessionService,
		publisher,
	)
	tenantService := tenant.NewService(tenantRepo, auditLogger, publisher)
	authenticator := authn.NewAuthenticator(codec, sessionService, sessionMetrics)

	// Seed the administrator when configured
	bootstrapService := identity.NewBootstrapService(identityService, auditLogger)
	if err := bootstrapService.Bootstrap(ctx, adminSeed(cfg)); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		identityService,
		sessionService,
		tenantService,
		authenticator,
		codec.Verifier(),
		auditLogger,
		transportHTTP.CookieConfig{
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Cookie.Secure,
		},
		cfg.Observability.ServiceName,
	)

	router := transportHTTP.NewRouter(handler, limiter)

	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Expired refresh rows are swept in the background
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(cfg.Server.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				removed, err := sessionService.CleanupExpired(cleanupCtx)
				if err != nil {
					slog.ErrorContext(cleanupCtx, "failed to cleanup expired refresh tokens", logger.Error(err))
					continue
				}
				if removed > 0 {
					slog.InfoContext(cleanupCtx, "removed expired refresh tokens", logger.RowsAffected(removed))
				}
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func databaseConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}

func adminSeed(cfg *config.Config) identity.AdminSeed {
	return identity.AdminSeed{
		Email:     cfg.Admin.Email,
		Password:  cfg.Admin.Password,
		FirstName: cfg.Admin.FirstName,
		LastName:  cfg.Admin.LastName,
	}
}

func newCodec(cfg *config.Config) (*token.Codec, error) {
	privateKey, err := cfg.Token.ResolvePrivateKey()
	if err != nil {
		return nil, err
	}

	var trusted []string
	if cfg.Token.AdditionalPublicKey != "" {
		trusted = append(trusted, cfg.Token.AdditionalPublicKey)
	}

	return token.NewCodec(token.Config{
		PrivateKeyPEM:        privateKey,
		RefreshSecret:        cfg.Token.RefreshSecret,
		TrustedPublicKeysPEM: trusted,
		Issuer:               cfg.Token.Issuer,
	})
}

// newPublisher connects to the broker when AMQP_URL is set. Domain events
// are dropped otherwise.
func newPublisher(cfg *config.Config) (events.Publisher, func()) {
	if cfg.Events.AMQPURL == "" {
		return events.NopPublisher{}, func() {}
	}

	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		slog.Error("failed to connect to event broker, events disabled", logger.Error(err))
		return events.NopPublisher{}, func() {}
	}
	slog.Info("publishing domain events", logger.String("exchange", cfg.Events.Exchange))
	return p, func() {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close event publisher", logger.Error(err))
		}
	}
}

func newLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		slog.Info("rate limiting via redis", logger.String("addr", cfg.RateLimit.RedisAddr))
		limiter := ratelimit.NewRedisLimiter(client, ratelimit.IPKeyPrefix, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		return limiter, func() { _ = client.Close() }
	}

	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	return limiter, limiter.Stop
}

func runBootstrap(cfg *config.Config) error {
	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	meter, err := metrics.New(ctx, metrics.Config{}, cfg.Observability.ServiceName)
	if err != nil {
		return err
	}
	sessionMetrics, err := metrics.NewSessionMetrics(meter)
	if err != nil {
		return err
	}

	auditLogger := audit.NewSlogLogger()
	sessionService := session.NewService(postgres.NewTokenRepository(db), codec, sessionMetrics)
	identityService := identity.NewService(
		postgres.NewUserRepository(db),
		identity.NewPasswordHasher(cfg.Security.PasswordHashCost),
		sessionService,
		events.NopPublisher{},
	)

	if cfg.Admin.Email == "" {
		return errors.New("ADMIN_EMAIL is not set")
	}
	return identity.NewBootstrapService(identityService, auditLogger).Bootstrap(ctx, adminSeed(cfg))
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying migrations...")
	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	fmt.Printf("Migration successful, %d applied.\n", len(applied))
	return nil
}
