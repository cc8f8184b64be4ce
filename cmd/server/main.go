// Copyright 2026 The Counsel Authors
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

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/config"
	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/observability/metrics"
	"github.com/counselcms/counsel/internal/observability/tracing"
	"github.com/counselcms/counsel/internal/permission"
	"github.com/counselcms/counsel/internal/store/memory"
	"github.com/counselcms/counsel/internal/store/postgres"
	redisstore "github.com/counselcms/counsel/internal/store/redis"
	transportHTTP "github.com/counselcms/counsel/internal/transport/http"
)

// userStore is satisfied by every store driver: identity owns the account
// lifecycle and the permission engine appends retrofitted grants.
type userStore interface {
	identity.UserRepository
	permission.UserRepository
}

type stores struct {
	modules   permission.ModuleRepository
	templates permission.TemplateRepository
	users     userStore
	db        transportHTTP.Pinger
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if len(os.Args) > 2 && os.Args[1] == "token" {
		verifier := transportHTTP.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 12*time.Hour)
		token, err := verifier.Issue(os.Args[2])
		if err != nil {
			fmt.Printf("Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	slog.Info("starting counsel admin api", logger.Component("server"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
		Endpoint:       cfg.Observability.OTELEndpoint,
		Insecure:       true,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer, _ = tracing.New(ctx, tracing.Config{})
	}
	defer tracer.Shutdown(context.Background())

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	permMetrics, err := meter.NewPermissionMetrics()
	if err != nil {
		slog.Error("failed to create permission metrics", logger.Error(err))
		os.Exit(1)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer st.close()

	auditLogger := audit.NewSlogLogger()
	opts := []permission.Option{
		permission.WithMetrics(permMetrics),
		permission.WithTracer(tracer.GetTracer()),
	}

	var notifier *redisstore.Notifier
	if cfg.Redis.Enabled {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		defer client.Close()
		notifier = redisstore.NewNotifier(client, cfg.Redis.Channel)
		opts = append(opts, permission.WithNotifier(notifier))
		slog.Info("cache invalidation broadcast enabled", logger.Component("redis"))
	}

	permissionService := permission.NewService(
		st.modules,
		st.templates,
		st.users,
		auditLogger,
		cfg.Permission.CacheTTL,
		opts...,
	)
	if notifier != nil {
		if err := notifier.Listen(ctx, permissionService.InvalidateLocalCache); err != nil {
			slog.Error("failed to subscribe to cache invalidations", logger.Error(err))
			os.Exit(1)
		}
	}

	identityService := identity.NewService(st.users, permissionService, auditLogger)

	// The memory store starts empty on every boot.
	if cfg.Store.Driver == config.StoreDriverMemory {
		if _, err := permissionService.SeedDefaults(permission.WithActor(ctx, audit.ActorSystem)); err != nil {
			slog.Error("failed to seed permission defaults", logger.Error(err))
			os.Exit(1)
		}
	}

	if _, err := identityService.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(
		permissionService,
		identityService,
		transportHTTP.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0),
		auditLogger,
		st.db,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter, cfg.Server.RequestTimeout)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		slog.Warn("using in-memory store, data is lost on restart", logger.Component("store"))
		return &stores{
			modules:   memory.NewModules(),
			templates: memory.NewTemplates(),
			users:     memory.NewUsers(),
			close:     func() {},
		}, nil
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", logger.Component("store"))

	return &stores{
		modules:   postgres.NewModuleRepository(db),
		templates: postgres.NewTemplateRepository(db),
		users:     postgres.NewUserRepository(db),
		db:        db,
		close:     db.Close,
	}, nil
}
