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

// Command migrate applies the database schema, seeds the default role
// templates and modules, and creates the bootstrap super-admin.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/config"
	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
	"github.com/counselcms/counsel/internal/store/postgres"
	redisstore "github.com/counselcms/counsel/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx := permission.WithActor(context.Background(), audit.ActorMigrate)

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
		return err
	}
	defer db.Close()

	fmt.Println("Applying schema...")
	if err := db.MigrateSchema(ctx); err != nil {
		return err
	}

	// Running servers drop their module cache once the seed lands.
	var opts []permission.Option
	if cfg.Redis.Enabled {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Warn("redis unavailable, running servers will pick up changes after the cache TTL", logger.Error(err))
		} else {
			defer client.Close()
			opts = append(opts, permission.WithNotifier(redisstore.NewNotifier(client, cfg.Redis.Channel)))
		}
	}

	users := postgres.NewUserRepository(db)
	auditLogger := audit.NewSlogLogger()
	permissionService := permission.NewService(
		postgres.NewModuleRepository(db),
		postgres.NewTemplateRepository(db),
		users,
		auditLogger,
		cfg.Permission.CacheTTL,
		opts...,
	)

	fmt.Println("Seeding role templates and modules...")
	report, err := permissionService.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Templates saved: %d, modules registered: %d\n", report.TemplatesSaved, report.ModulesRegistered)

	identityService := identity.NewService(users, permissionService, auditLogger)
	admin, err := identityService.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if admin != nil {
		fmt.Printf("Bootstrap super-admin: %s (%s)\n", admin.Email, admin.ID)
	}

	fmt.Println("Migration successful.")
	return nil
}
