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

// Command audit prints users whose permission grants drifted from their
// role defaults. It exits 1 when drift is found and 2 on failure, so it can
// gate deploys or run from cron.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/config"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
	"github.com/counselcms/counsel/internal/store/postgres"
)

type report struct {
	GeneratedAt   time.Time                `json:"generated_at"`
	Count         int                      `json:"count"`
	Discrepancies []permission.Discrepancy `json:"discrepancies"`
}

func main() {
	drift, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Permission audit failed: %v\n", err)
		os.Exit(2)
	}
	if drift {
		os.Exit(1)
	}
}

func run() (bool, error) {
	cfg, err := config.Load()
	if err != nil {
		return false, err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return false, fmt.Errorf("audit requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	// Logs go to stderr so stdout carries only the report.
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		Output:      os.Stderr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		return false, err
	}
	defer db.Close()

	permissionService := permission.NewService(
		postgres.NewModuleRepository(db),
		postgres.NewTemplateRepository(db),
		postgres.NewUserRepository(db),
		audit.NewSlogLogger(),
		cfg.Permission.CacheTTL,
	)

	discrepancies, err := permissionService.AuditUserPermissions(ctx)
	if err != nil {
		return false, err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report{
		GeneratedAt:   time.Now().UTC(),
		Count:         len(discrepancies),
		Discrepancies: discrepancies,
	}); err != nil {
		return false, fmt.Errorf("failed to write report: %w", err)
	}

	return len(discrepancies) > 0, nil
}
