// Package db holds the relational and key-value storage layers:
// Postgres for per-platform deployment settings and Redis for run
// deduplication and pacing counters.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// PlatformSetting is one row of operator-tunable per-platform policy.
type PlatformSetting struct {
	Platform       models.Platform
	MinDailyBudget int64
	Enabled        bool
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS platform_settings (
    platform TEXT PRIMARY KEY,
    min_daily_budget BIGINT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS deployment_runs (
    run_id UUID PRIMARY KEY,
    overall_status TEXT NOT NULL,
    budget_strategy TEXT NOT NULL,
    total_daily_budget BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_deployment_runs_created_at ON deployment_runs (created_at);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	if err := p.ensurePlatformSettings(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ensurePlatformSettings seeds the default minimum budgets if the table
// is empty.
func (p *Postgres) ensurePlatformSettings() error {
	ctx := context.Background()
	var count int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM platform_settings`).Scan(&count); err != nil {
		return fmt.Errorf("count platform_settings: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, platform := range models.AllPlatforms() {
		if _, err := p.DB.ExecContext(ctx,
			`INSERT INTO platform_settings (platform, min_daily_budget, enabled) VALUES ($1,$2,TRUE)`,
			string(platform), models.DefaultMinDailyBudget[platform]); err != nil {
			return fmt.Errorf("insert platform setting %s: %w", platform, err)
		}
	}
	return nil
}

// LoadPlatformSettings retrieves the settings for every known platform.
func (p *Postgres) LoadPlatformSettings(ctx context.Context) ([]PlatformSetting, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT platform, min_daily_budget, enabled FROM platform_settings`)
	if err != nil {
		return nil, fmt.Errorf("query platform settings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var settings []PlatformSetting
	for rows.Next() {
		var s PlatformSetting
		var platform string
		if err := rows.Scan(&platform, &s.MinDailyBudget, &s.Enabled); err != nil {
			return nil, fmt.Errorf("scan platform setting: %w", err)
		}
		s.Platform = models.Platform(platform)
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platform settings: %w", err)
	}
	return settings, nil
}

// DeploymentPolicy returns the per-platform minimum daily budgets and
// the set of operator-disabled platforms, falling back to the compiled
// defaults when Postgres is not configured or a platform row is missing.
// Disabled platforms keep their minimum; callers must not allocate to
// them at all.
func (p *Postgres) DeploymentPolicy(ctx context.Context) (map[models.Platform]int64, map[models.Platform]bool) {
	minimums := make(map[models.Platform]int64, len(models.DefaultMinDailyBudget))
	for platform, min := range models.DefaultMinDailyBudget {
		minimums[platform] = min
	}
	disabled := make(map[models.Platform]bool)
	if p == nil || p.DB == nil {
		return minimums, disabled
	}
	settings, err := p.LoadPlatformSettings(ctx)
	if err != nil {
		zap.L().Warn("load platform settings, using defaults", zap.Error(err))
		return minimums, disabled
	}
	for _, s := range settings {
		minimums[s.Platform] = s.MinDailyBudget
		if !s.Enabled {
			disabled[s.Platform] = true
		}
	}
	return minimums, disabled
}

// RecordRun persists a completed deployment run's summary row.
func (p *Postgres) RecordRun(ctx context.Context, runID string, status models.OverallStatus, strategy models.BudgetStrategy, totalDailyBudget int64) error {
	if p == nil || p.DB == nil {
		return nil
	}
	if _, err := p.DB.ExecContext(ctx,
		`INSERT INTO deployment_runs (run_id, overall_status, budget_strategy, total_daily_budget) VALUES ($1,$2,$3,$4)`,
		runID, string(status), string(strategy), totalDailyBudget); err != nil {
		return fmt.Errorf("insert deployment run: %w", err)
	}
	return nil
}
