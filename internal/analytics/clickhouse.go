// Package analytics records deployment outcomes to ClickHouse for
// offline reporting. The pipeline works without it: every write path
// tolerates a missing or failed analytics backend.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/adlaunch/adlaunch/internal/models"
)

// Service defines the interface for deployment analytics.
// Implementations should handle cases where underlying storage is
// unavailable by returning ErrUnavailable.
type Service interface {
	// RecordDeployment records the outcome of one platform's deployment
	// attempt within a run.
	RecordDeployment(ctx context.Context, runID string, result models.DeploymentResult, budget int64, durationMs int64) error
	// RecordDrop records a platform excluded before any remote call.
	RecordDrop(ctx context.Context, runID string, dropped models.DroppedPlatform) error
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the
// deployment_events table exists.
func InitClickHouse(dsn string) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS deployment_events (
       timestamp    DateTime,
       run_id       String,
       platform     String,
       event_type   String,
       success      UInt8,
       error_kind   Nullable(String),
       status_code  Nullable(Int32),
       campaign_id  Nullable(String),
       ad_id        Nullable(String),
       budget       Int64,
       duration_ms  Int64
   ) ENGINE=MergeTree() ORDER BY (run_id, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// Close shuts down the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// RecordDeployment inserts a single deployment event row.
func (a *Analytics) RecordDeployment(ctx context.Context, runID string, result models.DeploymentResult, budget int64, durationMs int64) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	var success uint8
	if result.Success {
		success = 1
	}
	var errKind, campaignID, adID sql.NullString
	var statusCode sql.NullInt32
	if result.Error != nil {
		errKind = sql.NullString{String: string(result.Error.Kind), Valid: true}
		if result.Error.StatusCode != 0 {
			statusCode = sql.NullInt32{Int32: int32(result.Error.StatusCode), Valid: true}
		}
	}
	if result.IDs != nil {
		if result.IDs.CampaignID != "" {
			campaignID = sql.NullString{String: result.IDs.CampaignID, Valid: true}
		}
		if result.IDs.AdID != "" {
			adID = sql.NullString{String: result.IDs.AdID, Valid: true}
		}
	}
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO deployment_events (timestamp, run_id, platform, event_type, success, error_kind, status_code, campaign_id, ad_id, budget, duration_ms)
         VALUES (?, ?, ?, 'deployment', ?, ?, ?, ?, ?, ?, ?)`,
		time.Now(), runID, string(result.Platform), success, errKind, statusCode, campaignID, adID, budget, durationMs)
	if err != nil {
		return fmt.Errorf("insert deployment event: %w", err)
	}
	return nil
}

// RecordDrop inserts an event row for a platform excluded during
// budget allocation.
func (a *Analytics) RecordDrop(ctx context.Context, runID string, dropped models.DroppedPlatform) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO deployment_events (timestamp, run_id, platform, event_type, success, error_kind, budget, duration_ms)
         VALUES (?, ?, ?, 'drop', 0, ?, 0, 0)`,
		time.Now(), runID, string(dropped.Platform), string(dropped.Reason))
	if err != nil {
		return fmt.Errorf("insert drop event: %w", err)
	}
	return nil
}
