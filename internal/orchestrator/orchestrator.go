// Package orchestrator fans one deployment request out to every
// funded platform concurrently and aggregates the per-platform
// outcomes into a single report. One platform's failure never aborts
// another's attempt, and the source media is destroyed when the run
// finishes regardless of outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/analytics"
	"github.com/adlaunch/adlaunch/internal/budget"
	"github.com/adlaunch/adlaunch/internal/db"
	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/platform"
)

// DefaultAdapterTimeout bounds one platform's whole deployment
// sequence, uploads and retries included.
const DefaultAdapterTimeout = 120 * time.Second

// ErrDeployInProgress is returned when another run is already
// deploying the same media handle.
var ErrDeployInProgress = errors.New("deployment already in progress for this media")

// Request is one caller-facing deployment: a total budget, shared
// creative content, and per-platform credentials.
type Request struct {
	TotalDailyBudget int64                      `json:"total_daily_budget"` // minor currency units
	Objective        string                     `json:"objective"`
	Headline         string                     `json:"headline"`
	Body             string                     `json:"body"`
	DestinationURL   string                     `json:"destination_url"`
	MediaHandle      string                     `json:"media_handle,omitempty"`
	RecommendedSplit []budget.Recommendation    `json:"recommended_split"`
	Credentials      map[models.Platform]string `json:"-"`
}

// MediaStore is the slice of the media store the orchestrator owns:
// final destruction of the source asset.
type MediaStore interface {
	Destroy(h mediastore.Handle) error
}

// PolicyStore resolves the operator policy for a run: per-platform
// minimum daily budgets and which platforms are disabled outright.
type PolicyStore interface {
	DeploymentPolicy(ctx context.Context) (map[models.Platform]int64, map[models.Platform]bool)
}

// Orchestrator coordinates budget allocation, concurrent adapter
// fan-out, and result aggregation.
type Orchestrator struct {
	registry  *platform.Registry
	media     MediaStore
	redis     *db.RedisStore
	pg        *db.Postgres
	policy    PolicyStore
	analytics analytics.Service
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
	timeout   time.Duration
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRedis enables run deduplication via Redis. Without it dedup
// degrades open.
func WithRedis(rs *db.RedisStore) Option {
	return func(o *Orchestrator) { o.redis = rs }
}

// WithPostgres enables platform settings lookup and run persistence.
func WithPostgres(pg *db.Postgres) Option {
	return func(o *Orchestrator) {
		o.pg = pg
		o.policy = pg
	}
}

// WithPolicy overrides the policy source. WithPostgres already wires
// one; this exists for alternate sources.
func WithPolicy(ps PolicyStore) Option {
	return func(o *Orchestrator) { o.policy = ps }
}

// WithAnalytics enables deployment event recording.
func WithAnalytics(svc analytics.Service) Option {
	return func(o *Orchestrator) { o.analytics = svc }
}

// WithAdapterTimeout overrides the per-platform deadline.
func WithAdapterTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// New creates an Orchestrator over the given adapter registry and
// media store.
func New(registry *platform.Registry, media MediaStore, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		media:    media,
		logger:   logger,
		metrics:  metrics,
		policy:   (*db.Postgres)(nil), // nil-safe: compiled defaults
		timeout:  DefaultAdapterTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one deployment end to end. An error return means the
// run never started (bad budget, duplicate media, nothing connected);
// once the fan-out begins every outcome is inside the report, and the
// media handle is destroyed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, req Request) (models.DeploymentReport, error) {
	ctx, span := observability.Tracer("orchestrator").Start(ctx, "deployment.run")
	defer span.End()

	if req.MediaHandle != "" {
		if !o.redis.AcquireDeployLock(req.MediaHandle) {
			return models.DeploymentReport{}, ErrDeployInProgress
		}
		defer o.redis.ReleaseDeployLock(req.MediaHandle)
	}

	minimums, disabled := o.policy.DeploymentPolicy(ctx)
	connected := o.connectedPlatforms(req.Credentials, disabled)

	alloc, err := budget.Allocate(req.TotalDailyBudget, req.RecommendedSplit, connected, minimums)
	if err != nil {
		return models.DeploymentReport{}, err
	}
	// Operator-disabled platforms never reach the allocator, so their
	// drop entries are stamped here: credentialed platforms the caller
	// could reasonably expect a result for.
	for p, token := range req.Credentials {
		if token == "" || !disabled[p] || o.registry.Get(p) == nil {
			continue
		}
		alloc.Dropped = append(alloc.Dropped, models.DroppedPlatform{Platform: p, Reason: models.DropDisabled})
	}
	// A disabled platform that was also recommended gets exactly one
	// entry, labelled disabled rather than not_connected.
	deduped := alloc.Dropped[:0]
	seen := make(map[models.Platform]bool, len(alloc.Dropped))
	for _, d := range alloc.Dropped {
		if disabled[d.Platform] {
			d.Reason = models.DropDisabled
		}
		if seen[d.Platform] {
			continue
		}
		seen[d.Platform] = true
		deduped = append(deduped, d)
	}
	alloc.Dropped = deduped
	sort.Slice(alloc.Dropped, func(i, j int) bool { return alloc.Dropped[i].Platform < alloc.Dropped[j].Platform })

	// From here on the source media is spent: destroy it when the run
	// finishes, success or not.
	if req.MediaHandle != "" {
		defer func() {
			if err := o.media.Destroy(mediastore.Handle(req.MediaHandle)); err != nil &&
				!errors.Is(err, mediastore.ErrUnknownHandle) {
				o.logger.Error("destroy media after run", zap.String("handle", req.MediaHandle), zap.Error(err))
			}
		}()
	}

	runID := uuid.NewString()
	o.logger.Info("deployment run starting",
		zap.String("run_id", runID),
		zap.Int64("total_daily_budget", req.TotalDailyBudget),
		zap.String("budget_strategy", string(alloc.Strategy)),
		zap.Int("platform_count", len(alloc.Split)))

	attempted := o.fanOut(ctx, runID, req, alloc.Split)
	status := models.DeriveStatus(attempted)

	report := models.DeploymentReport{
		RunID:          runID,
		OverallStatus:  status,
		BudgetStrategy: alloc.Strategy,
		Results:        attempted,
		Dropped:        alloc.Dropped,
	}
	// Dropped platforms also surface as failed results so a caller
	// iterating results alone sees every platform it asked about.
	for _, d := range alloc.Dropped {
		report.Results = append(report.Results, models.DeploymentResult{
			Platform: d.Platform,
			Success:  false,
			Message:  "dropped before deployment",
			Error: &models.ErrorDetail{
				Kind:    models.ErrKindValidation,
				Message: fmt.Sprintf("platform dropped: %s", d.Reason),
			},
		})
		if o.analytics != nil {
			if err := o.analytics.RecordDrop(ctx, runID, d); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
				o.logger.Warn("record drop event", zap.Error(err))
			}
		}
	}

	o.metrics.IncrementRuns(string(status))
	if err := o.pg.RecordRun(ctx, runID, status, alloc.Strategy, req.TotalDailyBudget); err != nil {
		o.logger.Warn("persist run summary", zap.String("run_id", runID), zap.Error(err))
	}
	o.logger.Info("deployment run finished",
		zap.String("run_id", runID),
		zap.String("overall_status", string(status)))
	return report, nil
}

// connectedPlatforms returns the platforms that have a credential and a
// registered adapter and are not operator-disabled.
func (o *Orchestrator) connectedPlatforms(credentials map[models.Platform]string, disabled map[models.Platform]bool) []models.Platform {
	var connected []models.Platform
	for p, token := range credentials {
		if token == "" || disabled[p] {
			continue
		}
		if o.registry.Get(p) == nil {
			continue
		}
		connected = append(connected, p)
	}
	sort.Slice(connected, func(i, j int) bool { return connected[i] < connected[j] })
	return connected
}

// fanOut deploys to every funded platform concurrently and returns the
// results sorted by platform for deterministic reports.
func (o *Orchestrator) fanOut(ctx context.Context, runID string, req Request, split models.BudgetSplit) []models.DeploymentResult {
	resultCh := make(chan models.DeploymentResult, len(split))

	for p, amount := range split {
		go o.deployOne(ctx, runID, req, p, amount, resultCh)
	}

	results := make([]models.DeploymentResult, 0, len(split))
	for range split {
		results = append(results, <-resultCh)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Platform < results[j].Platform })
	return results
}

// deployOne runs a single platform's adapter under its own deadline.
// A panicking adapter is contained as a failed result for that
// platform only.
func (o *Orchestrator) deployOne(ctx context.Context, runID string, req Request, p models.Platform, amount int64, resultCh chan<- models.DeploymentResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("adapter panic",
				zap.String("run_id", runID),
				zap.String("platform", string(p)),
				zap.Any("panic", r))
			resultCh <- models.DeploymentResult{
				Platform: p,
				Success:  false,
				Message:  "adapter panic",
				Error:    &models.ErrorDetail{Kind: models.ErrKindInternal, Message: fmt.Sprint(r)},
			}
		}
	}()

	deployCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	creq := models.CampaignRequest{
		Platform:       p,
		DailyBudget:    amount,
		Objective:      models.ParseObjective(req.Objective),
		Headline:       req.Headline,
		Body:           req.Body,
		DestinationURL: req.DestinationURL,
		MediaHandle:    req.MediaHandle,
		AccessToken:    req.Credentials[p],
	}

	start := time.Now()
	res := o.registry.Get(p).Deploy(deployCtx, creq)
	elapsed := time.Since(start)

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	o.metrics.IncrementDeployments(string(p), outcome)
	o.metrics.RecordDeploymentLatency(string(p), elapsed)
	if _, err := o.redis.IncrementPlatformCall(p); err != nil {
		o.logger.Warn("pacing counter", zap.String("platform", string(p)), zap.Error(err))
	}
	if o.analytics != nil {
		if err := o.analytics.RecordDeployment(ctx, runID, res, amount, elapsed.Milliseconds()); err != nil &&
			!errors.Is(err, analytics.ErrUnavailable) {
			o.logger.Warn("record deployment event", zap.Error(err))
		}
	}
	if !res.Success && res.Error != nil {
		o.logger.Warn("platform deployment failed",
			zap.String("run_id", runID),
			zap.String("platform", string(p)),
			zap.String("error_kind", string(res.Error.Kind)),
			zap.String("error", res.Error.Message))
	}
	resultCh <- res
}
