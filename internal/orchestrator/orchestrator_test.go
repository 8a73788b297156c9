package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/budget"
	"github.com/adlaunch/adlaunch/internal/db"
	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/platform"
)

// fakeAdapter runs a canned deploy func for one platform.
type fakeAdapter struct {
	platform models.Platform
	deploy   func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }
func (f *fakeAdapter) Deploy(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
	return f.deploy(ctx, req)
}

func succeeding(p models.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, deploy: func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
		return models.DeploymentResult{Platform: p, Success: true, IDs: &models.RemoteIDs{CampaignID: "c-" + string(p)}}
	}}
}

func failing(p models.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, deploy: func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
		return models.DeploymentResult{Platform: p, Success: false, Message: "boom",
			Error: &models.ErrorDetail{Kind: models.ErrKindPlatformAPI, Message: "boom", StatusCode: 400}}
	}}
}

// destroyRecorder tracks Destroy calls in place of a real media store.
type destroyRecorder struct {
	mu      sync.Mutex
	handles []mediastore.Handle
}

func (d *destroyRecorder) Destroy(h mediastore.Handle) error {
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	return nil
}

func (d *destroyRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

func allCredentials() map[models.Platform]string {
	return map[models.Platform]string{
		models.PlatformMeta:   "tok-m",
		models.PlatformTikTok: "tok-t",
		models.PlatformGoogle: "tok-g",
	}
}

func testRequest() Request {
	return Request{
		TotalDailyBudget: 100000,
		Objective:        "sales",
		Headline:         "Summer Sale",
		Body:             "Everything must go",
		DestinationURL:   "https://example.com/sale",
		MediaHandle:      "h1",
		RecommendedSplit: []budget.Recommendation{
			{Platform: "meta", Percent: 60},
			{Platform: "tiktok", Percent: 30},
			{Platform: "google", Percent: 10},
		},
		Credentials: allCredentials(),
	}
}

func TestRunPartialSuccess(t *testing.T) {
	registry := platform.NewRegistry(
		succeeding(models.PlatformMeta),
		failing(models.PlatformTikTok),
		succeeding(models.PlatformGoogle),
	)
	media := &destroyRecorder{}
	o := New(registry, media, zap.NewNop(), observability.NewMockMetricsRegistry())

	report, err := o.Run(t.Context(), testRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusPartialSuccess {
		t.Errorf("Expected partial_success, got %s", report.OverallStatus)
	}
	if report.RunID == "" {
		t.Error("Expected a run id")
	}
	if len(report.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(report.Results))
	}
	byPlatform := map[models.Platform]models.DeploymentResult{}
	for _, r := range report.Results {
		byPlatform[r.Platform] = r
	}
	if !byPlatform[models.PlatformMeta].Success || !byPlatform[models.PlatformGoogle].Success {
		t.Error("Expected meta and google to succeed independently of tiktok")
	}
	if byPlatform[models.PlatformTikTok].Success {
		t.Error("Expected tiktok to fail")
	}
	if byPlatform[models.PlatformTikTok].Error == nil || byPlatform[models.PlatformTikTok].Error.Kind != models.ErrKindPlatformAPI {
		t.Errorf("Expected tiktok failure detail, got %+v", byPlatform[models.PlatformTikTok].Error)
	}
}

func TestRunAllocatesBudgetsPerPlatform(t *testing.T) {
	var mu sync.Mutex
	budgets := map[models.Platform]int64{}
	record := func(p models.Platform) *fakeAdapter {
		return &fakeAdapter{platform: p, deploy: func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
			mu.Lock()
			budgets[p] = req.DailyBudget
			mu.Unlock()
			return models.DeploymentResult{Platform: p, Success: true}
		}}
	}
	registry := platform.NewRegistry(
		record(models.PlatformMeta),
		record(models.PlatformTikTok),
		record(models.PlatformGoogle),
	)
	o := New(registry, &destroyRecorder{}, zap.NewNop(), observability.NewMockMetricsRegistry())

	report, err := o.Run(t.Context(), testRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusAllSucceeded {
		t.Errorf("Expected all_succeeded, got %s", report.OverallStatus)
	}
	if budgets[models.PlatformMeta] != 60000 || budgets[models.PlatformTikTok] != 30000 || budgets[models.PlatformGoogle] != 10000 {
		t.Errorf("Unexpected budgets: %v", budgets)
	}
	if report.BudgetStrategy != models.StrategyRecommended {
		t.Errorf("Expected recommended strategy, got %s", report.BudgetStrategy)
	}
}

func TestRunDestroysMediaAfterRun(t *testing.T) {
	registry := platform.NewRegistry(failing(models.PlatformMeta))
	media := &destroyRecorder{}
	o := New(registry, media, zap.NewNop(), observability.NewMockMetricsRegistry())

	req := testRequest()
	req.Credentials = map[models.Platform]string{models.PlatformMeta: "tok-m"}

	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusAllFailed {
		t.Errorf("Expected all_failed, got %s", report.OverallStatus)
	}
	if media.count() != 1 {
		t.Errorf("Expected media destroyed exactly once even on failure, got %d", media.count())
	}
	if media.handles[0] != "h1" {
		t.Errorf("Expected handle h1 destroyed, got %s", media.handles[0])
	}
}

func TestRunKeepsMediaWhenAllocationFails(t *testing.T) {
	registry := platform.NewRegistry(succeeding(models.PlatformMeta))
	media := &destroyRecorder{}
	o := New(registry, media, zap.NewNop(), observability.NewMockMetricsRegistry())

	req := testRequest()
	req.TotalDailyBudget = 0

	if _, err := o.Run(t.Context(), req); !errors.Is(err, budget.ErrInvalidBudget) {
		t.Fatalf("Expected ErrInvalidBudget, got %v", err)
	}
	if media.count() != 0 {
		t.Errorf("Expected media untouched when the run never starts, got %d destroys", media.count())
	}
}

func TestRunReportsDroppedPlatforms(t *testing.T) {
	registry := platform.NewRegistry(
		succeeding(models.PlatformMeta),
		succeeding(models.PlatformGoogle),
	)
	o := New(registry, &destroyRecorder{}, zap.NewNop(), observability.NewMockMetricsRegistry())

	req := testRequest()
	// tiktok recommended but not connected
	delete(req.Credentials, models.PlatformTikTok)

	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusAllSucceeded {
		t.Errorf("Expected all_succeeded from attempted platforms only, got %s", report.OverallStatus)
	}
	if len(report.Dropped) != 1 || report.Dropped[0].Platform != models.PlatformTikTok ||
		report.Dropped[0].Reason != models.DropNotConnected {
		t.Errorf("Expected tiktok dropped as not_connected, got %+v", report.Dropped)
	}
	var droppedResult *models.DeploymentResult
	for i := range report.Results {
		if report.Results[i].Platform == models.PlatformTikTok {
			droppedResult = &report.Results[i]
		}
	}
	if droppedResult == nil {
		t.Fatal("Expected a failed result entry for the dropped platform")
	}
	if droppedResult.Success {
		t.Error("Expected the dropped platform's result to be failed")
	}
}

// fixedPolicy serves canned operator policy without a database.
type fixedPolicy struct {
	minimums map[models.Platform]int64
	disabled map[models.Platform]bool
}

func (f *fixedPolicy) DeploymentPolicy(ctx context.Context) (map[models.Platform]int64, map[models.Platform]bool) {
	minimums := f.minimums
	if minimums == nil {
		minimums = models.DefaultMinDailyBudget
	}
	return minimums, f.disabled
}

func TestRunExcludesDisabledPlatforms(t *testing.T) {
	var mu sync.Mutex
	deployed := map[models.Platform]bool{}
	record := func(p models.Platform) *fakeAdapter {
		return &fakeAdapter{platform: p, deploy: func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
			mu.Lock()
			deployed[p] = true
			mu.Unlock()
			return models.DeploymentResult{Platform: p, Success: true}
		}}
	}
	registry := platform.NewRegistry(
		record(models.PlatformMeta),
		record(models.PlatformTikTok),
		record(models.PlatformGoogle),
	)
	policy := &fixedPolicy{disabled: map[models.Platform]bool{models.PlatformTikTok: true}}
	o := New(registry, &destroyRecorder{}, zap.NewNop(), observability.NewMockMetricsRegistry(), WithPolicy(policy))

	report, err := o.Run(t.Context(), testRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if deployed[models.PlatformTikTok] {
		t.Error("Expected no deployment to a disabled platform")
	}
	if !deployed[models.PlatformMeta] || !deployed[models.PlatformGoogle] {
		t.Error("Expected the enabled platforms to deploy")
	}
	if report.OverallStatus != models.StatusAllSucceeded {
		t.Errorf("Expected all_succeeded from enabled platforms only, got %s", report.OverallStatus)
	}
	if len(report.Dropped) != 1 || report.Dropped[0].Platform != models.PlatformTikTok ||
		report.Dropped[0].Reason != models.DropDisabled {
		t.Errorf("Expected tiktok dropped as disabled, got %+v", report.Dropped)
	}
}

func TestRunDisabledPlatformDroppedWithoutRecommendation(t *testing.T) {
	registry := platform.NewRegistry(
		succeeding(models.PlatformMeta),
		succeeding(models.PlatformGoogle),
	)
	policy := &fixedPolicy{disabled: map[models.Platform]bool{models.PlatformGoogle: true}}
	o := New(registry, &destroyRecorder{}, zap.NewNop(), observability.NewMockMetricsRegistry(), WithPolicy(policy))

	req := testRequest()
	req.RecommendedSplit = nil
	delete(req.Credentials, models.PlatformTikTok)

	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.BudgetStrategy != models.StrategyEqualFallback {
		t.Errorf("Expected equal_fallback strategy, got %s", report.BudgetStrategy)
	}
	if len(report.Dropped) != 1 || report.Dropped[0].Platform != models.PlatformGoogle ||
		report.Dropped[0].Reason != models.DropDisabled {
		t.Errorf("Expected google dropped as disabled, got %+v", report.Dropped)
	}
}

func TestRunAdapterPanicContained(t *testing.T) {
	panicking := &fakeAdapter{platform: models.PlatformTikTok, deploy: func(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
		panic("adapter bug")
	}}
	registry := platform.NewRegistry(succeeding(models.PlatformMeta), panicking)
	o := New(registry, &destroyRecorder{}, zap.NewNop(), observability.NewMockMetricsRegistry())

	req := testRequest()
	delete(req.Credentials, models.PlatformGoogle)

	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusPartialSuccess {
		t.Errorf("Expected partial_success, got %s", report.OverallStatus)
	}
	for _, r := range report.Results {
		if r.Platform == models.PlatformTikTok {
			if r.Success {
				t.Error("Expected panicking adapter's result to be failed")
			}
			if r.Error == nil || r.Error.Kind != models.ErrKindInternal {
				t.Errorf("Expected internal error kind, got %+v", r.Error)
			}
		}
	}
}

func TestRunDeduplicatesConcurrentMedia(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rs := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	defer rs.Close()

	registry := platform.NewRegistry(succeeding(models.PlatformMeta))
	media := &destroyRecorder{}
	o := New(registry, media, zap.NewNop(), observability.NewMockMetricsRegistry(), WithRedis(rs))

	req := testRequest()
	req.Credentials = map[models.Platform]string{models.PlatformMeta: "tok-m"}

	// simulate another run holding the handle
	if !rs.AcquireDeployLock("h1") {
		t.Fatal("Expected lock setup to succeed")
	}
	if _, err := o.Run(t.Context(), req); !errors.Is(err, ErrDeployInProgress) {
		t.Fatalf("Expected ErrDeployInProgress, got %v", err)
	}
	if media.count() != 0 {
		t.Errorf("Expected media untouched for a rejected duplicate, got %d destroys", media.count())
	}

	// after the first run releases, the handle deploys normally
	rs.ReleaseDeployLock("h1")
	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OverallStatus != models.StatusAllSucceeded {
		t.Errorf("Expected all_succeeded, got %s", report.OverallStatus)
	}
}

func TestRunEqualFallbackWhenNoRecommendation(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	registry := platform.NewRegistry(
		succeeding(models.PlatformMeta),
		succeeding(models.PlatformGoogle),
	)
	o := New(registry, &destroyRecorder{}, zap.NewNop(), metrics)

	req := testRequest()
	req.RecommendedSplit = nil
	delete(req.Credentials, models.PlatformTikTok)

	report, err := o.Run(t.Context(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.BudgetStrategy != models.StrategyEqualFallback {
		t.Errorf("Expected equal_fallback strategy, got %s", report.BudgetStrategy)
	}
	if got := metrics.Count("runs:all_succeeded"); got != 1 {
		t.Errorf("Expected run counted as all_succeeded, got %d", got)
	}
}
