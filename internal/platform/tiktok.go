package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/platform/ratelimit"
)

const tiktokDefaultBaseURL = "https://business-api.tiktok.com"

var tiktokObjectives = map[models.Objective]string{
	models.ObjectiveSales:      "WEB_CONVERSIONS",
	models.ObjectiveLeads:      "LEAD_GENERATION",
	models.ObjectiveReach:      "REACH",
	models.ObjectiveEngagement: "ENGAGEMENT",
	models.ObjectiveTraffic:    "TRAFFIC",
}

// TikTokAdapter deploys campaigns through the TikTok Business API.
// Video upload is a three-step protocol: initialize an upload session,
// PUT the raw bytes to the returned upload URL, then commit the session.
// Campaign objects are created with DISABLE operation status.
type TikTokAdapter struct {
	baseURL string
	client  *http.Client
	media   MediaSource
	limiter *ratelimit.PlatformLimiter
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// TikTokOption configures the adapter.
type TikTokOption func(*TikTokAdapter)

// WithTikTokBaseURL sets a custom base URL.
func WithTikTokBaseURL(u string) TikTokOption {
	return func(a *TikTokAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithTikTokClient sets a custom HTTP client.
func WithTikTokClient(c *http.Client) TikTokOption {
	return func(a *TikTokAdapter) { a.client = c }
}

// WithTikTokLimiter sets the outbound rate limiter.
func WithTikTokLimiter(l *ratelimit.PlatformLimiter) TikTokOption {
	return func(a *TikTokAdapter) { a.limiter = l }
}

// NewTikTokAdapter creates a TikTok adapter.
func NewTikTokAdapter(media MediaSource, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...TikTokOption) *TikTokAdapter {
	a := &TikTokAdapter{
		baseURL: tiktokDefaultBaseURL,
		client:  newHTTPClient(),
		media:   media,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Platform returns the platform identifier.
func (a *TikTokAdapter) Platform() models.Platform { return models.PlatformTikTok }

// tiktokEnvelope is the uniform Business API response wrapper. Code 0
// means success; anything else is a platform error even on HTTP 200.
type tiktokEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Deploy runs the full TikTok deployment sequence. The ad create call
// folds the creative in, so results carry no separate creative id.
func (a *TikTokAdapter) Deploy(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
	ctx, span := observability.Tracer("platform.tiktok").Start(ctx, "tiktok.deploy")
	defer span.End()

	var ids models.RemoteIDs

	if err := req.Validate(); err != nil {
		return failure(a.Platform(), ids, "validation", err)
	}

	advertiserID, err := a.resolveAdvertiser(ctx, req.AccessToken)
	if err != nil {
		return failure(a.Platform(), ids, "resolve advertiser", err)
	}

	if req.MediaHandle != "" {
		videoID, err := uploadWithRetry(ctx, a.Platform(), a.media, mediastore.Handle(req.MediaHandle),
			func(ctx context.Context, path string, info mediastore.AssetInfo) (string, error) {
				return a.uploadVideo(ctx, advertiserID, req.AccessToken, path, info)
			}, a.logger, a.metrics)
		if err != nil {
			return failure(a.Platform(), ids, "video upload", err)
		}
		ids.MediaID = videoID
	}

	campaignID, err := a.createCampaign(ctx, advertiserID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create campaign", err)
	}
	ids.CampaignID = campaignID

	adGroupID, err := a.createAdGroup(ctx, advertiserID, campaignID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad group", err)
	}
	ids.AdGroupID = adGroupID

	adID, err := a.createAd(ctx, advertiserID, adGroupID, ids.MediaID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad", err)
	}
	ids.AdID = adID

	a.logger.Info("tiktok deployment complete",
		zap.String("campaign_id", campaignID),
		zap.String("ad_id", adID))

	return models.DeploymentResult{
		Platform: a.Platform(),
		Success:  true,
		IDs:      &ids,
		Message:  "campaign deployed in disabled state",
	}
}

func (a *TikTokAdapter) resolveAdvertiser(ctx context.Context, token string) (string, error) {
	data, err := a.get(ctx, "/open_api/v1.3/oauth2/advertiser/get/", token)
	if err != nil {
		return "", err
	}
	var out struct {
		List []struct {
			AdvertiserID string `json:"advertiser_id"`
		} `json:"list"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode advertiser list: %w", err)
	}
	if len(out.List) == 0 {
		return "", NewAPIError(a.Platform(), http.StatusForbidden, "no_advertiser", "credential has no advertiser account")
	}
	return out.List[0].AdvertiserID, nil
}

// uploadVideo runs the session protocol: init returns an upload URL and
// video id, the raw file body is PUT to that URL, then the session is
// committed. One attempt covers all three steps so a failed PUT never
// leaves a half-committed session behind for the next attempt.
func (a *TikTokAdapter) uploadVideo(ctx context.Context, advertiserID, token, path string, info mediastore.AssetInfo) (string, error) {
	initData, err := a.post(ctx, "/open_api/v1.3/file/video/upload/init/", token, map[string]any{
		"advertiser_id": advertiserID,
		"file_name":     info.Filename,
		"file_size":     info.Size,
	})
	if err != nil {
		return "", err
	}
	var session struct {
		UploadURL string `json:"upload_url"`
		VideoID   string `json:"video_id"`
	}
	if err := json.Unmarshal(initData, &session); err != nil {
		return "", fmt.Errorf("decode upload session: %w", err)
	}

	if err := a.putFile(ctx, session.UploadURL, token, path, info); err != nil {
		return "", err
	}

	if _, err := a.post(ctx, "/open_api/v1.3/file/video/upload/commit/", token, map[string]any{
		"advertiser_id": advertiserID,
		"video_id":      session.VideoID,
	}); err != nil {
		return "", err
	}
	return session.VideoID, nil
}

// putFile streams the plaintext file to the session upload URL. The URL
// may point at a different host than the API base.
func (a *TikTokAdapter) putFile(ctx context.Context, uploadURL, token, path string, info mediastore.AssetInfo) error {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open plaintext: %w", err)
	}
	defer func() { _ = f.Close() }()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.ContentLength = info.Size
	httpReq.Header.Set("Content-Type", info.MIMEType)
	httpReq.Header.Set("Access-Token", token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return NewAPIError(a.Platform(), resp.StatusCode, "upload_put", strings.TrimSpace(string(body)))
	}
	return nil
}

func (a *TikTokAdapter) createCampaign(ctx context.Context, advertiserID string, req models.CampaignRequest) (string, error) {
	objective, ok := tiktokObjectives[req.Objective]
	if !ok {
		objective = tiktokObjectives[models.ObjectiveReach]
	}
	data, err := a.post(ctx, "/open_api/v1.3/campaign/create/", req.AccessToken, map[string]any{
		"advertiser_id":    advertiserID,
		"campaign_name":    req.Headline,
		"objective_type":   objective,
		"budget_mode":      "BUDGET_MODE_INFINITE",
		"operation_status": "DISABLE",
	})
	if err != nil {
		return "", err
	}
	var out struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode campaign: %w", err)
	}
	return out.CampaignID, nil
}

func (a *TikTokAdapter) createAdGroup(ctx context.Context, advertiserID, campaignID string, req models.CampaignRequest) (string, error) {
	data, err := a.post(ctx, "/open_api/v1.3/adgroup/create/", req.AccessToken, map[string]any{
		"advertiser_id":    advertiserID,
		"campaign_id":      campaignID,
		"adgroup_name":     req.Headline + " ad group",
		"budget_mode":      "BUDGET_MODE_DAY",
		"budget":           req.DailyBudget,
		"billing_event":    "CPM",
		"operation_status": "DISABLE",
	})
	if err != nil {
		return "", err
	}
	var out struct {
		AdGroupID string `json:"adgroup_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode ad group: %w", err)
	}
	return out.AdGroupID, nil
}

// createAd folds the creative into the ad create call, matching the
// Business API shape where creatives are inline on the ad.
func (a *TikTokAdapter) createAd(ctx context.Context, advertiserID, adGroupID, videoID string, req models.CampaignRequest) (string, error) {
	creative := map[string]any{
		"ad_name":      req.Headline + " ad",
		"ad_text":      req.Body,
		"landing_page": req.DestinationURL,
		"ad_format":    "SINGLE_VIDEO",
	}
	if videoID != "" {
		creative["video_id"] = videoID
	}
	data, err := a.post(ctx, "/open_api/v1.3/ad/create/", req.AccessToken, map[string]any{
		"advertiser_id":    advertiserID,
		"adgroup_id":       adGroupID,
		"creatives":        []map[string]any{creative},
		"operation_status": "DISABLE",
	})
	if err != nil {
		return "", err
	}
	var out struct {
		AdIDs []string `json:"ad_ids"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode ad: %w", err)
	}
	if len(out.AdIDs) == 0 {
		return "", NewAPIError(a.Platform(), http.StatusOK, "empty_ad_ids", "ad create returned no ids")
	}
	return out.AdIDs[0], nil
}

func (a *TikTokAdapter) get(ctx context.Context, path, token string) (json.RawMessage, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Access-Token", token)
	return a.do(httpReq)
}

func (a *TikTokAdapter) post(ctx context.Context, path, token string, payload map[string]any) (json.RawMessage, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Access-Token", token)
	return a.do(httpReq)
}

// do executes the request and unwraps the Business API envelope.
func (a *TikTokAdapter) do(httpReq *http.Request) (json.RawMessage, error) {
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, NewAPIError(a.Platform(), resp.StatusCode, "", strings.TrimSpace(string(body)))
	}
	var env tiktokEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		// envelope errors ride on HTTP 200; 40100 is the documented
		// rate-limit code and stays retryable
		status := http.StatusBadRequest
		if env.Code == 40100 {
			status = http.StatusTooManyRequests
		}
		return nil, NewAPIError(a.Platform(), status, fmt.Sprintf("%d", env.Code), env.Message)
	}
	return env.Data, nil
}
