package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/platform/ratelimit"
)

const (
	metaDefaultBaseURL = "https://graph.facebook.com"
	metaDefaultVersion = "v19.0"
)

// metaObjectives maps the platform-agnostic objective to Meta's
// outcome-driven campaign objectives. Unmapped inputs fall back to
// awareness.
var metaObjectives = map[models.Objective]string{
	models.ObjectiveSales:      "OUTCOME_SALES",
	models.ObjectiveLeads:      "OUTCOME_LEADS",
	models.ObjectiveReach:      "OUTCOME_AWARENESS",
	models.ObjectiveEngagement: "OUTCOME_ENGAGEMENT",
	models.ObjectiveTraffic:    "OUTCOME_TRAFFIC",
}

var metaOptimizationGoals = map[models.Objective]string{
	models.ObjectiveSales:      "OFFSITE_CONVERSIONS",
	models.ObjectiveLeads:      "LEAD_GENERATION",
	models.ObjectiveReach:      "REACH",
	models.ObjectiveEngagement: "POST_ENGAGEMENT",
	models.ObjectiveTraffic:    "LINK_CLICKS",
}

// MetaAdapter deploys campaigns through the Meta Marketing API.
// The sequence is: resolve ad account, upload video (multipart POST),
// create campaign, ad set, ad creative, ad. All created objects are
// paused.
type MetaAdapter struct {
	baseURL string
	version string
	client  *http.Client
	media   MediaSource
	limiter *ratelimit.PlatformLimiter
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	country string
}

// MetaOption configures the adapter.
type MetaOption func(*MetaAdapter)

// WithMetaBaseURL sets a custom base URL (for testing or sandbox tenants).
func WithMetaBaseURL(u string) MetaOption {
	return func(a *MetaAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithMetaVersion sets the Graph API version segment.
func WithMetaVersion(v string) MetaOption {
	return func(a *MetaAdapter) { a.version = v }
}

// WithMetaClient sets a custom HTTP client.
func WithMetaClient(c *http.Client) MetaOption {
	return func(a *MetaAdapter) { a.client = c }
}

// WithMetaLimiter sets the outbound rate limiter.
func WithMetaLimiter(l *ratelimit.PlatformLimiter) MetaOption {
	return func(a *MetaAdapter) { a.limiter = l }
}

// WithMetaCountry sets the default targeting country for new ad sets.
func WithMetaCountry(c string) MetaOption {
	return func(a *MetaAdapter) { a.country = c }
}

// NewMetaAdapter creates a Meta adapter.
func NewMetaAdapter(media MediaSource, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...MetaOption) *MetaAdapter {
	a := &MetaAdapter{
		baseURL: metaDefaultBaseURL,
		version: metaDefaultVersion,
		client:  newHTTPClient(),
		media:   media,
		logger:  logger,
		metrics: metrics,
		country: "US",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Platform returns the platform identifier.
func (a *MetaAdapter) Platform() models.Platform { return models.PlatformMeta }

// Deploy runs the full Meta deployment sequence. Failures are contained
// in the returned result together with the ids created so far.
func (a *MetaAdapter) Deploy(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
	ctx, span := observability.Tracer("platform.meta").Start(ctx, "meta.deploy")
	defer span.End()

	var ids models.RemoteIDs

	if err := req.Validate(); err != nil {
		return failure(a.Platform(), ids, "validation", err)
	}

	account, err := a.resolveAdAccount(ctx, req.AccessToken)
	if err != nil {
		return failure(a.Platform(), ids, "resolve ad account", err)
	}

	if req.MediaHandle != "" {
		videoID, err := uploadWithRetry(ctx, a.Platform(), a.media, mediastore.Handle(req.MediaHandle),
			func(ctx context.Context, path string, info mediastore.AssetInfo) (string, error) {
				return a.uploadVideo(ctx, account, req.AccessToken, path, info)
			}, a.logger, a.metrics)
		if err != nil {
			return failure(a.Platform(), ids, "video upload", err)
		}
		ids.MediaID = videoID
	}

	campaignID, err := a.createCampaign(ctx, account, req)
	if err != nil {
		return failure(a.Platform(), ids, "create campaign", err)
	}
	ids.CampaignID = campaignID

	adSetID, err := a.createAdSet(ctx, account, campaignID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad set", err)
	}
	ids.AdGroupID = adSetID

	creativeID, err := a.createCreative(ctx, account, ids.MediaID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create creative", err)
	}
	ids.CreativeID = creativeID

	adID, err := a.createAd(ctx, account, adSetID, creativeID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad", err)
	}
	ids.AdID = adID

	a.logger.Info("meta deployment complete",
		zap.String("campaign_id", campaignID),
		zap.String("ad_id", adID))

	return models.DeploymentResult{
		Platform: a.Platform(),
		Success:  true,
		IDs:      &ids,
		Message:  "campaign deployed in paused state",
	}
}

// resolveAdAccount returns the caller's first ad account id.
func (a *MetaAdapter) resolveAdAccount(ctx context.Context, token string) (string, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/%s/me/adaccounts?fields=id&limit=1&access_token=%s",
		a.baseURL, a.version, url.QueryEscape(token))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", a.apiError(resp)
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ad accounts: %w", err)
	}
	if len(out.Data) == 0 {
		return "", NewAPIError(a.Platform(), http.StatusForbidden, "no_ad_account", "credential has no ad account")
	}
	return out.Data[0].ID, nil
}

// uploadVideo pushes the plaintext file as a single multipart POST to
// the account's advideos edge.
func (a *MetaAdapter) uploadVideo(ctx context.Context, account, token, path string, info mediastore.AssetInfo) (string, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open plaintext: %w", err)
	}

	// The body streams through a pipe so the video is never held in
	// memory whole.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer func() { _ = f.Close() }()
		err := func() error {
			if err := mw.WriteField("access_token", token); err != nil {
				return fmt.Errorf("multipart field: %w", err)
			}
			if err := mw.WriteField("title", info.Filename); err != nil {
				return fmt.Errorf("multipart field: %w", err)
			}
			part, err := mw.CreateFormFile("source", info.Filename)
			if err != nil {
				return fmt.Errorf("multipart file: %w", err)
			}
			if _, err := io.Copy(part, f); err != nil {
				return fmt.Errorf("multipart copy: %w", err)
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	u := fmt.Sprintf("%s/%s/%s/advideos", a.baseURL, a.version, account)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		_ = pr.Close()
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", a.apiError(resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.ID, nil
}

func (a *MetaAdapter) createCampaign(ctx context.Context, account string, req models.CampaignRequest) (string, error) {
	objective, ok := metaObjectives[req.Objective]
	if !ok {
		objective = metaObjectives[models.ObjectiveReach]
	}
	form := url.Values{}
	form.Set("name", req.Headline)
	form.Set("objective", objective)
	// never created live: runaway spend guard
	form.Set("status", "PAUSED")
	form.Set("special_ad_categories", "[]")
	return a.postForm(ctx, fmt.Sprintf("/%s/campaigns", account), req.AccessToken, form)
}

func (a *MetaAdapter) createAdSet(ctx context.Context, account, campaignID string, req models.CampaignRequest) (string, error) {
	goal, ok := metaOptimizationGoals[req.Objective]
	if !ok {
		goal = metaOptimizationGoals[models.ObjectiveReach]
	}
	targeting, _ := json.Marshal(map[string]any{
		"geo_locations": map[string]any{"countries": []string{a.country}},
	})
	form := url.Values{}
	form.Set("name", req.Headline+" ad set")
	form.Set("campaign_id", campaignID)
	form.Set("daily_budget", strconv.FormatInt(req.DailyBudget, 10))
	form.Set("billing_event", "IMPRESSIONS")
	form.Set("optimization_goal", goal)
	form.Set("bid_strategy", "LOWEST_COST_WITHOUT_CAP")
	form.Set("targeting", string(targeting))
	form.Set("status", "PAUSED")
	return a.postForm(ctx, fmt.Sprintf("/%s/adsets", account), req.AccessToken, form)
}

func (a *MetaAdapter) createCreative(ctx context.Context, account, videoID string, req models.CampaignRequest) (string, error) {
	var spec map[string]any
	if videoID != "" {
		spec = map[string]any{
			"video_data": map[string]any{
				"video_id": videoID,
				"title":    req.Headline,
				"message":  req.Body,
				"call_to_action": map[string]any{
					"type":  "LEARN_MORE",
					"value": map[string]any{"link": req.DestinationURL},
				},
			},
		}
	} else {
		// link/text fallback when the campaign carries no media
		spec = map[string]any{
			"link_data": map[string]any{
				"link":    req.DestinationURL,
				"name":    req.Headline,
				"message": req.Body,
			},
		}
	}
	specJSON, _ := json.Marshal(spec)
	form := url.Values{}
	form.Set("name", req.Headline+" creative")
	form.Set("object_story_spec", string(specJSON))
	return a.postForm(ctx, fmt.Sprintf("/%s/adcreatives", account), req.AccessToken, form)
}

func (a *MetaAdapter) createAd(ctx context.Context, account, adSetID, creativeID string, req models.CampaignRequest) (string, error) {
	creative, _ := json.Marshal(map[string]string{"creative_id": creativeID})
	form := url.Values{}
	form.Set("name", req.Headline+" ad")
	form.Set("adset_id", adSetID)
	form.Set("creative", string(creative))
	form.Set("status", "PAUSED")
	return a.postForm(ctx, fmt.Sprintf("/%s/ads", account), req.AccessToken, form)
}

// postForm issues a form POST against the Graph API and returns the
// created object id.
func (a *MetaAdapter) postForm(ctx context.Context, path, token string, form url.Values) (string, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return "", err
	}
	form.Set("access_token", token)

	u := a.baseURL + "/" + a.version + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", a.apiError(resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.ID, nil
}

// metaErrorResponse is the Graph API error envelope.
type metaErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (a *MetaAdapter) apiError(resp *http.Response) error {
	var errResp metaErrorResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return NewAPIError(a.Platform(), resp.StatusCode, "", strings.TrimSpace(string(body)))
	}
	return NewAPIError(a.Platform(), resp.StatusCode, strconv.Itoa(errResp.Error.Code), errResp.Error.Message)
}
