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

const (
	googleDefaultBaseURL = "https://googleads.googleapis.com"
	googleAPIVersion     = "v16"
)

var googleObjectives = map[models.Objective]string{
	models.ObjectiveSales:      "SALES",
	models.ObjectiveLeads:      "LEAD_GENERATION",
	models.ObjectiveReach:      "AWARENESS",
	models.ObjectiveEngagement: "ENGAGEMENT",
	models.ObjectiveTraffic:    "WEB_TRAFFIC",
}

// GoogleAdapter deploys campaigns through the Google Ads REST API.
// Media upload is an insert call carrying the file bytes inline in the
// asset body; campaign, ad group and ad creation go through the
// per-resource mutate endpoints. Everything is created PAUSED.
type GoogleAdapter struct {
	baseURL        string
	client         *http.Client
	media          MediaSource
	limiter        *ratelimit.PlatformLimiter
	logger         *zap.Logger
	metrics        observability.MetricsRegistry
	developerToken string
}

// GoogleOption configures the adapter.
type GoogleOption func(*GoogleAdapter)

// WithGoogleBaseURL sets a custom base URL.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(a *GoogleAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithGoogleClient sets a custom HTTP client.
func WithGoogleClient(c *http.Client) GoogleOption {
	return func(a *GoogleAdapter) { a.client = c }
}

// WithGoogleLimiter sets the outbound rate limiter.
func WithGoogleLimiter(l *ratelimit.PlatformLimiter) GoogleOption {
	return func(a *GoogleAdapter) { a.limiter = l }
}

// WithGoogleDeveloperToken sets the developer token sent on every call.
func WithGoogleDeveloperToken(t string) GoogleOption {
	return func(a *GoogleAdapter) { a.developerToken = t }
}

// NewGoogleAdapter creates a Google Ads adapter.
func NewGoogleAdapter(media MediaSource, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...GoogleOption) *GoogleAdapter {
	a := &GoogleAdapter{
		baseURL: googleDefaultBaseURL,
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
func (a *GoogleAdapter) Platform() models.Platform { return models.PlatformGoogle }

// Deploy runs the full Google Ads deployment sequence. The ad group ad
// mutate folds the ad and its creative content into one call, so
// results carry no separate creative id.
func (a *GoogleAdapter) Deploy(ctx context.Context, req models.CampaignRequest) models.DeploymentResult {
	ctx, span := observability.Tracer("platform.google").Start(ctx, "google.deploy")
	defer span.End()

	var ids models.RemoteIDs

	if err := req.Validate(); err != nil {
		return failure(a.Platform(), ids, "validation", err)
	}

	customerID, err := a.resolveCustomer(ctx, req.AccessToken)
	if err != nil {
		return failure(a.Platform(), ids, "resolve customer", err)
	}

	if req.MediaHandle != "" {
		assetID, err := uploadWithRetry(ctx, a.Platform(), a.media, mediastore.Handle(req.MediaHandle),
			func(ctx context.Context, path string, info mediastore.AssetInfo) (string, error) {
				return a.uploadAsset(ctx, customerID, req.AccessToken, path, info)
			}, a.logger, a.metrics)
		if err != nil {
			return failure(a.Platform(), ids, "media upload", err)
		}
		ids.MediaID = assetID
	}

	budgetName, err := a.createBudget(ctx, customerID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create budget", err)
	}

	campaignID, err := a.createCampaign(ctx, customerID, budgetName, req)
	if err != nil {
		return failure(a.Platform(), ids, "create campaign", err)
	}
	ids.CampaignID = campaignID

	adGroupID, err := a.createAdGroup(ctx, customerID, campaignID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad group", err)
	}
	ids.AdGroupID = adGroupID

	adID, err := a.createAdGroupAd(ctx, customerID, adGroupID, ids.MediaID, req)
	if err != nil {
		return failure(a.Platform(), ids, "create ad", err)
	}
	ids.AdID = adID

	a.logger.Info("google deployment complete",
		zap.String("campaign_id", campaignID),
		zap.String("ad_id", adID))

	return models.DeploymentResult{
		Platform: a.Platform(),
		Success:  true,
		IDs:      &ids,
		Message:  "campaign deployed in paused state",
	}
}

func (a *GoogleAdapter) resolveCustomer(ctx context.Context, token string) (string, error) {
	data, err := a.call(ctx, http.MethodGet, fmt.Sprintf("/%s/customers:listAccessibleCustomers", googleAPIVersion), token, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode customers: %w", err)
	}
	if len(out.ResourceNames) == 0 {
		return "", NewAPIError(a.Platform(), http.StatusForbidden, "no_customer", "credential has no accessible customer")
	}
	// resource name is "customers/{id}"
	return strings.TrimPrefix(out.ResourceNames[0], "customers/"), nil
}

// uploadAsset inserts a media asset with the file bytes carried inline
// in the request body. One attempt is one insert call.
func (a *GoogleAdapter) uploadAsset(ctx context.Context, customerID, token, path string, info mediastore.AssetInfo) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read plaintext: %w", err)
	}
	data, err := a.call(ctx, http.MethodPost,
		fmt.Sprintf("/%s/customers/%s/assets:mutate", googleAPIVersion, customerID), token,
		map[string]any{
			"operations": []map[string]any{{
				"create": map[string]any{
					"name": info.Filename,
					"type": "MEDIA_BUNDLE",
					"mediaBundleAsset": map[string]any{
						"data": raw,
					},
				},
			}},
		})
	if err != nil {
		return "", err
	}
	return firstResourceName(data)
}

func (a *GoogleAdapter) createBudget(ctx context.Context, customerID string, req models.CampaignRequest) (string, error) {
	// amountMicros is minor units times 10^4
	data, err := a.call(ctx, http.MethodPost,
		fmt.Sprintf("/%s/customers/%s/campaignBudgets:mutate", googleAPIVersion, customerID), req.AccessToken,
		map[string]any{
			"operations": []map[string]any{{
				"create": map[string]any{
					"name":           req.Headline + " budget",
					"amountMicros":   req.DailyBudget * 10000,
					"deliveryMethod": "STANDARD",
				},
			}},
		})
	if err != nil {
		return "", err
	}
	return firstResourceName(data)
}

func (a *GoogleAdapter) createCampaign(ctx context.Context, customerID, budgetName string, req models.CampaignRequest) (string, error) {
	objective, ok := googleObjectives[req.Objective]
	if !ok {
		objective = googleObjectives[models.ObjectiveReach]
	}
	data, err := a.call(ctx, http.MethodPost,
		fmt.Sprintf("/%s/customers/%s/campaigns:mutate", googleAPIVersion, customerID), req.AccessToken,
		map[string]any{
			"operations": []map[string]any{{
				"create": map[string]any{
					"name":                   req.Headline,
					"status":                 "PAUSED",
					"advertisingChannelType": "VIDEO",
					"campaignBudget":         budgetName,
					"objectiveType":          objective,
					"manualCpm":              map[string]any{},
				},
			}},
		})
	if err != nil {
		return "", err
	}
	return firstResourceName(data)
}

func (a *GoogleAdapter) createAdGroup(ctx context.Context, customerID, campaignID string, req models.CampaignRequest) (string, error) {
	data, err := a.call(ctx, http.MethodPost,
		fmt.Sprintf("/%s/customers/%s/adGroups:mutate", googleAPIVersion, customerID), req.AccessToken,
		map[string]any{
			"operations": []map[string]any{{
				"create": map[string]any{
					"name":     req.Headline + " ad group",
					"campaign": campaignID,
					"status":   "PAUSED",
					"type":     "VIDEO_RESPONSIVE",
				},
			}},
		})
	if err != nil {
		return "", err
	}
	return firstResourceName(data)
}

// createAdGroupAd folds the ad content into the adGroupAds mutate; the
// API has no standalone creative resource for this path.
func (a *GoogleAdapter) createAdGroupAd(ctx context.Context, customerID, adGroupID, assetID string, req models.CampaignRequest) (string, error) {
	ad := map[string]any{
		"finalUrls": []string{req.DestinationURL},
		"responsiveDisplayAd": map[string]any{
			"headlines":    []map[string]string{{"text": req.Headline}},
			"descriptions": []map[string]string{{"text": req.Body}},
			"businessName": req.Headline,
		},
	}
	if assetID != "" {
		ad["responsiveDisplayAd"].(map[string]any)["youtubeVideos"] = []map[string]string{{"asset": assetID}}
	}
	data, err := a.call(ctx, http.MethodPost,
		fmt.Sprintf("/%s/customers/%s/adGroupAds:mutate", googleAPIVersion, customerID), req.AccessToken,
		map[string]any{
			"operations": []map[string]any{{
				"create": map[string]any{
					"adGroup": adGroupID,
					"status":  "PAUSED",
					"ad":      ad,
				},
			}},
		})
	if err != nil {
		return "", err
	}
	return firstResourceName(data)
}

// call issues one REST call with bearer auth and the developer token.
func (a *GoogleAdapter) call(ctx context.Context, method, path, token string, payload map[string]any) (json.RawMessage, error) {
	if err := throttle(ctx, a.limiter, a.Platform()); err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if a.developerToken != "" {
		httpReq.Header.Set("developer-token", a.developerToken)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer drainAndClose(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.apiError(resp.StatusCode, raw)
	}
	return raw, nil
}

// googleErrorResponse is the google.rpc.Status envelope.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (a *GoogleAdapter) apiError(statusCode int, body []byte) error {
	var errResp googleErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return NewAPIError(a.Platform(), statusCode, "", strings.TrimSpace(string(body)))
	}
	return NewAPIError(a.Platform(), statusCode, errResp.Error.Status, errResp.Error.Message)
}

// firstResourceName extracts the first created resource name from a
// mutate response.
func firstResourceName(data json.RawMessage) (string, error) {
	var out struct {
		Results []struct {
			ResourceName string `json:"resourceName"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode mutate response: %w", err)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("mutate returned no results")
	}
	return out.Results[0].ResourceName, nil
}
