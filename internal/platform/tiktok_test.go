package platform

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
)

func tiktokRequest() models.CampaignRequest {
	return models.CampaignRequest{
		Platform:       models.PlatformTikTok,
		DailyBudget:    2500,
		Objective:      models.ObjectiveTraffic,
		Headline:       "Summer Sale",
		Body:           "Everything must go",
		DestinationURL: "https://example.com/sale",
		MediaHandle:    "h1",
		AccessToken:    "tok-tiktok",
	}
}

func tiktokOK(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "OK", "data": data})
}

func TestTikTokDeploySessionUploadProtocol(t *testing.T) {
	media := writeTempVideo(t)
	var putBody []byte
	var adGroupPayload map[string]any

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Access-Token"); got != "tok-tiktok" && r.URL.Path != "/upload-put" {
			t.Errorf("Expected Access-Token header on %s, got %q", r.URL.Path, got)
		}
		switch r.URL.Path {
		case "/open_api/v1.3/oauth2/advertiser/get/":
			tiktokOK(w, map[string]any{"list": []map[string]string{{"advertiser_id": "adv1"}}})
		case "/open_api/v1.3/file/video/upload/init/":
			tiktokOK(w, map[string]string{"upload_url": srv.URL + "/upload-put", "video_id": "v1"})
		case "/upload-put":
			if r.Method != http.MethodPut {
				t.Errorf("Expected raw PUT to upload url, got %s", r.Method)
			}
			putBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		case "/open_api/v1.3/file/video/upload/commit/":
			tiktokOK(w, map[string]string{"video_id": "v1"})
		case "/open_api/v1.3/campaign/create/":
			tiktokOK(w, map[string]string{"campaign_id": "c1"})
		case "/open_api/v1.3/adgroup/create/":
			json.NewDecoder(r.Body).Decode(&adGroupPayload)
			tiktokOK(w, map[string]string{"adgroup_id": "g1"})
		case "/open_api/v1.3/ad/create/":
			tiktokOK(w, map[string]any{"ad_ids": []string{"a1"}})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewTikTokAdapter(media, zap.NewNop(), observability.NewMockMetricsRegistry(), WithTikTokBaseURL(srv.URL))
	res := a.Deploy(t.Context(), tiktokRequest())

	if !res.Success {
		t.Fatalf("Expected success, got %+v", res.Error)
	}
	if res.IDs.MediaID != "v1" || res.IDs.CampaignID != "c1" || res.IDs.AdGroupID != "g1" || res.IDs.AdID != "a1" {
		t.Errorf("Unexpected ids: %+v", *res.IDs)
	}
	if res.IDs.CreativeID != "" {
		t.Errorf("Expected no standalone creative id, got %s", res.IDs.CreativeID)
	}
	if string(putBody) != "fake video bytes" {
		t.Errorf("Expected raw file bytes in PUT body, got %q", putBody)
	}
	if got, ok := adGroupPayload["budget"].(float64); !ok || int64(got) != 2500 {
		t.Errorf("Expected ad group budget 2500, got %v", adGroupPayload["budget"])
	}
}

func TestTikTokDeployEnvelopeErrorOnHTTP200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/open_api/v1.3/oauth2/advertiser/get/":
			tiktokOK(w, map[string]any{"list": []map[string]string{{"advertiser_id": "adv1"}}})
		case "/open_api/v1.3/campaign/create/":
			json.NewEncoder(w).Encode(map[string]any{"code": 40002, "message": "objective not permitted"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	req := tiktokRequest()
	req.MediaHandle = ""

	a := NewTikTokAdapter(newFakeMedia(), zap.NewNop(), observability.NewMockMetricsRegistry(), WithTikTokBaseURL(srv.URL))
	res := a.Deploy(t.Context(), req)

	if res.Success {
		t.Fatal("Expected failure")
	}
	if res.Error == nil || res.Error.Kind != models.ErrKindPlatformAPI {
		t.Errorf("Expected platform_api error, got %+v", res.Error)
	}
	if res.IDs != nil && res.IDs.CampaignID != "" {
		t.Errorf("Expected no campaign id, got %s", res.IDs.CampaignID)
	}
}

func TestTikTokDeployRetriesRateLimitedUpload(t *testing.T) {
	shortBackoff(t)
	media := writeTempVideo(t)
	metrics := observability.NewMockMetricsRegistry()
	initCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/open_api/v1.3/oauth2/advertiser/get/":
			tiktokOK(w, map[string]any{"list": []map[string]string{{"advertiser_id": "adv1"}}})
		case "/open_api/v1.3/file/video/upload/init/":
			initCalls++
			// rate-limit code rides on HTTP 200
			json.NewEncoder(w).Encode(map[string]any{"code": 40100, "message": "too many requests"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewTikTokAdapter(media, zap.NewNop(), metrics, WithTikTokBaseURL(srv.URL))
	res := a.Deploy(t.Context(), tiktokRequest())

	if res.Success {
		t.Fatal("Expected failure")
	}
	if initCalls != 3 {
		t.Errorf("Expected 3 upload attempts, got %d", initCalls)
	}
	if res.Error == nil || res.Error.Kind != models.ErrKindUploadFailed {
		t.Errorf("Expected upload_failed error, got %+v", res.Error)
	}
	if got := metrics.Count("uploads:tiktok:transient"); got != 3 {
		t.Errorf("Expected 3 transient attempts recorded, got %d", got)
	}
}
