package platform

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
)

func writeTempVideo(t *testing.T) *fakeMedia {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spot.plain")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	media := newFakeMedia()
	media.path = path
	media.info.Size = int64(len("fake video bytes"))
	return media
}

func metaRequest() models.CampaignRequest {
	return models.CampaignRequest{
		Platform:       models.PlatformMeta,
		DailyBudget:    600,
		Objective:      models.ObjectiveSales,
		Headline:       "Summer Sale",
		Body:           "Everything must go",
		DestinationURL: "https://example.com/sale",
		MediaHandle:    "h1",
		AccessToken:    "tok-meta",
	}
}

func TestMetaDeployCreatesFullHierarchy(t *testing.T) {
	media := writeTempVideo(t)
	var gotCampaignForm, gotAdSetForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/me/adaccounts":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "act_123"}}})
		case "/v19.0/act_123/advideos":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("Expected multipart upload: %v", err)
			}
			if _, _, err := r.FormFile("source"); err != nil {
				t.Errorf("Expected source file part: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "9001"})
		case "/v19.0/act_123/campaigns":
			r.ParseForm()
			gotCampaignForm = r.PostForm
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case "/v19.0/act_123/adsets":
			r.ParseForm()
			gotAdSetForm = r.PostForm
			json.NewEncoder(w).Encode(map[string]string{"id": "g1"})
		case "/v19.0/act_123/adcreatives":
			json.NewEncoder(w).Encode(map[string]string{"id": "cr1"})
		case "/v19.0/act_123/ads":
			json.NewEncoder(w).Encode(map[string]string{"id": "a1"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewMetaAdapter(media, zap.NewNop(), observability.NewMockMetricsRegistry(), WithMetaBaseURL(srv.URL))
	res := a.Deploy(t.Context(), metaRequest())

	if !res.Success {
		t.Fatalf("Expected success, got %+v", res.Error)
	}
	if res.IDs == nil {
		t.Fatal("Expected remote ids")
	}
	if res.IDs.MediaID != "9001" || res.IDs.CampaignID != "c1" || res.IDs.AdGroupID != "g1" ||
		res.IDs.CreativeID != "cr1" || res.IDs.AdID != "a1" {
		t.Errorf("Unexpected ids: %+v", *res.IDs)
	}
	if got := gotCampaignForm["status"]; len(got) == 0 || got[0] != "PAUSED" {
		t.Errorf("Expected campaign created PAUSED, got %v", got)
	}
	if got := gotCampaignForm["objective"]; len(got) == 0 || got[0] != "OUTCOME_SALES" {
		t.Errorf("Expected OUTCOME_SALES objective, got %v", got)
	}
	if got := gotAdSetForm["daily_budget"]; len(got) == 0 || got[0] != "600" {
		t.Errorf("Expected daily_budget=600, got %v", got)
	}
	if media.releases != 1 {
		t.Errorf("Expected plaintext released after upload, got %d", media.releases)
	}
}

func TestMetaUploadStreamsVideoBody(t *testing.T) {
	payload := make([]byte, 8<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "spot.plain")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatal(err)
	}
	media := newFakeMedia()
	media.path = path
	media.info.Size = int64(len(payload))

	var uploadLen int64
	var contentLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/me/adaccounts":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "act_123"}}})
		case "/v19.0/act_123/advideos":
			contentLength = r.ContentLength
			mr, err := r.MultipartReader()
			if err != nil {
				t.Errorf("Expected multipart upload: %v", err)
				return
			}
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				if part.FormName() == "source" {
					n, _ := io.Copy(io.Discard, part)
					uploadLen = n
				}
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "9001"})
		case "/v19.0/act_123/campaigns":
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case "/v19.0/act_123/adsets":
			json.NewEncoder(w).Encode(map[string]string{"id": "g1"})
		case "/v19.0/act_123/adcreatives":
			json.NewEncoder(w).Encode(map[string]string{"id": "cr1"})
		case "/v19.0/act_123/ads":
			json.NewEncoder(w).Encode(map[string]string{"id": "a1"})
		}
	}))
	defer srv.Close()

	a := NewMetaAdapter(media, zap.NewNop(), observability.NewMockMetricsRegistry(), WithMetaBaseURL(srv.URL))
	res := a.Deploy(t.Context(), metaRequest())

	if !res.Success {
		t.Fatalf("Expected success, got %+v", res.Error)
	}
	if uploadLen != int64(len(payload)) {
		t.Errorf("Expected %d source bytes, got %d", len(payload), uploadLen)
	}
	// A pre-buffered body would carry a Content-Length; the streamed
	// pipe arrives chunked.
	if contentLength > 0 {
		t.Errorf("Expected a chunked upload, got Content-Length %d", contentLength)
	}
}

func TestMetaDeployFailureCarriesPartialIDs(t *testing.T) {
	media := writeTempVideo(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/me/adaccounts":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "act_123"}}})
		case "/v19.0/act_123/advideos":
			json.NewEncoder(w).Encode(map[string]string{"id": "9001"})
		case "/v19.0/act_123/campaigns":
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case "/v19.0/act_123/adsets":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "Invalid targeting", "type": "OAuthException", "code": 100},
			})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewMetaAdapter(media, zap.NewNop(), observability.NewMockMetricsRegistry(), WithMetaBaseURL(srv.URL))
	res := a.Deploy(t.Context(), metaRequest())

	if res.Success {
		t.Fatal("Expected failure")
	}
	if res.IDs == nil || res.IDs.CampaignID != "c1" || res.IDs.MediaID != "9001" {
		t.Errorf("Expected partial ids to survive the failure, got %+v", res.IDs)
	}
	if res.IDs.AdGroupID != "" {
		t.Errorf("Expected no ad group id, got %s", res.IDs.AdGroupID)
	}
	if res.Error == nil || res.Error.Kind != models.ErrKindPlatformAPI {
		t.Errorf("Expected platform_api error, got %+v", res.Error)
	}
	if res.Error.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", res.Error.StatusCode)
	}
}

func TestMetaDeployWithoutMediaUsesLinkCreative(t *testing.T) {
	var creativeSpec string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/me/adaccounts":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "act_123"}}})
		case "/v19.0/act_123/advideos":
			t.Error("Expected no video upload for a text-only campaign")
		case "/v19.0/act_123/campaigns":
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case "/v19.0/act_123/adsets":
			json.NewEncoder(w).Encode(map[string]string{"id": "g1"})
		case "/v19.0/act_123/adcreatives":
			r.ParseForm()
			creativeSpec = r.PostFormValue("object_story_spec")
			json.NewEncoder(w).Encode(map[string]string{"id": "cr1"})
		case "/v19.0/act_123/ads":
			json.NewEncoder(w).Encode(map[string]string{"id": "a1"})
		}
	}))
	defer srv.Close()

	req := metaRequest()
	req.MediaHandle = ""

	a := NewMetaAdapter(newFakeMedia(), zap.NewNop(), observability.NewMockMetricsRegistry(), WithMetaBaseURL(srv.URL))
	res := a.Deploy(t.Context(), req)

	if !res.Success {
		t.Fatalf("Expected success, got %+v", res.Error)
	}
	if res.IDs.MediaID != "" {
		t.Errorf("Expected no media id, got %s", res.IDs.MediaID)
	}
	var spec map[string]any
	if err := json.Unmarshal([]byte(creativeSpec), &spec); err != nil {
		t.Fatalf("Creative spec not valid JSON: %v", err)
	}
	if _, ok := spec["link_data"]; !ok {
		t.Errorf("Expected link_data creative, got %s", creativeSpec)
	}
}

func TestMetaDeployRejectsInvalidRequest(t *testing.T) {
	a := NewMetaAdapter(newFakeMedia(), zap.NewNop(), observability.NewMockMetricsRegistry())
	req := metaRequest()
	req.AccessToken = ""

	res := a.Deploy(t.Context(), req)
	if res.Success {
		t.Fatal("Expected validation failure")
	}
	if res.Error == nil || res.Error.Kind != models.ErrKindValidation {
		t.Errorf("Expected validation error, got %+v", res.Error)
	}
}
