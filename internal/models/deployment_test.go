package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRequest() CampaignRequest {
	return CampaignRequest{
		Platform:       PlatformMeta,
		DailyBudget:    500,
		Objective:      ObjectiveSales,
		Headline:       "Summer Sale",
		DestinationURL: "https://example.com",
		AccessToken:    "tok",
	}
}

func TestCampaignRequestValidate(t *testing.T) {
	assert.NoError(t, validRequest().Validate())

	bad := validRequest()
	bad.Platform = "myspace"
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidRequest))

	bad = validRequest()
	bad.DailyBudget = 0
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidRequest))

	bad = validRequest()
	bad.AccessToken = ""
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidRequest))

	bad = validRequest()
	bad.DestinationURL = ""
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidRequest))
}

func TestDeriveStatus(t *testing.T) {
	ok := DeploymentResult{Platform: PlatformMeta, Success: true}
	bad := DeploymentResult{Platform: PlatformTikTok, Success: false}

	assert.Equal(t, StatusAllSucceeded, DeriveStatus([]DeploymentResult{ok, ok}))
	assert.Equal(t, StatusPartialSuccess, DeriveStatus([]DeploymentResult{ok, bad}))
	assert.Equal(t, StatusAllFailed, DeriveStatus([]DeploymentResult{bad}))
	assert.Equal(t, StatusAllFailed, DeriveStatus(nil))
}

func TestRemoteIDsEmpty(t *testing.T) {
	assert.True(t, RemoteIDs{}.Empty())
	assert.False(t, RemoteIDs{MediaID: "m1"}.Empty())
}

func TestBudgetSplitTotal(t *testing.T) {
	split := BudgetSplit{PlatformMeta: 600, PlatformGoogle: 100}
	assert.Equal(t, int64(700), split.Total())
}

func TestParseObjectiveDefaultsToReach(t *testing.T) {
	assert.Equal(t, ObjectiveSales, ParseObjective("sales"))
	assert.Equal(t, ObjectiveReach, ParseObjective(""))
	assert.Equal(t, ObjectiveReach, ParseObjective("world domination"))
}

func TestParseObjectiveIgnoresCase(t *testing.T) {
	assert.Equal(t, ObjectiveSales, ParseObjective("Sales"))
	assert.Equal(t, ObjectiveLeads, ParseObjective("LEADS"))
	assert.Equal(t, ObjectiveTraffic, ParseObjective(" Traffic "))
}

func TestAccessTokenNeverMarshalled(t *testing.T) {
	req := validRequest()
	req.AccessToken = "super-secret"
	out, err := json.Marshal(req)
	assert.NoError(t, err)
	assert.NotContains(t, string(out), "super-secret")
}
