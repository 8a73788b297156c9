package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a deployment failure for reporting. Values are
// stable strings so they can be aggregated downstream.
type ErrorKind string

const (
	ErrKindValidation   ErrorKind = "validation"
	ErrKindTransient    ErrorKind = "transient_network"
	ErrKindPlatformAPI  ErrorKind = "platform_api"
	ErrKindUploadFailed ErrorKind = "upload_failed"
	ErrKindEncryption   ErrorKind = "encryption"
	ErrKindStorage      ErrorKind = "storage"
	ErrKindCancelled    ErrorKind = "cancelled"
	ErrKindInternal     ErrorKind = "internal"
)

// CampaignRequest describes one platform's deployment. It is built by
// the orchestrator after budget allocation and never mutated afterwards.
type CampaignRequest struct {
	Platform       Platform  `json:"platform"`
	DailyBudget    int64     `json:"daily_budget"` // minor currency units
	Objective      Objective `json:"objective"`
	Headline       string    `json:"headline"`
	Body           string    `json:"body"`
	DestinationURL string    `json:"destination_url"`
	// MediaHandle is the opaque media store handle, empty when the
	// deployment is link/text only.
	MediaHandle string `json:"media_handle,omitempty"`
	// AccessToken is the caller's already-valid bearer credential for
	// this platform. Never logged.
	AccessToken string `json:"-"`
}

// Validate rejects requests that would fail on every platform before a
// single remote call is made.
func (r CampaignRequest) Validate() error {
	if !r.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, r.Platform)
	}
	if r.DailyBudget <= 0 {
		return fmt.Errorf("%w: daily budget must be positive, got %d", ErrInvalidRequest, r.DailyBudget)
	}
	if r.AccessToken == "" {
		return fmt.Errorf("%w: missing access token for %s", ErrInvalidRequest, r.Platform)
	}
	if r.DestinationURL == "" {
		return fmt.Errorf("%w: missing destination url", ErrInvalidRequest)
	}
	return nil
}

// ErrInvalidRequest marks request-shape failures caught before any
// remote call.
var ErrInvalidRequest = errors.New("invalid campaign request")

// RemoteIDs are the platform-native object ids created during a
// deployment. Platforms expose different subsets: TikTok folds the
// creative into ad creation, Google folds it into the ad group ad.
type RemoteIDs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	AdGroupID  string `json:"ad_group_id,omitempty"`
	CreativeID string `json:"creative_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`
	MediaID    string `json:"media_id,omitempty"`
}

// Empty reports whether no remote object was created.
func (ids RemoteIDs) Empty() bool {
	return ids == RemoteIDs{}
}

// ErrorDetail is the JSON-serializable failure attached to a
// DeploymentResult.
type ErrorDetail struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
}

// DeploymentResult is the outcome of one platform's deployment attempt.
// On failure IDs still carries everything created before the failing
// step so partial remote state can be cleaned up manually; this service
// reports, it does not roll back.
type DeploymentResult struct {
	Platform Platform     `json:"platform"`
	Success  bool         `json:"success"`
	IDs      *RemoteIDs   `json:"ids,omitempty"`
	Message  string       `json:"message"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// DropReason explains why a platform was excluded before its adapter ran.
type DropReason string

const (
	DropNotConnected DropReason = "not_connected"
	DropBelowMinimum DropReason = "below_minimum"
	DropDisabled     DropReason = "disabled"
)

// DroppedPlatform records a platform excluded during budget allocation.
type DroppedPlatform struct {
	Platform Platform   `json:"platform"`
	Reason   DropReason `json:"reason"`
}

// OverallStatus summarises a deployment run across all attempted
// platforms. Dropped platforms do not count toward the derivation.
type OverallStatus string

const (
	StatusAllSucceeded   OverallStatus = "all_succeeded"
	StatusPartialSuccess OverallStatus = "partial_success"
	StatusAllFailed      OverallStatus = "all_failed"
)

// BudgetStrategy records which split policy produced the budgets, so
// callers can observe the equal-split fallback firing.
type BudgetStrategy string

const (
	StrategyRecommended   BudgetStrategy = "recommended"
	StrategyEqualFallback BudgetStrategy = "equal_fallback"
)

// DeploymentReport aggregates every platform outcome for one run. It is
// returned to the caller and not persisted here.
type DeploymentReport struct {
	RunID          string             `json:"run_id"`
	OverallStatus  OverallStatus      `json:"overall_status"`
	BudgetStrategy BudgetStrategy     `json:"budget_strategy"`
	Results        []DeploymentResult `json:"results"`
	Dropped        []DroppedPlatform  `json:"dropped_platforms"`
}

// DeriveStatus computes the overall status from attempted results only.
func DeriveStatus(results []DeploymentResult) OverallStatus {
	succeeded := 0
	attempted := 0
	for _, r := range results {
		attempted++
		if r.Success {
			succeeded++
		}
	}
	switch {
	case attempted > 0 && succeeded == attempted:
		return StatusAllSucceeded
	case succeeded == 0:
		return StatusAllFailed
	default:
		return StatusPartialSuccess
	}
}

// BudgetSplit maps each surviving platform to its absolute daily budget
// in minor units. Invariant: the sum never exceeds the requested total.
type BudgetSplit map[Platform]int64

// Total returns the summed budget across all platforms in the split.
func (b BudgetSplit) Total() int64 {
	var sum int64
	for _, v := range b {
		sum += v
	}
	return sum
}
