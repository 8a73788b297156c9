package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
)

// APIError is a failure response from a platform API. Retryable is
// derived from the status-code class: 5xx and 429 are transient, other
// 4xx are permanent (auth/validation) and must not be retried.
type APIError struct {
	Platform   models.Platform
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api: http %d [%s] %s", e.Platform, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api: http %d %s", e.Platform, e.StatusCode, e.Message)
}

// NewAPIError builds an APIError with retryability derived from the
// status code.
func NewAPIError(platform models.Platform, statusCode int, code, message string) *APIError {
	return &APIError{
		Platform:   platform,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Retryable:  statusCode >= http.StatusInternalServerError || statusCode == http.StatusTooManyRequests,
	}
}

// UploadFailedError is raised when the shared upload policy exhausts
// its retry budget.
type UploadFailedError struct {
	Platform models.Platform
	Attempts int
	LastErr  error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("%s upload failed after %d attempts: %v", e.Platform, e.Attempts, e.LastErr)
}

func (e *UploadFailedError) Unwrap() error { return e.LastErr }

// IsRetryable reports whether err is a transient failure worth another
// attempt: network errors, timeouts, and retryable API responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// caller gave up; retrying would outlive the deadline anyway
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Detail converts any adapter error into the JSON-serializable shape
// attached to a DeploymentResult.
func Detail(err error) *models.ErrorDetail {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		kind := models.ErrKindPlatformAPI
		if apiErr.Retryable {
			kind = models.ErrKindTransient
		}
		return &models.ErrorDetail{Kind: kind, Message: apiErr.Error(), StatusCode: apiErr.StatusCode}
	}
	var upErr *UploadFailedError
	if errors.As(err, &upErr) {
		detail := &models.ErrorDetail{Kind: models.ErrKindUploadFailed, Message: upErr.Error()}
		var lastAPI *APIError
		if errors.As(upErr.LastErr, &lastAPI) {
			detail.StatusCode = lastAPI.StatusCode
		}
		return detail
	}
	var encErr *mediastore.EncryptionError
	if errors.As(err, &encErr) {
		return &models.ErrorDetail{Kind: models.ErrKindEncryption, Message: err.Error()}
	}
	var storErr *mediastore.StorageError
	if errors.As(err, &storErr) || errors.Is(err, mediastore.ErrUnknownHandle) {
		return &models.ErrorDetail{Kind: models.ErrKindStorage, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &models.ErrorDetail{Kind: models.ErrKindCancelled, Message: err.Error()}
	}
	if errors.Is(err, models.ErrInvalidRequest) {
		return &models.ErrorDetail{Kind: models.ErrKindValidation, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &models.ErrorDetail{Kind: models.ErrKindTransient, Message: err.Error()}
	}
	return &models.ErrorDetail{Kind: models.ErrKindInternal, Message: err.Error()}
}
