package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
)

// uploadAttempts and uploadBackoff are fixed policy, not caller
// configuration: unbounded retry against paid ad-platform APIs is a
// cost and availability risk. uploadBackoff is a var only so tests can
// shorten the wait.
const uploadAttempts = 3

var uploadBackoff = 2 * time.Second

// uploadFunc performs one platform-specific upload attempt from the
// plaintext file at path and returns the platform-native media id.
type uploadFunc func(ctx context.Context, path string, info mediastore.AssetInfo) (string, error)

// uploadWithRetry materializes the asset, runs fn with up to three
// attempts and exponential backoff on transient failures, and always
// releases the plaintext copy. Non-transient failures (4xx) abort
// immediately. Exhausting the budget yields an UploadFailedError.
func uploadWithRetry(ctx context.Context, p models.Platform, media MediaSource, handle mediastore.Handle, fn uploadFunc, logger *zap.Logger, metrics observability.MetricsRegistry) (string, error) {
	info, err := media.Metadata(handle)
	if err != nil {
		return "", err
	}
	path, err := media.Materialize(handle)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := media.Release(path); err != nil {
			logger.Warn("release plaintext copy", zap.String("platform", string(p)), zap.Error(err))
		}
	}()

	backoff := uploadBackoff
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		mediaID, err := fn(ctx, path, info)
		if err == nil {
			metrics.IncrementUploadAttempts(string(p), "success")
			return mediaID, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			metrics.IncrementUploadAttempts(string(p), "permanent")
			return "", err
		}
		metrics.IncrementUploadAttempts(string(p), "transient")
		if attempt == uploadAttempts {
			break
		}

		logger.Warn("transient upload failure, backing off",
			zap.String("platform", string(p)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return "", &UploadFailedError{Platform: p, Attempts: uploadAttempts, LastErr: lastErr}
}
