package platform

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/platform/ratelimit"
)

// defaultClientTimeout bounds a single remote call. The orchestrator's
// per-platform deadline bounds the whole deployment.
const defaultClientTimeout = 60 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultClientTimeout}
}

// throttle paces an outbound call against the platform's token bucket,
// waiting for capacity rather than failing the step.
func throttle(ctx context.Context, limiter *ratelimit.PlatformLimiter, p models.Platform) error {
	if limiter == nil {
		return nil
	}
	for !limiter.Allow(p) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil
}

// drainAndClose consumes the rest of a response body so the connection
// can be reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
