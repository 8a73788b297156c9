// Package platform holds the per-platform deployment adapters. Each
// adapter translates a platform-agnostic campaign request into that
// platform's ordered sequence of remote calls and owns its upload
// protocol; everything above this package only sees DeploymentResults.
package platform

import (
	"context"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/models"
)

// Adapter is the uniform deployment contract. Deploy never returns an
// error: every failure is contained in the DeploymentResult so one
// platform's trouble cannot abort another's attempt.
type Adapter interface {
	Platform() models.Platform
	Deploy(ctx context.Context, req models.CampaignRequest) models.DeploymentResult
}

// MediaSource is the slice of the media store adapters need: decrypt a
// handle to a plaintext path for the duration of an upload, release it
// after, and read asset metadata for the wire protocol.
type MediaSource interface {
	Materialize(h mediastore.Handle) (string, error)
	Release(path string) error
	Metadata(h mediastore.Handle) (mediastore.AssetInfo, error)
}

// Registry maps platforms to their adapters.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a Registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for a platform, or nil when none is registered.
func (r *Registry) Get(p models.Platform) Adapter {
	return r.adapters[p]
}

// Platforms returns every registered platform.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// failure builds a failed DeploymentResult carrying whatever remote ids
// were created before the failing step.
func failure(p models.Platform, ids models.RemoteIDs, step string, err error) models.DeploymentResult {
	res := models.DeploymentResult{
		Platform: p,
		Success:  false,
		Message:  step + " failed",
		Error:    Detail(err),
	}
	if !ids.Empty() {
		res.IDs = &ids
	}
	return res
}
