package guest

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/projects"
)

// summaryCacheSize bounds the shared summary cache. Summaries are tiny;
// this is a working-set bound, not a memory concern.
const summaryCacheSize = 1024

// SummaryCache is a process-wide LRU over project summaries, shared by
// all readers. Summaries change rarely and every guest entry point
// fetches one.
type SummaryCache struct {
	cache *lru.Cache[int64, *projects.Summary]
}

// NewSummaryCache creates the shared summary cache.
func NewSummaryCache() (*SummaryCache, error) {
	cache, err := lru.New[int64, *projects.Summary](summaryCacheSize)
	if err != nil {
		return nil, err
	}
	return &SummaryCache{cache: cache}, nil
}

// Invalidate drops a project's cached summary.
func (c *SummaryCache) Invalidate(projectID int64) {
	if c != nil {
		c.cache.Remove(projectID)
	}
}

// ProjectReader is the guest's entire view of project data. It is bound
// to one grant at construction: every query runs against the grant's
// project id and there is no method that accepts another.
type ProjectReader struct {
	grant *capability.AccessGrant
	store projects.Store
	cache *SummaryCache
}

// NewProjectReader binds a reader to a grant. cache may be nil.
func NewProjectReader(grant *capability.AccessGrant, store projects.Store, cache *SummaryCache) *ProjectReader {
	return &ProjectReader{
		grant: grant,
		store: store,
		cache: cache,
	}
}

func (r *ProjectReader) allow(op capability.Operation) error {
	if !r.grant.Allows(op) {
		return capability.Errorf(capability.KindForbidden, "operation %s is not permitted", op)
	}
	return nil
}

// Summary returns the guest-safe project summary.
func (r *ProjectReader) Summary(ctx context.Context) (*projects.Summary, error) {
	if err := r.allow(capability.OpView); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if sum, ok := r.cache.cache.Get(r.grant.ProjectID); ok {
			return sum, nil
		}
	}

	sum, err := r.store.Summary(ctx, r.grant.ProjectID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.cache.Add(r.grant.ProjectID, sum)
	}
	return sum, nil
}

// Characters lists the project's characters.
func (r *ProjectReader) Characters(ctx context.Context, f projects.Filter) ([]projects.Character, error) {
	if err := r.allow(capability.OpView); err != nil {
		return nil, err
	}
	return r.store.ListCharacters(ctx, r.grant.ProjectID, f)
}

// Locations lists the project's locations.
func (r *ProjectReader) Locations(ctx context.Context, f projects.Filter) ([]projects.Location, error) {
	if err := r.allow(capability.OpView); err != nil {
		return nil, err
	}
	return r.store.ListLocations(ctx, r.grant.ProjectID, f)
}

// Scenes lists the project's scenes in reading order.
func (r *ProjectReader) Scenes(ctx context.Context, f projects.Filter) ([]projects.Scene, error) {
	if err := r.allow(capability.OpView); err != nil {
		return nil, err
	}
	return r.store.ListScenes(ctx, r.grant.ProjectID, f)
}

// Scene fetches one scene. A scene id belonging to another project comes
// back NotFound because project id is part of the store key.
func (r *ProjectReader) Scene(ctx context.Context, sceneID int64) (*projects.Scene, error) {
	if err := r.allow(capability.OpView); err != nil {
		return nil, err
	}
	return r.store.GetScene(ctx, r.grant.ProjectID, sceneID)
}

// CreateScene adds a scene when the grant allows it.
func (r *ProjectReader) CreateScene(ctx context.Context, in *projects.SceneInput) (*projects.Scene, error) {
	if err := r.allow(capability.OpAddScene); err != nil {
		return nil, err
	}
	return r.store.CreateScene(ctx, r.grant.ProjectID, in)
}

// UpdateScene rewrites a scene when the grant allows it.
func (r *ProjectReader) UpdateScene(ctx context.Context, sceneID int64, in *projects.SceneInput) (*projects.Scene, error) {
	if err := r.allow(capability.OpEditScene); err != nil {
		return nil, err
	}
	return r.store.UpdateScene(ctx, r.grant.ProjectID, sceneID, in)
}

// DeleteScene removes a scene when the grant allows it.
func (r *ProjectReader) DeleteScene(ctx context.Context, sceneID int64) error {
	if err := r.allow(capability.OpDelete); err != nil {
		return err
	}
	return r.store.DeleteScene(ctx, r.grant.ProjectID, sceneID)
}
