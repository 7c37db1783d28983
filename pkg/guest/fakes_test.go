package guest

import (
	"context"
	"time"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/projects"
	"github.com/fableworks/collab/pkg/sessions"
	"github.com/fableworks/collab/pkg/shares"
)

// fakeOwners resolves project ownership from a fixed map.
type fakeOwners map[int64]string

func (f fakeOwners) OwnerOf(_ context.Context, projectID int64) (string, error) {
	owner, ok := f[projectID]
	if !ok {
		return "", capability.Errorf(capability.KindNotFound, "project %d not found", projectID)
	}
	return owner, nil
}

// fakeSessionStore is a minimal in-memory sessions.Store.
type fakeSessionStore struct {
	byID   map[int64]*sessions.Session
	byCode map[string]*sessions.Session
	nextID int64
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		byID:   make(map[int64]*sessions.Session),
		byCode: make(map[string]*sessions.Session),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, s *sessions.Session) error {
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.byID[s.ID] = &cp
	f.byCode[s.AccessCode] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id int64) (*sessions.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "session %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetByCode(_ context.Context, code string) (*sessions.Session, error) {
	s, ok := f.byCode[code]
	if !ok {
		return nil, capability.NewError(capability.KindNotFound, "no session for code")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) ListByProject(_ context.Context, projectID int64) ([]*sessions.Session, error) {
	var out []*sessions.Session
	for _, s := range f.byID {
		if s.ProjectID == projectID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) SetExpiry(_ context.Context, id int64, expiresAt *time.Time) (*sessions.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "session %d not found", id)
	}
	s.ExpiresAt = expiresAt
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Revoke(_ context.Context, id int64, at time.Time) (*sessions.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "session %d not found", id)
	}
	if !s.IsRevoked {
		s.IsRevoked = true
		t := at.UTC()
		s.RevokedAt = &t
	}
	cp := *s
	return &cp, nil
}

var _ sessions.Store = (*fakeSessionStore)(nil)

// fakeShareStore is a minimal in-memory shares.Store.
type fakeShareStore struct {
	byID       map[int64]*shares.Share
	byKey      map[string]*shares.Share
	admissions map[int64]*shares.Admission
	nextShare  int64
	nextAdm    int64
}

func newFakeShareStore() *fakeShareStore {
	return &fakeShareStore{
		byID:       make(map[int64]*shares.Share),
		byKey:      make(map[string]*shares.Share),
		admissions: make(map[int64]*shares.Admission),
	}
}

func (f *fakeShareStore) Create(_ context.Context, s *shares.Share) error {
	f.nextShare++
	s.ID = f.nextShare
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.byID[s.ID] = &cp
	f.byKey[s.ShareKey] = &cp
	return nil
}

func (f *fakeShareStore) GetByID(_ context.Context, id int64) (*shares.Share, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "share %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShareStore) GetByKey(_ context.Context, key string) (*shares.Share, error) {
	s, ok := f.byKey[key]
	if !ok {
		return nil, capability.NewError(capability.KindNotFound, "no share for key")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShareStore) ListByProject(_ context.Context, projectID int64) ([]*shares.Share, error) {
	var out []*shares.Share
	for _, s := range f.byID {
		if s.ProjectID == projectID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeShareStore) Revoke(_ context.Context, id int64, at time.Time) (*shares.Share, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "share %d not found", id)
	}
	if !s.IsRevoked {
		s.IsRevoked = true
		t := at.UTC()
		s.RevokedAt = &t
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShareStore) CreateAdmission(_ context.Context, a *shares.Admission) error {
	f.nextAdm++
	a.ID = f.nextAdm
	a.Status = shares.AdmissionPending
	a.RequestedAt = time.Now().UTC()
	cp := *a
	f.admissions[a.ID] = &cp
	return nil
}

func (f *fakeShareStore) GetAdmission(_ context.Context, id int64) (*shares.Admission, error) {
	a, ok := f.admissions[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "admission %d not found", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeShareStore) ListAdmissions(_ context.Context, shareID int64) ([]*shares.Admission, error) {
	var out []*shares.Admission
	for _, a := range f.admissions {
		if a.ShareID == shareID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeShareStore) DecideAdmission(_ context.Context, id int64, status shares.AdmissionStatus, at time.Time) (bool, error) {
	a, ok := f.admissions[id]
	if !ok || a.Status != shares.AdmissionPending {
		return false, nil
	}
	a.Status = status
	t := at.UTC()
	a.DecidedAt = &t
	return true, nil
}

var _ shares.Store = (*fakeShareStore)(nil)

// fakeProjectStore serves fixed data for two projects so cross-project
// scoping can be asserted.
type fakeProjectStore struct {
	owners     fakeOwners
	summaries  map[int64]*projects.Summary
	characters map[int64][]projects.Character
	scenes     map[int64][]projects.Scene
	nextScene  int64

	summaryCalls int
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{
		owners: fakeOwners{7: "owner-1", 8: "owner-2"},
		summaries: map[int64]*projects.Summary{
			7: {ID: 7, Title: "Northern Saga", CreatedAt: time.Now().UTC()},
			8: {ID: 8, Title: "Other Book", CreatedAt: time.Now().UTC()},
		},
		characters: map[int64][]projects.Character{
			7: {{ID: 1, ProjectID: 7, Name: "Astrid"}},
			8: {{ID: 2, ProjectID: 8, Name: "Bram"}},
		},
		scenes: map[int64][]projects.Scene{
			7: {{ID: 10, ProjectID: 7, Title: "Opening", Position: 1}},
			8: {{ID: 20, ProjectID: 8, Title: "Elsewhere", Position: 1}},
		},
		nextScene: 100,
	}
}

func (f *fakeProjectStore) OwnerOf(ctx context.Context, projectID int64) (string, error) {
	return f.owners.OwnerOf(ctx, projectID)
}

func (f *fakeProjectStore) Summary(_ context.Context, projectID int64) (*projects.Summary, error) {
	f.summaryCalls++
	sum, ok := f.summaries[projectID]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "project %d not found", projectID)
	}
	cp := *sum
	return &cp, nil
}

func (f *fakeProjectStore) ListCharacters(_ context.Context, projectID int64, _ projects.Filter) ([]projects.Character, error) {
	return f.characters[projectID], nil
}

func (f *fakeProjectStore) ListLocations(_ context.Context, projectID int64, _ projects.Filter) ([]projects.Location, error) {
	return nil, nil
}

func (f *fakeProjectStore) ListScenes(_ context.Context, projectID int64, _ projects.Filter) ([]projects.Scene, error) {
	return f.scenes[projectID], nil
}

func (f *fakeProjectStore) GetScene(_ context.Context, projectID, sceneID int64) (*projects.Scene, error) {
	for _, sc := range f.scenes[projectID] {
		if sc.ID == sceneID {
			cp := sc
			return &cp, nil
		}
	}
	return nil, capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
}

func (f *fakeProjectStore) CreateScene(_ context.Context, projectID int64, in *projects.SceneInput) (*projects.Scene, error) {
	if in == nil || in.Title == "" {
		return nil, capability.NewError(capability.KindValidationInput, "scene title is required")
	}
	f.nextScene++
	sc := projects.Scene{
		ID:        f.nextScene,
		ProjectID: projectID,
		Title:     in.Title,
		Content:   in.Content,
		Position:  in.Position,
		UpdatedAt: time.Now().UTC(),
	}
	f.scenes[projectID] = append(f.scenes[projectID], sc)
	return &sc, nil
}

func (f *fakeProjectStore) UpdateScene(_ context.Context, projectID, sceneID int64, in *projects.SceneInput) (*projects.Scene, error) {
	list := f.scenes[projectID]
	for i, sc := range list {
		if sc.ID == sceneID {
			list[i].Title = in.Title
			list[i].Content = in.Content
			list[i].Position = in.Position
			list[i].UpdatedAt = time.Now().UTC()
			cp := list[i]
			return &cp, nil
		}
	}
	return nil, capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
}

func (f *fakeProjectStore) DeleteScene(_ context.Context, projectID, sceneID int64) error {
	list := f.scenes[projectID]
	for i, sc := range list {
		if sc.ID == sceneID {
			f.scenes[projectID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
}

var _ projects.Store = (*fakeProjectStore)(nil)
