package projects

import "time"

// ResourceKind names a guest-readable project sub-resource.
type ResourceKind string

const (
	ResourceSummary    ResourceKind = "summary"
	ResourceCharacters ResourceKind = "characters"
	ResourceLocations  ResourceKind = "locations"
	ResourceScenes     ResourceKind = "scenes"
)

// ValidResourceKind reports whether k names a known sub-resource.
func ValidResourceKind(k ResourceKind) bool {
	switch k {
	case ResourceSummary, ResourceCharacters, ResourceLocations, ResourceScenes:
		return true
	}
	return false
}

// Summary is the safe field subset of a project exposed to guests. No
// owner, billing, or vendor fields.
type Summary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Character is a project character visible to guests.
type Character struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
}

// Location is a project location visible to guests.
type Location struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Scene is a project scene; the one sub-resource guests may also write.
type Scene struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SceneInput carries guest-writable scene fields.
type SceneInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// Filter narrows a sub-resource listing. It intentionally has no project
// field; the project id is always an explicit store parameter.
type Filter struct {
	NameContains string
	Limit        int
	Offset       int
}

// Normalize applies the default page size and cap.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
