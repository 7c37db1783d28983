package projects

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fableworks/collab/pkg/capability"
)

// OwnerResolver answers "which principal owns this project". The session
// and share authorities depend on this and nothing else from the project
// store.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, projectID int64) (string, error)
}

// Store is the full project-data surface used by the guest gateway. All
// methods are scoped by an explicit project id.
type Store interface {
	OwnerResolver

	Summary(ctx context.Context, projectID int64) (*Summary, error)
	ListCharacters(ctx context.Context, projectID int64, f Filter) ([]Character, error)
	ListLocations(ctx context.Context, projectID int64, f Filter) ([]Location, error)
	ListScenes(ctx context.Context, projectID int64, f Filter) ([]Scene, error)
	GetScene(ctx context.Context, projectID, sceneID int64) (*Scene, error)
	CreateScene(ctx context.Context, projectID int64, in *SceneInput) (*Scene, error)
	UpdateScene(ctx context.Context, projectID, sceneID int64, in *SceneInput) (*Scene, error)
	DeleteScene(ctx context.Context, projectID, sceneID int64) error
}

// DBStore implements Store over PostgreSQL.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a database-backed project store.
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

// OwnerOf returns the owning principal id for a project.
func (s *DBStore) OwnerOf(ctx context.Context, projectID int64) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id FROM projects WHERE id = $1", projectID,
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", capability.Errorf(capability.KindNotFound, "project %d not found", projectID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up project owner: %w", err)
	}
	return ownerID, nil
}

// Summary returns the guest-safe subset of a project row.
func (s *DBStore) Summary(ctx context.Context, projectID int64) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, COALESCE(description, ''), created_at FROM projects WHERE id = $1",
		projectID,
	).Scan(&sum.ID, &sum.Title, &sum.Description, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "project %d not found", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project summary: %w", err)
	}
	return &sum, nil
}

// ListCharacters lists a project's characters.
func (s *DBStore) ListCharacters(ctx context.Context, projectID int64, f Filter) ([]Character, error) {
	f = f.Normalize()
	query := "SELECT id, project_id, name, COALESCE(bio, '') FROM characters WHERE project_id = $1"
	args := []interface{}{projectID}
	if f.NameContains != "" {
		query += " AND name ILIKE $2"
		args = append(args, "%"+f.NameContains+"%")
	}
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Bio); err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListLocations lists a project's locations.
func (s *DBStore) ListLocations(ctx context.Context, projectID int64, f Filter) ([]Location, error) {
	f = f.Normalize()
	query := "SELECT id, project_id, name, COALESCE(description, '') FROM locations WHERE project_id = $1"
	args := []interface{}{projectID}
	if f.NameContains != "" {
		query += " AND name ILIKE $2"
		args = append(args, "%"+f.NameContains+"%")
	}
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Description); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListScenes lists a project's scenes in reading order.
func (s *DBStore) ListScenes(ctx context.Context, projectID int64, f Filter) ([]Scene, error) {
	f = f.Normalize()
	query := "SELECT id, project_id, title, COALESCE(content, ''), position, updated_at FROM scenes WHERE project_id = $1"
	args := []interface{}{projectID}
	if f.NameContains != "" {
		query += " AND title ILIKE $2"
		args = append(args, "%"+f.NameContains+"%")
	}
	query += fmt.Sprintf(" ORDER BY position ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var out []Scene
	for rows.Next() {
		var sc Scene
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.Title, &sc.Content, &sc.Position, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GetScene fetches one scene; the project id is part of the key so a scene
// id from another project resolves to NotFound.
func (s *DBStore) GetScene(ctx context.Context, projectID, sceneID int64) (*Scene, error) {
	var sc Scene
	err := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, title, COALESCE(content, ''), position, updated_at FROM scenes WHERE project_id = $1 AND id = $2",
		projectID, sceneID,
	).Scan(&sc.ID, &sc.ProjectID, &sc.Title, &sc.Content, &sc.Position, &sc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}
	return &sc, nil
}

// CreateScene inserts a scene under the given project.
func (s *DBStore) CreateScene(ctx context.Context, projectID int64, in *SceneInput) (*Scene, error) {
	if in == nil || in.Title == "" {
		return nil, capability.NewError(capability.KindValidationInput, "scene title is required")
	}

	sc := &Scene{
		ProjectID: projectID,
		Title:     in.Title,
		Content:   in.Content,
		Position:  in.Position,
	}
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO scenes (project_id, title, content, position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING id, updated_at`,
		projectID, in.Title, in.Content, in.Position, now,
	).Scan(&sc.ID, &sc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create scene: %w", err)
	}
	return sc, nil
}

// UpdateScene rewrites a scene's guest-writable fields.
func (s *DBStore) UpdateScene(ctx context.Context, projectID, sceneID int64, in *SceneInput) (*Scene, error) {
	if in == nil || in.Title == "" {
		return nil, capability.NewError(capability.KindValidationInput, "scene title is required")
	}

	sc := &Scene{ID: sceneID, ProjectID: projectID, Title: in.Title, Content: in.Content, Position: in.Position}
	err := s.db.QueryRowContext(ctx,
		`UPDATE scenes SET title = $3, content = $4, position = $5, updated_at = $6
		 WHERE project_id = $1 AND id = $2
		 RETURNING updated_at`,
		projectID, sceneID, in.Title, in.Content, in.Position, time.Now().UTC(),
	).Scan(&sc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update scene: %w", err)
	}
	return sc, nil
}

// DeleteScene removes a scene from the given project.
func (s *DBStore) DeleteScene(ctx context.Context, projectID, sceneID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM scenes WHERE project_id = $1 AND id = $2", projectID, sceneID)
	if err != nil {
		return fmt.Errorf("failed to delete scene: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete scene: %w", err)
	}
	if affected == 0 {
		return capability.Errorf(capability.KindNotFound, "scene %d not found", sceneID)
	}
	return nil
}
