package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fableworks/collab/pkg/capability"
)

// ErrDuplicateCode reports a unique-constraint collision on access_code.
// The authority retries generation on this error.
var ErrDuplicateCode = errors.New("access code already in use")

// Store is the persistence contract for session records. It holds no
// business logic: liveness, ownership, and terminality are the authority's
// concern.
type Store interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id int64) (*Session, error)
	GetByCode(ctx context.Context, code string) (*Session, error)
	ListByProject(ctx context.Context, projectID int64) ([]*Session, error)

	// SetExpiry updates expires_at (nil clears it).
	SetExpiry(ctx context.Context, id int64, expiresAt *time.Time) (*Session, error)

	// Revoke sets the tombstone if and only if the record is not already
	// revoked, then returns the current row. Calling it on a revoked record
	// leaves revoked_at untouched.
	Revoke(ctx context.Context, id int64, at time.Time) (*Session, error)
}

const sessionColumns = `id, project_id, owner_id, access_code,
	COALESCE(title, ''), COALESCE(description, ''),
	expires_at, max_participants,
	allow_guests, allow_edit, allow_delete, allow_add_scenes, allow_edit_scenes,
	is_revoked, revoked_at, created_at, updated_at`

// DBStore implements Store over PostgreSQL.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a database-backed session store.
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

// Create inserts a session row and fills ID and timestamps.
func (s *DBStore) Create(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO collab_sessions (
			project_id, owner_id, access_code, title, description,
			expires_at, max_participants,
			allow_guests, allow_edit, allow_delete, allow_add_scenes, allow_edit_scenes,
			is_revoked, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $13)
		RETURNING id`,
		sess.ProjectID, sess.OwnerID, sess.AccessCode, sess.Title, sess.Description,
		sess.ExpiresAt, sess.MaxParticipants,
		sess.AllowGuests, sess.AllowEdit, sess.AllowDelete, sess.AllowAddScenes, sess.AllowEditScenes,
		now,
	).Scan(&sess.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	sess.CreatedAt = now
	sess.UpdatedAt = now
	return nil
}

// GetByID fetches a session by id.
func (s *DBStore) GetByID(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM collab_sessions WHERE id = $1", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "session %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// GetByCode fetches a session by its opaque access code.
func (s *DBStore) GetByCode(ctx context.Context, code string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM collab_sessions WHERE access_code = $1", code)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, capability.NewError(capability.KindNotFound, "no session for code")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by code: %w", err)
	}
	return sess, nil
}

// ListByProject lists all sessions (live and revoked) for a project,
// newest first. Revoked rows stay listed: they are audit history.
func (s *DBStore) ListByProject(ctx context.Context, projectID int64) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM collab_sessions WHERE project_id = $1 ORDER BY created_at DESC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SetExpiry updates expires_at; nil clears it.
func (s *DBStore) SetExpiry(ctx context.Context, id int64, expiresAt *time.Time) (*Session, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE collab_sessions SET expires_at = $2, updated_at = $3 WHERE id = $1",
		id, expiresAt, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to set expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to set expiry: %w", err)
	}
	if affected == 0 {
		return nil, capability.Errorf(capability.KindNotFound, "session %d not found", id)
	}
	return s.GetByID(ctx, id)
}

// Revoke sets the tombstone once. The guard on is_revoked keeps a second
// call from moving revoked_at.
func (s *DBStore) Revoke(ctx context.Context, id int64, at time.Time) (*Session, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE collab_sessions SET is_revoked = TRUE, revoked_at = $2, updated_at = $2
		 WHERE id = $1 AND is_revoked = FALSE`,
		id, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke session: %w", err)
	}
	return s.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.ProjectID, &sess.OwnerID, &sess.AccessCode,
		&sess.Title, &sess.Description,
		&sess.ExpiresAt, &sess.MaxParticipants,
		&sess.AllowGuests, &sess.AllowEdit, &sess.AllowDelete, &sess.AllowAddScenes, &sess.AllowEditScenes,
		&sess.IsRevoked, &sess.RevokedAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
