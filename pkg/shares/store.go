package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fableworks/collab/pkg/capability"
)

// ErrDuplicateKey reports a unique-constraint collision on share_key.
var ErrDuplicateKey = errors.New("share key already in use")

// Store is the persistence contract for shares and their admissions.
type Store interface {
	Create(ctx context.Context, s *Share) error
	GetByID(ctx context.Context, id int64) (*Share, error)
	GetByKey(ctx context.Context, key string) (*Share, error)
	ListByProject(ctx context.Context, projectID int64) ([]*Share, error)

	// Revoke sets the tombstone if and only if the record is not already
	// revoked, then returns the current row.
	Revoke(ctx context.Context, id int64, at time.Time) (*Share, error)

	CreateAdmission(ctx context.Context, a *Admission) error
	GetAdmission(ctx context.Context, id int64) (*Admission, error)
	ListAdmissions(ctx context.Context, shareID int64) ([]*Admission, error)

	// DecideAdmission moves a pending admission to approved or rejected.
	// It reports false when the admission was not pending, leaving the
	// stored decision untouched.
	DecideAdmission(ctx context.Context, id int64, status AdmissionStatus, at time.Time) (bool, error)
}

const shareColumns = `id, project_id, owner_id, share_key, COALESCE(label, ''),
	deadline, requires_approval, permissions,
	is_revoked, revoked_at, created_at, updated_at`

// DBStore implements Store over PostgreSQL. Permission tags are stored
// as a text array.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a database-backed share store.
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

// Create inserts a share row and fills ID and timestamps.
func (s *DBStore) Create(ctx context.Context, sh *Share) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO collab_shares (
			project_id, owner_id, share_key, label,
			deadline, requires_approval, permissions,
			is_revoked, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
		RETURNING id`,
		sh.ProjectID, sh.OwnerID, sh.ShareKey, sh.Label,
		sh.Deadline, sh.RequiresApproval, pq.Array(tagsToStrings(sh.Permissions)),
		now,
	).Scan(&sh.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}

	sh.CreatedAt = now
	sh.UpdatedAt = now
	return nil
}

// GetByID fetches a share by id.
func (s *DBStore) GetByID(ctx context.Context, id int64) (*Share, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM collab_shares WHERE id = $1", id)
	sh, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "share %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return sh, nil
}

// GetByKey fetches a share by its opaque key.
func (s *DBStore) GetByKey(ctx context.Context, key string) (*Share, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM collab_shares WHERE share_key = $1", key)
	sh, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, capability.NewError(capability.KindNotFound, "no share for key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share by key: %w", err)
	}
	return sh, nil
}

// ListByProject lists all shares for a project, newest first. Revoked
// rows stay listed for the owner.
func (s *DBStore) ListByProject(ctx context.Context, projectID int64) ([]*Share, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM collab_shares WHERE project_id = $1 ORDER BY created_at DESC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var out []*Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// Revoke sets the tombstone once, guarded on is_revoked.
func (s *DBStore) Revoke(ctx context.Context, id int64, at time.Time) (*Share, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE collab_shares SET is_revoked = TRUE, revoked_at = $2, updated_at = $2
		 WHERE id = $1 AND is_revoked = FALSE`,
		id, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke share: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateAdmission inserts a pending admission row.
func (s *DBStore) CreateAdmission(ctx context.Context, a *Admission) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO collab_admissions (share_id, guest_name, status, requested_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.ShareID, a.GuestName, AdmissionPending, now,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create admission: %w", err)
	}
	a.Status = AdmissionPending
	a.RequestedAt = now
	return nil
}

// GetAdmission fetches an admission by id.
func (s *DBStore) GetAdmission(ctx context.Context, id int64) (*Admission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, share_id, guest_name, status, requested_at, decided_at
		 FROM collab_admissions WHERE id = $1`, id)
	a, err := scanAdmission(row)
	if err == sql.ErrNoRows {
		return nil, capability.Errorf(capability.KindNotFound, "admission %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", err)
	}
	return a, nil
}

// ListAdmissions lists a share's admissions, oldest first so the owner
// reviews them in arrival order.
func (s *DBStore) ListAdmissions(ctx context.Context, shareID int64) ([]*Admission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, share_id, guest_name, status, requested_at, decided_at
		 FROM collab_admissions WHERE share_id = $1 ORDER BY requested_at ASC`,
		shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admissions: %w", err)
	}
	defer rows.Close()

	var out []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admission: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DecideAdmission records a decision, guarded on pending status.
func (s *DBStore) DecideAdmission(ctx context.Context, id int64, status AdmissionStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collab_admissions SET status = $2, decided_at = $3
		 WHERE id = $1 AND status = $4`,
		id, status, at.UTC(), AdmissionPending)
	if err != nil {
		return false, fmt.Errorf("failed to decide admission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to decide admission: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShare(row rowScanner) (*Share, error) {
	var sh Share
	var tags pq.StringArray
	err := row.Scan(
		&sh.ID, &sh.ProjectID, &sh.OwnerID, &sh.ShareKey, &sh.Label,
		&sh.Deadline, &sh.RequiresApproval, &tags,
		&sh.IsRevoked, &sh.RevokedAt, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sh.Permissions = stringsToTags(tags)
	return &sh, nil
}

func scanAdmission(row rowScanner) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.ShareID, &a.GuestName, &a.Status, &a.RequestedAt, &a.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func tagsToStrings(tags capability.TagSet) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func stringsToTags(strs []string) capability.TagSet {
	out := make(capability.TagSet, len(strs))
	for i, s := range strs {
		out[i] = capability.Tag(s)
	}
	return out
}
