package shares

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/collab/pkg/capability"
)

var shareTestColumns = []string{
	"id", "project_id", "owner_id", "share_key", "label",
	"deadline", "requires_approval", "permissions",
	"is_revoked", "revoked_at", "created_at", "updated_at",
}

func shareRow(id int64, key string, tags string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(shareTestColumns).AddRow(
		id, int64(7), "owner-1", key, "beta readers",
		nil, false, tags,
		false, nil, now, now,
	)
}

func TestDBStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDBStore(db)

	mock.ExpectQuery("INSERT INTO collab_shares").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	share := &Share{
		ProjectID:   7,
		OwnerID:     "owner-1",
		ShareKey:    "share_test",
		Permissions: capability.TagSet{capability.TagView, capability.TagComment},
	}
	require.NoError(t, store.Create(context.Background(), share))
	assert.Equal(t, int64(5), share.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Create_DuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDBStore(db)

	mock.ExpectQuery("INSERT INTO collab_shares").
		WillReturnError(&pq.Error{Code: "23505"})

	err = store.Create(context.Background(), &Share{ProjectID: 7, OwnerID: "owner-1", ShareKey: "share_dup"})
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_GetByKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDBStore(db)

	t.Run("found with tags", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM collab_shares WHERE share_key").
			WithArgs("share_abc").
			WillReturnRows(shareRow(5, "share_abc", "{view,edit}"))

		share, err := store.GetByKey(context.Background(), "share_abc")
		require.NoError(t, err)
		assert.Equal(t, capability.TagSet{capability.TagView, capability.TagEdit}, share.Permissions)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM collab_shares WHERE share_key").
			WithArgs("share_missing").
			WillReturnRows(sqlmock.NewRows(shareTestColumns))

		_, err := store.GetByKey(context.Background(), "share_missing")
		assert.True(t, capability.IsKind(err, capability.KindNotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Revoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDBStore(db)

	now := time.Now().UTC()
	revokedRow := sqlmock.NewRows(shareTestColumns).AddRow(
		int64(5), int64(7), "owner-1", "share_abc", "",
		nil, false, "{view}",
		true, now, now, now,
	)

	mock.ExpectExec("UPDATE collab_shares SET is_revoked = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM collab_shares WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(revokedRow)

	share, err := store.Revoke(context.Background(), 5, now)
	require.NoError(t, err)
	assert.True(t, share.IsRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Admissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDBStore(db)

	t.Run("create admission", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO collab_admissions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

		adm := &Admission{ShareID: 5, GuestName: "alex"}
		require.NoError(t, store.CreateAdmission(context.Background(), adm))
		assert.Equal(t, int64(3), adm.ID)
		assert.Equal(t, AdmissionPending, adm.Status)
	})

	t.Run("decide guards on pending", func(t *testing.T) {
		mock.ExpectExec("UPDATE collab_admissions SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))

		decided, err := store.DecideAdmission(context.Background(), 3, AdmissionApproved, time.Now())
		require.NoError(t, err)
		assert.False(t, decided, "decided admission must not be re-decided")
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
