package idmappings

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert(t *testing.T) {
	m := &models.IDMapping{
		OwnerID: "u-1", TempID: "tmp-1", EntityType: models.EntityPlayer,
		ServerID: "p-1", CreatedAt: time.UnixMicro(9),
	}
	q := `(?s)INSERT\s+INTO\s+id_mappings.*ON\s+CONFLICT\s+\(owner_id,\s*temp_id\)\s+DO\s+NOTHING`

	t.Run("inserted", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("u-1", "tmp-1", "player", "p-1", int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		if err := repo.Insert(context.Background(), m); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	})

	t.Run("already mapped", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("u-1", "tmp-1", "player", "p-1", int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		if err := repo.Insert(context.Background(), m); !errors.Is(err, common.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"owner_id", "temp_id", "entity_type", "server_id", "created_at"}).
		AddRow("u-1", "tmp-1", "player", "p-1", int64(9))
	mock.ExpectQuery(`FROM\s+id_mappings\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+temp_id\s*=\s*\$2`).
		WithArgs("u-1", "tmp-1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "u-1", "tmp-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ServerID != "p-1" || got.EntityType != models.EntityPlayer {
		t.Fatalf("unexpected mapping: %+v", got)
	}

	mock.ExpectQuery(`FROM\s+id_mappings`).WithArgs("u-1", "tmp-2").WillReturnError(sql.ErrNoRows)
	if _, err := repo.Get(context.Background(), "u-1", "tmp-2"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}
