package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"shelterhub.org/internal/shelter"
)

// pgxLikeConverter accepts values (e.g. int64 slices for any($n)) that the
// pgx driver supports but driver.DefaultParameterConverter rejects.
type pgxLikeConverter struct{}

func (pgxLikeConverter) ConvertValue(v any) (driver.Value, error) {
	if converted, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		return converted, nil
	}
	return driver.Value(v), nil
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(pgxLikeConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func animalRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "group_id", "name", "species", "breed", "age", "description", "image_ref",
		"status", "arrival_date", "last_status_change", "foster_start", "quarantine_start",
		"archived_at", "created_at", "updated_at",
	}).AddRow(int64(7), int64(1), "Rex", "dog", "", 4, "", "", "available", now, nil, nil, nil, nil, now, now)
}

func TestAnimalFind(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select (.+) from animals.*where id = \\$1 and deleted_at is null").
		WithArgs(int64(7)).
		WillReturnRows(animalRows())

	a, err := store.Animals().Find(context.Background(), 7)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if a.ID != 7 || a.Name != "Rex" || a.Status != "available" {
		t.Fatalf("unexpected animal: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAnimalFindNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select (.+) from animals").
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Animals().Find(context.Background(), 9)
	if !errors.Is(err, shelter.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAnimalUpdateBuildsDynamicSet(t *testing.T) {
	store, mock := newMock(t)

	status := "bite_quarantine"
	lsc := time.Now().UTC()
	qs := time.Now().UTC()
	upd := shelter.AnimalUpdate{
		Status:           &status,
		LastStatusChange: &lsc,
	}
	upd.QuarantineStart = shelter.TimestampChange{Apply: true, Value: &qs}
	upd.FosterStart = shelter.TimestampChange{Apply: true}

	mock.ExpectQuery(`update animals set status = \$1, last_status_change = \$2, foster_start = \$3, quarantine_start = \$4, updated_at = \$5.*where id = \$6 and deleted_at is null`).
		WithArgs(status, lsc, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7)).
		WillReturnRows(animalRows())

	if _, err := store.Animals().Update(context.Background(), 7, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAnimalBulkUpdate(t *testing.T) {
	store, mock := newMock(t)

	status := "archived"
	change := shelter.BulkChange{Status: &status}
	change.ArchivedAt = shelter.TimestampChange{Apply: true, Value: ptrTime(time.Now().UTC())}

	mock.ExpectExec(`update animals set status = \$1, archived_at = \$2, updated_at = \$3.*where id = any\(\$4\) and deleted_at is null`).
		WithArgs(status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Animals().BulkUpdate(context.Background(), []int64{1, 2, 3}, change)
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if n != 3 {
		t.Fatalf("affected = %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountInGroups(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`select count\(\*\).*from animals.*id = any\(\$1\) and group_id = any\(\$2\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.Animals().CountInGroups(context.Background(), []int64{1, 2, 3}, []int64{5})
	if err != nil {
		t.Fatalf("CountInGroups: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.Users().Create(context.Background(), &shelter.User{
		Email:        "dup@example.org",
		PasswordHash: "x",
		Status:       "active",
	})
	if !errors.Is(err, shelter.ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestMembershipSetUpserts(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(`insert into memberships.*on conflict \(user_id, group_id\) do update`).
		WithArgs("u1", int64(2), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Memberships().Set(context.Background(), shelter.Membership{
		UserID: "u1", GroupID: 2, IsGroupAdmin: true,
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTagEnsureReturnsExisting(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(`insert into tags.*on conflict \(name\) do update.*returning id, name`).
		WithArgs("senior").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(4), "senior"))

	tag, err := store.Tags().Ensure(context.Background(), "  Senior ")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if tag.ID != 4 || tag.Name != "senior" {
		t.Fatalf("unexpected tag: %+v", tag)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
