// Package pg implements the shelter store on PostgreSQL via database/sql
// with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shelterhub.org/internal/ids"
	"shelterhub.org/internal/shelter"
)

const uniqueViolation = "23505"

// Store implements shelter.Store.
type Store struct {
	db *sql.DB
}

// New wraps the given connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Animals() shelter.AnimalStore         { return &animals{db: s.db} }
func (s *Store) Groups() shelter.GroupStore           { return &groups{db: s.db} }
func (s *Store) Memberships() shelter.MembershipStore { return &memberships{db: s.db} }
func (s *Store) Users() shelter.UserStore             { return &users{db: s.db} }
func (s *Store) Comments() shelter.CommentStore       { return &comments{db: s.db} }
func (s *Store) Tags() shelter.TagStore               { return &tags{db: s.db} }

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return shelter.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shelter.ErrInvalidRequest
	}
	return err
}

// Animals ---------------------------------------------------------------------

type animals struct {
	db *sql.DB
}

const animalColumns = `id, group_id, name, species, breed, age, description, image_ref,
	status, arrival_date, last_status_change, foster_start, quarantine_start,
	archived_at, created_at, updated_at`

func (s *animals) Create(ctx context.Context, a *shelter.Animal) error {
	row := s.db.QueryRowContext(ctx, `
		insert into animals (group_id, name, species, breed, age, description, image_ref, status, arrival_date)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning id, created_at, updated_at`,
		a.GroupID, a.Name, a.Species, a.Breed, a.Age, a.Description, a.ImageRef, a.Status, a.ArrivalDate)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *animals) Find(ctx context.Context, id int64) (*shelter.Animal, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+animalColumns+`
		from animals
		where id = $1 and deleted_at is null`, id)
	return scanAnimal(row)
}

func (s *animals) ListByGroups(ctx context.Context, groupIDs []int64, filter shelter.AnimalFilter) ([]*shelter.Animal, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	query := `
		select ` + animalColumns + `
		from animals
		where deleted_at is null and group_id = any($1)`
	args := []any{groupIDs}
	query, args = applyAnimalFilter(query, args, filter)
	return s.list(ctx, query+" order by id", args...)
}

func (s *animals) ListAll(ctx context.Context, filter shelter.AnimalFilter) ([]*shelter.Animal, error) {
	query := `
		select ` + animalColumns + `
		from animals
		where deleted_at is null`
	var args []any
	query, args = applyAnimalFilter(query, args, filter)
	return s.list(ctx, query+" order by id", args...)
}

func applyAnimalFilter(query string, args []any, filter shelter.AnimalFilter) (string, []any) {
	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		query += fmt.Sprintf(" and group_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" and status = $%d", len(args))
	}
	return query, args
}

func (s *animals) list(ctx context.Context, query string, args ...any) ([]*shelter.Animal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var res []*shelter.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *animals) Update(ctx context.Context, id int64, upd shelter.AnimalUpdate) (*shelter.Animal, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Species != nil {
		set("species", *upd.Species)
	}
	if upd.Breed != nil {
		set("breed", *upd.Breed)
	}
	if upd.Age != nil {
		set("age", *upd.Age)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.ImageRef != nil {
		set("image_ref", *upd.ImageRef)
	}
	if upd.GroupID != nil {
		set("group_id", *upd.GroupID)
	}
	if upd.ArrivalDate != nil {
		set("arrival_date", *upd.ArrivalDate)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.LastStatusChange != nil {
		set("last_status_change", *upd.LastStatusChange)
	}
	if upd.FosterStart.Apply {
		set("foster_start", upd.FosterStart.Value)
	}
	if upd.QuarantineStart.Apply {
		set("quarantine_start", upd.QuarantineStart.Value)
	}
	if upd.ArchivedAt.Apply {
		set("archived_at", upd.ArchivedAt.Value)
	}
	if len(sets) == 0 {
		return nil, shelter.ErrInvalidRequest
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`
		update animals set %s
		where id = $%d and deleted_at is null
		returning %s`, strings.Join(sets, ", "), len(args), animalColumns)
	return scanAnimal(s.db.QueryRowContext(ctx, query, args...))
}

func (s *animals) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		update animals set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null`, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shelter.ErrNotFound
	}
	return nil
}

func (s *animals) CountInGroups(ctx context.Context, animalIDs []int64, groupIDs []int64) (int, error) {
	if len(animalIDs) == 0 || len(groupIDs) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*)
		from animals
		where deleted_at is null and id = any($1) and group_id = any($2)`,
		animalIDs, groupIDs).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (s *animals) BulkUpdate(ctx context.Context, animalIDs []int64, change shelter.BulkChange) (int64, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if change.GroupID != nil {
		set("group_id", *change.GroupID)
	}
	if change.Status != nil {
		set("status", *change.Status)
	}
	if change.FosterStart.Apply {
		set("foster_start", change.FosterStart.Value)
	}
	if change.QuarantineStart.Apply {
		set("quarantine_start", change.QuarantineStart.Value)
	}
	if change.ArchivedAt.Apply {
		set("archived_at", change.ArchivedAt.Value)
	}
	if len(sets) == 0 {
		return 0, shelter.ErrInvalidRequest
	}
	set("updated_at", time.Now().UTC())

	args = append(args, animalIDs)
	query := fmt.Sprintf(`
		update animals set %s
		where id = any($%d) and deleted_at is null`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnimal(row rowScanner) (*shelter.Animal, error) {
	var a shelter.Animal
	err := row.Scan(
		&a.ID, &a.GroupID, &a.Name, &a.Species, &a.Breed, &a.Age, &a.Description,
		&a.ImageRef, &a.Status, &a.ArrivalDate, &a.LastStatusChange, &a.FosterStart,
		&a.QuarantineStart, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

// Groups ----------------------------------------------------------------------

type groups struct {
	db *sql.DB
}

const groupColumns = `id, name, description, created_at, updated_at`

func (s *groups) Create(ctx context.Context, g *shelter.Group) error {
	row := s.db.QueryRowContext(ctx, `
		insert into groups (name, description)
		values ($1, $2)
		returning id, created_at, updated_at`, g.Name, g.Description)
	if err := row.Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *groups) Find(ctx context.Context, id int64) (*shelter.Group, error) {
	row := s.db.QueryRowContext(ctx, `select `+groupColumns+` from groups where id = $1`, id)
	return scanGroup(row)
}

func (s *groups) List(ctx context.Context) ([]*shelter.Group, error) {
	return s.list(ctx, `select `+groupColumns+` from groups order by id`)
}

func (s *groups) ListByIDs(ctx context.Context, idList []int64) ([]*shelter.Group, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	return s.list(ctx, `select `+groupColumns+` from groups where id = any($1) order by id`, idList)
}

func (s *groups) list(ctx context.Context, query string, args ...any) ([]*shelter.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var res []*shelter.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s *groups) Update(ctx context.Context, id int64, upd shelter.GroupUpdate) (*shelter.Group, error) {
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, shelter.ErrInvalidRequest
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf(`update groups set %s where id = $%d returning %s`,
		strings.Join(sets, ", "), len(args), groupColumns)
	return scanGroup(s.db.QueryRowContext(ctx, query, args...))
}

func (s *groups) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from groups where id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shelter.ErrNotFound
	}
	return nil
}

func scanGroup(row rowScanner) (*shelter.Group, error) {
	var g shelter.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

// Memberships -----------------------------------------------------------------

type memberships struct {
	db *sql.DB
}

func (s *memberships) Set(ctx context.Context, m shelter.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships (user_id, group_id, is_group_admin)
		values ($1, $2, $3)
		on conflict (user_id, group_id) do update set is_group_admin = excluded.is_group_admin`,
		m.UserID, m.GroupID, m.IsGroupAdmin)
	return mapNilError(err)
}

func (s *memberships) Remove(ctx context.Context, userID string, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from memberships where user_id = $1 and group_id = $2`, userID, groupID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shelter.ErrNotFound
	}
	return nil
}

func (s *memberships) ListByUser(ctx context.Context, userID string) ([]shelter.Membership, error) {
	return s.list(ctx, `
		select user_id, group_id, is_group_admin, created_at
		from memberships where user_id = $1 order by group_id`, userID)
}

func (s *memberships) ListByGroup(ctx context.Context, groupID int64) ([]shelter.Membership, error) {
	return s.list(ctx, `
		select user_id, group_id, is_group_admin, created_at
		from memberships where group_id = $1 order by user_id`, groupID)
}

func (s *memberships) list(ctx context.Context, query string, args ...any) ([]shelter.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var res []shelter.Membership
	for rows.Next() {
		var m shelter.Membership
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.IsGroupAdmin, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// Users -----------------------------------------------------------------------

type users struct {
	db *sql.DB
}

const userColumns = `id, email, display_name, password_hash, site_admin, status, created_at, updated_at`

func (s *users) Create(ctx context.Context, u *shelter.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, display_name, password_hash, site_admin, status)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.SiteAdmin, u.Status)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *users) Find(ctx context.Context, id string) (*shelter.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *users) FindByEmail(ctx context.Context, email string) (*shelter.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	return scanUser(row)
}

func scanUser(row rowScanner) (*shelter.User, error) {
	var u shelter.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.SiteAdmin,
		&u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// Comments --------------------------------------------------------------------

type comments struct {
	db *sql.DB
}

func (s *comments) Create(ctx context.Context, c *shelter.Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into comments (id, animal_id, author_id, body)
		values ($1, $2, $3, $4)
		returning created_at`, c.ID, c.AnimalID, c.AuthorID, c.Body)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *comments) ListByAnimal(ctx context.Context, animalID int64) ([]*shelter.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, animal_id, author_id, body, created_at
		from comments where animal_id = $1 order by created_at`, animalID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var res []*shelter.Comment
	for rows.Next() {
		var c shelter.Comment
		if err := rows.Scan(&c.ID, &c.AnimalID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

// Tags ------------------------------------------------------------------------

type tags struct {
	db *sql.DB
}

func (s *tags) Ensure(ctx context.Context, name string) (*shelter.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, shelter.ErrInvalidRequest
	}
	var t shelter.Tag
	err := s.db.QueryRowContext(ctx, `
		insert into tags (name) values ($1)
		on conflict (name) do update set name = excluded.name
		returning id, name`, name).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (s *tags) Attach(ctx context.Context, animalID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into animal_tags (animal_id, tag_id)
		values ($1, $2)
		on conflict do nothing`, animalID, tagID)
	return mapNilError(err)
}

func (s *tags) Detach(ctx context.Context, animalID, tagID int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from animal_tags where animal_id = $1 and tag_id = $2`, animalID, tagID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shelter.ErrNotFound
	}
	return nil
}

func (s *tags) ListByAnimal(ctx context.Context, animalID int64) ([]shelter.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		select t.id, t.name
		from tags t
		join animal_tags at on at.tag_id = t.id
		where at.animal_id = $1
		order by t.id`, animalID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var res []shelter.Tag
	for rows.Next() {
		var t shelter.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func mapNilError(err error) error {
	if err == nil {
		return nil
	}
	return mapError(err)
}
