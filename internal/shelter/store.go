package shelter

import (
	"context"
	"time"
)

// Store aggregates the persistence operations required by the shelter domain.
type Store interface {
	Animals() AnimalStore
	Groups() GroupStore
	Memberships() MembershipStore
	Users() UserStore
	Comments() CommentStore
	Tags() TagStore
}

// AnimalFilter narrows animal listings.
type AnimalFilter struct {
	GroupID *int64
	Status  *string
}

// AnimalUpdate is a partial single-animal update. Nil pointers leave the
// column untouched. The timestamp changes carry the transition engine output.
type AnimalUpdate struct {
	Name        *string
	Species     *string
	Breed       *string
	Age         *int
	Description *string
	ImageRef    *string
	GroupID     *int64
	ArrivalDate *time.Time

	Status           *string
	LastStatusChange *time.Time
	FosterStart      TimestampChange
	QuarantineStart  TimestampChange
	ArchivedAt       TimestampChange
}

// IsEmpty reports whether the update carries no writes at all.
func (u AnimalUpdate) IsEmpty() bool {
	return u.Name == nil && u.Species == nil && u.Breed == nil && u.Age == nil &&
		u.Description == nil && u.ImageRef == nil && u.GroupID == nil &&
		u.ArrivalDate == nil && u.Status == nil && u.LastStatusChange == nil &&
		!u.FosterStart.Apply && !u.QuarantineStart.Apply && !u.ArchivedAt.Apply
}

// BulkChange is the column write applied by a bulk update. Bulk mode does not
// run the transition engine's clearing logic: a status write sets the date
// derived from the new status but leaves stale sibling dates and
// last_status_change untouched.
type BulkChange struct {
	GroupID *int64
	Status  *string

	FosterStart     TimestampChange
	QuarantineStart TimestampChange
	ArchivedAt      TimestampChange
}

// AnimalStore manages animals. All reads exclude soft-deleted rows.
type AnimalStore interface {
	Create(ctx context.Context, a *Animal) error
	Find(ctx context.Context, id int64) (*Animal, error)
	ListByGroups(ctx context.Context, groupIDs []int64, filter AnimalFilter) ([]*Animal, error)
	ListAll(ctx context.Context, filter AnimalFilter) ([]*Animal, error)
	Update(ctx context.Context, id int64, upd AnimalUpdate) (*Animal, error)
	SoftDelete(ctx context.Context, id int64) error

	// CountInGroups counts how many of animalIDs currently belong to one of
	// the given groups. Used for the all-or-nothing bulk authorization check.
	CountInGroups(ctx context.Context, animalIDs []int64, groupIDs []int64) (int, error)

	// BulkUpdate applies the change to every id in one set-based statement.
	BulkUpdate(ctx context.Context, animalIDs []int64, change BulkChange) (int64, error)
}

// GroupUpdate is a partial group update.
type GroupUpdate struct {
	Name        *string
	Description *string
}

// GroupStore manages groups.
type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	Find(ctx context.Context, id int64) (*Group, error)
	List(ctx context.Context) ([]*Group, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Group, error)
	Update(ctx context.Context, id int64, upd GroupUpdate) (*Group, error)
	Delete(ctx context.Context, id int64) error
}

// MembershipStore manages user-group membership rows.
type MembershipStore interface {
	Set(ctx context.Context, m Membership) error
	Remove(ctx context.Context, userID string, groupID int64) error
	ListByUser(ctx context.Context, userID string) ([]Membership, error)
	ListByGroup(ctx context.Context, groupID int64) ([]Membership, error)
}

// UserStore manages accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// CommentStore manages animal comments.
type CommentStore interface {
	Create(ctx context.Context, c *Comment) error
	ListByAnimal(ctx context.Context, animalID int64) ([]*Comment, error)
}

// TagStore manages tags and their attachment to animals.
type TagStore interface {
	Ensure(ctx context.Context, name string) (*Tag, error)
	Attach(ctx context.Context, animalID, tagID int64) error
	Detach(ctx context.Context, animalID, tagID int64) error
	ListByAnimal(ctx context.Context, animalID int64) ([]Tag, error)
}
