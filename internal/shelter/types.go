package shelter

import (
	"errors"
	"time"
)

// Animal lifecycle statuses. The status column is free text; these are the
// values with derived-field side effects. Other strings are stored verbatim
// and carry no side effects.
const (
	StatusAvailable      = "available"
	StatusFoster         = "foster"
	StatusBiteQuarantine = "bite_quarantine"
	StatusArchived       = "archived"
)

// Animal is one sheltered animal. At most one of FosterStart and
// QuarantineStart is non-nil at a time; ArchivedAt may coexist with a stale
// foster or quarantine date (the archived transition does not clear them).
type Animal struct {
	ID               int64      `json:"id"`
	GroupID          int64      `json:"group_id"`
	Name             string     `json:"name"`
	Species          string     `json:"species"`
	Breed            string     `json:"breed,omitempty"`
	Age              int        `json:"age,omitempty"`
	Description      string     `json:"description,omitempty"`
	ImageRef         string     `json:"image_ref,omitempty"`
	Status           string     `json:"status"`
	ArrivalDate      time.Time  `json:"arrival_date"`
	LastStatusChange *time.Time `json:"last_status_change,omitempty"`
	FosterStart      *time.Time `json:"foster_start,omitempty"`
	QuarantineStart  *time.Time `json:"quarantine_start,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"-"`
}

// Group is an organizational unit owning animals and members.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership links a user to a group, optionally with group-admin privilege.
// Used exclusively for authorization scoping.
type Membership struct {
	UserID       string    `json:"user_id"`
	GroupID      int64     `json:"group_id"`
	IsGroupAdmin bool      `json:"is_group_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is a volunteer or administrator account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	PasswordHash string    `json:"-"`
	SiteAdmin    bool      `json:"site_admin"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Comment is a free-text note attached to an animal.
type Comment struct {
	ID        string    `json:"id"`
	AnimalID  int64     `json:"animal_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a reusable label attachable to animals.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Identity is the resolved caller, threaded explicitly through every
// operation. A zero Identity means the caller is unauthenticated.
type Identity struct {
	UserID    string
	SiteAdmin bool
}

// Authenticated reports whether the identity resolves to a user.
func (id Identity) Authenticated() bool { return id.UserID != "" }

// BulkUpdateRequest targets a set of animals with one mutation. At least one
// of GroupID and Status must be set.
type BulkUpdateRequest struct {
	AnimalIDs []int64
	GroupID   *int64
	Status    *string
}

var (
	ErrUnauthenticated = errors.New("shelter: unauthenticated")
	ErrForbidden       = errors.New("shelter: forbidden")
	ErrInvalidRequest  = errors.New("shelter: invalid request")
	ErrNotFound        = errors.New("shelter: not found")
)
