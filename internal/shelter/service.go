package shelter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service orchestrates the shelter domain: every operation authorizes the
// caller through the scope resolver, derives field changes through the
// transition engine where a status is involved, and persists through the
// store. Caller identity is always an explicit argument.
type Service struct {
	store  Store
	scope  *ScopeResolver
	engine *TransitionEngine
	bulk   *BulkCoordinator
	now    func() time.Time
}

// NewService wires a Service over the given store.
func NewService(store Store) *Service {
	scope := NewScopeResolver(store.Memberships())
	return &Service{
		store:  store,
		scope:  scope,
		engine: NewTransitionEngine(),
		bulk:   NewBulkCoordinator(store.Animals(), scope),
		now:    time.Now,
	}
}

// WithClock overrides the time source for the service and its transition
// engine. Intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
		s.engine.WithClock(fn)
		s.bulk.now = fn
	}
	return s
}

// Store exposes the underlying store for boundary code (login, readiness).
func (s *Service) Store() Store { return s.store }

// AnimalView is an animal enriched with its tags and the derived quarantine
// end date.
type AnimalView struct {
	Animal
	Tags              []Tag      `json:"tags"`
	QuarantineEndDate *time.Time `json:"quarantine_end_date,omitempty"`
}

func (s *Service) view(ctx context.Context, a *Animal) (AnimalView, error) {
	tags, err := s.store.Tags().ListByAnimal(ctx, a.ID)
	if err != nil {
		return AnimalView{}, err
	}
	if tags == nil {
		tags = []Tag{}
	}
	v := AnimalView{Animal: *a, Tags: tags}
	if a.QuarantineStart != nil {
		end := QuarantineEndDate(*a.QuarantineStart)
		v.QuarantineEndDate = &end
	}
	return v, nil
}

// Animals -------------------------------------------------------------------

// CreateAnimalInput carries the fields accepted when registering an animal.
type CreateAnimalInput struct {
	GroupID     int64
	Name        string
	Species     string
	Breed       string
	Age         int
	Description string
	ImageRef    string
	Status      string
	ArrivalDate *time.Time
}

// CreateAnimal registers an animal in a group the caller administers.
func (s *Service) CreateAnimal(ctx context.Context, caller Identity, in CreateAnimalInput) (AnimalView, error) {
	if !caller.Authenticated() {
		return AnimalView{}, ErrUnauthenticated
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Species) == "" {
		return AnimalView{}, fmt.Errorf("%w: name and species are required", ErrInvalidRequest)
	}
	if in.GroupID == 0 {
		return AnimalView{}, fmt.Errorf("%w: group_id is required", ErrInvalidRequest)
	}
	if _, err := s.store.Groups().Find(ctx, in.GroupID); err != nil {
		return AnimalView{}, err
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, in.GroupID)
	if err != nil {
		return AnimalView{}, err
	}
	if !admin {
		return AnimalView{}, fmt.Errorf("%w: not an admin of group %d", ErrForbidden, in.GroupID)
	}

	status := in.Status
	if status == "" {
		status = StatusAvailable
	}
	arrival := s.now().UTC()
	if in.ArrivalDate != nil {
		arrival = in.ArrivalDate.UTC()
	}
	a := &Animal{
		GroupID:     in.GroupID,
		Name:        strings.TrimSpace(in.Name),
		Species:     strings.TrimSpace(in.Species),
		Breed:       strings.TrimSpace(in.Breed),
		Age:         in.Age,
		Description: in.Description,
		ImageRef:    in.ImageRef,
		Status:      status,
		ArrivalDate: arrival,
	}
	if err := s.store.Animals().Create(ctx, a); err != nil {
		return AnimalView{}, err
	}
	return s.view(ctx, a)
}

// GetAnimal returns one animal if the caller can read its group. Animals
// outside the caller's scope are indistinguishable from missing ones.
func (s *Service) GetAnimal(ctx context.Context, caller Identity, id int64) (AnimalView, error) {
	if !caller.Authenticated() {
		return AnimalView{}, ErrUnauthenticated
	}
	a, err := s.store.Animals().Find(ctx, id)
	if err != nil {
		return AnimalView{}, err
	}
	ok, err := s.scope.CanAccessGroup(ctx, caller, a.GroupID)
	if err != nil {
		return AnimalView{}, err
	}
	if !ok {
		return AnimalView{}, ErrNotFound
	}
	return s.view(ctx, a)
}

// ListAnimals returns the animals visible to the caller, optionally filtered.
func (s *Service) ListAnimals(ctx context.Context, caller Identity, filter AnimalFilter) ([]AnimalView, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	var (
		animals []*Animal
		err     error
	)
	if caller.SiteAdmin {
		animals, err = s.store.Animals().ListAll(ctx, filter)
	} else {
		var visible []int64
		visible, err = s.scope.VisibleGroupIDs(ctx, caller)
		if err != nil {
			return nil, err
		}
		animals, err = s.store.Animals().ListByGroups(ctx, visible, filter)
	}
	if err != nil {
		return nil, err
	}
	views := make([]AnimalView, 0, len(animals))
	for _, a := range animals {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// UpdateAnimalInput is the partial admin-override update. Nil fields are left
// untouched; a supplied status drives the transition engine.
type UpdateAnimalInput struct {
	Name            *string
	Species         *string
	Breed           *string
	Age             *int
	Description     *string
	ImageRef        *string
	GroupID         *int64
	ArrivalDate     *time.Time
	Status          *string
	QuarantineStart *time.Time
}

// UpdateResult reports the persisted view plus whether the status changed,
// so the transport layer can publish a status event.
type UpdateResult struct {
	View          AnimalView
	StatusChanged bool
	PreviousState string
}

// UpdateAnimal applies a partial update to one animal. A status change runs
// the full transition engine; this is the path that clears and sets the
// status-derived dates (unlike bulk updates, which write bare columns).
func (s *Service) UpdateAnimal(ctx context.Context, caller Identity, id int64, in UpdateAnimalInput) (UpdateResult, error) {
	if !caller.Authenticated() {
		return UpdateResult{}, ErrUnauthenticated
	}
	a, err := s.store.Animals().Find(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	readable, err := s.scope.CanAccessGroup(ctx, caller, a.GroupID)
	if err != nil {
		return UpdateResult{}, err
	}
	if !readable {
		return UpdateResult{}, ErrNotFound
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, a.GroupID)
	if err != nil {
		return UpdateResult{}, err
	}
	if !admin {
		return UpdateResult{}, fmt.Errorf("%w: not an admin of group %d", ErrForbidden, a.GroupID)
	}

	upd := AnimalUpdate{
		Name:        in.Name,
		Species:     in.Species,
		Breed:       in.Breed,
		Age:         in.Age,
		Description: in.Description,
		ImageRef:    in.ImageRef,
		GroupID:     in.GroupID,
		ArrivalDate: in.ArrivalDate,
	}

	requested := a.Status
	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		requested = strings.TrimSpace(*in.Status)
	}
	cs := s.engine.ComputeTransition(a.Status, requested, in.QuarantineStart)
	if cs.StatusChanged {
		upd.Status = &requested
		upd.LastStatusChange = cs.LastStatusChange
	}
	upd.FosterStart = cs.FosterStart
	upd.QuarantineStart = cs.QuarantineStart
	upd.ArchivedAt = cs.ArchivedAt

	if upd.IsEmpty() {
		return UpdateResult{}, fmt.Errorf("%w: no recognized fields supplied", ErrInvalidRequest)
	}

	updated, err := s.store.Animals().Update(ctx, id, upd)
	if err != nil {
		return UpdateResult{}, err
	}
	view, err := s.view(ctx, updated)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{
		View:          view,
		StatusChanged: cs.StatusChanged,
		PreviousState: a.Status,
	}, nil
}

// DeleteAnimal soft-deletes an animal; the row is retained for audit.
func (s *Service) DeleteAnimal(ctx context.Context, caller Identity, id int64) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	a, err := s.store.Animals().Find(ctx, id)
	if err != nil {
		return err
	}
	readable, err := s.scope.CanAccessGroup(ctx, caller, a.GroupID)
	if err != nil {
		return err
	}
	if !readable {
		return ErrNotFound
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, a.GroupID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: not an admin of group %d", ErrForbidden, a.GroupID)
	}
	return s.store.Animals().SoftDelete(ctx, id)
}

// BulkUpdate delegates to the coordinator.
func (s *Service) BulkUpdate(ctx context.Context, caller Identity, req BulkUpdateRequest) (int64, error) {
	return s.bulk.BulkUpdate(ctx, caller, req)
}

// Groups ---------------------------------------------------------------------

// CreateGroup creates a group. Site admins only.
func (s *Service) CreateGroup(ctx context.Context, caller Identity, name, description string) (*Group, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !caller.SiteAdmin {
		return nil, fmt.Errorf("%w: site admin required", ErrForbidden)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	g := &Group{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Groups().Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup returns one group the caller can read.
func (s *Service) GetGroup(ctx context.Context, caller Identity, id int64) (*Group, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	ok, err := s.scope.CanAccessGroup(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.Groups().Find(ctx, id)
}

// ListGroups returns the groups visible to the caller.
func (s *Service) ListGroups(ctx context.Context, caller Identity) ([]*Group, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if caller.SiteAdmin {
		return s.store.Groups().List(ctx)
	}
	visible, err := s.scope.VisibleGroupIDs(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.store.Groups().ListByIDs(ctx, visible)
}

// UpdateGroup renames or redescribes a group the caller administers.
func (s *Service) UpdateGroup(ctx context.Context, caller Identity, id int64, upd GroupUpdate) (*Group, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("%w: not an admin of group %d", ErrForbidden, id)
	}
	if upd.Name == nil && upd.Description == nil {
		return nil, fmt.Errorf("%w: no recognized fields supplied", ErrInvalidRequest)
	}
	return s.store.Groups().Update(ctx, id, upd)
}

// DeleteGroup removes a group. Site admins only.
func (s *Service) DeleteGroup(ctx context.Context, caller Identity, id int64) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if !caller.SiteAdmin {
		return fmt.Errorf("%w: site admin required", ErrForbidden)
	}
	return s.store.Groups().Delete(ctx, id)
}

// Memberships ----------------------------------------------------------------

// AddMember adds or updates a membership row in a group the caller
// administers.
func (s *Service) AddMember(ctx context.Context, caller Identity, groupID int64, userID string, isGroupAdmin bool) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, groupID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: not an admin of group %d", ErrForbidden, groupID)
	}
	if _, err := s.store.Groups().Find(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	return s.store.Memberships().Set(ctx, Membership{
		UserID:       userID,
		GroupID:      groupID,
		IsGroupAdmin: isGroupAdmin,
	})
}

// RemoveMember removes a membership row.
func (s *Service) RemoveMember(ctx context.Context, caller Identity, groupID int64, userID string) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, groupID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: not an admin of group %d", ErrForbidden, groupID)
	}
	return s.store.Memberships().Remove(ctx, userID, groupID)
}

// ListMembers returns the membership rows of a readable group.
func (s *Service) ListMembers(ctx context.Context, caller Identity, groupID int64) ([]Membership, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	ok, err := s.scope.CanAccessGroup(ctx, caller, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.Memberships().ListByGroup(ctx, groupID)
}

// Users ----------------------------------------------------------------------

// CreateUser registers an account. Site admins only; the password hash is
// produced at the boundary.
func (s *Service) CreateUser(ctx context.Context, caller Identity, u *User) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if !caller.SiteAdmin {
		return fmt.Errorf("%w: site admin required", ErrForbidden)
	}
	if strings.TrimSpace(u.Email) == "" || u.PasswordHash == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	if u.Status == "" {
		u.Status = "active"
	}
	return s.store.Users().Create(ctx, u)
}

// Self returns the caller's own account.
func (s *Service) Self(ctx context.Context, caller Identity) (*User, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.store.Users().Find(ctx, caller.UserID)
}

// Comments -------------------------------------------------------------------

// AddComment attaches a comment to an animal the caller can read.
func (s *Service) AddComment(ctx context.Context, caller Identity, animalID int64, body string) (*Comment, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidRequest)
	}
	if _, err := s.GetAnimal(ctx, caller, animalID); err != nil {
		return nil, err
	}
	c := &Comment{AnimalID: animalID, AuthorID: caller.UserID, Body: body}
	if err := s.store.Comments().Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns the comments of a readable animal.
func (s *Service) ListComments(ctx context.Context, caller Identity, animalID int64) ([]*Comment, error) {
	if _, err := s.GetAnimal(ctx, caller, animalID); err != nil {
		return nil, err
	}
	return s.store.Comments().ListByAnimal(ctx, animalID)
}

// Tags -----------------------------------------------------------------------

// TagAnimal ensures the named tag exists and attaches it. Group admins only.
func (s *Service) TagAnimal(ctx context.Context, caller Identity, animalID int64, name string) (*Tag, error) {
	a, err := s.requireGroupAdminForAnimal(ctx, caller, animalID)
	if err != nil {
		return nil, err
	}
	tag, err := s.store.Tags().Ensure(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.store.Tags().Attach(ctx, a.ID, tag.ID); err != nil {
		return nil, err
	}
	return tag, nil
}

// UntagAnimal detaches a tag. Group admins only.
func (s *Service) UntagAnimal(ctx context.Context, caller Identity, animalID, tagID int64) error {
	if _, err := s.requireGroupAdminForAnimal(ctx, caller, animalID); err != nil {
		return err
	}
	return s.store.Tags().Detach(ctx, animalID, tagID)
}

func (s *Service) requireGroupAdminForAnimal(ctx context.Context, caller Identity, animalID int64) (*Animal, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	a, err := s.store.Animals().Find(ctx, animalID)
	if err != nil {
		return nil, err
	}
	readable, err := s.scope.CanAccessGroup(ctx, caller, a.GroupID)
	if err != nil {
		return nil, err
	}
	if !readable {
		return nil, ErrNotFound
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, a.GroupID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("%w: not an admin of group %d", ErrForbidden, a.GroupID)
	}
	return a, nil
}
