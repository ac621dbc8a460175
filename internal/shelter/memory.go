package shelter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shelterhub.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Used in dev
// mode and by the HTTP API tests; production runs on the Postgres store.
type InMemory struct {
	mu sync.RWMutex

	animalSeq int64
	groupSeq  int64
	tagSeq    int64

	animals     map[int64]*Animal
	groups      map[int64]*Group
	memberships map[string][]Membership // user id -> rows
	users       map[string]*User
	comments    map[int64][]*Comment // animal id -> comments
	tags        map[int64]*Tag
	animalTags  map[int64]map[int64]struct{} // animal id -> tag ids
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		animals:     make(map[int64]*Animal),
		groups:      make(map[int64]*Group),
		memberships: make(map[string][]Membership),
		users:       make(map[string]*User),
		comments:    make(map[int64][]*Comment),
		tags:        make(map[int64]*Tag),
		animalTags:  make(map[int64]map[int64]struct{}),
	}
}

func (s *InMemory) Animals() AnimalStore         { return (*memAnimals)(s) }
func (s *InMemory) Groups() GroupStore           { return (*memGroups)(s) }
func (s *InMemory) Memberships() MembershipStore { return (*memMemberships)(s) }
func (s *InMemory) Users() UserStore             { return (*memUsers)(s) }
func (s *InMemory) Comments() CommentStore       { return (*memComments)(s) }
func (s *InMemory) Tags() TagStore               { return (*memTags)(s) }

// Animal store -------------------------------------------------------------

type memAnimals InMemory

func (s *memAnimals) Create(ctx context.Context, a *Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animalSeq++
	a.ID = s.animalSeq
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	s.animals[a.ID] = &cp
	return nil
}

func (s *memAnimals) Find(ctx context.Context, id int64) (*Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.animals[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAnimals) ListByGroups(ctx context.Context, groupIDs []int64, filter AnimalFilter) ([]*Animal, error) {
	allowed := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		allowed[id] = struct{}{}
	}
	return s.list(func(a *Animal) bool {
		_, ok := allowed[a.GroupID]
		return ok
	}, filter), nil
}

func (s *memAnimals) ListAll(ctx context.Context, filter AnimalFilter) ([]*Animal, error) {
	return s.list(func(*Animal) bool { return true }, filter), nil
}

func (s *memAnimals) list(keep func(*Animal) bool, filter AnimalFilter) []*Animal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Animal
	for _, a := range s.animals {
		if a.DeletedAt != nil || !keep(a) {
			continue
		}
		if filter.GroupID != nil && a.GroupID != *filter.GroupID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		cp := *a
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *memAnimals) Update(ctx context.Context, id int64, upd AnimalUpdate) (*Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.animals[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Species != nil {
		a.Species = *upd.Species
	}
	if upd.Breed != nil {
		a.Breed = *upd.Breed
	}
	if upd.Age != nil {
		a.Age = *upd.Age
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.ImageRef != nil {
		a.ImageRef = *upd.ImageRef
	}
	if upd.GroupID != nil {
		a.GroupID = *upd.GroupID
	}
	if upd.ArrivalDate != nil {
		a.ArrivalDate = *upd.ArrivalDate
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.LastStatusChange != nil {
		a.LastStatusChange = copyTime(upd.LastStatusChange)
	}
	if upd.FosterStart.Apply {
		a.FosterStart = copyTime(upd.FosterStart.Value)
	}
	if upd.QuarantineStart.Apply {
		a.QuarantineStart = copyTime(upd.QuarantineStart.Value)
	}
	if upd.ArchivedAt.Apply {
		a.ArchivedAt = copyTime(upd.ArchivedAt.Value)
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (s *memAnimals) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.animals[id]
	if !ok || a.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	return nil
}

func (s *memAnimals) CountInGroups(ctx context.Context, animalIDs []int64, groupIDs []int64) (int, error) {
	allowed := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		allowed[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, id := range animalIDs {
		a, ok := s.animals[id]
		if !ok || a.DeletedAt != nil {
			continue
		}
		if _, ok := allowed[a.GroupID]; ok {
			count++
		}
	}
	return count, nil
}

func (s *memAnimals) BulkUpdate(ctx context.Context, animalIDs []int64, change BulkChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	now := time.Now().UTC()
	for _, id := range animalIDs {
		a, ok := s.animals[id]
		if !ok || a.DeletedAt != nil {
			continue
		}
		if change.GroupID != nil {
			a.GroupID = *change.GroupID
		}
		if change.Status != nil {
			a.Status = *change.Status
		}
		if change.FosterStart.Apply {
			a.FosterStart = copyTime(change.FosterStart.Value)
		}
		if change.QuarantineStart.Apply {
			a.QuarantineStart = copyTime(change.QuarantineStart.Value)
		}
		if change.ArchivedAt.Apply {
			a.ArchivedAt = copyTime(change.ArchivedAt.Value)
		}
		a.UpdatedAt = now
		affected++
	}
	return affected, nil
}

// Group store --------------------------------------------------------------

type memGroups InMemory

func (s *memGroups) Create(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupSeq++
	g.ID = s.groupSeq
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memGroups) Find(ctx context.Context, id int64) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memGroups) List(ctx context.Context) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memGroups) ListByIDs(ctx context.Context, idList []int64) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Group
	for _, id := range idList {
		if g, ok := s.groups[id]; ok {
			cp := *g
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memGroups) Update(ctx context.Context, id int64, upd GroupUpdate) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.Description != nil {
		g.Description = *upd.Description
	}
	g.UpdatedAt = time.Now().UTC()
	cp := *g
	return &cp, nil
}

func (s *memGroups) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)
	return nil
}

// Membership store ---------------------------------------------------------

type memMemberships InMemory

func (s *memMemberships) Set(ctx context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	rows := s.memberships[m.UserID]
	for i, existing := range rows {
		if existing.GroupID == m.GroupID {
			rows[i].IsGroupAdmin = m.IsGroupAdmin
			return nil
		}
	}
	s.memberships[m.UserID] = append(rows, m)
	return nil
}

func (s *memMemberships) Remove(ctx context.Context, userID string, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.memberships[userID]
	for i, m := range rows {
		if m.GroupID == groupID {
			s.memberships[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memMemberships) ListByUser(ctx context.Context, userID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.memberships[userID]
	out := make([]Membership, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *memMemberships) ListByGroup(ctx context.Context, groupID int64) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, rows := range s.memberships {
		for _, m := range rows {
			if m.GroupID == groupID {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// User store ---------------------------------------------------------------

type memUsers InMemory

func (s *memUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrInvalidRequest
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUsers) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Comment store ------------------------------------------------------------

type memComments InMemory

func (s *memComments) Create(ctx context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	s.comments[c.AnimalID] = append(s.comments[c.AnimalID], &cp)
	return nil
}

func (s *memComments) ListByAnimal(ctx context.Context, animalID int64) ([]*Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.comments[animalID]
	out := make([]*Comment, 0, len(rows))
	for _, c := range rows {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// Tag store ----------------------------------------------------------------

type memTags InMemory

func (s *memTags) Ensure(ctx context.Context, name string) (*Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	s.tagSeq++
	t := &Tag{ID: s.tagSeq, Name: name}
	s.tags[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *memTags) Attach(ctx context.Context, animalID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[tagID]; !ok {
		return ErrNotFound
	}
	set, ok := s.animalTags[animalID]
	if !ok {
		set = make(map[int64]struct{})
		s.animalTags[animalID] = set
	}
	set[tagID] = struct{}{}
	return nil
}

func (s *memTags) Detach(ctx context.Context, animalID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.animalTags[animalID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := set[tagID]; !ok {
		return ErrNotFound
	}
	delete(set, tagID)
	return nil
}

func (s *memTags) ListByAnimal(ctx context.Context, animalID int64) ([]Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tag
	for tagID := range s.animalTags[animalID] {
		if t, ok := s.tags[tagID]; ok {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
