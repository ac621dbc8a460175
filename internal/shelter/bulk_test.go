package shelter

import (
	"context"
	"errors"
	"testing"
	"time"
)

// bulkFixture seeds two groups with animals and one group admin for group 1.
type bulkFixture struct {
	svc        *Service
	store      *InMemory
	groupAdmin Identity
	siteAdmin  Identity
	member     Identity
	g1Animals  []int64
	g2Animals  []int64
}

func newBulkFixture(t *testing.T) *bulkFixture {
	t.Helper()
	ctx := context.Background()
	store := NewInMemory()
	svc := NewService(store).WithClock(func() time.Time { return testNow })

	for _, name := range []string{"north shelter", "south shelter"} {
		if err := store.Groups().Create(ctx, &Group{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	f := &bulkFixture{
		svc:        svc,
		store:      store,
		groupAdmin: Identity{UserID: "u-admin"},
		siteAdmin:  Identity{UserID: "u-site", SiteAdmin: true},
		member:     Identity{UserID: "u-member"},
	}
	if err := store.Memberships().Set(ctx, Membership{UserID: "u-admin", GroupID: 1, IsGroupAdmin: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Memberships().Set(ctx, Membership{UserID: "u-member", GroupID: 1}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		a := &Animal{GroupID: 1, Name: "a", Species: "dog", Status: StatusAvailable, ArrivalDate: testNow}
		if err := store.Animals().Create(ctx, a); err != nil {
			t.Fatal(err)
		}
		f.g1Animals = append(f.g1Animals, a.ID)
	}
	for i := 0; i < 2; i++ {
		a := &Animal{GroupID: 2, Name: "b", Species: "cat", Status: StatusAvailable, ArrivalDate: testNow}
		if err := store.Animals().Create(ctx, a); err != nil {
			t.Fatal(err)
		}
		f.g2Animals = append(f.g2Animals, a.ID)
	}
	return f
}

func ptrTo[T any](v T) *T { return &v }

func TestBulkUpdateRequiresAuth(t *testing.T) {
	f := newBulkFixture(t)
	_, err := f.svc.BulkUpdate(context.Background(), Identity{}, BulkUpdateRequest{
		AnimalIDs: f.g1Animals,
		Status:    ptrTo(StatusArchived),
	})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
}

func TestBulkUpdateRejectsNonAdminMember(t *testing.T) {
	f := newBulkFixture(t)
	_, err := f.svc.BulkUpdate(context.Background(), f.member, BulkUpdateRequest{
		AnimalIDs: f.g1Animals,
		Status:    ptrTo(StatusArchived),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestBulkUpdateValidation(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	_, err := f.svc.BulkUpdate(ctx, f.groupAdmin, BulkUpdateRequest{Status: ptrTo(StatusArchived)})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty animal_ids: want ErrInvalidRequest, got %v", err)
	}

	_, err = f.svc.BulkUpdate(ctx, f.groupAdmin, BulkUpdateRequest{AnimalIDs: f.g1Animals})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("no fields: want ErrInvalidRequest, got %v", err)
	}
}

func TestBulkUpdateMixedGroupsRejectsWholeBatch(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	ids := append(append([]int64{}, f.g1Animals...), f.g2Animals[0])
	_, err := f.svc.BulkUpdate(ctx, f.groupAdmin, BulkUpdateRequest{
		AnimalIDs: ids,
		Status:    ptrTo(StatusArchived),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	// Nothing was written, not even the animals the caller does administer.
	for _, id := range f.g1Animals {
		a, err := f.store.Animals().Find(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if a.Status != StatusAvailable || a.ArchivedAt != nil {
			t.Fatalf("animal %d mutated after rejected batch: %+v", id, a)
		}
	}
}

func TestBulkUpdateGroupAdminArchive(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	count, err := f.svc.BulkUpdate(ctx, f.groupAdmin, BulkUpdateRequest{
		AnimalIDs: f.g1Animals,
		Status:    ptrTo(StatusArchived),
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(f.g1Animals)) {
		t.Fatalf("count = %d, want %d", count, len(f.g1Animals))
	}
	for _, id := range f.g1Animals {
		a, err := f.store.Animals().Find(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if a.Status != StatusArchived {
			t.Fatalf("animal %d status = %q", id, a.Status)
		}
		if a.ArchivedAt == nil || !a.ArchivedAt.Equal(testNow) {
			t.Fatalf("animal %d archived_at = %v", id, a.ArchivedAt)
		}
		// Bulk writes skip the transition engine; last_status_change stays.
		if a.LastStatusChange != nil {
			t.Fatalf("animal %d last_status_change = %v, want nil", id, a.LastStatusChange)
		}
	}
}

func TestBulkUpdateSiteAdminCrossesGroups(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	ids := append(append([]int64{}, f.g1Animals...), f.g2Animals...)
	target := int64(1)
	count, err := f.svc.BulkUpdate(ctx, f.siteAdmin, BulkUpdateRequest{
		AnimalIDs: ids,
		GroupID:   &target,
		Status:    ptrTo(StatusFoster),
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(ids)) {
		t.Fatalf("count = %d, want %d", count, len(ids))
	}
	for _, id := range ids {
		a, err := f.store.Animals().Find(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if a.GroupID != target || a.Status != StatusFoster {
			t.Fatalf("animal %d: %+v", id, a)
		}
		if a.FosterStart == nil || !a.FosterStart.Equal(testNow) {
			t.Fatalf("animal %d foster_start = %v", id, a.FosterStart)
		}
	}
}

func TestBulkUpdateStatusWriteKeepsStaleDates(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	// Put one animal into quarantine through the single-animal path first.
	id := f.g1Animals[0]
	if _, err := f.svc.UpdateAnimal(ctx, f.groupAdmin, id, UpdateAnimalInput{
		Status: ptrTo(StatusBiteQuarantine),
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.BulkUpdate(ctx, f.groupAdmin, BulkUpdateRequest{
		AnimalIDs: []int64{id},
		Status:    ptrTo(StatusArchived),
	}); err != nil {
		t.Fatal(err)
	}
	a, err := f.store.Animals().Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusArchived || a.ArchivedAt == nil {
		t.Fatalf("unexpected animal state: %+v", a)
	}
	if a.QuarantineStart == nil {
		t.Fatal("bulk archive must not clear quarantine_start")
	}
}
