package shelter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
)

func TestExportAnimalsCSVScopedToCaller(t *testing.T) {
	f := newBulkFixture(t)
	var buf bytes.Buffer
	if err := f.svc.ExportAnimalsCSV(context.Background(), f.member, AnimalFilter{}, &buf); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1+len(f.g1Animals) {
		t.Fatalf("got %d rows, want header plus %d", len(records), len(f.g1Animals))
	}
	if records[0][0] != "id" || records[0][7] != "status" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	for _, rec := range records[1:] {
		if rec[1] != "1" {
			t.Fatalf("member export leaked group %s", rec[1])
		}
	}
}

func TestImportAnimalsCSV(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	input := strings.Join([]string{
		"name,species,breed,age,description,status,arrival_date",
		"Rex,dog,collie,4,friendly,available,2025-01-15",
		"Mia,cat,,2,,foster,",
	}, "\n")

	n, err := f.svc.ImportAnimalsCSV(ctx, f.groupAdmin, 1, strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("created %d, want 2", n)
	}

	views, err := f.svc.ListAnimals(ctx, f.groupAdmin, AnimalFilter{Status: ptrTo(StatusFoster)})
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].Name != "Mia" {
		t.Fatalf("imported foster animals: %+v", views)
	}
}

func TestImportAnimalsCSVBadRow(t *testing.T) {
	f := newBulkFixture(t)
	input := "Rex,dog,collie,four,,available,\n"
	_, err := f.svc.ImportAnimalsCSV(context.Background(), f.groupAdmin, 1, strings.NewReader(input))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("error should name the row: %v", err)
	}
}

func TestImportAnimalsCSVBadRowCreatesNothing(t *testing.T) {
	f := newBulkFixture(t)
	ctx := context.Background()

	before, err := f.svc.ListAnimals(ctx, f.groupAdmin, AnimalFilter{})
	if err != nil {
		t.Fatal(err)
	}

	input := strings.Join([]string{
		"Rex,dog,collie,4,,available,",
		"Mia,cat,,two,,foster,",
	}, "\n")
	n, err := f.svc.ImportAnimalsCSV(ctx, f.groupAdmin, 1, strings.NewReader(input))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("error should name the bad row: %v", err)
	}
	if n != 0 {
		t.Fatalf("created %d animals from a rejected file, want 0", n)
	}

	after, err := f.svc.ListAnimals(ctx, f.groupAdmin, AnimalFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("rejected import persisted rows: %d animals before, %d after", len(before), len(after))
	}
}

func TestImportAnimalsCSVRequiresGroupAdmin(t *testing.T) {
	f := newBulkFixture(t)
	_, err := f.svc.ImportAnimalsCSV(context.Background(), f.member, 1, strings.NewReader("Rex,dog\n"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}
