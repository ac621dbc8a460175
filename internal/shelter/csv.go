package shelter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"id", "group_id", "name", "species", "breed", "age", "description",
	"status", "arrival_date", "foster_start", "quarantine_start", "archived_at",
}

const csvDateLayout = "2006-01-02"

// ExportAnimalsCSV writes the caller's visible animals as CSV.
func (s *Service) ExportAnimalsCSV(ctx context.Context, caller Identity, filter AnimalFilter, w io.Writer) error {
	views, err := s.ListAnimals(ctx, caller, filter)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, v := range views {
		record := []string{
			strconv.FormatInt(v.ID, 10),
			strconv.FormatInt(v.GroupID, 10),
			v.Name,
			v.Species,
			v.Breed,
			strconv.Itoa(v.Age),
			v.Description,
			v.Status,
			v.ArrivalDate.UTC().Format(csvDateLayout),
			formatDate(v.FosterStart),
			formatDate(v.QuarantineStart),
			formatDate(v.ArchivedAt),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportAnimalsCSV creates one animal per data row into the given group. The
// expected columns are name, species, breed, age, description, status,
// arrival_date; a header row is detected by its first cell and skipped.
// The whole file is parsed and validated before anything is written, so a bad
// row rejects the import with its row number and no animals created.
func (s *Service) ImportAnimalsCSV(ctx context.Context, caller Identity, groupID int64, r io.Reader) (int, error) {
	if !caller.Authenticated() {
		return 0, ErrUnauthenticated
	}
	admin, err := s.scope.IsGroupAdminFor(ctx, caller, groupID)
	if err != nil {
		return 0, err
	}
	if !admin {
		return 0, fmt.Errorf("%w: not an admin of group %d", ErrForbidden, groupID)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var inputs []CreateAnimalInput
	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: malformed CSV: %v", ErrInvalidRequest, err)
		}
		row++
		if row == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "name") {
			continue
		}
		in, err := parseImportRow(record)
		if err != nil {
			return 0, fmt.Errorf("%w: row %d: %v", ErrInvalidRequest, row, err)
		}
		in.GroupID = groupID
		inputs = append(inputs, in)
	}

	created := 0
	for _, in := range inputs {
		if _, err := s.CreateAnimal(ctx, caller, in); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func parseImportRow(record []string) (CreateAnimalInput, error) {
	if len(record) < 2 {
		return CreateAnimalInput{}, fmt.Errorf("expected at least name and species, got %d columns", len(record))
	}
	get := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	in := CreateAnimalInput{
		Name:        get(0),
		Species:     get(1),
		Breed:       get(2),
		Description: get(4),
		Status:      get(5),
	}
	if in.Name == "" || in.Species == "" {
		return CreateAnimalInput{}, fmt.Errorf("name and species are required")
	}
	if raw := get(3); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil || age < 0 {
			return CreateAnimalInput{}, fmt.Errorf("invalid age %q", raw)
		}
		in.Age = age
	}
	if raw := get(6); raw != "" {
		arrival, err := time.Parse(csvDateLayout, raw)
		if err != nil {
			return CreateAnimalInput{}, fmt.Errorf("invalid arrival_date %q", raw)
		}
		in.ArrivalDate = &arrival
	}
	return in, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(csvDateLayout)
}
