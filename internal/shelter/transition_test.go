package shelter

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)

func testEngine() *TransitionEngine {
	return NewTransitionEngine().WithClock(func() time.Time { return testNow })
}

func TestNoOpTransitionTouchesNothing(t *testing.T) {
	e := testEngine()
	for _, status := range []string{StatusAvailable, StatusFoster, StatusBiteQuarantine, StatusArchived, "adopted_pending"} {
		cs := e.ComputeTransition(status, status, nil)
		if cs.StatusChanged {
			t.Fatalf("status %q: unexpected StatusChanged", status)
		}
		if cs.LastStatusChange != nil {
			t.Fatalf("status %q: last_status_change must not be touched", status)
		}
		if cs.FosterStart.Apply || cs.QuarantineStart.Apply || cs.ArchivedAt.Apply {
			t.Fatalf("status %q: derived fields must not be touched: %+v", status, cs)
		}
	}
}

func TestTransitionToAvailableClearsAllDerivedDates(t *testing.T) {
	cs := testEngine().ComputeTransition(StatusBiteQuarantine, StatusAvailable, nil)
	if !cs.StatusChanged {
		t.Fatal("expected status change")
	}
	if cs.LastStatusChange == nil || !cs.LastStatusChange.Equal(testNow) {
		t.Fatalf("unexpected last_status_change: %v", cs.LastStatusChange)
	}
	for name, ch := range map[string]TimestampChange{
		"foster_start":     cs.FosterStart,
		"quarantine_start": cs.QuarantineStart,
		"archived_at":      cs.ArchivedAt,
	} {
		if !ch.Apply || ch.Value != nil {
			t.Fatalf("%s: expected clear, got %+v", name, ch)
		}
	}
}

func TestTransitionToFosterSetsFosterStart(t *testing.T) {
	cs := testEngine().ComputeTransition(StatusAvailable, StatusFoster, nil)
	if !cs.FosterStart.Apply || cs.FosterStart.Value == nil || !cs.FosterStart.Value.Equal(testNow) {
		t.Fatalf("unexpected foster_start: %+v", cs.FosterStart)
	}
	if !cs.QuarantineStart.Apply || cs.QuarantineStart.Value != nil {
		t.Fatalf("expected quarantine_start clear, got %+v", cs.QuarantineStart)
	}
	if !cs.ArchivedAt.Apply || cs.ArchivedAt.Value != nil {
		t.Fatalf("expected archived_at clear, got %+v", cs.ArchivedAt)
	}
}

func TestTransitionToQuarantineUsesSuppliedStart(t *testing.T) {
	supplied := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cs := testEngine().ComputeTransition(StatusAvailable, StatusBiteQuarantine, &supplied)
	if !cs.QuarantineStart.Apply || cs.QuarantineStart.Value == nil || !cs.QuarantineStart.Value.Equal(supplied) {
		t.Fatalf("unexpected quarantine_start: %+v", cs.QuarantineStart)
	}

	cs = testEngine().ComputeTransition(StatusAvailable, StatusBiteQuarantine, nil)
	if cs.QuarantineStart.Value == nil || !cs.QuarantineStart.Value.Equal(testNow) {
		t.Fatalf("expected quarantine_start defaulted to now, got %+v", cs.QuarantineStart)
	}
}

func TestTransitionToArchivedKeepsStaleDates(t *testing.T) {
	cs := testEngine().ComputeTransition(StatusFoster, StatusArchived, nil)
	if !cs.ArchivedAt.Apply || cs.ArchivedAt.Value == nil || !cs.ArchivedAt.Value.Equal(testNow) {
		t.Fatalf("unexpected archived_at: %+v", cs.ArchivedAt)
	}
	// The archived branch does not clear its siblings.
	if cs.FosterStart.Apply {
		t.Fatalf("foster_start must be untouched, got %+v", cs.FosterStart)
	}
	if cs.QuarantineStart.Apply {
		t.Fatalf("quarantine_start must be untouched, got %+v", cs.QuarantineStart)
	}
}

func TestQuarantineStartOverrideWithoutTransition(t *testing.T) {
	supplied := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	cs := testEngine().ComputeTransition(StatusBiteQuarantine, StatusBiteQuarantine, &supplied)
	if cs.StatusChanged || cs.LastStatusChange != nil {
		t.Fatalf("status must be unchanged: %+v", cs)
	}
	if !cs.QuarantineStart.Apply || cs.QuarantineStart.Value == nil || !cs.QuarantineStart.Value.Equal(supplied) {
		t.Fatalf("expected quarantine_start override, got %+v", cs.QuarantineStart)
	}
}

func TestQuarantineStartIgnoredOutsideQuarantineContext(t *testing.T) {
	supplied := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	cs := testEngine().ComputeTransition(StatusAvailable, StatusAvailable, &supplied)
	if cs.QuarantineStart.Apply {
		t.Fatalf("quarantine_start must not apply when neither side is bite_quarantine: %+v", cs)
	}
}

func TestUnknownStatusPassesThroughWithoutDerivedWrites(t *testing.T) {
	cs := testEngine().ComputeTransition(StatusAvailable, "adopted_pending", nil)
	if !cs.StatusChanged {
		t.Fatal("expected status change for unknown status")
	}
	if cs.LastStatusChange == nil {
		t.Fatal("expected last_status_change for unknown status")
	}
	if cs.FosterStart.Apply || cs.QuarantineStart.Apply || cs.ArchivedAt.Apply {
		t.Fatalf("unknown status must not touch derived fields: %+v", cs)
	}
}

func TestQuarantineEndDateSkipsWeekends(t *testing.T) {
	// Wed 2025-03-12 + 10d = Sat 2025-03-22, advanced to Mon 2025-03-24.
	start := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	end := QuarantineEndDate(start)
	want := time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Fatalf("QuarantineEndDate(%v) = %v, want %v", start, end, want)
	}

	// Mon 2025-03-10 + 10d = Thu 2025-03-20, already a weekday.
	start = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end = QuarantineEndDate(start)
	want = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Fatalf("QuarantineEndDate(%v) = %v, want %v", start, end, want)
	}
}

func TestQuarantineEndDateAlwaysWeekday(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		end := QuarantineEndDate(start.AddDate(0, 0, i))
		if wd := end.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("end date %v falls on %v", end, wd)
		}
	}
}
