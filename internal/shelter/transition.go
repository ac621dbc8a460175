package shelter

import "time"

// TimestampChange describes a write to a nullable timestamp column. The zero
// value leaves the column untouched; Apply with a nil Value clears it.
type TimestampChange struct {
	Apply bool
	Value *time.Time
}

func setTimestamp(t time.Time) TimestampChange {
	return TimestampChange{Apply: true, Value: &t}
}

func clearTimestamp() TimestampChange {
	return TimestampChange{Apply: true}
}

// FieldChangeSet is the full set of status-derived field writes produced by a
// requested transition.
type FieldChangeSet struct {
	StatusChanged    bool
	LastStatusChange *time.Time
	FosterStart      TimestampChange
	QuarantineStart  TimestampChange
	ArchivedAt       TimestampChange
}

// TransitionEngine computes the derived timestamp writes for animal status
// transitions.
type TransitionEngine struct {
	now func() time.Time
}

// NewTransitionEngine constructs an engine using the wall clock.
func NewTransitionEngine() *TransitionEngine {
	return &TransitionEngine{now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (e *TransitionEngine) WithClock(fn func() time.Time) *TransitionEngine {
	if fn != nil {
		e.now = fn
	}
	return e
}

// ComputeTransition returns the field writes required to move an animal from
// current to requested status. Statuses outside the known set pass through
// with no derived-field effects. last_status_change is only touched when the
// status actually differs.
//
// The archived branch sets archived_at but does not clear foster_start or
// quarantine_start; the other branches clear their siblings. A supplied
// quarantine start overrides quarantine_start whenever either side of the
// transition is bite_quarantine, even without a status change, so the start
// date can be corrected in place.
func (e *TransitionEngine) ComputeTransition(current, requested string, quarantineStart *time.Time) FieldChangeSet {
	var cs FieldChangeSet
	now := e.now().UTC()

	if requested != current {
		cs.StatusChanged = true
		cs.LastStatusChange = &now
		switch requested {
		case StatusAvailable:
			cs.FosterStart = clearTimestamp()
			cs.QuarantineStart = clearTimestamp()
			cs.ArchivedAt = clearTimestamp()
		case StatusFoster:
			cs.FosterStart = setTimestamp(now)
			cs.QuarantineStart = clearTimestamp()
			cs.ArchivedAt = clearTimestamp()
		case StatusBiteQuarantine:
			start := now
			if quarantineStart != nil {
				start = quarantineStart.UTC()
			}
			cs.QuarantineStart = setTimestamp(start)
			cs.FosterStart = clearTimestamp()
			cs.ArchivedAt = clearTimestamp()
		case StatusArchived:
			cs.ArchivedAt = setTimestamp(now)
		}
	}

	if quarantineStart != nil && (requested == StatusBiteQuarantine || current == StatusBiteQuarantine) {
		cs.QuarantineStart = setTimestamp(quarantineStart.UTC())
	}

	return cs
}

// QuarantineEndDate derives the end of a bite quarantine: ten calendar days
// after the start, then advanced one day at a time past Saturday and Sunday.
// The result is always a weekday.
func QuarantineEndDate(start time.Time) time.Time {
	end := start.AddDate(0, 0, 10)
	for end.Weekday() == time.Saturday || end.Weekday() == time.Sunday {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
