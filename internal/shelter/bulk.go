package shelter

import (
	"context"
	"fmt"
	"time"
)

// BulkCoordinator applies one mutation (group move and/or status change) to a
// list of animals after verifying the caller's authority over the entire
// target set. All precondition failures are fail-fast with no partial writes;
// the write itself is a single set-based statement.
type BulkCoordinator struct {
	animals AnimalStore
	scope   *ScopeResolver
	now     func() time.Time
}

// NewBulkCoordinator constructs a coordinator.
func NewBulkCoordinator(animals AnimalStore, scope *ScopeResolver) *BulkCoordinator {
	return &BulkCoordinator{animals: animals, scope: scope, now: time.Now}
}

// BulkUpdate validates, authorizes and executes the request. Returns the
// count of targeted identifiers on success.
//
// Non-site-admin callers must administer the current group of every targeted
// animal; a single animal outside that set rejects the whole batch. Bulk mode
// does not run the transition engine: a status write sets the new status's
// derived date, but stale sibling dates and last_status_change are left
// untouched (the single-animal admin path clears them).
func (c *BulkCoordinator) BulkUpdate(ctx context.Context, caller Identity, req BulkUpdateRequest) (int64, error) {
	if !caller.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if !caller.SiteAdmin {
		groupAdmin, err := c.scope.IsGroupAdmin(ctx, caller)
		if err != nil {
			return 0, err
		}
		if !groupAdmin {
			return 0, fmt.Errorf("%w: caller is not an admin of any group", ErrForbidden)
		}
	}
	if len(req.AnimalIDs) == 0 {
		return 0, fmt.Errorf("%w: animal_ids is required", ErrInvalidRequest)
	}
	if req.GroupID == nil && req.Status == nil {
		return 0, fmt.Errorf("%w: at least one of group_id and status is required", ErrInvalidRequest)
	}

	if !caller.SiteAdmin {
		administered, err := c.scope.AdministeredGroupIDs(ctx, caller)
		if err != nil {
			return 0, err
		}
		owned, err := c.animals.CountInGroups(ctx, req.AnimalIDs, administered)
		if err != nil {
			return 0, err
		}
		if owned < len(req.AnimalIDs) {
			return 0, fmt.Errorf("%w: you can only update animals in groups you administer", ErrForbidden)
		}
	}

	change := BulkChange{GroupID: req.GroupID, Status: req.Status}
	if req.Status != nil {
		now := c.now().UTC()
		switch *req.Status {
		case StatusFoster:
			change.FosterStart = setTimestamp(now)
		case StatusBiteQuarantine:
			change.QuarantineStart = setTimestamp(now)
		case StatusArchived:
			change.ArchivedAt = setTimestamp(now)
		}
	}
	if _, err := c.animals.BulkUpdate(ctx, req.AnimalIDs, change); err != nil {
		return 0, err
	}
	return int64(len(req.AnimalIDs)), nil
}
