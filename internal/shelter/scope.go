package shelter

import "context"

// ScopeResolver computes visibility and mutation rights for a caller. It is a
// stateless query layer over membership data; site admins bypass it entirely.
type ScopeResolver struct {
	memberships MembershipStore
}

// NewScopeResolver constructs a resolver over the given membership store.
func NewScopeResolver(memberships MembershipStore) *ScopeResolver {
	return &ScopeResolver{memberships: memberships}
}

// CanAccessGroup reports read access: site admin, or any membership row for
// the group regardless of role.
func (r *ScopeResolver) CanAccessGroup(ctx context.Context, caller Identity, groupID int64) (bool, error) {
	if caller.SiteAdmin {
		return true, nil
	}
	rows, err := r.memberships.ListByUser(ctx, caller.UserID)
	if err != nil {
		return false, err
	}
	for _, m := range rows {
		if m.GroupID == groupID {
			return true, nil
		}
	}
	return false, nil
}

// IsGroupAdmin reports whether the caller holds group-admin privilege on at
// least one membership row.
func (r *ScopeResolver) IsGroupAdmin(ctx context.Context, caller Identity) (bool, error) {
	rows, err := r.memberships.ListByUser(ctx, caller.UserID)
	if err != nil {
		return false, err
	}
	for _, m := range rows {
		if m.IsGroupAdmin {
			return true, nil
		}
	}
	return false, nil
}

// IsGroupAdminFor reports group-admin privilege for one specific group. Site
// admins always pass.
func (r *ScopeResolver) IsGroupAdminFor(ctx context.Context, caller Identity, groupID int64) (bool, error) {
	if caller.SiteAdmin {
		return true, nil
	}
	rows, err := r.memberships.ListByUser(ctx, caller.UserID)
	if err != nil {
		return false, err
	}
	for _, m := range rows {
		if m.GroupID == groupID && m.IsGroupAdmin {
			return true, nil
		}
	}
	return false, nil
}

// AdministeredGroupIDs returns every group id where the caller holds
// group-admin membership. Empty for non-group-admins.
func (r *ScopeResolver) AdministeredGroupIDs(ctx context.Context, caller Identity) ([]int64, error) {
	rows, err := r.memberships.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, m := range rows {
		if m.IsGroupAdmin {
			ids = append(ids, m.GroupID)
		}
	}
	return ids, nil
}

// VisibleGroupIDs returns every group id the caller may read.
func (r *ScopeResolver) VisibleGroupIDs(ctx context.Context, caller Identity) ([]int64, error) {
	rows, err := r.memberships.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}
