package access

import (
	"errors"
	"fmt"

	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/models"
)

// Closed set of denial reasons. Handlers map these to distinct HTTP
// failure classes (401 / 404 / 403) without re-deriving the cause.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrResourceNotFound       = errors.New("resource not found")
	ErrNotMember              = errors.New("not a member")
	ErrInsufficientRole       = errors.New("insufficient role")
	ErrInsufficientPermission = errors.New("insufficient permission")
)

// MembershipStore is the read surface the resolver needs from storage.
type MembershipStore interface {
	GetWorkspaceMembership(userID, workspaceID string) (*models.WorkspaceMembership, error)
	GetBoardMembership(userID, boardID string) (*models.BoardMembership, error)
}

// Requirement optionally narrows a resolution to a minimum role set and/or
// a required permission set. The zero value only requires membership.
type Requirement struct {
	Roles       []models.BoardRole
	Permissions []models.BoardPermission
}

// Grant is a successful resolution: the principal's effective role and
// permission set on the resolved board.
type Grant struct {
	Chain          Chain
	Role           models.BoardRole
	Permissions    []models.BoardPermission
	Admin          bool // granted via global admin bypass
	WorkspaceOwner bool // granted via accepted workspace-owner membership
}

// Resolver decides, for any principal and any resource in the tree, what
// the principal may do. It performs no caching: every resolution re-reads
// membership state, so a revocation takes effect on the next request.
type Resolver struct {
	lookup      *Lookup
	memberships MembershipStore
	adminBypass bool
}

// NewResolver 创建访问控制解析器
func NewResolver(lookup *Lookup, memberships MembershipStore, adminBypass bool) *Resolver {
	return &Resolver{lookup: lookup, memberships: memberships, adminBypass: adminBypass}
}

// Resolve walks ref up to its owning board and workspace and decides the
// principal's effective authority:
//
//  1. global admin → full authority (when admin bypass is enabled)
//  2. broken ownership chain → ErrResourceNotFound (fail closed)
//  3. accepted workspace owner → full authority, board checks skipped
//  4. no board membership → ErrNotMember
//  5. board owner → full authority
//  6. otherwise the explicit role/permission sets are checked; role never
//     implies a permission except owner, which implies all
func (r *Resolver) Resolve(principal *models.User, ref ResourceRef, req Requirement) (*Grant, error) {
	if principal == nil {
		return nil, ErrAuthenticationRequired
	}

	if r.adminBypass && principal.IsAdmin {
		grant := &Grant{
			Role:        models.BoardRoleOwner,
			Permissions: models.AllBoardPermissions,
			Admin:       true,
		}
		// best-effort chain for callers that need the owning board; the
		// bypass itself never fails on a broken chain
		if chain, err := r.lookup.ResolveChain(ref); err == nil {
			grant.Chain = *chain
		}
		return grant, nil
	}

	chain, err := r.lookup.ResolveChain(ref)
	if err != nil {
		return nil, err
	}

	if chain.WorkspaceID != "" {
		wm, err := r.memberships.GetWorkspaceMembership(principal.ID, chain.WorkspaceID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("get workspace membership: %w", err)
		}
		if wm != nil && wm.Role == models.WorkspaceRoleOwner && wm.Status == models.MemberStatusAccepted {
			return &Grant{
				Chain:          *chain,
				Role:           models.BoardRoleOwner,
				Permissions:    models.AllBoardPermissions,
				WorkspaceOwner: true,
			}, nil
		}
	}

	if chain.BoardID == "" {
		// workspace-level reference without owner standing
		return nil, ErrNotMember
	}

	bm, err := r.memberships.GetBoardMembership(principal.ID, chain.BoardID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("get board membership: %w", err)
	}

	if bm.Role == models.BoardRoleOwner {
		return &Grant{
			Chain:       *chain,
			Role:        models.BoardRoleOwner,
			Permissions: models.AllBoardPermissions,
		}, nil
	}

	if len(req.Roles) > 0 && !containsRole(req.Roles, bm.Role) {
		return nil, ErrInsufficientRole
	}
	for _, p := range req.Permissions {
		if !bm.HasPermission(p) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientPermission, p)
		}
	}

	return &Grant{
		Chain:       *chain,
		Role:        bm.Role,
		Permissions: bm.Permissions,
	}, nil
}

// ResolveWorkspace decides workspace-level authority: the principal must
// hold an accepted membership with one of the given roles (empty roles =
// any accepted membership). Global admins bypass as in Resolve.
func (r *Resolver) ResolveWorkspace(principal *models.User, workspaceID string, roles ...models.WorkspaceRole) (*models.WorkspaceMembership, error) {
	if principal == nil {
		return nil, ErrAuthenticationRequired
	}

	if r.adminBypass && principal.IsAdmin {
		return &models.WorkspaceMembership{
			WorkspaceID: workspaceID,
			UserID:      principal.ID,
			Role:        models.WorkspaceRoleOwner,
			Status:      models.MemberStatusAccepted,
		}, nil
	}

	if _, err := r.lookup.ResolveChain(ResourceRef{Kind: KindWorkspace, ID: workspaceID}); err != nil {
		return nil, err
	}

	m, err := r.memberships.GetWorkspaceMembership(principal.ID, workspaceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("get workspace membership: %w", err)
	}
	if m.Status != models.MemberStatusAccepted {
		return nil, ErrNotMember
	}
	if len(roles) > 0 && !containsWorkspaceRole(roles, m.Role) {
		return nil, ErrInsufficientRole
	}
	return m, nil
}

func containsRole(roles []models.BoardRole, role models.BoardRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsWorkspaceRole(roles []models.WorkspaceRole, role models.WorkspaceRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
