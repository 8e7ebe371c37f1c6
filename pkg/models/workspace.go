package models

import "time"

// Workspace is the top-level tenant container grouping boards
type Workspace struct {
    ID          string    `json:"id" db:"id"`
    Name        string    `json:"name" db:"name"`
    OwnerID     string    `json:"owner_id" db:"owner_id"`
    Description string    `json:"description,omitempty" db:"description"`
    Avatar      string    `json:"avatar,omitempty" db:"avatar"`
    CreatedAt   time.Time `json:"created_at" db:"created_at"`
    UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type WorkspaceRole string

const (
    WorkspaceRoleOwner  WorkspaceRole = "owner"
    WorkspaceRoleAdmin  WorkspaceRole = "admin"
    WorkspaceRoleMember WorkspaceRole = "member"
)

// Valid reports whether the role is one of the enumerated workspace roles.
func (r WorkspaceRole) Valid() bool {
    switch r {
    case WorkspaceRoleOwner, WorkspaceRoleAdmin, WorkspaceRoleMember:
        return true
    }
    return false
}

type MemberStatus string

const (
    MemberStatusPending  MemberStatus = "pending"
    MemberStatusAccepted MemberStatus = "accepted"
    MemberStatusDeclined MemberStatus = "declined"
)

// WorkspaceMembership relates users to workspaces with a role and status
type WorkspaceMembership struct {
    ID          string        `json:"id" db:"id"`
    WorkspaceID string        `json:"workspace_id" db:"workspace_id"`
    UserID      string        `json:"user_id" db:"user_id"`
    Role        WorkspaceRole `json:"role" db:"role"`
    Status      MemberStatus  `json:"status" db:"status"`
    CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}
