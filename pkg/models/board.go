package models

import "time"

// Board is a collaboration space inside a workspace, containing ordered lists.
// InviteLinkToken is the permanent, revocable join link (reusable, unlike
// single-use invitations); empty means the link is revoked.
type Board struct {
    ID              string    `json:"id" db:"id"`
    WorkspaceID     string    `json:"workspace_id" db:"workspace_id"`
    Name            string    `json:"name" db:"name"`
    Description     string    `json:"description,omitempty" db:"description"`
    InviteLinkToken string    `json:"-" db:"invite_link_token"`
    CreatedAt       time.Time `json:"created_at" db:"created_at"`
    UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type BoardRole string

const (
    BoardRoleOwner  BoardRole = "owner"
    BoardRoleMember BoardRole = "member"
)

// Valid reports whether the role is one of the enumerated board roles.
func (r BoardRole) Valid() bool {
    return r == BoardRoleOwner || r == BoardRoleMember
}

// BoardPermission gates a single board-level operation. Role owner implies
// all permissions; for any other role only the explicit set counts.
type BoardPermission string

const (
    PermCreateList    BoardPermission = "CREATE_LIST"
    PermEditList      BoardPermission = "EDIT_LIST"
    PermDeleteList    BoardPermission = "DELETE_LIST"
    PermCreateCard    BoardPermission = "CREATE_CARD"
    PermMoveCard      BoardPermission = "MOVE_CARD"
    PermDeleteCard    BoardPermission = "DELETE_CARD"
    PermManageMembers BoardPermission = "MANAGE_MEMBERS"
    PermInviteMembers BoardPermission = "INVITE_MEMBERS"
    PermManageBoard   BoardPermission = "MANAGE_BOARD"
)

// AllBoardPermissions lists every enumerated permission (used for validation
// and for rendering an owner's effective set).
var AllBoardPermissions = []BoardPermission{
    PermCreateList, PermEditList, PermDeleteList,
    PermCreateCard, PermMoveCard, PermDeleteCard,
    PermManageMembers, PermInviteMembers, PermManageBoard,
}

// DefaultMemberPermissions is the baseline set granted when a user joins a
// board through an invitation or the permanent link. Owners can extend or
// narrow it afterwards.
var DefaultMemberPermissions = []BoardPermission{
    PermCreateList, PermEditList,
    PermCreateCard, PermMoveCard, PermDeleteCard,
}

// BoardMembership relates users to boards with a role and an explicit
// permission set
type BoardMembership struct {
    ID          string            `json:"id" db:"id"`
    BoardID     string            `json:"board_id" db:"board_id"`
    UserID      string            `json:"user_id" db:"user_id"`
    Role        BoardRole         `json:"role" db:"role"`
    Permissions []BoardPermission `json:"permissions" db:"permissions"`
    CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// HasPermission reports whether the membership's explicit set covers p.
// Owner short-circuits to true.
func (m *BoardMembership) HasPermission(p BoardPermission) bool {
    if m.Role == BoardRoleOwner {
        return true
    }
    for _, have := range m.Permissions {
        if have == p {
            return true
        }
    }
    return false
}
