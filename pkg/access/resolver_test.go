package access

import (
	"errors"
	"testing"

	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"
)

// fixture builds a workspace with one board, one list and one card, plus
// the users that the scenarios revolve around.
type fixture struct {
	db        *database.LocalDatabase
	resolver  *Resolver
	owner     *models.User // workspace owner
	boardUser *models.User // board member (no workspace-owner standing)
	outsider  *models.User
	admin     *models.User
	workspace *models.Workspace
	board     *models.Board
	list      *models.List
	card      *models.Card
}

func newFixture(t *testing.T, adminBypass bool) *fixture {
	t.Helper()
	db := database.NewLocalDatabase()
	eng := position.NewEngine(1024)

	f := &fixture{
		db:        db,
		owner:     &models.User{ID: "u-owner", Email: "owner@example.com"},
		boardUser: &models.User{ID: "u-member", Email: "member@example.com"},
		outsider:  &models.User{ID: "u-outsider", Email: "outsider@example.com"},
		admin:     &models.User{ID: "u-admin", Email: "admin@example.com", IsAdmin: true},
	}
	for _, u := range []*models.User{f.owner, f.boardUser, f.outsider, f.admin} {
		if err := db.CreateUser(u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	f.workspace = &models.Workspace{Name: "Acme", OwnerID: f.owner.ID}
	if err := db.CreateWorkspace(f.workspace); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	f.board = &models.Board{WorkspaceID: f.workspace.ID, Name: "Launch"}
	if err := db.CreateBoard(f.board, f.owner.ID); err != nil {
		t.Fatalf("create board: %v", err)
	}
	f.list = &models.List{BoardID: f.board.ID, Name: "Todo"}
	if err := db.CreateList(f.list, eng); err != nil {
		t.Fatalf("create list: %v", err)
	}
	f.card = &models.Card{ListID: f.list.ID, Title: "Ship it"}
	if err := db.CreateCard(f.card, eng); err != nil {
		t.Fatalf("create card: %v", err)
	}

	// boardUser holds a plain membership with an explicit permission set
	if err := db.UpsertBoardMembership(&models.BoardMembership{
		BoardID:     f.board.ID,
		UserID:      f.boardUser.ID,
		Role:        models.BoardRoleMember,
		Permissions: []models.BoardPermission{models.PermCreateCard, models.PermMoveCard},
	}); err != nil {
		t.Fatalf("create board membership: %v", err)
	}

	f.resolver = NewResolver(NewLookup(db), db, adminBypass)
	return f
}

func TestResolveRequiresAuthentication(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.resolver.Resolve(nil, ResourceRef{Kind: KindBoard, ID: f.board.ID}, Requirement{})
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Errorf("got %v, want ErrAuthenticationRequired", err)
	}
}

func TestResolveFailsClosedOnMissingResource(t *testing.T) {
	f := newFixture(t, true)

	for _, kind := range []ResourceKind{KindCard, KindList, KindBoard, KindWorkspace} {
		_, err := f.resolver.Resolve(f.owner, ResourceRef{Kind: kind, ID: "missing"}, Requirement{})
		if !errors.Is(err, ErrResourceNotFound) {
			t.Errorf("%s: got %v, want ErrResourceNotFound", kind, err)
		}
	}
}

func TestResolveDeniesNonMember(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.resolver.Resolve(f.outsider, ResourceRef{Kind: KindCard, ID: f.card.ID}, Requirement{})
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember", err)
	}
}

// The workspace owner has full authority on every board in the workspace,
// even without a board membership row. The board here was created by someone
// else, so the owner genuinely holds no row on it.
func TestWorkspaceOwnerOverride(t *testing.T) {
	f := newFixture(t, true)
	eng := position.NewEngine(1024)

	board := &models.Board{WorkspaceID: f.workspace.ID, Name: "Side Project"}
	if err := f.db.CreateBoard(board, f.boardUser.ID); err != nil {
		t.Fatalf("create board: %v", err)
	}
	list := &models.List{BoardID: board.ID, Name: "Todo"}
	if err := f.db.CreateList(list, eng); err != nil {
		t.Fatalf("create list: %v", err)
	}
	card := &models.Card{ListID: list.ID, Title: "Draft"}
	if err := f.db.CreateCard(card, eng); err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := f.db.GetBoardMembership(f.owner.ID, board.ID); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("owner should hold no membership row on this board, got %v", err)
	}

	grant, err := f.resolver.Resolve(f.owner, ResourceRef{Kind: KindCard, ID: card.ID},
		Requirement{Permissions: []models.BoardPermission{models.PermManageMembers}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !grant.WorkspaceOwner {
		t.Error("grant should be marked as workspace-owner authority")
	}
	if grant.Role != models.BoardRoleOwner {
		t.Errorf("role = %s, want owner", grant.Role)
	}
	if grant.Chain.BoardID != board.ID || grant.Chain.WorkspaceID != f.workspace.ID {
		t.Errorf("chain = %+v, want board %s in workspace %s", grant.Chain, board.ID, f.workspace.ID)
	}
}

// A pending workspace-owner membership grants nothing; only accepted status
// carries authority.
func TestPendingWorkspaceOwnerHasNoAuthority(t *testing.T) {
	f := newFixture(t, true)

	second := &models.User{ID: "u-second-owner", Email: "second@example.com"}
	if err := f.db.CreateUser(second); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.db.UpsertWorkspaceMembership(&models.WorkspaceMembership{
		WorkspaceID: f.workspace.ID,
		UserID:      second.ID,
		Role:        models.WorkspaceRoleOwner,
		Status:      models.MemberStatusPending,
	}); err != nil {
		t.Fatalf("create membership: %v", err)
	}

	_, err := f.resolver.Resolve(second, ResourceRef{Kind: KindBoard, ID: f.board.ID}, Requirement{})
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember", err)
	}
}

// Permissions are independent of role: a member holds exactly the granted
// set, nothing implied.
func TestPermissionIndependentOfRole(t *testing.T) {
	f := newFixture(t, true)
	ref := ResourceRef{Kind: KindBoard, ID: f.board.ID}

	if _, err := f.resolver.Resolve(f.boardUser, ref,
		Requirement{Permissions: []models.BoardPermission{models.PermCreateCard}}); err != nil {
		t.Errorf("granted permission denied: %v", err)
	}

	_, err := f.resolver.Resolve(f.boardUser, ref,
		Requirement{Permissions: []models.BoardPermission{models.PermDeleteCard}})
	if !errors.Is(err, ErrInsufficientPermission) {
		t.Errorf("got %v, want ErrInsufficientPermission", err)
	}

	// requiring every permission fails if even one is missing
	_, err = f.resolver.Resolve(f.boardUser, ref,
		Requirement{Permissions: []models.BoardPermission{models.PermCreateCard, models.PermManageBoard}})
	if !errors.Is(err, ErrInsufficientPermission) {
		t.Errorf("got %v, want ErrInsufficientPermission", err)
	}
}

func TestRoleRequirement(t *testing.T) {
	f := newFixture(t, true)
	ref := ResourceRef{Kind: KindBoard, ID: f.board.ID}

	_, err := f.resolver.Resolve(f.boardUser, ref,
		Requirement{Roles: []models.BoardRole{models.BoardRoleOwner}})
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("got %v, want ErrInsufficientRole", err)
	}

	if _, err := f.resolver.Resolve(f.boardUser, ref,
		Requirement{Roles: []models.BoardRole{models.BoardRoleMember}}); err != nil {
		t.Errorf("member role requirement denied: %v", err)
	}
}

// The board owner passes every role and permission check.
func TestBoardOwnerFullAuthority(t *testing.T) {
	f := newFixture(t, true)

	creator := &models.User{ID: "u-creator", Email: "creator@example.com"}
	if err := f.db.CreateUser(creator); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.db.UpsertWorkspaceMembership(&models.WorkspaceMembership{
		WorkspaceID: f.workspace.ID,
		UserID:      creator.ID,
		Role:        models.WorkspaceRoleMember,
		Status:      models.MemberStatusAccepted,
	}); err != nil {
		t.Fatalf("workspace membership: %v", err)
	}
	board := &models.Board{WorkspaceID: f.workspace.ID, Name: "Side project"}
	if err := f.db.CreateBoard(board, creator.ID); err != nil {
		t.Fatalf("create board: %v", err)
	}

	grant, err := f.resolver.Resolve(creator, ResourceRef{Kind: KindBoard, ID: board.ID},
		Requirement{Permissions: []models.BoardPermission{models.PermManageBoard}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if grant.Role != models.BoardRoleOwner {
		t.Errorf("role = %s, want owner", grant.Role)
	}
}

func TestAdminBypass(t *testing.T) {
	f := newFixture(t, true)

	grant, err := f.resolver.Resolve(f.admin, ResourceRef{Kind: KindCard, ID: f.card.ID},
		Requirement{Permissions: []models.BoardPermission{models.PermManageMembers}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !grant.Admin {
		t.Error("grant should be marked as admin bypass")
	}
}

func TestAdminBypassDisabled(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.resolver.Resolve(f.admin, ResourceRef{Kind: KindBoard, ID: f.board.ID}, Requirement{})
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember when bypass is disabled", err)
	}
}

// Resolution is stateless: the same inputs give the same answer, and a
// membership change is visible on the very next call.
func TestRevocationTakesEffectImmediately(t *testing.T) {
	f := newFixture(t, true)
	ref := ResourceRef{Kind: KindBoard, ID: f.board.ID}
	req := Requirement{Permissions: []models.BoardPermission{models.PermCreateCard}}

	for i := 0; i < 3; i++ {
		if _, err := f.resolver.Resolve(f.boardUser, ref, req); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	// narrow the permission set and re-resolve
	if err := f.db.UpsertBoardMembership(&models.BoardMembership{
		BoardID:     f.board.ID,
		UserID:      f.boardUser.ID,
		Role:        models.BoardRoleMember,
		Permissions: []models.BoardPermission{models.PermMoveCard},
	}); err != nil {
		t.Fatalf("update membership: %v", err)
	}

	_, err := f.resolver.Resolve(f.boardUser, ref, req)
	if !errors.Is(err, ErrInsufficientPermission) {
		t.Errorf("got %v, want ErrInsufficientPermission after revocation", err)
	}
}

func TestResolveWorkspace(t *testing.T) {
	f := newFixture(t, true)

	// owner passes any role requirement
	if _, err := f.resolver.ResolveWorkspace(f.owner, f.workspace.ID,
		models.WorkspaceRoleOwner, models.WorkspaceRoleAdmin); err != nil {
		t.Errorf("owner denied: %v", err)
	}

	// outsider is not a member
	_, err := f.resolver.ResolveWorkspace(f.outsider, f.workspace.ID)
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("got %v, want ErrNotMember", err)
	}

	// missing workspace fails closed
	_, err = f.resolver.ResolveWorkspace(f.owner, "missing")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("got %v, want ErrResourceNotFound", err)
	}

	// pending membership does not count
	if err := f.db.UpsertWorkspaceMembership(&models.WorkspaceMembership{
		WorkspaceID: f.workspace.ID,
		UserID:      f.outsider.ID,
		Role:        models.WorkspaceRoleMember,
		Status:      models.MemberStatusPending,
	}); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	_, err = f.resolver.ResolveWorkspace(f.outsider, f.workspace.ID)
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("pending membership: got %v, want ErrNotMember", err)
	}
}
