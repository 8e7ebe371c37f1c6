package database

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"
)

func seedBoard(t *testing.T, db *LocalDatabase) (*models.Workspace, *models.Board) {
	t.Helper()
	owner := &models.User{ID: "u-owner", Email: "owner@example.com"}
	if err := db.CreateUser(owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ws := &models.Workspace{Name: "Acme", OwnerID: owner.ID}
	if err := db.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	board := &models.Board{WorkspaceID: ws.ID, Name: "Launch"}
	if err := db.CreateBoard(board, owner.ID); err != nil {
		t.Fatalf("create board: %v", err)
	}
	return ws, board
}

func TestCreateWorkspaceSeedsOwnerMembership(t *testing.T) {
	db := NewLocalDatabase()
	ws, board := seedBoard(t, db)

	m, err := db.GetWorkspaceMembership("u-owner", ws.ID)
	if err != nil {
		t.Fatalf("workspace membership: %v", err)
	}
	if m.Role != models.WorkspaceRoleOwner || m.Status != models.MemberStatusAccepted {
		t.Errorf("membership = %+v", m)
	}

	bm, err := db.GetBoardMembership("u-owner", board.ID)
	if err != nil {
		t.Fatalf("board membership: %v", err)
	}
	if bm.Role != models.BoardRoleOwner {
		t.Errorf("board role = %s, want owner", bm.Role)
	}
}

func TestListOrderingAndReorder(t *testing.T) {
	db := NewLocalDatabase()
	_, board := seedBoard(t, db)
	eng := position.NewEngine(1024)

	var ids []string
	for _, name := range []string{"Todo", "Doing", "Done"} {
		l := &models.List{BoardID: board.ID, Name: name}
		if err := db.CreateList(l, eng); err != nil {
			t.Fatalf("create list %s: %v", name, err)
		}
		ids = append(ids, l.ID)
	}

	// move "Done" to the front
	if err := db.ReorderList(ids[2], 0, eng); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	lists, err := db.ListListsByBoard(board.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	gotNames := make([]string, len(lists))
	for i, l := range lists {
		gotNames[i] = l.Name
	}
	want := []string{"Done", "Todo", "Doing"}
	for i := range want {
		if gotNames[i] != want[i] {
			t.Fatalf("order = %v, want %v", gotNames, want)
		}
	}
	// positions remain strictly increasing
	for i := 1; i < len(lists); i++ {
		if lists[i-1].Position >= lists[i].Position {
			t.Fatalf("positions not strictly increasing: %v", lists)
		}
	}
}

func TestMoveCardAcrossListsUpdatesBoardID(t *testing.T) {
	db := NewLocalDatabase()
	ws, board := seedBoard(t, db)
	eng := position.NewEngine(1024)

	src := &models.List{BoardID: board.ID, Name: "Todo"}
	dst := &models.List{BoardID: board.ID, Name: "Done"}
	for _, l := range []*models.List{src, dst} {
		if err := db.CreateList(l, eng); err != nil {
			t.Fatalf("create list: %v", err)
		}
	}

	card := &models.Card{ListID: src.ID, Title: "Ship it"}
	if err := db.CreateCard(card, eng); err != nil {
		t.Fatalf("create card: %v", err)
	}
	if card.BoardID != board.ID {
		t.Fatalf("create did not denormalize board_id: %q", card.BoardID)
	}

	// second board in the same workspace to prove board_id follows the list
	other := &models.Board{WorkspaceID: ws.ID, Name: "Other"}
	if err := db.CreateBoard(other, "u-owner"); err != nil {
		t.Fatalf("create board: %v", err)
	}
	foreign := &models.List{BoardID: other.ID, Name: "Elsewhere"}
	if err := db.CreateList(foreign, eng); err != nil {
		t.Fatalf("create list: %v", err)
	}

	if err := db.MoveCard(card.ID, foreign.ID, 0, eng); err != nil {
		t.Fatalf("move: %v", err)
	}
	moved, err := db.GetCard(card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if moved.ListID != foreign.ID || moved.BoardID != other.ID {
		t.Errorf("card after move: list=%s board=%s", moved.ListID, moved.BoardID)
	}
}

func TestConsumeInvitationCAS(t *testing.T) {
	db := NewLocalDatabase()
	_, board := seedBoard(t, db)

	inv := &models.BoardInvitation{BoardID: board.ID, InviterID: "u-owner", Token: "tok"}
	if err := db.CreateInvitation(inv); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = db.ConsumeInvitation(inv.ID, &models.BoardMembership{
				BoardID: board.ID,
				UserID:  fmt.Sprintf("u-%d", i),
				Role:    models.BoardRoleMember,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyConsumed):
		default:
			t.Errorf("caller %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	// the losers left no membership rows behind
	members, err := db.ListBoardMembers(board.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 { // board owner + the single winner
		t.Fatalf("board members = %d, want 2", len(members))
	}

	_, err = db.ConsumeInvitation("missing", &models.BoardMembership{BoardID: board.ID, UserID: "u-x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentAppendsStayDistinct(t *testing.T) {
	db := NewLocalDatabase()
	_, board := seedBoard(t, db)
	eng := position.NewEngine(1024)

	list := &models.List{BoardID: board.ID, Name: "Todo"}
	if err := db.CreateList(list, eng); err != nil {
		t.Fatalf("create list: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &models.Card{ListID: list.ID, Title: fmt.Sprintf("card-%d", i)}
			if err := db.CreateCard(c, eng); err != nil {
				t.Errorf("create card %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	cards, err := db.ListCardsByList(list.ID)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(cards) != n {
		t.Fatalf("cards = %d, want %d", len(cards), n)
	}
	seen := make(map[int64]bool, n)
	for _, c := range cards {
		if seen[c.Position] {
			t.Fatalf("duplicate position %d", c.Position)
		}
		seen[c.Position] = true
	}
}

func TestUpsertWorkspaceMembershipUpdatesInPlace(t *testing.T) {
	db := NewLocalDatabase()
	ws, _ := seedBoard(t, db)

	guest := &models.User{ID: "u-guest", Email: "guest@example.com"}
	if err := db.CreateUser(guest); err != nil {
		t.Fatalf("create user: %v", err)
	}

	m := &models.WorkspaceMembership{
		WorkspaceID: ws.ID,
		UserID:      guest.ID,
		Role:        models.WorkspaceRoleMember,
		Status:      models.MemberStatusPending,
	}
	if err := db.UpsertWorkspaceMembership(m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	firstID := m.ID

	m.Status = models.MemberStatusAccepted
	if err := db.UpsertWorkspaceMembership(m); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if m.ID != firstID {
		t.Errorf("upsert created a second row: %s vs %s", m.ID, firstID)
	}

	stored, err := db.GetWorkspaceMembership(guest.ID, ws.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.MemberStatusAccepted {
		t.Errorf("status = %s, want accepted", stored.Status)
	}
}

func TestInviteLinkTokenLifecycle(t *testing.T) {
	db := NewLocalDatabase()
	_, board := seedBoard(t, db)

	if err := db.SetBoardInviteLinkToken(board.ID, "link-1"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	got, err := db.GetBoardByInviteLinkToken("link-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != board.ID {
		t.Errorf("board = %s, want %s", got.ID, board.ID)
	}

	// revoke: the empty token must never match anything
	if err := db.SetBoardInviteLinkToken(board.ID, ""); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := db.GetBoardByInviteLinkToken(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty token lookup: got %v, want ErrNotFound", err)
	}
	if _, err := db.GetBoardByInviteLinkToken("link-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked token lookup: got %v, want ErrNotFound", err)
	}
}
