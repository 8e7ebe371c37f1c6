package invite

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/cache"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/notify"
)

// recordingSender captures notifications instead of delivering them.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.BoardInvitation
	fail bool
}

func (s *recordingSender) SendBoardInvitation(inv notify.BoardInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, inv)
	return nil
}

// flakyStore fails a configurable number of ConsumeInvitation calls before
// delegating to the wrapped database.
type flakyStore struct {
	database.DatabaseInterface
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) ConsumeInvitation(id string, m *models.BoardMembership) (*models.BoardMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	return s.DatabaseInterface.ConsumeInvitation(id, m)
}

type brokerFixture struct {
	db      *database.LocalDatabase
	broker  *Broker
	sender  *recordingSender
	inviter *models.User
	joiner  *models.User
	board   *models.Board
	ws      *models.Workspace
	clock   time.Time
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	db := database.NewLocalDatabase()

	f := &brokerFixture{
		db:      db,
		sender:  &recordingSender{},
		inviter: &models.User{ID: "u-inviter", Email: "inviter@example.com", Name: "Ivy"},
		joiner:  &models.User{ID: "u-joiner", Email: "joiner@example.com"},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, u := range []*models.User{f.inviter, f.joiner} {
		if err := db.CreateUser(u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	f.ws = &models.Workspace{Name: "Acme", OwnerID: f.inviter.ID}
	if err := db.CreateWorkspace(f.ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	f.board = &models.Board{WorkspaceID: f.ws.ID, Name: "Launch"}
	if err := db.CreateBoard(f.board, f.inviter.ID); err != nil {
		t.Fatalf("create board: %v", err)
	}

	ttl := 7 * 24 * time.Hour
	f.broker = NewBroker(db, cache.NewMemoryTTLCache(64, ttl), f.sender, ttl, "http://localhost:3000")
	f.broker.now = func() time.Time { return f.clock }

	seq := 0
	f.broker.newToken = func() (string, error) {
		seq++
		return fmt.Sprintf("tok-%d", seq), nil
	}
	return f
}

func TestIssueVerifyAccept(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{Email: f.joiner.Email})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Token == "" || issued.Link == "" {
		t.Fatalf("issued token/link missing: %+v", issued)
	}

	// notification carries board name, inviter name and the link
	if len(f.sender.sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(f.sender.sent))
	}
	n := f.sender.sent[0]
	if n.BoardName != "Launch" || n.InviterName != "Ivy" || n.InvitationLink != issued.Link {
		t.Errorf("notification = %+v", n)
	}

	payload, err := f.broker.Verify(issued.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if payload.BoardID != f.board.ID || payload.BoardName != "Launch" {
		t.Errorf("payload = %+v", payload)
	}

	membership, err := f.broker.Accept(issued.Token, f.joiner)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if membership.Role != models.BoardRoleMember {
		t.Errorf("role = %s, want member", membership.Role)
	}
	if membership.HasPermission(models.PermManageMembers) {
		t.Error("an invited member must not receive management permissions")
	}

	// the audit record now shows who consumed the token
	inv, err := f.db.GetInvitationByToken(issued.Token)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if !inv.Consumed || inv.ConsumedBy == nil || *inv.ConsumedBy != f.joiner.ID {
		t.Errorf("audit record = %+v", inv)
	}
}

func TestVerifyIsPure(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// verifying many times consumes nothing
	for i := 0; i < 5; i++ {
		if _, err := f.broker.Verify(issued.Token); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	inv, err := f.db.GetInvitationByToken(issued.Token)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Consumed {
		t.Error("verify must not consume the invitation")
	}
}

// A cache miss is not treated as invalid: verify falls back to the durable
// record.
func TestVerifySurvivesCacheLoss(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.broker.cache.Delete("invite:" + issued.Token)

	payload, err := f.broker.Verify(issued.Token)
	if err != nil {
		t.Fatalf("verify after cache loss: %v", err)
	}
	if payload.BoardName != "Launch" || payload.InviterName != "Ivy" {
		t.Errorf("rebuilt payload = %+v", payload)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	f := newBrokerFixture(t)

	_, err := f.broker.Verify("no-such-token")
	if !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("got %v, want ErrInvalidOrExpired", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// one second before the deadline everything still works
	f.clock = f.clock.Add(7*24*time.Hour - time.Second)
	if _, err := f.broker.Verify(issued.Token); err != nil {
		t.Errorf("verify just before expiry: %v", err)
	}

	// past the deadline both verify and accept deny
	f.clock = f.clock.Add(2 * time.Second)
	if _, err := f.broker.Verify(issued.Token); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("verify after expiry: got %v, want ErrInvalidOrExpired", err)
	}
	if _, err := f.broker.Accept(issued.Token, f.joiner); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("accept after expiry: got %v, want ErrInvalidOrExpired", err)
	}
}

func TestAcceptSingleUse(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := f.broker.Accept(issued.Token, f.joiner); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err = f.broker.Accept(issued.Token, f.joiner)
	if !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("second accept: got %v, want ErrAlreadyUsed", err)
	}
}

// Of N concurrent accepts exactly one wins; the check-and-set on the durable
// record is the arbiter, not the cache.
func TestConcurrentAcceptExactlyOneWinner(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const n = 16
	users := make([]*models.User, n)
	for i := range users {
		users[i] = &models.User{ID: fmt.Sprintf("u-racer-%d", i), Email: fmt.Sprintf("racer%d@example.com", i)}
		if err := f.db.CreateUser(users[i]); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.broker.Accept(issued.Token, users[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyUsed):
		default:
			t.Errorf("racer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	// exactly one membership row came out of the race
	members, err := f.db.ListBoardMembers(f.board.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 { // board owner + the single winner
		t.Errorf("board members = %d, want 2", len(members))
	}
}

// Accepting while already a member consumes the token but leaves the
// existing membership untouched.
func TestAcceptIdempotentMembership(t *testing.T) {
	f := newBrokerFixture(t)

	existing := &models.BoardMembership{
		BoardID:     f.board.ID,
		UserID:      f.joiner.ID,
		Role:        models.BoardRoleMember,
		Permissions: []models.BoardPermission{models.PermManageBoard},
	}
	if err := f.db.UpsertBoardMembership(existing); err != nil {
		t.Fatalf("seed membership: %v", err)
	}

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	membership, err := f.broker.Accept(issued.Token, f.joiner)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !membership.HasPermission(models.PermManageBoard) {
		t.Error("existing membership was overwritten by accept")
	}
}

// A storage failure during accept must not leave partial state behind: the
// consume flag and the membership write commit together or not at all, so
// the token stays spendable for a retry.
func TestAcceptStorageFailureLeavesTokenUnspent(t *testing.T) {
	f := newBrokerFixture(t)

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.broker.db = &flakyStore{DatabaseInterface: f.db, failures: 1}

	if _, err := f.broker.Accept(issued.Token, f.joiner); err == nil {
		t.Fatal("accept should surface the storage failure")
	}

	inv, err := f.db.GetInvitationByToken(issued.Token)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Consumed {
		t.Fatal("a failed accept must not consume the token")
	}
	if _, err := f.db.GetBoardMembership(f.joiner.ID, f.board.ID); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("membership after failed accept: got %v, want ErrNotFound", err)
	}

	// the same token works once the storage recovers
	membership, err := f.broker.Accept(issued.Token, f.joiner)
	if err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if membership.Role != models.BoardRoleMember {
		t.Errorf("role = %s, want member", membership.Role)
	}
}

func TestPermanentLink(t *testing.T) {
	f := newBrokerFixture(t)

	token, err := f.broker.RotateLink(f.board.ID)
	if err != nil {
		t.Fatalf("rotate link: %v", err)
	}

	// joiner is not a workspace member yet: the link alone is not enough
	_, _, err = f.broker.AcceptLink(token, f.joiner)
	if !errors.Is(err, access.ErrNotMember) {
		t.Fatalf("got %v, want ErrNotMember for non-workspace-member", err)
	}

	if err := f.db.UpsertWorkspaceMembership(&models.WorkspaceMembership{
		WorkspaceID: f.ws.ID,
		UserID:      f.joiner.ID,
		Role:        models.WorkspaceRoleMember,
		Status:      models.MemberStatusAccepted,
	}); err != nil {
		t.Fatalf("workspace membership: %v", err)
	}

	board, membership, err := f.broker.AcceptLink(token, f.joiner)
	if err != nil {
		t.Fatalf("accept link: %v", err)
	}
	if board.ID != f.board.ID || membership.Role != models.BoardRoleMember {
		t.Errorf("board = %s, membership = %+v", board.ID, membership)
	}

	// the link is reusable
	if _, _, err := f.broker.AcceptLink(token, f.joiner); err != nil {
		t.Errorf("second use of permanent link: %v", err)
	}

	// rotation invalidates the old token
	fresh, err := f.broker.RotateLink(f.board.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, _, err := f.broker.AcceptLink(token, f.joiner); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("old link after rotation: got %v, want ErrInvalidOrExpired", err)
	}

	// revocation disables the link entirely
	if err := f.broker.RevokeLink(f.board.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := f.broker.AcceptLink(fresh, f.joiner); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("revoked link: got %v, want ErrInvalidOrExpired", err)
	}
}

// A failing notification never fails the issue operation.
func TestIssueSurvivesNotificationFailure(t *testing.T) {
	f := newBrokerFixture(t)
	f.sender.fail = true

	issued, err := f.broker.Issue(f.board.ID, f.inviter, Target{Email: "someone@example.com"})
	if err != nil {
		t.Fatalf("issue with failing sender: %v", err)
	}
	if _, err := f.broker.Verify(issued.Token); err != nil {
		t.Errorf("verify: %v", err)
	}
}
