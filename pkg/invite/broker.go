// Package invite owns the full lifecycle of board invitations: single-use,
// time-limited tokens with a durable audit record, plus the permanent
// (reusable, revocable) per-board join link.
//
// 职责划分：数据库中的 BoardInvitation 记录是消费状态的唯一权威来源；
// TTL 缓存仅作为 verify 的廉价路径，绝不参与单次使用判定。
package invite

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/cache"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/notify"
	"board-collab-backend/pkg/utils"
)

var (
	// ErrInvalidOrExpired covers every verify/accept failure that must not
	// reveal whether the token ever existed: unknown, expired, or (for
	// verify) already consumed.
	ErrInvalidOrExpired = errors.New("invitation invalid or expired")
	// ErrAlreadyUsed is accept's distinct outcome for a token whose
	// single use has been spent.
	ErrAlreadyUsed = errors.New("invitation already used")
)

// CachePayload is the verification shortcut stored under the token. It is a
// denormalized snapshot taken at issue time; accept never trusts it.
type CachePayload struct {
	InvitationID  string    `json:"invitation_id"`
	BoardID       string    `json:"board_id"`
	BoardName     string    `json:"board_name"`
	InviterName   string    `json:"inviter_name"`
	InvitedEmail  string    `json:"invited_email,omitempty"`
	InvitedUserID string    `json:"invited_user_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Target identifies who an invitation is for. Either field may be empty;
// an invitation with neither is an open token usable by any signed-in user.
type Target struct {
	Email  string `json:"email,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Issued is the result of issuing an invitation.
type Issued struct {
	Invitation *models.BoardInvitation `json:"invitation"`
	Token      string                  `json:"token"`
	Link       string                  `json:"link"`
}

// Broker coordinates durable records, the TTL cache and outbound
// notifications for invitation issue / verify / accept.
type Broker struct {
	db       database.DatabaseInterface
	cache    cache.TTLCache
	notifier notify.Sender
	ttl      time.Duration
	baseURL  string

	// 可注入时钟与 token 生成器，便于测试过期与冲突场景
	now      func() time.Time
	newToken func() (string, error)
}

// NewBroker 创建邀请协调器
func NewBroker(db database.DatabaseInterface, c cache.TTLCache, notifier notify.Sender, ttl time.Duration, baseURL string) *Broker {
	return &Broker{
		db:       db,
		cache:    c,
		notifier: notifier,
		ttl:      ttl,
		baseURL:  baseURL,
		now:      time.Now,
		newToken: func() (string, error) { return utils.GenerateURLToken(24) },
	}
}

func cacheKey(token string) string {
	return "invite:" + token
}

func (b *Broker) inviteLink(token string) string {
	return fmt.Sprintf("%s/invitations/%s", b.baseURL, token)
}

// Issue creates a single-use invitation for a board: a durable audit record,
// a cache entry for cheap verification, and a best-effort notification when
// the target has an email. The caller must already hold invite authority on
// the board.
func (b *Broker) Issue(boardID string, inviter *models.User, target Target) (*Issued, error) {
	board, err := b.db.GetBoard(boardID)
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}

	token, err := b.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}

	now := b.now()
	inv := &models.BoardInvitation{
		ID:            uuid.New().String(),
		BoardID:       board.ID,
		InviterID:     inviter.ID,
		InvitedEmail:  target.Email,
		InvitedUserID: target.UserID,
		Token:         token,
		ExpiresAt:     now.Add(b.ttl),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := b.db.CreateInvitation(inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	payload := CachePayload{
		InvitationID:  inv.ID,
		BoardID:       board.ID,
		BoardName:     board.Name,
		InviterName:   inviterName(inviter),
		InvitedEmail:  target.Email,
		InvitedUserID: target.UserID,
		ExpiresAt:     inv.ExpiresAt,
	}
	if data, err := json.Marshal(payload); err == nil {
		b.cache.Set(cacheKey(token), data, b.ttl)
	}

	// 通知失败不影响邀请本身
	if target.Email != "" {
		err := b.notifier.SendBoardInvitation(notify.BoardInvitation{
			InvitedEmail:   target.Email,
			BoardName:      board.Name,
			InviterName:    payload.InviterName,
			InvitationLink: b.inviteLink(token),
		})
		if err != nil {
			fmt.Printf("⚠️ Failed to send invitation notification: %v\n", err)
		}
	}

	return &Issued{Invitation: inv, Token: token, Link: b.inviteLink(token)}, nil
}

// Verify is a pure read: it returns the invitation snapshot for a live,
// unconsumed token and never mutates anything. The cache is the cheap path;
// a cache miss falls back to the durable record instead of implying the
// token is invalid.
func (b *Broker) Verify(token string) (*CachePayload, error) {
	if data, ok := b.cache.Get(cacheKey(token)); ok {
		var payload CachePayload
		if err := json.Unmarshal(data, &payload); err == nil && b.now().Before(payload.ExpiresAt) {
			return &payload, nil
		}
	}

	inv, err := b.db.GetInvitationByToken(token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Consumed || inv.IsExpired(b.now()) {
		return nil, ErrInvalidOrExpired
	}

	payload := &CachePayload{
		InvitationID:  inv.ID,
		BoardID:       inv.BoardID,
		InvitedEmail:  inv.InvitedEmail,
		InvitedUserID: inv.InvitedUserID,
		ExpiresAt:     inv.ExpiresAt,
	}
	// 补充展示信息，失败时留空即可
	if board, err := b.db.GetBoard(inv.BoardID); err == nil {
		payload.BoardName = board.Name
	}
	if inviter, err := b.db.GetUserByID(inv.InviterID); err == nil {
		payload.InviterName = inviterName(inviter)
	}

	// re-warm the cache for the remaining validity window
	if data, err := json.Marshal(payload); err == nil {
		b.cache.Set(cacheKey(token), data, inv.ExpiresAt.Sub(b.now()))
	}
	return payload, nil
}

// Accept consumes the token and grants board membership. The durable record
// is re-read and consumed with check-and-set semantics, so of N concurrent
// accepts exactly one wins; the rest get ErrAlreadyUsed. Consumption and
// the membership write commit together: a failed accept leaves the token
// unspent. A user who is already on the board keeps their membership
// unchanged.
func (b *Broker) Accept(token string, user *models.User) (*models.BoardMembership, error) {
	if user == nil {
		return nil, access.ErrAuthenticationRequired
	}

	inv, err := b.db.GetInvitationByToken(token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.IsExpired(b.now()) {
		return nil, ErrInvalidOrExpired
	}
	if inv.Consumed {
		return nil, ErrAlreadyUsed
	}

	membership, err := b.db.ConsumeInvitation(inv.ID, b.newMembership(inv.BoardID, user.ID))
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyConsumed):
			return nil, ErrAlreadyUsed
		case errors.Is(err, database.ErrNotFound):
			return nil, ErrInvalidOrExpired
		default:
			return nil, fmt.Errorf("consume invitation: %w", err)
		}
	}

	b.cache.Delete(cacheKey(token))
	return membership, nil
}

// AcceptLink joins a board through its permanent link. The link is reusable
// and only requires the joiner to already belong to the board's workspace.
func (b *Broker) AcceptLink(token string, user *models.User) (*models.Board, *models.BoardMembership, error) {
	if user == nil {
		return nil, nil, access.ErrAuthenticationRequired
	}

	board, err := b.db.GetBoardByInviteLinkToken(token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrInvalidOrExpired
		}
		return nil, nil, fmt.Errorf("get board by invite link: %w", err)
	}

	wm, err := b.db.GetWorkspaceMembership(user.ID, board.WorkspaceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, access.ErrNotMember
		}
		return nil, nil, fmt.Errorf("get workspace membership: %w", err)
	}
	if wm.Status != models.MemberStatusAccepted {
		return nil, nil, access.ErrNotMember
	}

	membership, err := b.ensureMembership(board.ID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return board, membership, nil
}

// RotateLink issues a fresh permanent link token for the board, invalidating
// the previous one.
func (b *Broker) RotateLink(boardID string) (string, error) {
	token, err := b.newToken()
	if err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	if err := b.db.SetBoardInviteLinkToken(boardID, token); err != nil {
		return "", fmt.Errorf("set invite link token: %w", err)
	}
	return token, nil
}

// RevokeLink disables the board's permanent link until a new one is rotated.
func (b *Broker) RevokeLink(boardID string) error {
	if err := b.db.SetBoardInviteLinkToken(boardID, ""); err != nil {
		return fmt.Errorf("revoke invite link token: %w", err)
	}
	return nil
}

// ensureMembership creates a member-role membership with the default
// permission set, or returns the existing one unchanged.
func (b *Broker) ensureMembership(boardID, userID string) (*models.BoardMembership, error) {
	existing, err := b.db.GetBoardMembership(userID, boardID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("get board membership: %w", err)
	}

	membership := b.newMembership(boardID, userID)
	if err := b.db.UpsertBoardMembership(membership); err != nil {
		return nil, fmt.Errorf("upsert board membership: %w", err)
	}
	return membership, nil
}

// newMembership is the membership template every join path grants: member
// role with the default permission set.
func (b *Broker) newMembership(boardID, userID string) *models.BoardMembership {
	return &models.BoardMembership{
		ID:          uuid.New().String(),
		BoardID:     boardID,
		UserID:      userID,
		Role:        models.BoardRoleMember,
		Permissions: append([]models.BoardPermission(nil), models.DefaultMemberPermissions...),
		CreatedAt:   b.now(),
	}
}

func inviterName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
