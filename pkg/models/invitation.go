package models

import "time"

// BoardInvitation is the durable audit record for a single-use, time-limited
// invitation token. The record is the source of truth for consumption; the
// cache entry keyed by Token is only a verification shortcut.
type BoardInvitation struct {
    ID            string    `json:"id" db:"id"`
    BoardID       string    `json:"board_id" db:"board_id"`
    InviterID     string    `json:"inviter_id" db:"inviter_id"`
    InvitedEmail  string    `json:"invited_email,omitempty" db:"invited_email"`
    InvitedUserID string    `json:"invited_user_id,omitempty" db:"invited_user_id"`
    Token         string    `json:"-" db:"token"`
    Consumed      bool      `json:"consumed" db:"consumed"`
    ConsumedBy    *string   `json:"consumed_by,omitempty" db:"consumed_by"`
    ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
    CreatedAt     time.Time `json:"created_at" db:"created_at"`
    UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the invitation is past its validity window.
func (inv *BoardInvitation) IsExpired(now time.Time) bool {
    return now.After(inv.ExpiresAt)
}
