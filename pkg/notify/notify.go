// Package notify delivers outbound notifications. Delivery is always
// best-effort: callers log failures and never propagate them.
package notify

import "fmt"

// BoardInvitation carries everything an invitation email needs.
type BoardInvitation struct {
	InvitedEmail   string
	BoardName      string
	InviterName    string
	InvitationLink string
}

// Sender 通知发送能力（fire-and-forget）
type Sender interface {
	SendBoardInvitation(inv BoardInvitation) error
}

// ConsoleSender writes notifications to stdout. Used in development and as
// the default when no mail provider is configured.
type ConsoleSender struct{}

// NewConsoleSender 创建控制台通知发送器
func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{}
}

// SendBoardInvitation 打印邀请通知
func (s *ConsoleSender) SendBoardInvitation(inv BoardInvitation) error {
	fmt.Printf("📧 Invitation: to=%s board=%q inviter=%q link=%s\n",
		inv.InvitedEmail, inv.BoardName, inv.InviterName, inv.InvitationLink)
	return nil
}
