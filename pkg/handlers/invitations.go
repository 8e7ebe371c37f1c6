package handlers

import (
	"net/http"

	chiRoute "github.com/go-chi/chi/v5"

	"board-collab-backend/pkg/config"
	"board-collab-backend/pkg/invite"
	"board-collab-backend/pkg/middleware"
	"board-collab-backend/pkg/utils"
)

// InvitationsHandler 邀请令牌的验证与接受
type InvitationsHandler struct {
	config *config.Config
	broker *invite.Broker
}

// NewInvitationsHandler 创建邀请处理器
func NewInvitationsHandler(cfg *config.Config, broker *invite.Broker) *InvitationsHandler {
	return &InvitationsHandler{config: cfg, broker: broker}
}

// GET /api/invitations/{token}
//
// 公开路由：验证令牌并返回展示信息，不产生任何副作用
func (h *InvitationsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := chiRoute.URLParam(r, "token")

	payload, err := h.broker.Verify(token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, payload)
}

// POST /api/invitations/{token}/accept
func (h *InvitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	token := chiRoute.URLParam(r, "token")

	membership, err := h.broker.Accept(token, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"membership": membership})
}
