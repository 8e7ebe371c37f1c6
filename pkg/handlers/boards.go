package handlers

import (
	"fmt"
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/config"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/invite"
	"board-collab-backend/pkg/middleware"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/utils"
)

// BoardsHandler 看板相关的HTTP处理器
type BoardsHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	resolver *access.Resolver
	broker   *invite.Broker
}

// NewBoardsHandler 创建看板处理器
func NewBoardsHandler(cfg *config.Config, db database.DatabaseInterface, resolver *access.Resolver, broker *invite.Broker) *BoardsHandler {
	return &BoardsHandler{config: cfg, db: db, resolver: resolver, broker: broker}
}

// POST /api/workspaces/{id}/boards
func (h *BoardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	workspaceID := chiRoute.URLParam(r, "id")

	// 任意已接受的工作区成员都可以创建看板，创建者成为看板 owner
	if _, err := h.resolver.ResolveWorkspace(user, workspaceID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	board := &models.Board{
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := h.db.CreateBoard(board, user.ID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Create board failed: "+err.Error())
		return
	}

	// 新看板自带一个永久邀请链接，owner 可随时轮换或撤销
	linkToken, err := h.broker.RotateLink(board.ID)
	if err != nil {
		fmt.Printf("[warn] failed to create invite link for board %s: %v\n", board.ID, err)
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"board":             board,
		"invite_link_token": linkToken,
	})
}

// GET /api/workspaces/{id}/boards
func (h *BoardsHandler) ListByWorkspace(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	workspaceID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.ResolveWorkspace(user, workspaceID); err != nil {
		writeDomainError(w, err)
		return
	}

	boards, err := h.db.ListWorkspaceBoards(workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"boards": boards})
}

// GET /api/boards/{id}
func (h *BoardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	grant, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID}, access.Requirement{})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	board, err := h.db.GetBoard(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	lists, err := h.db.ListListsByBoard(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"board":       board,
		"lists":       lists,
		"role":        grant.Role,
		"permissions": grant.Permissions,
	})
}

// GET /api/boards/{id}/members
func (h *BoardsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID}, access.Requirement{}); err != nil {
		writeDomainError(w, err)
		return
	}

	members, err := h.db.ListBoardMembers(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"members": members})
}

// PUT /api/boards/{id}/members/{userID}
//
// 调整成员的角色与权限集（需要 MANAGE_MEMBERS）
func (h *BoardsHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")
	targetID := chiRoute.URLParam(r, "userID")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermManageMembers}}); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Role        string                   `json:"role"`
		Permissions []models.BoardPermission `json:"permissions"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	membership, err := h.db.GetBoardMembership(targetID, boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Role != "" {
		role := models.BoardRole(req.Role)
		if !role.Valid() {
			utils.WriteValidationErrorResponse(w, "Invalid role", "")
			return
		}
		membership.Role = role
	}
	if req.Permissions != nil {
		for _, p := range req.Permissions {
			if !containsPermission(models.AllBoardPermissions, p) {
				utils.WriteValidationErrorResponse(w, "Unknown permission: "+string(p), "")
				return
			}
		}
		membership.Permissions = req.Permissions
	}

	if err := h.db.UpsertBoardMembership(membership); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Update member failed: "+err.Error())
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"membership": membership})
}

// POST /api/boards/{id}/invitations
//
// 签发单次邀请（需要 INVITE_MEMBERS）
func (h *BoardsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermInviteMembers}}); err != nil {
		writeDomainError(w, err)
		return
	}

	var req invite.Target
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	issued, err := h.broker.Issue(boardID, user, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, issued)
}

// GET /api/boards/{id}/invitations
func (h *BoardsHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermInviteMembers}}); err != nil {
		writeDomainError(w, err)
		return
	}

	invitations, err := h.db.ListBoardInvitations(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"invitations": invitations})
}

// POST /api/boards/{id}/invite-link
//
// 轮换永久邀请链接（需要 MANAGE_MEMBERS），旧链接立即失效
func (h *BoardsHandler) RotateInviteLink(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermManageMembers}}); err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.broker.RotateLink(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"token": token,
		"link":  h.config.BaseURL + "/boards/join/" + token,
	})
}

// DELETE /api/boards/{id}/invite-link
func (h *BoardsHandler) RevokeInviteLink(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermManageMembers}}); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.broker.RevokeLink(boardID); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"revoked": true})
}

// POST /api/boards/join/{token}
//
// 通过永久链接加入看板（要求已是所属工作区成员）
func (h *BoardsHandler) JoinByLink(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	token := chiRoute.URLParam(r, "token")

	board, membership, err := h.broker.AcceptLink(token, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"board":      board,
		"membership": membership,
	})
}

func containsPermission(set []models.BoardPermission, p models.BoardPermission) bool {
	for _, have := range set {
		if have == p {
			return true
		}
	}
	return false
}
