package handlers

import (
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/config"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/middleware"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/utils"
)

// WorkspacesHandler 工作区相关的HTTP处理器
type WorkspacesHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	resolver *access.Resolver
}

// NewWorkspacesHandler 创建工作区处理器
func NewWorkspacesHandler(cfg *config.Config, db database.DatabaseInterface, resolver *access.Resolver) *WorkspacesHandler {
	return &WorkspacesHandler{config: cfg, db: db, resolver: resolver}
}

// POST /api/workspaces
func (h *WorkspacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	ws := &models.Workspace{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Avatar:      req.Avatar,
		OwnerID:     user.ID,
	}
	if err := h.db.CreateWorkspace(ws); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Create workspace failed: "+err.Error())
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{"workspace": ws})
}

// GET /api/workspaces
func (h *WorkspacesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaces, err := h.db.ListUserWorkspaces(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"workspaces": workspaces})
}

// GET /api/workspaces/{id}
func (h *WorkspacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	workspaceID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.ResolveWorkspace(user, workspaceID); err != nil {
		writeDomainError(w, err)
		return
	}

	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"workspace": ws})
}

// GET /api/workspaces/{id}/members
func (h *WorkspacesHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	workspaceID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.ResolveWorkspace(user, workspaceID); err != nil {
		writeDomainError(w, err)
		return
	}

	members, err := h.db.ListWorkspaceMembers(workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"members": members})
}

// POST /api/workspaces/{id}/members
//
// 添加成员（owner/admin），新成员状态为 pending，需本人接受
func (h *WorkspacesHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	workspaceID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.ResolveWorkspace(user, workspaceID,
		models.WorkspaceRoleOwner, models.WorkspaceRoleAdmin); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Role   string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	targetID := strings.TrimSpace(req.UserID)
	if targetID == "" && strings.TrimSpace(req.Email) != "" {
		target, err := h.db.GetUserByEmail(strings.TrimSpace(strings.ToLower(req.Email)))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		targetID = target.ID
	}
	if targetID == "" {
		utils.WriteValidationErrorResponse(w, "user_id or email is required", "")
		return
	}

	role := models.WorkspaceRole(req.Role)
	if req.Role == "" {
		role = models.WorkspaceRoleMember
	}
	if !role.Valid() || role == models.WorkspaceRoleOwner {
		utils.WriteValidationErrorResponse(w, "Invalid role", "")
		return
	}

	membership := &models.WorkspaceMembership{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		UserID:      targetID,
		Role:        role,
		Status:      models.MemberStatusPending,
	}
	if err := h.db.UpsertWorkspaceMembership(membership); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Add member failed: "+err.Error())
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"membership": membership})
}

// POST /api/workspaces/{id}/respond
//
// 本人对 pending 成员资格进行 accept/decline
func (h *WorkspacesHandler) RespondMembership(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	workspaceID := chiRoute.URLParam(r, "id")

	var req struct {
		Accept bool `json:"accept"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	membership, err := h.db.GetWorkspaceMembership(user.ID, workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Accept {
		membership.Status = models.MemberStatusAccepted
	} else {
		membership.Status = models.MemberStatusDeclined
	}
	if err := h.db.UpsertWorkspaceMembership(membership); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Update membership failed: "+err.Error())
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"membership": membership})
}
