package handlers

import (
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/config"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/middleware"
	"board-collab-backend/pkg/models"
	"board-collab-backend/pkg/position"
	"board-collab-backend/pkg/utils"
)

// ListsHandler 列表（看板内的有序容器）HTTP处理器
type ListsHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	resolver *access.Resolver
	engine   *position.Engine
}

// NewListsHandler 创建列表处理器
func NewListsHandler(cfg *config.Config, db database.DatabaseInterface, resolver *access.Resolver, engine *position.Engine) *ListsHandler {
	return &ListsHandler{config: cfg, db: db, resolver: resolver, engine: engine}
}

// POST /api/boards/{id}/lists
func (h *ListsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermCreateList}}); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "Name is required", "")
		return
	}

	list := &models.List{
		BoardID: boardID,
		Name:    strings.TrimSpace(req.Name),
	}
	if err := h.db.CreateList(list, h.engine); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Create list failed: "+err.Error())
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"list": list})
}

// GET /api/boards/{id}/lists
//
// 按 position 升序返回，客户端不需要自己排序
func (h *ListsHandler) ListByBoard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	boardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindBoard, ID: boardID}, access.Requirement{}); err != nil {
		writeDomainError(w, err)
		return
	}

	lists, err := h.db.ListListsByBoard(boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"lists": lists})
}

// PUT /api/lists/{id}/position
//
// 将列表移动到同一看板内的目标下标
func (h *ListsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	listID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindList, ID: listID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermEditList}}); err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Index *int `json:"index"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Index == nil || *req.Index < 0 {
		utils.WriteValidationErrorResponse(w, "A non-negative index is required", "")
		return
	}

	if err := h.db.ReorderList(listID, *req.Index, h.engine); err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.db.GetList(listID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"list": list})
}
