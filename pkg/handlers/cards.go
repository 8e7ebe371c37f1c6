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

// CardsHandler 卡片HTTP处理器
type CardsHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	resolver *access.Resolver
	engine   *position.Engine
}

// NewCardsHandler 创建卡片处理器
func NewCardsHandler(cfg *config.Config, db database.DatabaseInterface, resolver *access.Resolver, engine *position.Engine) *CardsHandler {
	return &CardsHandler{config: cfg, db: db, resolver: resolver, engine: engine}
}

// POST /api/lists/{id}/cards
func (h *CardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	listID := chiRoute.URLParam(r, "id")

	grant, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindList, ID: listID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermCreateCard}})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		utils.WriteValidationErrorResponse(w, "Title is required", "")
		return
	}

	card := &models.Card{
		ListID:      listID,
		BoardID:     grant.Chain.BoardID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	}
	if err := h.db.CreateCard(card, h.engine); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Create card failed: "+err.Error())
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"card": card})
}

// GET /api/lists/{id}/cards
func (h *CardsHandler) ListByList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	listID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindList, ID: listID}, access.Requirement{}); err != nil {
		writeDomainError(w, err)
		return
	}

	cards, err := h.db.ListCardsByList(listID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"cards": cards})
}

// GET /api/cards/{id}
func (h *CardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	cardID := chiRoute.URLParam(r, "id")

	if _, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindCard, ID: cardID}, access.Requirement{}); err != nil {
		writeDomainError(w, err)
		return
	}

	card, err := h.db.GetCard(cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"card": card})
}

// PUT /api/cards/{id}/position
//
// 在当前列表内移动，或给出 list_id 跨列表移动；board_id 始终跟随目标列表
func (h *CardsHandler) Move(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())
	cardID := chiRoute.URLParam(r, "id")

	grant, err := h.resolver.Resolve(user,
		access.ResourceRef{Kind: access.KindCard, ID: cardID},
		access.Requirement{Permissions: []models.BoardPermission{models.PermMoveCard}})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		ListID string `json:"list_id"`
		Index  *int   `json:"index"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Index == nil || *req.Index < 0 {
		utils.WriteValidationErrorResponse(w, "A non-negative index is required", "")
		return
	}

	targetListID := strings.TrimSpace(req.ListID)
	if targetListID == "" {
		targetListID = grant.Chain.ListID
	} else if targetListID != grant.Chain.ListID {
		// 跨列表移动：目标列表必须属于同一个看板
		targetList, err := h.db.GetList(targetListID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if targetList.BoardID != grant.Chain.BoardID {
			utils.WriteValidationErrorResponse(w, "Target list belongs to a different board", "")
			return
		}
	}

	if err := h.db.MoveCard(cardID, targetListID, *req.Index, h.engine); err != nil {
		writeDomainError(w, err)
		return
	}

	card, err := h.db.GetCard(cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"card": card})
}
