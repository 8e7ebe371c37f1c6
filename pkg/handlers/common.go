// Package handlers contains the HTTP layer. Every guarded route funnels its
// authorization decision through access.Resolver; handlers never re-derive
// membership themselves.
package handlers

import (
	"errors"
	"net/http"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/invite"
	"board-collab-backend/pkg/utils"
)

// writeDomainError 将领域错误映射为统一的HTTP错误响应
//
// The denial sets of the resolver and the broker are closed, so this switch
// is the single place where reasons become status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrAuthenticationRequired):
		utils.WriteUnauthorizedResponse(w, "Authentication required")
	case errors.Is(err, access.ErrResourceNotFound):
		utils.WriteNotFoundResponse(w, "Resource not found")
	case errors.Is(err, access.ErrNotMember):
		utils.WriteForbiddenResponse(w, "Not a member")
	case errors.Is(err, access.ErrInsufficientRole):
		utils.WriteForbiddenResponse(w, "Insufficient role")
	case errors.Is(err, access.ErrInsufficientPermission):
		utils.WriteForbiddenResponse(w, "Insufficient permission")
	case errors.Is(err, invite.ErrInvalidOrExpired):
		utils.WriteNotFoundResponse(w, "Invitation invalid or expired")
	case errors.Is(err, invite.ErrAlreadyUsed):
		utils.WriteConflictResponse(w, "Invitation already used")
	case errors.Is(err, database.ErrNotFound):
		utils.WriteNotFoundResponse(w, "Resource not found")
	default:
		utils.WriteInternalServerErrorResponse(w, err.Error())
	}
}
