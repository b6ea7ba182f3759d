package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatsync/internal/auth"
	"chatsync/internal/domain"
	"chatsync/internal/store"
	"chatsync/internal/transport/httpdto"
)

// AuthHandler provisions identities. There is no password flow; callers
// declare who they are and get a token scoped to that identity.
type AuthHandler struct {
	auth  *auth.Service
	store store.Store
}

func NewAuthHandler(authService *auth.Service, st store.Store) *AuthHandler {
	return &AuthHandler{auth: authService, store: st}
}

// Token registers the user in the directory and mints an access token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req httpdto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	rec := store.UserRecord{ID: userID, Name: req.Name, AvatarURL: req.AvatarURL}
	if err := h.store.PutUser(c.Request.Context(), rec); err != nil {
		respondError(c, err)
		return
	}

	token, expiresAt, err := h.auth.Mint(domain.User{ID: userID, Name: req.Name, AvatarURL: req.AvatarURL}, req.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.TokenResponse{
		UserID:      userID,
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}))
}
