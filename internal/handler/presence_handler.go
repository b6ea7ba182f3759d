package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatsync/internal/middleware"
	"chatsync/internal/presence"
	"chatsync/internal/transport/httpdto"
)

type PresenceHandler struct {
	tracker presence.Tracker
}

func NewPresenceHandler(tracker presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Set records the caller's explicit online/offline lifecycle signal. The
// tracker never flips anyone offline on its own.
func (h *PresenceHandler) Set(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.tracker.SetOnline(c.Request.Context(), session.UserID(), req.Online); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"online": req.Online}))
}

// Typing records the caller's typing flag. Clients are expected to debounce
// before calling; the server publishes whatever it is told.
func (h *PresenceHandler) Typing(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.tracker.SetTyping(c.Request.Context(), session.UserID(), req.IsTyping); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"is_typing": req.IsTyping}))
}

// Get returns one user's current presence.
func (h *PresenceHandler) Get(c *gin.Context) {
	state, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresenceDTO{
		UserID:   state.UserID,
		IsOnline: state.IsOnline,
		IsTyping: state.IsTyping,
		LastSeen: state.LastSeen,
		Status:   state.StatusText(),
	}))
}
