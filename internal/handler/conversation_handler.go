package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatsync/internal/chat"
	"chatsync/internal/domain"
	"chatsync/internal/middleware"
	"chatsync/internal/store"
	"chatsync/internal/transport/httpdto"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

type ConversationHandler struct {
	store store.Store
	log   *logger.Logger
}

func NewConversationHandler(st store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{store: st, log: log}
}

// List returns every conversation the caller participates in.
func (h *ConversationHandler) List(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversations, err := h.store.GetConversations(c.Request.Context(), session.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.userIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationRecords(conversations, users)))
}

// Get returns one conversation the caller participates in.
func (h *ConversationHandler) Get(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	rec, err := h.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !participant(rec, session.UserID()) {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}
	users, err := h.userIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationRecord(rec, users)))
}

// CreateDirect creates the direct conversation with a peer. Both sides of a
// creation race may succeed; clients converge through their membership
// subscription.
func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	peer, err := h.peerUser(c, req.PeerID)
	if err != nil {
		respondError(c, err)
		return
	}

	lifecycle := chat.NewLifecycle(h.store, session, h.log)
	rec, err := lifecycle.CreateDirect(c.Request.Context(), peer)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.userIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationRecord(rec, users)))
}

// CreateGroup creates a group conversation eagerly.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	lifecycle := chat.NewLifecycle(h.store, session, h.log)
	rec, err := lifecycle.CreateGroup(c.Request.Context(), req.Title, req.PictureURL, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.userIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationRecord(rec, users)))
}

// MarkRead zeroes the caller's unread counter; the client calls this when
// the conversation view closes.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversationID := c.Param("id")
	rec, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !participant(rec, session.UserID()) {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	if err := chat.ResetUnread(c.Request.Context(), h.store, conversationID, session.UserID()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"conversation_id": conversationID}))
}

func (h *ConversationHandler) userIndex(c *gin.Context) (map[string]store.UserRecord, error) {
	users, err := h.store.GetUsers(c.Request.Context())
	if err != nil {
		return nil, err
	}
	index := make(map[string]store.UserRecord, len(users))
	for _, u := range users {
		index[u.ID] = u
	}
	return index, nil
}

func (h *ConversationHandler) peerUser(c *gin.Context, peerID string) (domain.User, error) {
	users, err := h.store.GetUsers(c.Request.Context())
	if err != nil {
		return domain.User{}, err
	}
	for _, u := range users {
		if u.ID == peerID {
			return domain.User{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}, nil
		}
	}
	return domain.User{}, chatsync_errors.ErrNotFound
}

func participant(rec store.ConversationRecord, userID string) bool {
	for _, u := range rec.Users {
		if u == userID {
			return true
		}
	}
	return false
}
