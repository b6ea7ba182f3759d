package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatsync/internal/chat"
	"chatsync/internal/middleware"
	"chatsync/internal/store"
	"chatsync/internal/transport/httpdto"
	"chatsync/pkg/logger"
)

type MessageHandler struct {
	store store.Store
	log   *logger.Logger
}

func NewMessageHandler(st store.Store, log *logger.Logger) *MessageHandler {
	return &MessageHandler{store: st, log: log}
}

// List returns the conversation's messages ordered by createdAt.
func (h *MessageHandler) List(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversationID := c.Param("id")
	conv, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !participant(conv, session.UserID()) {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	messages, err := h.store.GetMessages(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessageRecords(conversationID, messages)))
}

// Send writes a message under its client-generated id. Resubmitting the same
// id after a lost response upserts instead of duplicating. Alongside the
// write it refreshes the conversation's latest-message cache and bumps every
// other participant's unread counter.
func (h *MessageHandler) Send(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if req.Text == "" && len(req.Attachments) == 0 && req.Recording == nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("empty message", "INVALID_REQUEST"))
		return
	}

	conversationID := c.Param("id")
	conv, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !participant(conv, session.UserID()) {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	rec := recordFromRequest(session.UserID(), req)
	if err := h.store.PutMessage(c.Request.Context(), conversationID, rec); err != nil {
		respondError(c, err)
		return
	}

	// The message is durable; the denormalized extras degrade the list view
	// at worst.
	if err := h.store.UpdateConversation(c.Request.Context(), conversationID, store.ConversationUpdate{LatestMessage: &rec}); err != nil && h.log != nil {
		h.log.Warnf("messages: caching latest on %s: %v", conversationID, err)
	}
	if err := chat.BumpUnread(c.Request.Context(), h.store, conversationID, session.UserID()); err != nil && h.log != nil {
		h.log.Warnf("messages: bumping unread on %s: %v", conversationID, err)
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessageRecord(conversationID, rec)))
}

func recordFromRequest(userID string, req httpdto.SendMessageRequest) store.MessageRecord {
	rec := store.MessageRecord{
		ID:        req.ID,
		UserID:    userID,
		CreatedAt: req.CreatedAt,
		Text:      req.Text,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	for _, a := range req.Attachments {
		rec.Attachments = append(rec.Attachments, store.AttachmentRecord{ThumbURL: a.ThumbURL, URL: a.URL, Type: a.Type})
	}
	if req.Recording != nil {
		rec.Recording = &store.RecordingRecord{
			Duration:        req.Recording.Duration,
			WaveformSamples: req.Recording.WaveformSamples,
			URL:             req.Recording.URL,
		}
	}
	if reply := req.ReplyMessage; reply != nil {
		replyRec := &store.ReplyRecord{ID: reply.ID, UserID: reply.UserID, Text: reply.Text}
		for _, a := range reply.Attachments {
			replyRec.Attachments = append(replyRec.Attachments, store.AttachmentRecord{ThumbURL: a.ThumbURL, URL: a.URL, Type: a.Type})
		}
		if reply.Recording != nil {
			replyRec.Recording = &store.RecordingRecord{
				Duration:        reply.Recording.Duration,
				WaveformSamples: reply.Recording.WaveformSamples,
				URL:             reply.Recording.URL,
			}
		}
		rec.ReplyMessage = replyRec
	}
	return rec
}
