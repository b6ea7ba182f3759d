package handler

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatsync/internal/middleware"
	"chatsync/internal/storage"
	"chatsync/internal/transport/httpdto"
	"chatsync/internal/uploads"
)

type UploadHandler struct {
	uploader uploads.MediaUploader
}

func NewUploadHandler(uploader uploads.MediaUploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

// Upload puts one media object and returns its durable URL. Clients resolve
// all of a draft's media here before submitting the message.
func (h *UploadHandler) Upload(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if err := storage.ValidateContentType(req.ContentType); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	key := objectKey(session.UserID(), req.Filename)
	url, err := h.uploader.Upload(c.Request.Context(), key, req.ContentType, req.Data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadResponse{URL: url}))
}

func objectKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("uploads/%s/%s%s", userID, uuid.NewString(), ext)
}
