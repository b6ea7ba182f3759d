package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatsync/internal/transport/httpdto"
	chatsync_errors "chatsync/pkg/errors"
)

// respondError maps domain sentinels onto HTTP statuses and the error
// envelope every endpoint shares.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chatsync_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "NOT_FOUND"))
	case errors.Is(err, chatsync_errors.ErrAlreadyExists), errors.Is(err, chatsync_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "CONFLICT"))
	case errors.Is(err, chatsync_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, chatsync_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, chatsync_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
	case errors.Is(err, chatsync_errors.ErrUpload):
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse(err.Error(), "UPLOAD_FAILED"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
