package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatsync/internal/store"
	"chatsync/internal/transport/httpdto"
)

type UserHandler struct {
	store store.Store
}

func NewUserHandler(st store.Store) *UserHandler {
	return &UserHandler{store: st}
}

// List returns the whole directory.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.store.GetUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromUserRecords(users)))
}
