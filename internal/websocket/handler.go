package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatsync/internal/auth"
	"chatsync/internal/presence"
	"chatsync/internal/transport/httpdto"
	"chatsync/pkg/logger"
)

// command is one client-to-server frame.
type command struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	Online         bool   `json:"online,omitempty"`
}

type Handler struct {
	auth     *auth.Service
	hub      *Hub
	bridge   *Bridge
	presence presence.Tracker
	log      *logger.Logger
}

func NewHandler(authService *auth.Service, hub *Hub, bridge *Bridge, tracker presence.Tracker, log *logger.Logger) *Handler {
	return &Handler{auth: authService, hub: hub, bridge: bridge, presence: tracker, log: log}
}

// Connect upgrades the request and serves the subscription protocol until
// the peer disconnects. Disconnecting tears down the client's subscriptions
// but does not mark the user offline; offline is an explicit signal.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.Parse(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, claims.UserID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			if h.log != nil {
				h.log.Warnf("ws: bad command from %s: %v", client.UserID, err)
			}
			continue
		}
		h.handle(ctx, client, cmd)
	}

	h.bridge.Drop(client)
	h.hub.Unregister(client)
}

func (h *Handler) handle(ctx context.Context, client *Client, cmd command) {
	var err error
	switch cmd.Action {
	case "subscribe_messages":
		err = h.bridge.Subscribe(ctx, client, MessagesPrefix+cmd.ConversationID)
	case "unsubscribe_messages":
		h.bridge.Unsubscribe(client, MessagesPrefix+cmd.ConversationID)
	case "subscribe_conversations":
		err = h.bridge.Subscribe(ctx, client, ConversationsPrefix+client.UserID)
	case "unsubscribe_conversations":
		h.bridge.Unsubscribe(client, ConversationsPrefix+client.UserID)
	case "subscribe_presence":
		err = h.bridge.Subscribe(ctx, client, PresencePrefix+cmd.UserID)
	case "unsubscribe_presence":
		h.bridge.Unsubscribe(client, PresencePrefix+cmd.UserID)
	case "typing":
		err = h.presence.SetTyping(ctx, client.UserID, cmd.IsTyping)
	case "presence":
		err = h.presence.SetOnline(ctx, client.UserID, cmd.Online)
	default:
		if h.log != nil {
			h.log.Warnf("ws: unknown action %q from %s", cmd.Action, client.UserID)
		}
		return
	}

	if err != nil && h.log != nil {
		h.log.Errorf("ws: %s for %s: %v", cmd.Action, client.UserID, err)
	}
}
