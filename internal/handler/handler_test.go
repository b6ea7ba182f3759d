package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/auth"
	"chatsync/internal/domain"
	"chatsync/internal/middleware"
	"chatsync/internal/presence"
	"chatsync/internal/store"
	"chatsync/internal/transport/httpdto"
	"chatsync/internal/uploads"
	"chatsync/pkg/logger"
)

type env struct {
	router *gin.Engine
	auth   *auth.Service
	store  *store.Memory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	authService := auth.NewService("test-secret", time.Hour)
	l := logger.NewNop()

	router := gin.New()
	router.POST("/v1/auth/token", NewAuthHandler(authService, st).Token)

	v1 := router.Group("/v1", middleware.Auth(authService))
	{
		v1.GET("/users", NewUserHandler(st).List)

		conv := NewConversationHandler(st, l)
		v1.GET("/conversations", conv.List)
		v1.GET("/conversations/:id", conv.Get)
		v1.POST("/conversations/direct", conv.CreateDirect)
		v1.POST("/conversations/group", conv.CreateGroup)
		v1.POST("/conversations/:id/read", conv.MarkRead)

		msg := NewMessageHandler(st, l)
		v1.GET("/conversations/:id/messages", msg.List)
		v1.POST("/conversations/:id/messages", msg.Send)

		v1.POST("/uploads", NewUploadHandler(uploads.NewMemoryUploader()).Upload)

		pres := NewPresenceHandler(presence.NewMemory())
		v1.POST("/presence", pres.Set)
		v1.GET("/presence/:id", pres.Get)
		v1.POST("/typing", pres.Typing)
	}

	return &env{router: router, auth: authService, store: st}
}

func (e *env) tokenFor(t *testing.T, id, name string) string {
	t.Helper()
	body := e.do(t, "", http.MethodPost, "/v1/auth/token", httpdto.TokenRequest{UserID: id, Name: name}, http.StatusOK)

	var resp httpdto.Response[httpdto.TokenResponse]
	require.NoError(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Success)
	return resp.Data.AccessToken
}

func (e *env) do(t *testing.T, token, method, path string, payload interface{}, wantStatus int) []byte {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, wantStatus, rec.Code, "unexpected status for %s %s: %s", method, path, rec.Body.String())
	return rec.Body.Bytes()
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	e.do(t, "", http.MethodGet, "/v1/conversations", nil, http.StatusUnauthorized)
	e.do(t, "bogus", http.MethodGet, "/v1/conversations", nil, http.StatusUnauthorized)
}

func TestMessageFlow(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice", "Alice")
	bob := e.tokenFor(t, "bob", "Bob")

	// Alice opens a direct conversation with Bob.
	body := e.do(t, alice, http.MethodPost, "/v1/conversations/direct", httpdto.CreateDirectRequest{PeerID: "bob"}, http.StatusOK)
	var created httpdto.Response[httpdto.ConversationDTO]
	require.NoError(t, json.Unmarshal(body, &created))
	convID := created.Data.ID
	require.NotEmpty(t, convID)

	// Sending with a client-chosen id; resending the same id upserts.
	send := httpdto.SendMessageRequest{ID: "msg-1", Text: "hello bob", CreatedAt: time.Now()}
	e.do(t, alice, http.MethodPost, "/v1/conversations/"+convID+"/messages", send, http.StatusOK)
	send.Text = "hello again"
	e.do(t, alice, http.MethodPost, "/v1/conversations/"+convID+"/messages", send, http.StatusOK)

	body = e.do(t, bob, http.MethodGet, "/v1/conversations/"+convID+"/messages", nil, http.StatusOK)
	var messages httpdto.Response[[]httpdto.MessageDTO]
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages.Data, 1)
	assert.Equal(t, "hello again", messages.Data[0].Text)
	assert.Equal(t, "alice", messages.Data[0].UserID)

	// Two sends bumped Bob twice; Alice stays at zero.
	body = e.do(t, bob, http.MethodGet, "/v1/conversations/"+convID, nil, http.StatusOK)
	var conv httpdto.Response[httpdto.ConversationDTO]
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.Equal(t, 2, conv.Data.UsersUnreadCountInfo["bob"])
	assert.Equal(t, 0, conv.Data.UsersUnreadCountInfo["alice"])

	// Bob closes the conversation view.
	e.do(t, bob, http.MethodPost, "/v1/conversations/"+convID+"/read", nil, http.StatusOK)
	body = e.do(t, bob, http.MethodGet, "/v1/conversations/"+convID, nil, http.StatusOK)
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.Equal(t, 0, conv.Data.UsersUnreadCountInfo["bob"])
}

func TestParticipantChecks(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice", "Alice")
	e.tokenFor(t, "bob", "Bob")
	carol := e.tokenFor(t, "carol", "Carol")

	body := e.do(t, alice, http.MethodPost, "/v1/conversations/direct", httpdto.CreateDirectRequest{PeerID: "bob"}, http.StatusOK)
	var created httpdto.Response[httpdto.ConversationDTO]
	require.NoError(t, json.Unmarshal(body, &created))
	convID := created.Data.ID

	// Outsiders can neither read nor write.
	e.do(t, carol, http.MethodGet, "/v1/conversations/"+convID+"/messages", nil, http.StatusForbidden)
	e.do(t, carol, http.MethodPost, "/v1/conversations/"+convID+"/messages",
		httpdto.SendMessageRequest{Text: "let me in"}, http.StatusForbidden)

	// Unknown peers can't get a conversation.
	e.do(t, alice, http.MethodPost, "/v1/conversations/direct", httpdto.CreateDirectRequest{PeerID: "nobody"}, http.StatusNotFound)
}

func TestGroupCreation(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice", "Alice")
	e.tokenFor(t, "bob", "Bob")
	e.tokenFor(t, "carol", "Carol")

	body := e.do(t, alice, http.MethodPost, "/v1/conversations/group", httpdto.CreateGroupRequest{
		Title:     "Team",
		MemberIDs: []string{"bob", "carol"},
	}, http.StatusOK)

	var created httpdto.Response[httpdto.ConversationDTO]
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Data.IsGroup)
	assert.Equal(t, "Team", created.Data.Title)
	assert.Len(t, created.Data.Users, 3)
}

func TestUploadEndpoint(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice", "Alice")

	body := e.do(t, alice, http.MethodPost, "/v1/uploads", httpdto.UploadRequest{
		Filename:    "pic.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("fake image bytes"),
	}, http.StatusOK)

	var resp httpdto.Response[httpdto.UploadResponse]
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Contains(t, resp.Data.URL, "uploads/alice/")

	e.do(t, alice, http.MethodPost, "/v1/uploads", httpdto.UploadRequest{
		Filename:    "evil.exe",
		ContentType: "application/octet-stream",
		Data:        []byte("nope"),
	}, http.StatusBadRequest)
}

func TestSessionFromClaims(t *testing.T) {
	s := auth.NewService("secret", time.Hour)
	token, _, err := s.Mint(domain.User{ID: "alice", Name: "Alice"}, "dev")
	require.NoError(t, err)
	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Session().UserID())
}
