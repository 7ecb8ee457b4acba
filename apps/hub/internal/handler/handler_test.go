package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatHub/apps/hub/internal/account"
	"ChatHub/apps/hub/internal/call"
	"ChatHub/apps/hub/internal/coordinator"
	"ChatHub/apps/hub/internal/friend"
	"ChatHub/apps/hub/internal/gamification"
	"ChatHub/apps/hub/internal/manager"
	"ChatHub/apps/hub/internal/presence"
	"ChatHub/apps/hub/internal/protocol"
	"ChatHub/apps/hub/internal/relay"
	"ChatHub/apps/hub/internal/repository"
	"ChatHub/apps/hub/internal/signaling"
	"ChatHub/apps/hub/internal/svc"
	"ChatHub/config"
	"ChatHub/consts"
	"ChatHub/pkg/logger"
	"ChatHub/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var handlerLoggerOnce sync.Once

func initHandlerTestLogger() {
	handlerLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
		gin.SetMode(gin.TestMode)
	})
}

type apiResponse struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

type env struct {
	engine *gin.Engine
	store  *repository.MemoryStore
	reg    *presence.Registry
	relay  *relay.MessageRelay
	conns  *manager.ConnectionManager
	tokens *util.TokenIssuer
}

func newEnv(t *testing.T, hub config.HubConfig) *env {
	t.Helper()
	initHandlerTestLogger()

	store := repository.NewMemoryStore()
	reg := presence.NewRegistry(nil)
	xp := gamification.NewEngine(store.Users(), reg)
	rel := relay.NewMessageRelay(store.Messages(), store.Users(), reg, xp, relay.Options{XPPerMessage: 5})
	friends := friend.NewWorkflow(store.Users(), store.Relations(), store.Settings(), reg, nil)
	coord := coordinator.New(coordinator.Deps{
		Users:     store.Users(),
		Presence:  reg,
		Relay:     rel,
		Friends:   friends,
		Calls:     call.NewManager(reg),
		Signaling: signaling.NewRelay(reg),
	})
	tokens := util.NewTokenIssuer(config.JWTConfig{Secret: "handler-secret", Issuer: "chathub", TokenTTL: time.Hour})
	accounts := account.NewService(store.Users(), store.Settings(), tokens, nil, coord)
	conns := manager.NewConnectionManager()

	r := gin.New()
	r.Use(util.TraceLogger(), ClientIP())
	r.GET("/ws", NewWSHandler(conns, svc.NewConnectService(tokens, store.Users()), coord, hub).ServeWS)
	NewAPIHandler(accounts, friends, rel).RegisterRoutes(r.Group("/api/v1"), JWTAuth(tokens))

	t.Cleanup(conns.Shutdown)
	return &env{engine: r, store: store, reg: reg, relay: rel, conns: conns, tokens: tokens}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

// signup 注册并登录，返回用户 id 与 token
func (e *env) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	_, resp := e.do(t, http.MethodPost, "/api/v1/public/register", "", RegisterRequest{Username: username, Password: "secret123"})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code, resp.Message)

	_, resp = e.do(t, http.MethodPost, "/api/v1/public/login", "", LoginRequest{Username: username, Password: "secret123"})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code, resp.Message)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	require.NotEmpty(t, login.Token)
	return login.User.UserID, login.Token
}

func TestAPI_RegisterLoginAndProfile(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	aliceID, token := e.signup(t, "alice")

	status, resp := e.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	assert.Equal(t, http.StatusOK, status)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	assert.NotEmpty(t, resp.TraceID)

	var me account.UserView
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, aliceID, me.UserID)
	assert.Equal(t, 1, me.Level)
	assert.Contains(t, me.Badges, "newbie")
}

func TestAPI_RegisterDuplicateMapsBusinessCode(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	e.signup(t, "alice")

	status, resp := e.do(t, http.MethodPost, "/api/v1/public/register", "", RegisterRequest{Username: "alice", Password: "secret123"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(consts.CodeUserAlreadyExist), resp.Code)
}

func TestAPI_LoginWrongPassword(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	e.signup(t, "alice")

	_, resp := e.do(t, http.MethodPost, "/api/v1/public/login", "", LoginRequest{Username: "alice", Password: "nope-nope"})
	assert.Equal(t, int32(consts.CodePasswordError), resp.Code)
}

func TestAPI_BadBodyIsParamError(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAPI_AuthRequired(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())

	status, resp := e.do(t, http.MethodGet, "/api/v1/friends", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, int32(consts.CodeUnauthorized), resp.Code)

	status, resp = e.do(t, http.MethodGet, "/api/v1/friends", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, int32(consts.CodeInvalidToken), resp.Code)
}

func TestAPI_SearchExcludesSelfAndHidesEmail(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	_, token := e.signup(t, "alice")
	_, _ = e.signup(t, "alina")

	_, resp := e.do(t, http.MethodGet, "/api/v1/users/search?query=al", token, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	var users []account.UserView
	require.NoError(t, json.Unmarshal(resp.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alina", users[0].Username)
	assert.Empty(t, users[0].Email)

	_, resp = e.do(t, http.MethodGet, "/api/v1/users/search?query=a", token, nil)
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAPI_SettingsRoundTrip(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	_, token := e.signup(t, "alice")

	_, resp := e.do(t, http.MethodGet, "/api/v1/settings", token, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	var st SettingsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, "dark", st.Theme)
	assert.True(t, st.AllowFriendRequests)

	theme, allow := "light", false
	_, resp = e.do(t, http.MethodPut, "/api/v1/settings", token, UpdateSettingsRequest{Theme: &theme, AllowFriendRequests: &allow})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, "light", st.Theme)
	assert.False(t, st.AllowFriendRequests)

	bad := "neon"
	_, resp = e.do(t, http.MethodPut, "/api/v1/settings", token, UpdateSettingsRequest{Theme: &bad})
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAPI_UpdateProfile(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	_, token := e.signup(t, "alice")

	status := "busy"
	_, resp := e.do(t, http.MethodPut, "/api/v1/profile", token, UpdateProfileRequest{Status: &status})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	var me account.UserView
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "busy", me.Status)

	_, resp = e.do(t, http.MethodPut, "/api/v1/profile", token, UpdateProfileRequest{})
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAPI_AvatarWithoutObjectStore(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	_, token := e.signup(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int32(consts.CodeServiceUnavailable), resp.Code)
}

func TestAPI_FriendRequestFlow(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	aliceID, aliceToken := e.signup(t, "alice")
	bobID, bobToken := e.signup(t, "bob")

	_, resp := e.do(t, http.MethodPost, "/api/v1/friends/request", aliceToken, FriendRequestCreate{ToUserID: bobID})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code, resp.Message)
	var created FriendRequestCreated
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, bobID, created.ToUserID)

	// 重复申请
	_, resp = e.do(t, http.MethodPost, "/api/v1/friends/request", aliceToken, FriendRequestCreate{ToUserID: bobID})
	assert.Equal(t, int32(consts.CodeFriendRequestSent), resp.Code)

	_, resp = e.do(t, http.MethodGet, "/api/v1/friends/requests", bobToken, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	var pending []protocol.FriendRequestData
	require.NoError(t, json.Unmarshal(resp.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, created.RequestID, pending[0].ID)
	assert.Equal(t, aliceID, pending[0].FromUserID)

	// 申请人不能自己处理
	_, resp = e.do(t, http.MethodPost, "/api/v1/friends/respond", aliceToken, FriendRespondRequest{RequestID: created.RequestID, Action: "accept"})
	assert.Equal(t, int32(consts.CodeNotRequestReceiver), resp.Code)

	_, resp = e.do(t, http.MethodPost, "/api/v1/friends/respond", bobToken, FriendRespondRequest{RequestID: created.RequestID, Action: "accept"})
	require.Equal(t, int32(consts.CodeSuccess), resp.Code, resp.Message)

	_, resp = e.do(t, http.MethodGet, "/api/v1/friends", aliceToken, nil)
	var friends []friend.FriendView
	require.NoError(t, json.Unmarshal(resp.Data, &friends))
	require.Len(t, friends, 1)
	assert.Equal(t, bobID, friends[0].UserID)

	_, resp = e.do(t, http.MethodPost, "/api/v1/friends/respond", bobToken, FriendRespondRequest{RequestID: "abc", Action: "accept"})
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAPI_History(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	aliceID, aliceToken := e.signup(t, "alice")
	bobID, _ := e.signup(t, "bob")

	ctx := context.Background()
	_, err := e.relay.Send(ctx, aliceID, bobID, "hi")
	require.NoError(t, err)
	_, err = e.relay.Send(ctx, bobID, aliceID, "hey")
	require.NoError(t, err)

	_, resp := e.do(t, http.MethodGet, "/api/v1/messages/"+bobID, aliceToken, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	var msgs []protocol.MessageData
	require.NoError(t, json.Unmarshal(resp.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, "hey", msgs[1].Body)
}

// ==================== WebSocket ====================

func dialWS(t *testing.T, e *env, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func writeFrame(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": frameType, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readUntil 读取下行帧直到出现指定类型
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", frameType)
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Type == frameType {
			return frame.Data
		}
	}
}

func TestWS_RejectsMissingAndInvalidToken(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())

	_, resp, err := dialWS(t, e, "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialWS(t, e, "garbage")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWS_JoinAndDisconnect(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	aliceID, token := e.signup(t, "alice")

	conn, _, err := dialWS(t, e, token)
	require.NoError(t, err)

	writeFrame(t, conn, protocol.TypeJoin, protocol.JoinData{UserID: aliceID})
	var joined protocol.JoinedData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeJoined), &joined))
	assert.Equal(t, aliceID, joined.UserID)
	assert.True(t, e.reg.IsOnline(aliceID))
	assert.Equal(t, 1, e.conns.Count())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !e.reg.IsOnline(aliceID) && e.conns.Count() == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWS_MessageRelayBetweenSockets(t *testing.T) {
	e := newEnv(t, config.DefaultHubConfig())
	aliceID, aliceToken := e.signup(t, "alice")
	bobID, bobToken := e.signup(t, "bob")

	alice, _, err := dialWS(t, e, aliceToken)
	require.NoError(t, err)
	bob, _, err := dialWS(t, e, bobToken)
	require.NoError(t, err)

	writeFrame(t, alice, protocol.TypeJoin, protocol.JoinData{UserID: aliceID})
	readUntil(t, alice, protocol.TypeJoined)
	writeFrame(t, bob, protocol.TypeJoin, protocol.JoinData{UserID: bobID})
	readUntil(t, bob, protocol.TypeJoined)

	writeFrame(t, alice, protocol.TypeSendMessage, protocol.SendMessageData{ReceiverID: bobID, Body: "hello"})

	var got protocol.MessageData
	require.NoError(t, json.Unmarshal(readUntil(t, bob, protocol.TypeMessage), &got))
	assert.Equal(t, aliceID, got.SenderID)
	assert.Equal(t, "hello", got.Body)

	var ack protocol.MessageData
	require.NoError(t, json.Unmarshal(readUntil(t, alice, protocol.TypeMessageAck), &ack))
	assert.Equal(t, got.ID, ack.ID)
}

func TestWS_FrameRateLimited(t *testing.T) {
	hub := config.DefaultHubConfig()
	hub.FrameRate = 0.001
	hub.FrameBurst = 1
	e := newEnv(t, hub)
	_, token := e.signup(t, "alice")

	conn, _, err := dialWS(t, e, token)
	require.NoError(t, err)

	writeFrame(t, conn, protocol.TypeHeartbeat, nil)
	readUntil(t, conn, protocol.TypeHeartbeatAck)

	writeFrame(t, conn, protocol.TypeHeartbeat, nil)
	var e2 protocol.ErrorData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeError), &e2))
	assert.Equal(t, int32(consts.CodeTooManyRequests), e2.Code)
	assert.Equal(t, protocol.TypeHeartbeat, e2.RequestType)
}
