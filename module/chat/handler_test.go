package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPDirect/middleware"
	"PPDirect/middleware/security"
	"PPDirect/module/chat/message"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/events"
	tokens "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type directory map[primitive.ObjectID]usermodel.Projection

func (d directory) Projections(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error) {
	out := make(map[primitive.ObjectID]usermodel.Projection)
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type env struct {
	e          *gin.Engine
	bus        *events.Bus
	alice, bob usermodel.Projection
	tokA, tokB string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := tokens.DefaultOptions([]byte("chat-handler-secret"))
	mk := func(name string) usermodel.Projection {
		return usermodel.Projection{ID: primitive.NewObjectID(), Username: name, DisplayName: name}
	}
	v := &env{bus: events.NewBus(), alice: mk("alice"), bob: mk("bob")}
	dir := directory{v.alice.ID: v.alice, v.bob.ID: v.bob}

	var err error
	v.tokA, _, err = tokens.Generate(opts, v.alice.ID.Hex())
	require.NoError(t, err)
	v.tokB, _, err = tokens.Generate(opts, v.bob.ID.Hex())
	require.NoError(t, err)

	v.e = gin.New()
	v.e.Use(middleware.ErrorHandler())
	svc := message.NewService(message.NewMemStore(), dir, v.bus)
	NewHandler(svc).Register(middleware.NewRouter(v.e.Group("/api"), security.Middleware(opts)))
	return v
}

func (v *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	v.e.ServeHTTP(w, req)
	return w
}

type msgResp struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	IsRead         bool   `json:"isRead"`
	Sender         struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"senderId"`
}

func (v *env) send(t *testing.T, token string, to primitive.ObjectID, body string) msgResp {
	t.Helper()
	w := v.do(http.MethodPost, "/api/conversations/"+to.Hex()+"/messages", token, gin.H{"message": body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m msgResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestRequiresAuth(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusUnauthorized, v.do(http.MethodGet, "/api/conversations", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, v.do(http.MethodGet, "/api/conversations", "bogus", nil).Code)
}

func TestSendAndFetchThread(t *testing.T) {
	v := newEnv(t)
	sub, cancel := v.bus.Subscribe("chat.", 4)
	defer cancel()

	m := v.send(t, v.tokA, v.bob.ID, "  hi bob ")
	require.Equal(t, "hi bob", m.Message)
	require.Equal(t, "alice", m.Sender.Username)
	require.False(t, m.IsRead)
	evt := <-sub
	require.Equal(t, "chat.message.sent", evt.Kind)

	w := v.do(http.MethodPost, "/api/conversations/"+v.bob.ID.Hex()+"/messages", v.tokA, gin.H{"message": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var thread []msgResp
	w = v.do(http.MethodGet, "/api/conversations/"+v.alice.ID.Hex()+"/messages", v.tokB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))
	require.Len(t, thread, 1)
	require.False(t, thread[0].IsRead)

	// 第二次拉取能看到上一次的已读标记
	w = v.do(http.MethodGet, "/api/conversations/"+v.alice.ID.Hex()+"/messages", v.tokB, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))
	require.True(t, thread[0].IsRead)

	w = v.do(http.MethodGet, "/api/conversations/"+primitive.NewObjectID().Hex()+"/messages", v.tokB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestListConversations(t *testing.T) {
	v := newEnv(t)
	v.send(t, v.tokA, v.bob.ID, "one")
	last := v.send(t, v.tokB, v.alice.ID, "two")

	var list []struct {
		ID          string `json:"id"`
		Participant struct {
			Username string `json:"username"`
		} `json:"participant"`
		LastMessage struct {
			ID string `json:"id"`
		} `json:"lastMessage"`
	}
	w := v.do(http.MethodGet, "/api/conversations", v.tokA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, last.ConversationID, list[0].ID)
	require.Equal(t, "bob", list[0].Participant.Username)
	require.Equal(t, last.ID, list[0].LastMessage.ID)
}

func TestMarkReadIdempotent(t *testing.T) {
	v := newEnv(t)
	m := v.send(t, v.tokA, v.bob.ID, "read me")
	path := "/api/conversations/" + m.ConversationID + "/read"

	w := v.do(http.MethodPut, path, v.tokB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"updated":1}`, w.Body.String())

	w = v.do(http.MethodPut, path, v.tokB, nil)
	require.JSONEq(t, `{"updated":0}`, w.Body.String())

	require.Equal(t, http.StatusNotFound, v.do(http.MethodPut, "/api/conversations/"+primitive.NewObjectID().Hex()+"/read", v.tokB, nil).Code)
}

func TestDeleteMessage(t *testing.T) {
	v := newEnv(t)
	m := v.send(t, v.tokA, v.bob.ID, "oops")

	require.Equal(t, http.StatusForbidden, v.do(http.MethodDelete, "/api/messages/"+m.ID, v.tokB, nil).Code)
	require.Equal(t, http.StatusOK, v.do(http.MethodDelete, "/api/messages/"+m.ID, v.tokA, nil).Code)
	require.Equal(t, http.StatusNotFound, v.do(http.MethodDelete, "/api/messages/"+m.ID, v.tokA, nil).Code)
	require.Equal(t, http.StatusBadRequest, v.do(http.MethodDelete, "/api/messages/not-an-id", v.tokA, nil).Code)

	var thread []msgResp
	w := v.do(http.MethodGet, "/api/conversations/"+v.bob.ID.Hex()+"/messages", v.tokA, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))
	require.Empty(t, thread)
}
