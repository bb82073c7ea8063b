package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"thinkshare/internal/middleware"
	"thinkshare/internal/mocks"
	"thinkshare/internal/models"
	"thinkshare/internal/repositories"
	"thinkshare/internal/telemetry"
)

type fixture struct {
	convRepo    *mocks.ConversationRepositoryMock
	messageRepo *mocks.MessageRepositoryMock
	accountRepo *mocks.AccountRepositoryMock
	hub         *mocks.BroadcasterMock
	router      *gin.Engine
}

func newFixture(emitter *telemetry.AuditEmitter) *fixture {
	f := &fixture{
		convRepo:    new(mocks.ConversationRepositoryMock),
		messageRepo: new(mocks.MessageRepositoryMock),
		accountRepo: new(mocks.AccountRepositoryMock),
		hub:         new(mocks.BroadcasterMock),
	}
	conversations := NewConversationHandler(f.convRepo, f.accountRepo, emitter)
	messages := NewMessageHandler(f.convRepo, f.messageRepo, f.accountRepo, f.hub, emitter)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "me")
		c.Next()
	})
	r.GET("/conversations", conversations.ListConversations)
	r.POST("/conversations", conversations.CreateConversation)
	r.POST("/conversations/:id/read", conversations.MarkRead)
	r.GET("/conversations/:id/messages", messages.ListMessages)
	r.POST("/conversations/:id/messages", messages.SendMessage)
	r.PATCH("/messages/:id", messages.EditMessage)
	r.DELETE("/messages/:id", messages.DeleteMessage)
	r.POST("/messages/:id/reactions", messages.AddReaction)
	r.DELETE("/messages/:id/reactions/:reaction", messages.RemoveReaction)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.convRepo.AssertExpectations(t)
	f.messageRepo.AssertExpectations(t)
	f.accountRepo.AssertExpectations(t)
	f.hub.AssertExpectations(t)
}

func TestListConversationsSuccess(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("ListForAccount", mock.Anything, "me").
		Return([]models.Conversation{{ID: "c1", Type: models.ConversationDirect, UnreadCount: 3}}, nil).Once()

	rec := f.do(http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 3, resp.Conversations[0].UnreadCount)
	f.assertExpectations(t)
}

func TestListConversationsEmptyIsArray(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("ListForAccount", mock.Anything, "me").Return(nil, nil).Once()

	rec := f.do(http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversations":[]}`, rec.Body.String())
}

func TestListConversationsRepoError(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("ListForAccount", mock.Anything, "me").Return(nil, assert.AnError).Once()

	rec := f.do(http.MethodGet, "/conversations", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateDirectConversation(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.thinkshare", mock.AnythingOfType("telemetry.AuditEnvelope")).Return(nil).Once()
	f := newFixture(telemetry.NewAuditEmitter(pub, "audit.thinkshare", "thinkshare", "test", zap.NewNop()))

	f.accountRepo.On("GetAccount", mock.Anything, "you").Return(models.Account{ID: "you"}, nil).Once()
	f.convRepo.On("CreateOrGetDirect", mock.Anything, "me", "you").
		Return(models.Conversation{ID: "c9", Type: models.ConversationDirect, Participants: []string{"me", "you"}}, nil).Once()

	rec := f.do(http.MethodPost, "/conversations", `{"type":"direct","participant_id":"you"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"c9"`)
	f.assertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateDirectConversationWithSelf(t *testing.T) {
	f := newFixture(nil)
	f.accountRepo.On("GetAccount", mock.Anything, "me").Return(models.Account{ID: "me"}, nil).Once()
	f.convRepo.On("CreateOrGetDirect", mock.Anything, "me", "me").Return(nil, repositories.ErrSelfConversation).Once()

	rec := f.do(http.MethodPost, "/conversations", `{"participant_id":"me"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDirectConversationUnknownAccount(t *testing.T) {
	f := newFixture(nil)
	f.accountRepo.On("GetAccount", mock.Anything, "ghost").Return(nil, repositories.ErrAccountNotFound).Once()

	rec := f.do(http.MethodPost, "/conversations", `{"type":"direct","participant_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.convRepo.AssertNotCalled(t, "CreateOrGetDirect", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupRejectsUnknownMember(t *testing.T) {
	f := newFixture(nil)
	f.accountRepo.On("BulkAccounts", mock.Anything, mock.Anything).Return([]models.Account{{ID: "a"}}, nil).Once()

	rec := f.do(http.MethodPost, "/conversations", `{"type":"group","name":"Policy","member_ids":["a","b"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.convRepo.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupSuccess(t *testing.T) {
	f := newFixture(nil)
	f.accountRepo.On("BulkAccounts", mock.Anything, []string{"a"}).Return([]models.Account{{ID: "a"}}, nil).Once()
	f.convRepo.On("CreateGroup", mock.Anything, "me", "Policy", []string{"a"}).
		Return(models.Conversation{ID: "g1", Type: models.ConversationGroup}, nil).Once()

	rec := f.do(http.MethodPost, "/conversations", `{"type":"group","name":" Policy ","member_ids":["a"]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	f.assertExpectations(t)
}

func TestMarkReadForbiddenForOutsider(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(false, nil).Once()

	rec := f.do(http.MethodPost, "/conversations/c1/read", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.convRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadSuccess(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.convRepo.On("MarkRead", mock.Anything, "c1", "me").Return(nil).Once()

	rec := f.do(http.MethodPost, "/conversations/c1/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.assertExpectations(t)
}

func TestListMessagesAttachesSenders(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.messageRepo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "you", Content: "hi"},
		{ID: "m2", ConversationID: "c1", SenderID: "me", Content: "hey"},
		{ID: "m3", ConversationID: "c1", SenderID: "you", Content: "?"},
	}, nil).Once()
	f.accountRepo.On("BulkAccounts", mock.Anything, []string{"you", "me"}).Return([]models.Account{
		{ID: "you", DisplayName: "You", AccountType: models.AccountMedia},
	}, nil).Once()

	rec := f.do(http.MethodGet, "/conversations/c1/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 3)
	require.NotNil(t, resp.Messages[0].Sender)
	assert.Equal(t, "You", resp.Messages[0].Sender.DisplayName)
	assert.Nil(t, resp.Messages[1].Sender)
	f.assertExpectations(t)
}

func TestListMessagesForbidden(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(false, nil).Once()

	rec := f.do(http.MethodGet, "/conversations/c1/messages", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessageBroadcastsInvalidation(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, "c1", "me", models.SendMessageRequest{
		ConversationID: "c1", Content: "hello", ClientRef: "ref-1",
	}).Return(models.Message{ID: "m7", ConversationID: "c1", SenderID: "me", Content: "hello", ClientRef: "ref-1"}, nil).Once()
	f.convRepo.On("Touch", mock.Anything, "c1", mock.Anything).Return(nil).Once()
	f.hub.On("Broadcast", "c1", models.Event{Type: models.EventMessage, ConversationID: "c1", MessageID: "m7"}).Once()

	rec := f.do(http.MethodPost, "/conversations/c1/messages", `{"content":"  hello ","client_ref":"ref-1"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"client_ref":"ref-1"`)
	f.assertExpectations(t)
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "blank", body: `{"content":"   "}`},
		{name: "too long", body: `{"content":"` + strings.Repeat("x", MaxMessageLength+1) + `"}`},
		{name: "bad json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()

			rec := f.do(http.MethodPost, "/conversations/c1/messages", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			f.messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessageForeignReply(t *testing.T) {
	f := newFixture(nil)
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.messageRepo.On("CreateMessage", mock.Anything, "c1", "me", mock.Anything).Return(nil, repositories.ErrInvalidReply).Once()

	rec := f.do(http.MethodPost, "/conversations/c1/messages", `{"content":"re","reply_to":"elsewhere"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.hub.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestEditMessageOnlySender(t *testing.T) {
	f := newFixture(nil)
	f.messageRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1", SenderID: "you"}, nil).Once()
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()

	rec := f.do(http.MethodPatch, "/messages/m1", `{"content":"mine now"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.messageRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageSuccess(t *testing.T) {
	f := newFixture(nil)
	f.messageRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1", SenderID: "me"}, nil).Once()
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.messageRepo.On("EditMessage", mock.Anything, "m1", "me", "fixed").Return(models.Message{ID: "m1", Content: "fixed"}, nil).Once()
	f.hub.On("Broadcast", "c1", models.Event{Type: models.EventEdit, ConversationID: "c1", MessageID: "m1"}).Once()

	rec := f.do(http.MethodPatch, "/messages/m1", `{"content":"fixed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.assertExpectations(t)
}

func TestDeleteMessageNotFound(t *testing.T) {
	f := newFixture(nil)
	f.messageRepo.On("GetMessage", mock.Anything, "gone").Return(nil, repositories.ErrMessageNotFound).Once()

	rec := f.do(http.MethodDelete, "/messages/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageSuccess(t *testing.T) {
	f := newFixture(nil)
	f.messageRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1", SenderID: "me"}, nil).Once()
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Once()
	f.messageRepo.On("DeleteForAll", mock.Anything, "m1", "me").Return(nil).Once()
	f.hub.On("Broadcast", "c1", models.Event{Type: models.EventDelete, ConversationID: "c1", MessageID: "m1"}).Once()

	rec := f.do(http.MethodDelete, "/messages/m1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.assertExpectations(t)
}

func TestReactions(t *testing.T) {
	f := newFixture(nil)
	f.messageRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", ConversationID: "c1", SenderID: "you"}, nil).Twice()
	f.convRepo.On("IsParticipant", mock.Anything, "c1", "me").Return(true, nil).Twice()
	f.messageRepo.On("AddReaction", mock.Anything, "m1", "me", "🔥").Return(nil).Once()
	f.messageRepo.On("RemoveReaction", mock.Anything, "m1", "me", "🔥").Return(nil).Once()
	f.hub.On("Broadcast", "c1", models.Event{Type: models.EventReaction, ConversationID: "c1", MessageID: "m1"}).Twice()

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/messages/m1/reactions", `{"reaction":"🔥"}`).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/messages/m1/reactions/%F0%9F%94%A5", "").Code)
	f.assertExpectations(t)
}

func TestAddReactionRejectsBlank(t *testing.T) {
	f := newFixture(nil)
	rec := f.do(http.MethodPost, "/messages/m1/reactions", `{"reaction":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubInspector struct{}

func (stubInspector) RoomSize(conversationID string) int { return len(conversationID) }
func (stubInspector) Online(accountID string) bool       { return accountID == "me" }

func TestDebugRoutesEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, stubInspector{}, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/rooms/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversation_id":"abc","subscribers":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence/me", nil))
	assert.JSONEq(t, `{"account_id":"me","online":true}`, rec.Body.String())
}
