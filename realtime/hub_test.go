package realtime_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jobseekr/realtime-api/databases"
	"github.com/jobseekr/realtime-api/databases/mocks"
	"github.com/jobseekr/realtime-api/models"
	"github.com/jobseekr/realtime-api/realtime"
)

const readWait = 2 * time.Second

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T, chatDB databases.ChatMessageDatabase) (*realtime.Hub, *httptest.Server) {
	hub := realtime.NewHub(realtime.NewRegistry(), chatDB)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	err := conn.WriteJSON(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		t.Fatal(err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("expected a frame, got error: %v", err)
	}
	return f
}

// expectSilence asserts no frame arrives before the deadline
func expectSilence(t *testing.T, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var f frame
	err := conn.ReadJSON(&f)
	if err == nil {
		t.Fatalf("expected no frame, got %q", f.Event)
	}
	netErr, ok := err.(interface{ Timeout() bool })
	if !ok || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got: %v", err)
	}
}

// join announces the user and consumes the resulting onlineUsers broadcast
func join(t *testing.T, conn *websocket.Conn, userID string) {
	sendEvent(t, conn, models.EventJoin, userID)
	f := readFrame(t, conn)
	assert.Equal(t, models.EventOnlineUsers, f.Event)
}

func onlineUsers(t *testing.T, f frame) []string {
	assert.Equal(t, models.EventOnlineUsers, f.Event)
	var users []string
	if err := json.Unmarshal(f.Data, &users); err != nil {
		t.Fatal(err)
	}
	return users
}

func TestHubJoinBroadcastsOnlineUsers(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}
	_, srv := newTestHub(t, chatDB)

	connA := dial(t, srv)
	sendEvent(t, connA, models.EventJoin, "user-a")
	assert.Equal(t, []string{"user-a"}, onlineUsers(t, readFrame(t, connA)))

	connB := dial(t, srv)
	sendEvent(t, connB, models.EventJoin, "user-b")
	assert.Equal(t, []string{"user-a", "user-b"}, onlineUsers(t, readFrame(t, connB)))

	// the earlier connection sees the updated set too
	assert.Equal(t, []string{"user-a", "user-b"}, onlineUsers(t, readFrame(t, connA)))
}

func TestHubPrivateMsgReceiverOffline(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}
	chatDB.On("InsertOne", mock.Anything, mock.AnythingOfType("models.ChatMessage")).Return(nil, nil)

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")

	sendEvent(t, connA, models.EventPrivateMsg, models.PrivateMsgPayload{
		TempID:     "tmp-1",
		SenderID:   "user-a",
		ReceiverID: "user-b",
		Text:       "hi",
	})

	f := readFrame(t, connA)
	assert.Equal(t, models.EventPrivateMsg, f.Event)

	var echo models.PrivateMsgEvent
	assert.NoError(t, json.Unmarshal(f.Data, &echo))
	assert.Equal(t, "user-a", echo.SenderID)
	assert.Equal(t, "user-b", echo.ReceiverID)
	assert.Equal(t, "hi", echo.Text)
	assert.Equal(t, models.MessageStatusSent, echo.Status)
	assert.Equal(t, "tmp-1", echo.TempID)
	assert.False(t, echo.ID.IsZero())

	// no receiver, so the message must stay at sent
	chatDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestHubPrivateMsgReceiverOnline(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}
	chatDB.On("InsertOne", mock.Anything, mock.AnythingOfType("models.ChatMessage")).Return(nil, nil)
	chatDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")
	connB := dial(t, srv)
	join(t, connB, "user-b")
	// consume the broadcast triggered by B's join
	readFrame(t, connA)

	sendEvent(t, connA, models.EventPrivateMsg, models.PrivateMsgPayload{
		TempID:     "tmp-2",
		SenderID:   "user-a",
		ReceiverID: "user-b",
		Text:       "hello there",
	})

	var received, echo models.PrivateMsgEvent

	f := readFrame(t, connB)
	assert.Equal(t, models.EventPrivateMsg, f.Event)
	assert.NoError(t, json.Unmarshal(f.Data, &received))

	f = readFrame(t, connA)
	assert.Equal(t, models.EventPrivateMsg, f.Event)
	assert.NoError(t, json.Unmarshal(f.Data, &echo))

	assert.Equal(t, models.MessageStatusDelivered, received.Status)
	assert.Equal(t, models.MessageStatusDelivered, echo.Status)
	assert.Equal(t, received.ID, echo.ID)
	assert.Equal(t, "tmp-2", received.TempID)
	assert.Equal(t, "tmp-2", echo.TempID)

	chatDB.AssertCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestHubPrivateMsgPersistFailureEmitsNothing(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}
	chatDB.On("InsertOne", mock.Anything, mock.AnythingOfType("models.ChatMessage")).Return(nil, errors.New("mocked-error"))

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")
	connB := dial(t, srv)
	join(t, connB, "user-b")
	readFrame(t, connA)

	sendEvent(t, connA, models.EventPrivateMsg, models.PrivateMsgPayload{
		SenderID:   "user-a",
		ReceiverID: "user-b",
		Text:       "hi",
	})

	expectSilence(t, connA)
	expectSilence(t, connB)
	chatDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestHubMarkAsReadPushesReceipt(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}
	chatDB.On("UpdateMany", mock.Anything, mock.Anything, mock.Anything).Return(int64(3), nil)

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")

	// the reader marks the conversation read from its own connection; it
	// never joined, which is fine
	connB := dial(t, srv)
	sendEvent(t, connB, models.EventMarkAsRead, models.MarkAsReadRequest{
		SenderID:   "user-a",
		ReceiverID: "user-b",
	})

	f := readFrame(t, connA)
	assert.Equal(t, models.EventMessagesRead, f.Event)

	var receipt models.MessagesReadEvent
	assert.NoError(t, json.Unmarshal(f.Data, &receipt))
	assert.Equal(t, "user-b", receipt.ReaderID)
}

func TestHubTypingForwardedNotPersisted(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")
	connB := dial(t, srv)
	join(t, connB, "user-b")
	readFrame(t, connA)

	sendEvent(t, connA, models.EventTyping, models.TypingPayload{
		SenderID:   "user-a",
		ReceiverID: "user-b",
		IsTyping:   true,
	})

	f := readFrame(t, connB)
	assert.Equal(t, models.EventTyping, f.Event)

	var p models.TypingPayload
	assert.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "user-a", p.SenderID)
	assert.True(t, p.IsTyping)
	assert.Empty(t, p.ReceiverID)

	// typing to an offline user just vanishes
	sendEvent(t, connA, models.EventTyping, models.TypingPayload{
		SenderID:   "user-a",
		ReceiverID: "user-offline",
		IsTyping:   true,
	})
	expectSilence(t, connA)

	chatDB.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestHubDisconnectWithoutJoin(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")

	drifter := dial(t, srv)
	drifter.Close()

	// the disconnect still triggers a broadcast and the registry is untouched
	assert.Equal(t, []string{"user-a"}, onlineUsers(t, readFrame(t, connA)))
}

func TestHubDisconnectClearsPresence(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}

	hub, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")
	connB := dial(t, srv)
	join(t, connB, "user-b")
	readFrame(t, connA)

	connB.Close()

	assert.Equal(t, []string{"user-a"}, onlineUsers(t, readFrame(t, connA)))
	_, ok := hub.Registry().Lookup("user-b")
	assert.False(t, ok)
}

func TestHubUnknownEventIgnored(t *testing.T) {
	chatDB := &mocks.ChatMessageDatabase{}

	_, srv := newTestHub(t, chatDB)
	connA := dial(t, srv)
	join(t, connA, "user-a")

	sendEvent(t, connA, "selfDestruct", map[string]string{"foo": "bar"})

	// the connection survives and keeps handling events
	sendEvent(t, connA, models.EventTyping, models.TypingPayload{
		SenderID:   "user-a",
		ReceiverID: "user-a",
		IsTyping:   true,
	})
	f := readFrame(t, connA)
	assert.Equal(t, models.EventTyping, f.Event)
}
