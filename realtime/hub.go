package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/databases"
	"github.com/jobseekr/realtime-api/models"
)

// Hub owns every live websocket connection and dispatches inbound events. One
// hub per process; the notification bridge and the chat handlers reach online
// users through it.
type Hub struct {
	registry *Registry
	chatDB   databases.ChatMessageDatabase

	mu      sync.Mutex
	clients map[*Client]bool

	upgrader websocket.Upgrader
}

// NewHub creates a hub around the given presence registry and message store
func NewHub(registry *Registry, chatDB databases.ChatMessageDatabase) *Hub {
	return &Hub{
		registry: registry,
		chatDB:   chatDB,
		clients:  make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the frontend is served from a different origin
			},
		},
	}
}

// Registry exposes the presence registry backing this hub
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWS upgrades the request to a websocket and runs the connection's read
// loop until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnf("websocket upgrade error: %v", err)
		return
	}

	client := newClient(conn)
	h.addClient(client)
	zap.S().Infow("client connected", "connectionId", client.ID)

	// the cleanup must run for every disconnect, joined or not
	defer func() {
		h.removeClient(client)
		conn.Close()
		if userID, ok := h.registry.ClearClient(client); ok {
			zap.S().Infow("user disconnected", "userId", userID, "connectionId", client.ID)
		} else {
			zap.S().Infow("client disconnected", "connectionId", client.ID)
		}
		h.broadcastOnlineUsers()
	}()

	for {
		var ev models.SocketEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.S().Debugf("read error on connection %s: %v", client.ID, err)
			}
			return
		}
		h.dispatch(client, ev)
	}
}

// dispatch routes one inbound event. The case list below is the full set of
// events this hub accepts; anything else is dropped with a warning. A handler
// failure never tears down the connection or the loop.
func (h *Hub) dispatch(client *Client, ev models.SocketEvent) {
	switch ev.Event {
	case models.EventJoin:
		h.handleJoin(client, ev.Data)
	case models.EventPrivateMsg:
		h.handlePrivateMsg(client, ev.Data)
	case models.EventTyping:
		h.handleTyping(ev.Data)
	case models.EventMarkAsRead:
		h.handleMarkAsRead(ev.Data)
	default:
		zap.S().Warnf("unknown socket event %q from connection %s", ev.Event, client.ID)
	}
}

func (h *Hub) handleJoin(client *Client, data json.RawMessage) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil || userID == "" {
		zap.S().Warnf("dropping join event with invalid user id: %v", err)
		return
	}

	h.registry.Set(userID, client)
	zap.S().Infow("user joined", "userId", userID, "connectionId", client.ID, "online", h.registry.UserIDs())
	h.broadcastOnlineUsers()
}

func (h *Hub) handlePrivateMsg(client *Client, data json.RawMessage) {
	var p models.PrivateMsgPayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.S().Warnf("dropping PrivateMsg with invalid payload: %v", err)
		return
	}
	if p.SenderID == "" || p.ReceiverID == "" || p.Text == "" {
		zap.S().Warnw("dropping PrivateMsg with missing fields", "senderId", p.SenderID, "receiverId", p.ReceiverID)
		return
	}

	msg := models.ChatMessage{
		ID:         primitive.NewObjectID(),
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		Timestamp:  primitive.NewDateTimeFromTime(time.Now()),
		Status:     models.MessageStatusSent,
		Trash:      "NO",
	}
	if _, err := h.chatDB.InsertOne(context.Background(), msg); err != nil {
		// nothing was stored, so nothing gets emitted
		zap.S().With(err).Error("failed to save chat message")
		return
	}

	if receiver, ok := h.registry.Lookup(p.ReceiverID); ok {
		_, err := h.chatDB.UpdateOne(context.Background(),
			bson.M{"_id": msg.ID},
			bson.M{"$set": bson.M{"status": models.MessageStatusDelivered}},
		)
		if err != nil {
			zap.S().With(err).Error("failed to mark message delivered")
			return
		}
		msg.Status = models.MessageStatusDelivered

		if err := receiver.Emit(models.EventPrivateMsg, models.PrivateMsgEvent{ChatMessage: msg, TempID: p.TempID}); err != nil {
			zap.S().Debugf("failed to push message to receiver %s: %v", p.ReceiverID, err)
		}
	}

	// the sender always gets the stored copy back so the optimistic UI can
	// swap its temporary message for the server-assigned one
	if err := client.Emit(models.EventPrivateMsg, models.PrivateMsgEvent{ChatMessage: msg, TempID: p.TempID}); err != nil {
		zap.S().Debugf("failed to echo message to sender %s: %v", p.SenderID, err)
	}
}

func (h *Hub) handleTyping(data json.RawMessage) {
	var p models.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.S().Warnf("dropping typing event with invalid payload: %v", err)
		return
	}

	receiver, ok := h.registry.Lookup(p.ReceiverID)
	if !ok {
		// recipient offline, typing signals have no retry
		return
	}
	if err := receiver.Emit(models.EventTyping, models.TypingPayload{SenderID: p.SenderID, IsTyping: p.IsTyping}); err != nil {
		zap.S().Debugf("failed to forward typing event to %s: %v", p.ReceiverID, err)
	}
}

func (h *Hub) handleMarkAsRead(data json.RawMessage) {
	var p models.MarkAsReadRequest
	if err := json.Unmarshal(data, &p); err != nil {
		zap.S().Warnf("dropping markAsRead event with invalid payload: %v", err)
		return
	}
	if p.SenderID == "" || p.ReceiverID == "" {
		zap.S().Warnw("dropping markAsRead event with missing fields", "senderId", p.SenderID, "receiverId", p.ReceiverID)
		return
	}

	modified, err := h.chatDB.UpdateMany(context.Background(),
		bson.M{"senderId": p.SenderID, "receiverId": p.ReceiverID, "status": bson.M{"$lt": models.MessageStatusRead}},
		bson.M{"$set": bson.M{"status": models.MessageStatusRead}},
	)
	if err != nil {
		zap.S().With(err).Error("failed to mark messages as read")
		return
	}
	zap.S().Debugf("marked %d messages from %s as read by %s", modified, p.SenderID, p.ReceiverID)

	if sender, ok := h.registry.Lookup(p.SenderID); ok {
		if err := sender.Emit(models.EventMessagesRead, models.MessagesReadEvent{ReaderID: p.ReceiverID}); err != nil {
			zap.S().Debugf("failed to push read receipt to %s: %v", p.SenderID, err)
		}
	}
}

// EmitToUser pushes one event to userID's connection. Returns false when the
// user has no live connection; a failed write still counts as delivered
// best-effort and is only logged.
func (h *Hub) EmitToUser(userID string, event string, data interface{}) bool {
	client, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	if err := client.Emit(event, data); err != nil {
		zap.S().Debugf("failed to emit %s to user %s: %v", event, userID, err)
	}
	return true
}

// broadcastOnlineUsers pushes the current online user list to every connected
// client, joined or not
func (h *Hub) broadcastOnlineUsers() {
	online := h.registry.UserIDs()
	for _, client := range h.snapshotClients() {
		if err := client.Emit(models.EventOnlineUsers, online); err != nil {
			zap.S().Debugf("failed to broadcast online users to connection %s: %v", client.ID, err)
		}
	}
}

// PingClients sends a keepalive ping to every live connection and returns how
// many were pinged. Dead connections surface in their own read loops.
func (h *Hub) PingClients() int {
	clients := h.snapshotClients()
	for _, client := range clients {
		if err := client.Ping(); err != nil {
			zap.S().Debugf("keepalive ping failed for connection %s: %v", client.ID, err)
		}
	}
	return len(clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

func (h *Hub) snapshotClients() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}
