package models

import "encoding/json"

// Socket event names accepted from or emitted to clients. The hub's dispatch
// switch in realtime/hub.go is the authoritative list of inbound events.
const (
	EventJoin         = "join"
	EventPrivateMsg   = "PrivateMsg"
	EventTyping       = "typing"
	EventMarkAsRead   = "markAsRead"
	EventOnlineUsers  = "onlineUsers"
	EventMessagesRead = "messagesRead"
	EventNotification = "notification"
)

// SocketEvent is the envelope every websocket frame carries. Data is decoded
// per event name; for "join" it is a bare JSON string holding the user ID.
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PrivateMsgPayload is the client request to send a chat message. TempID is a
// client-generated token so the optimistic UI can reconcile the echo with its
// temporary message.
type PrivateMsgPayload struct {
	TempID     string `json:"tempId,omitempty"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// PrivateMsgEvent is the stored message pushed to receiver and echoed to the
// sender, carrying back the original tempId
type PrivateMsgEvent struct {
	ChatMessage
	TempID string `json:"tempId,omitempty"`
}

// TypingPayload is the ephemeral typing indicator. ReceiverID is only present
// client->server; the forwarded copy carries just the sender and the flag.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
	IsTyping   bool   `json:"isTyping"`
}

// MessagesReadEvent tells the original sender that their messages were read
type MessagesReadEvent struct {
	ReaderID string `json:"readerId"`
}

// NotificationEvent is pushed to each online assignee by the notification
// bridge. The CRUD backend durably records the notification before calling
// the bridge, so the payload is relayed as-is.
type NotificationEvent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}
