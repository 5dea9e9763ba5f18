package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Message delivery statuses. A message's status only ever moves forward:
// sent -> delivered -> read.
const (
	MessageStatusSent      = 1
	MessageStatusDelivered = 2
	MessageStatusRead      = 3
)

// ChatMessage holds the structure for the chatmessages collection in mongo
type ChatMessage struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id"`
	SenderID   string             `json:"senderId" bson:"senderId"`
	ReceiverID string             `json:"receiverId" bson:"receiverId"`
	Text       string             `json:"text" bson:"text"` // opaque to the server, clients may pre-encrypt
	Timestamp  primitive.DateTime `json:"timestamp" bson:"timestamp"`
	Status     int                `json:"status" bson:"status"` // 1 = sent, 2 = delivered, 3 = read
	Trash      string             `json:"trash" bson:"trash"`   // soft-delete flag, "NO" by default
}

// ConversationSummary is one row of the message user list: the latest message
// exchanged with a conversation partner plus how many of that partner's
// messages are still unread
type ConversationSummary struct {
	ID            string      `json:"_id" bson:"_id"` // the partner's user ID
	LatestMessage ChatMessage `json:"latestMessage" bson:"latestMessage"`
	UnreadCount   int         `json:"unreadCount" bson:"unreadCount"`
}

// MarkAsReadRequest marks every message sent by SenderID to ReceiverID as read
type MarkAsReadRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}
