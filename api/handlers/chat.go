package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/config"
	"github.com/jobseekr/realtime-api/databases"
	"github.com/jobseekr/realtime-api/models"
)

var (
	// Page denotes the starting Page for pagination results
	Page = 0
)

// Chat exported for testing purposes
type Chat struct {
	DB databases.ChatMessageDatabase
}

// ChatHistoryHandler returns every message exchanged between two users,
// oldest first. An optional limit/page pair pages through long conversations.
func (c Chat) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user1 := mux.Vars(r)["user1"]
	user2 := mux.Vars(r)["user2"]

	zap.S().Debugf("chat history: '%v' <-> '%v'", user1, user2)

	filter := bson.M{"$or": []bson.M{
		{"senderId": user1, "receiverId": user2},
		{"senderId": user2, "receiverId": user1},
	}}

	var dbResp []models.ChatMessage
	var err error
	Limit, limErr := strconv.Atoi(r.URL.Query().Get("limit"))
	if limErr == nil && Limit > 0 {
		Page = getPage(Page, r)
		dbResp, err = c.DB.FindPaginated(context.TODO(), filter, Limit, Page+1)
	} else {
		dbResp, err = c.DB.Find(context.TODO(), filter,
			options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	}
	if err != nil {
		config.ErrorStatus("failed to get chat history", http.StatusNotFound, w, err)
		return
	}
	// the frontend expects an array even when the conversation is empty
	if len(dbResp) == 0 {
		dbResp = []models.ChatMessage{}
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MessageUserListHandler returns, per conversation partner, the latest message
// and the count of that partner's messages still unread by the given user,
// newest conversation first
func (c Chat) MessageUserListHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("message user list for: '%v'", userID)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": []bson.M{
			{"senderId": userID},
			{"receiverId": userID},
		}}}},
		{{Key: "$addFields", Value: bson.M{"otherUserId": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$senderId", userID}},
			"$receiverId",
			"$senderId",
		}}}}},
		{{Key: "$sort", Value: bson.M{"timestamp": -1}}},
		{{Key: "$group", Value: bson.M{
			"_id":           "$otherUserId",
			"latestMessage": bson.M{"$first": "$$ROOT"},
			"unreadCount": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiverId", userID}},
					bson.M{"$lt": bson.A{"$status", models.MessageStatusRead}},
				}},
				1,
				0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.M{"latestMessage.timestamp": -1}}},
	}

	dbResp, err := c.DB.Aggregate(context.TODO(), pipeline)
	if err != nil {
		config.ErrorStatus("failed to get message user list", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.ConversationSummary{}
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkAsReadHandler is the request/response variant of the markAsRead socket
// event: every message from senderId to receiverId still below read gets
// bumped to read. Calling it again is a no-op.
func (c Chat) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MarkAsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		config.ErrorStatus("senderId and receiverId are required", http.StatusBadRequest, w,
			fmt.Errorf("missing field in mark as read request"))
		return
	}

	modified, err := c.DB.UpdateMany(context.TODO(),
		bson.M{"senderId": req.SenderID, "receiverId": req.ReceiverID, "status": bson.M{"$lt": models.MessageStatusRead}},
		bson.M{"$set": bson.M{"status": models.MessageStatusRead}},
	)
	if err != nil {
		config.ErrorStatus("failed to mark messages as read", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Debugf("marked %d messages from %s as read by %s", modified, req.SenderID, req.ReceiverID)

	b, err := json.Marshal(models.SuccessResponse{Success: true})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func getPage(Page int, r *http.Request) int {
	if r.URL.Query().Get("page") == "" {
		zap.S().Warnf("page not set, using default of %v", Page)
	} else {
		var err error
		Page, err = strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			zap.S().Errorf(fmt.Sprintf("error parsing page number: %v", err))
		}
		if Page < 0 {
			zap.S().Warnf(fmt.Sprintf("cannot process page number less than 1. Got: %v", Page))
			return 0
		}
	}
	return Page
}
