package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/config"
	"github.com/jobseekr/realtime-api/models"
	"github.com/jobseekr/realtime-api/realtime"
)

// Notification exported for testing purposes
type Notification struct {
	Hub *realtime.Hub
}

// SendNotificationHandler is the bridge the CRUD backend calls after durably
// creating a notification record. Delivery is best-effort: offline assignees
// are skipped and the response is a success acknowledgement no matter how
// many targets were reachable.
func (n Notification) SendNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		config.ErrorStatus("failed to parse form", http.StatusBadRequest, w, err)
		return
	}

	event := models.NotificationEvent{
		ID:        r.PostFormValue("id"),
		Title:     r.PostFormValue("title"),
		Message:   r.PostFormValue("message"),
		URL:       r.PostFormValue("url"),
		CreatedAt: r.PostFormValue("created_at"),
	}

	// a single assignee arrives as one value, multiple as a repeated field;
	// the CRUD backend's form encoder may also suffix the key with []
	recipients := r.PostForm["assign_person_ids"]
	if len(recipients) == 0 {
		recipients = r.PostForm["assign_person_ids[]"]
	}

	delivered := 0
	for _, userID := range recipients {
		if n.Hub.EmitToUser(userID, models.EventNotification, event) {
			zap.S().Infow("sent notification", "userId", userID, "notificationId", event.ID)
			delivered++
		}
	}
	zap.S().Debugf("notification %s from %s delivered to %d of %d assignees",
		event.ID, r.PostFormValue("sender_id"), delivered, len(recipients))

	b, err := json.Marshal(models.SuccessResponse{Success: true})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
