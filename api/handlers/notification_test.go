package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/jobseekr/realtime-api/api/handlers"
	"github.com/jobseekr/realtime-api/databases/mocks"
	"github.com/jobseekr/realtime-api/models"
	"github.com/jobseekr/realtime-api/realtime"
)

// joinedConn dials the hub and announces userID, consuming the resulting
// onlineUsers broadcast
func joinedConn(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]interface{}{"event": models.EventJoin, "data": userID}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f models.SocketEvent
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, models.EventOnlineUsers, f.Event)
	return conn
}

func TestNotification_SendNotificationHandler(t *testing.T) {
	hub := realtime.NewHub(realtime.NewRegistry(), &mocks.ChatMessageDatabase{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := joinedConn(t, srv, "user-x")

	form := url.Values{
		"id":                {"68b1c0ffee"},
		"title":             {"New job match"},
		"message":           {"A recruiter viewed your profile"},
		"url":               {"/jobs/68b1c0ffee"},
		"created_at":        {"2026-08-31T10:00:00Z"},
		"sender_id":         {"recruiter-1"},
		"assign_person_ids": {"user-x", "user-offline"},
	}

	n := handlers.Notification{Hub: hub}
	req, err := http.NewRequest("POST", "/send-notification", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.SendNotificationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"success":true}`, rr.Body.String())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f models.SocketEvent
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("expected a notification frame, got error: %v", err)
	}
	assert.Equal(t, models.EventNotification, f.Event)

	var event models.NotificationEvent
	assert.NoError(t, json.Unmarshal(f.Data, &event))
	assert.Equal(t, "68b1c0ffee", event.ID)
	assert.Equal(t, "New job match", event.Title)
	assert.Equal(t, "A recruiter viewed your profile", event.Message)
}

func TestNotification_SendNotificationHandlerBracketedKey(t *testing.T) {
	hub := realtime.NewHub(realtime.NewRegistry(), &mocks.ChatMessageDatabase{})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := joinedConn(t, srv, "user-x")

	form := url.Values{
		"id":                  {"68b1c0ffee"},
		"title":               {"Interview scheduled"},
		"assign_person_ids[]": {"user-x"},
	}

	n := handlers.Notification{Hub: hub}
	req, err := http.NewRequest("POST", "/send-notification", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.SendNotificationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f models.SocketEvent
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("expected a notification frame, got error: %v", err)
	}
	assert.Equal(t, models.EventNotification, f.Event)
}

func TestNotification_SendNotificationHandlerAllOffline(t *testing.T) {
	hub := realtime.NewHub(realtime.NewRegistry(), &mocks.ChatMessageDatabase{})

	form := url.Values{
		"id":                {"68b1c0ffee"},
		"title":             {"Application update"},
		"assign_person_ids": {"user-ghost"},
	}

	n := handlers.Notification{Hub: hub}
	req, err := http.NewRequest("POST", "/send-notification", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.SendNotificationHandler).ServeHTTP(rr, req)

	// delivery is best-effort, the caller always gets an acknowledgement
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"success":true}`, rr.Body.String())
}
