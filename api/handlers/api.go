package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/api/scheduler"
	"github.com/jobseekr/realtime-api/config"
	"github.com/jobseekr/realtime-api/databases"
	"github.com/jobseekr/realtime-api/models"
	"github.com/jobseekr/realtime-api/realtime"
)

// App stores the router, db connection and socket hub, so it can be reused
type App struct {
	Router   *mux.Router
	Hub      *realtime.Hub
	Config   config.Config
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	chatDB := databases.NewChatMessageDatabase(a.dbHelper)
	if a.Hub == nil {
		a.Hub = realtime.NewHub(realtime.NewRegistry(), chatDB)
	}

	c := Chat{DB: chatDB}
	n := Notification{Hub: a.Hub}

	r := mux.NewRouter()

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// the persistent socket connection every client holds
	r.HandleFunc("/ws", a.Hub.ServeWS)

	// called by the CRUD backend after it durably records a notification
	r.HandleFunc("/send-notification", n.SendNotificationHandler).Methods("POST")

	apiChat := r.PathPrefix("/api/chat").Subrouter()
	apiChat.HandleFunc("/user/getMessageUserList/{user_id}", c.MessageUserListHandler).Methods("GET")
	apiChat.HandleFunc("/markAsRead", c.MarkAsReadHandler).Methods("POST")
	// registered last so the wildcard pair cannot shadow the routes above
	apiChat.HandleFunc("/{user1}/{user2}", c.ChatHistoryHandler).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("jobseekr-realtime-api has connected to the database")

	// initialize api router
	a.initializeRoutes()

	// keepalive pings for the socket hub
	scheduler.NewScheduler(a.Hub).Start()

	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
