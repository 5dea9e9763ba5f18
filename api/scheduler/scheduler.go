package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jobseekr/realtime-api/realtime"
)

// Scheduler handles periodic background jobs for the socket hub
type Scheduler struct {
	cron *cron.Cron
	hub  *realtime.Hub
}

// NewScheduler creates a new scheduler instance
func NewScheduler(hub *realtime.Hub) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		hub:  hub,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// ping every live socket once a minute; proxies like Heroku's router drop
	// connections that stay silent for too long
	_, err := s.cron.AddFunc("* * * * *", s.pingClients)
	if err != nil {
		zap.S().Errorw("failed to register keepalive job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("socket keepalive scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("socket keepalive scheduler stopped")
}

func (s *Scheduler) pingClients() {
	pinged := s.hub.PingClients()
	if pinged > 0 {
		zap.S().Debugw("sent keepalive pings", "connections", pinged)
	}
}
