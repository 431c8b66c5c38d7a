// Package server wires the stores, external clients, and scheduling engine
// into an HTTP router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/karanmehta/agenda/internal/gcal"
	"github.com/karanmehta/agenda/internal/handler"
	"github.com/karanmehta/agenda/internal/middleware"
	"github.com/karanmehta/agenda/internal/oracle"
	"github.com/karanmehta/agenda/internal/schedule"
	"github.com/karanmehta/agenda/internal/store"
	ws "github.com/karanmehta/agenda/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	scheduleH   *handler.ScheduleHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, calendar *gcal.Client, planner *oracle.Client, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	taskStore := store.NewTaskStore(db)
	eventStore := store.NewEventStore(db)
	userStore := store.NewUserStore(db)
	accountStore := store.NewGoogleAccountStore(db)

	svc := schedule.NewService(taskStore, eventStore, userStore, accountStore, calendar, planner, logger.With("component", "schedule"))

	return &Server{
		db:          db,
		hub:         hub,
		scheduleH:   handler.NewScheduleHandler(svc, hub, logger.With("component", "handler")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	mux.HandleFunc("POST /api/conflicts/check", s.scheduleH.CheckConflicts)
	mux.HandleFunc("POST /api/tasks", s.scheduleH.CreateTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.scheduleH.CompleteTask)
	mux.HandleFunc("POST /api/todos", s.scheduleH.CreateTodo)
	mux.HandleFunc("POST /api/meetings", s.scheduleH.ScheduleMeeting)
	mux.HandleFunc("POST /api/events/{id}/link", s.scheduleH.GenerateLink)
	mux.HandleFunc("POST /api/events/{id}/collaborators", s.scheduleH.AddCollaborators)
	mux.HandleFunc("GET /api/events", s.scheduleH.ListEvents)
	mux.HandleFunc("GET /api/collaborators/search", s.scheduleH.SearchCollaborators)

	// Each re-plan call hits the external planning service, so it is the one
	// endpoint worth throttling per client.
	mux.HandleFunc("POST /api/replan", s.rateLimitedHandler(s.scheduleH.Replan))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
