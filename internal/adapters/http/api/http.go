// Package api exposes the contest over HTTP and registers its routes.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/checkin/internal/domain/auth"
	"github.com/okian/checkin/internal/domain/checkin"
	"github.com/okian/checkin/internal/domain/ledger"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
	"github.com/okian/checkin/pkg/metrics"
)

const defaultMaxBodyBytes = 10 << 20

// EventService creates and reads events.
type EventService interface {
	CreateEvent(ctx context.Context, in model.NewEvent) (string, error)
	TaskStatus(ctx context.Context, taskID string) (model.Task, error)
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// TeamService manages teams and memberships.
type TeamService interface {
	CreateTeam(ctx context.Context, eventID int64, name, description string) (model.Team, error)
	Join(ctx context.Context, eventID, teamID, userID int64) (ledger.JoinResult, error)
	ListTeamsForEvent(ctx context.Context, eventID int64) ([]model.Team, error)
	ListTeamsForUser(ctx context.Context, userID int64) ([]model.Team, error)
	TeamMembers(ctx context.Context, teamID int64) ([]model.User, error)
}

// CheckInService ingests and lists check-ins.
type CheckInService interface {
	Submit(ctx context.Context, in checkin.SubmitInput) ([]model.CheckIn, error)
	ListRecent(ctx context.Context, eventID int64, limit int) ([]model.CheckIn, error)
}

// RankingService reads event rankings.
type RankingService interface {
	Ranking(ctx context.Context, eventID int64) ([]model.RankingEntry, error)
}

// UserService registers users and manages sessions.
type UserService interface {
	Register(ctx context.Context, username, email, password string) (model.User, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Logout(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (int64, error)
}

// Dependencies bundles every service the handlers call.
type Dependencies interface {
	EventService
	TeamService
	CheckInService
	RankingService
	UserService
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	teamsHandler     *TeamsHandler
	checkInsHandler  *CheckInsHandler
	rankingHandler   *RankingHandler
	usersHandler     *UsersHandler
	dashboardHandler *dashboardHandler

	authRequired bool
	maxBodyBytes int64
	photoDir     string
	logger       logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, status StatusProvider, opts ...Option) *Server {
	s := &Server{
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := &codec{maxBodyBytes: s.maxBodyBytes, logger: s.logger}
	guard := &identity{users: deps, required: s.authRequired}

	s.healthHandler = NewHealthHandler(status)
	s.statsHandler = NewStatsHandler(status)
	s.eventsHandler = NewEventsHandler(deps, c)
	s.teamsHandler = NewTeamsHandler(deps, guard, c)
	s.checkInsHandler = NewCheckInsHandler(deps, guard, c)
	s.rankingHandler = NewRankingHandler(deps, c)
	s.usersHandler = NewUsersHandler(deps, c)
	s.dashboardHandler = newDashboardHandler()
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)

	mux.HandleFunc("POST /api/event/create", MetricsMiddleware(s.eventsHandler.HandleCreate, "event_create"))
	mux.HandleFunc("GET /api/event/all", MetricsMiddleware(s.eventsHandler.HandleList, "event_list"))
	mux.HandleFunc("GET /api/event/list", MetricsMiddleware(s.eventsHandler.HandleList, "event_list"))
	mux.HandleFunc("GET /api/event/{eventId}", MetricsMiddleware(s.eventsHandler.HandleGet, "event_get"))
	// status/{taskId} overlaps {eventId}/{view}, so one pattern dispatches both.
	mux.HandleFunc("GET /api/event/{eventId}/{view}", s.eventView(map[string]http.HandlerFunc{
		"status":  MetricsMiddleware(s.eventsHandler.HandleStatus, "event_status"),
		"teams":   MetricsMiddleware(s.teamsHandler.HandleList, "team_list"),
		"ranking": MetricsMiddleware(s.rankingHandler.HandleRanking, "ranking"),
	}))

	mux.HandleFunc("POST /api/event/{eventId}/team/create", MetricsMiddleware(s.teamsHandler.HandleCreate, "team_create"))
	mux.HandleFunc("POST /api/event/{eventId}/teams/join", MetricsMiddleware(s.teamsHandler.HandleJoin, "team_join"))
	mux.HandleFunc("POST /api/event/{eventId}/team/{teamId}/join", MetricsMiddleware(s.teamsHandler.HandleJoin, "team_join"))
	mux.HandleFunc("POST /api/event/{eventId}/upload", MetricsMiddleware(s.checkInsHandler.HandleUpload, "upload"))
	mux.HandleFunc("POST /api/event/{eventId}/checkin", MetricsMiddleware(s.checkInsHandler.HandleCheckIn, "checkin"))
	mux.HandleFunc("GET /api/event/{eventId}/upload/list", MetricsMiddleware(s.checkInsHandler.HandleList, "upload_list"))

	mux.HandleFunc("GET /api/user/{userId}/teams", MetricsMiddleware(s.teamsHandler.HandleUserTeams, "user_teams"))
	mux.HandleFunc("GET /api/team/{teamId}/members", MetricsMiddleware(s.teamsHandler.HandleMembers, "team_members"))
	mux.HandleFunc("POST /api/user/register", MetricsMiddleware(s.usersHandler.HandleRegister, "register"))
	mux.HandleFunc("POST /api/user/login", MetricsMiddleware(s.usersHandler.HandleLogin, "login"))
	mux.HandleFunc("POST /api/user/logout", MetricsMiddleware(s.usersHandler.HandleLogout, "logout"))

	if s.photoDir != "" {
		mux.Handle("GET /photos/", http.StripPrefix("/photos/", http.FileServer(http.Dir(s.photoDir))))
	}
}

// eventView routes GET /api/event/{eventId}/{view}. For the status route the
// first segment is the literal "status" and the second is the task id.
func (s *Server) eventView(views map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("eventId") == "status" {
			r.SetPathValue("taskId", r.PathValue("view"))
			views["status"](w, r)
			return
		}
		h, ok := views[r.PathValue("view")]
		if !ok || r.PathValue("view") == "status" {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}
