package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sealtrack/sealtrack-backend/api/controllers"
	"github.com/sealtrack/sealtrack-backend/api/middleware"
	"github.com/sealtrack/sealtrack-backend/internal/auth"
	"github.com/sealtrack/sealtrack-backend/internal/locations"
	"github.com/sealtrack/sealtrack-backend/internal/tasks"
	"github.com/sealtrack/sealtrack-backend/internal/tracking"
	"github.com/sealtrack/sealtrack-backend/pkg/auth/session"
	"github.com/sealtrack/sealtrack-backend/pkg/config"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	authService *auth.Service,
	taskService *tasks.Service,
	locationService *locations.Service,
	gateway *tracking.Gateway,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.CORS(cfg.Tracking.AllowedOrigins()))
	r.Use(middleware.Logging(logg))

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginIdentityLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbPinger,
			"redis":    redisClient,
		}))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// The gateway authenticates the websocket handshake itself so watchers
	// can pass the token as a query parameter.
	r.Handle("/tracking", gateway)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessions, logg))
			r.Post("/logout", controllers.AuthLogout(authService, logg))
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleSupervisor))
			r.Get("/tasks", controllers.AdminListTasks(taskService, logg))
			r.Get("/tasks/{taskId}", controllers.AdminGetTask(taskService, logg))
			r.Get("/tasks/{taskId}/events", controllers.AdminListTaskEvents(taskService, logg))
			r.Get("/tasks/{taskId}/location", controllers.AdminTaskLocation(taskService, locationService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Post("/tasks", controllers.AdminCreateTask(taskService, logg))
			r.Post("/users/{userId}/device-reset", controllers.AdminResetDevice(authService, logg))
		})
	})

	r.Route("/api/v1/agent", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleFieldAgent))

		r.Get("/tasks", controllers.AgentListTasks(taskService, logg))
		r.Get("/tasks/{taskId}", controllers.AgentGetTask(taskService, logg))
		r.Post("/tasks/{taskId}/pickup", controllers.AgentConfirmPickup(taskService, logg))
		r.Post("/tasks/{taskId}/delivery", controllers.AgentConfirmDelivery(taskService, logg))
	})

	return r
}
