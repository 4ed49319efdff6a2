package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/auth"
	"github.com/hackgods/appointment-notifications/internal/notification"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, caller auth.Principal, doctorID *int64, timeslot time.Time) (*appointment.Appointment, error)
	ApproveAppointment(ctx context.Context, caller auth.Principal, id int64) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, caller auth.Principal, id int64) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, caller auth.Principal, id int64, timeslot time.Time) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, caller auth.Principal) ([]appointment.Appointment, error)
}

type NotificationHistory interface {
	History(ctx context.Context, userID int64) ([]notification.Notification, error)
}

type AppointmentRouterConfig struct {
	Service        AppointmentService
	Verifier       auth.Verifier
	Health         *HealthHandler
	AllowedOrigins []string
	Logger         *zap.Logger
}

type NotificationRouterConfig struct {
	History        NotificationHistory
	Verifier       auth.Verifier
	Channels       http.Handler
	Health         *HealthHandler
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewAppointmentRouter(cfg AppointmentRouterConfig) http.Handler {
	r := baseRouter(cfg.Health, cfg.AllowedOrigins, cfg.Logger)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Verifier))

		r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Put("/appointments/{id}/approve", approveAppointmentHandler(cfg.Service, cfg.Logger))
		r.Put("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Logger))
		r.Put("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, cfg.Logger))
	})

	return r
}

func NewNotificationRouter(cfg NotificationRouterConfig) http.Handler {
	r := baseRouter(cfg.Health, cfg.AllowedOrigins, cfg.Logger)

	// The channel handler authenticates its own handshake
	r.Handle("/ws", cfg.Channels)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Verifier))
		r.Get("/notifications", listNotificationsHandler(cfg.History, cfg.Logger))
	})

	return r
}

func baseRouter(health *HealthHandler, origins []string, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}))

	if health != nil {
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}
	r.Handle("/metrics", promhttp.Handler())

	return r
}
