package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic-scheduling/internal/identity"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Service   *schedule.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret []byte
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints are unauthenticated.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/appointments", func(r chi.Router) {
		r.Use(identity.RequireAuth(cfg.JWTSecret))

		r.With(identity.Require(identity.ActionAppointmentsRead)).Group(func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(svc))
			r.Get("/{id}", getAppointmentHandler(svc))
		})

		r.With(identity.Require(identity.ActionAppointmentsWrite)).Group(func(r chi.Router) {
			r.Post("/", scheduleAppointmentHandler(svc))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(svc))
			r.Post("/{id}/cancel", cancelAppointmentHandler(svc))
			r.Post("/{id}/room", assignRoomHandler(svc))
			r.Post("/{id}/start", transitionHandler(func(req *http.Request, caller identity.Identity, id uuid.UUID) (*schedule.Appointment, error) {
				return svc.Start(req.Context(), caller.OrganizationID, caller.UserID, id)
			}))
			r.Post("/{id}/complete", transitionHandler(func(req *http.Request, caller identity.Identity, id uuid.UUID) (*schedule.Appointment, error) {
				return svc.Complete(req.Context(), caller.OrganizationID, caller.UserID, id)
			}))
			r.Post("/{id}/no-show", transitionHandler(func(req *http.Request, caller identity.Identity, id uuid.UUID) (*schedule.Appointment, error) {
				return svc.MarkNoShow(req.Context(), caller.OrganizationID, caller.UserID, id)
			}))
		})
	})

	return r
}
