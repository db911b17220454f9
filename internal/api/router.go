package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/storage"
)

type RouterConfig struct {
	Clinic   *clinic.Service
	Auth     *auth.Service
	Push     PushTokenRegistrar
	Realtime *RealtimeHandler
	// Disk serves public objects; nil disables the storage route.
	Disk     *storage.Disk
	Postgres Pinger
	Redis    *redis.Client
	Log      zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	log := cfg.Log

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Disk != nil {
		r.Get(storage.PublicPrefix+"{bucket}/*", publicObjectHandler(cfg.Disk, log))
	}

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/token", tokenHandler(cfg.Auth, log))
		r.Post("/logout", logoutHandler(cfg.Auth, log))
		r.Post("/recover", recoverHandler(cfg.Auth, log))
		r.Post("/recover/confirm", recoverConfirmHandler(cfg.Auth, log))
		r.With(AuthMiddleware(cfg.Auth)).Get("/user", currentUserHandler(cfg.Auth, log))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		if cfg.Realtime != nil {
			r.Get("/realtime/v1/websocket", cfg.Realtime.ServeHTTP)
		}
		if cfg.Push != nil {
			r.Put("/push-tokens", pushTokenHandler(cfg.Push, log))
		}

		svc := cfg.Clinic

		r.Get("/patients", listPatientsHandler(svc, log))
		r.Post("/patients", createPatientHandler(svc, log))
		r.Get("/patients/{id}", getPatientHandler(svc, log))
		r.Patch("/patients/{id}", updatePatientHandler(svc, log))
		r.Post("/patients/{id}/photo", uploadPhotoHandler(svc, log))
		r.Get("/patients/{id}/odontogram", odontogramHandler(svc, log))

		r.Get("/appointments", listAppointmentsHandler(svc, log))
		r.Post("/appointments", createAppointmentHandler(svc, log))
		r.Get("/appointments/{id}", getAppointmentHandler(svc, log))
		r.Put("/appointments/{id}", updateAppointmentHandler(svc, log))
		r.Patch("/appointments/{id}/status", updateAppointmentStatusHandler(svc, log))

		r.Get("/payments", listPaymentsHandler(svc, log))
		r.Post("/payments", createPaymentHandler(svc, log))
		r.Get("/payments/{id}", getPaymentHandler(svc, log))
		r.Put("/payments/{id}", updatePaymentHandler(svc, log))
		r.Post("/payments/{id}/receipt", attachReceiptHandler(svc, log))

		r.Get("/dental-records", listDentalRecordsHandler(svc, log))
		r.Post("/dental-records", createDentalRecordsHandler(svc, log))
		r.Get("/dental-records/{id}", getDentalRecordHandler(svc, log))
		r.Put("/dental-records/{id}", updateDentalRecordHandler(svc, log))
		r.Delete("/dental-records/{id}", deleteDentalRecordHandler(svc, log))

		r.Get("/dashboard", dashboardHandler(svc, log))
		r.Get("/dashboard/monthly", monthlySeriesHandler(svc, log))
	})

	return r
}
