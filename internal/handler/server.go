// Package handler implements the HTTP handlers for the car-sharing booking API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, reservation.go, vehicle.go) but all share the same Server
// struct so they can access its dependencies. Routes mirrors api/openapi.yaml.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/middleware"
)

// BookingServicer defines the booking operations the reservation handlers
// depend on. Defining the interface here (in the consumer package) lets
// handler tests inject a mock without touching the database or service layer.
type BookingServicer interface {
	Create(ctx context.Context, actor domain.Actor, in domain.ReservationInput) (domain.Reservation, error)
	CreateSeries(ctx context.Context, actor domain.Actor, in domain.ReservationInput, rule domain.RecurrenceRule) ([]domain.Reservation, error)
	Edit(ctx context.Context, actor domain.Actor, id uuid.UUID, scope domain.Scope, in domain.ReservationInput) ([]domain.Reservation, error)
	Delete(ctx context.Context, actor domain.Actor, id uuid.UUID, scope domain.Scope) error
	CheckWholeDayBlock(ctx context.Context, vehicleID uuid.UUID, day time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	ListWindow(ctx context.Context, vehicleID *uuid.UUID, from, to time.Time) ([]domain.Reservation, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Reservation], error)
}

// VehicleServicer defines the vehicle operations the vehicle handlers depend on.
type VehicleServicer interface {
	List(ctx context.Context) ([]domain.Vehicle, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error)
	CalendarFeed(ctx context.Context, id uuid.UUID, from, to time.Time) (string, error)
}

// ExportServicer produces the admin usage export and dashboard totals.
type ExportServicer interface {
	Export(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.ExportRow, error)
	Stats(ctx context.Context, actor domain.Actor) (domain.UsageStats, error)
}

// Server holds the dependencies shared by every handler.
type Server struct {
	bookings BookingServicer
	vehicles VehicleServicer
	exports  ExportServicer
	log      *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
// A nil logger discards handler error logs.
func NewServer(bookings BookingServicer, vehicles VehicleServicer, exports ExportServicer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{bookings: bookings, vehicles: vehicles, exports: exports, log: log}
}

// Routes returns a chi router serving every endpoint. Endpoints that act on
// behalf of a member sit behind the identity middleware. Vehicle reads and
// the calendar feed are public so calendar apps can subscribe to them.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", s.ListVehicles)
		r.Get("/{id}", s.GetVehicle)
		r.Get("/{id}/calendar.ics", s.GetVehicleCalendar)
		r.Get("/{id}/whole-day-block", s.GetWholeDayBlock)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityHandler())

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", s.CreateReservation)
			r.Get("/", s.ListReservations)
			r.Get("/export", s.GetExport)
			r.Get("/stats", s.GetStats)
			r.Get("/{id}", s.GetReservation)
			r.Put("/{id}", s.UpdateReservation)
			r.Delete("/{id}", s.DeleteReservation)
		})
		r.Get("/members/me/reservations", s.ListMyReservations)
	})

	return r
}
