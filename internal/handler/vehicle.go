package handler

import (
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/carshare/backend/internal/domain"
)

const vehicleNotFound = "vehicle not found"

type vehicleResponse struct {
	ID          openapi_types.UUID `json:"id"`
	Name        string             `json:"name"`
	KeyLocation *string            `json:"key_location,omitempty"`
	Comment     *string            `json:"comment,omitempty"`
	HasAlert    bool               `json:"has_alert"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type wholeDayBlockResponse struct {
	Blocked bool `json:"blocked"`
}

// ListVehicles handles GET /vehicles.
func (s *Server) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.vehicles.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	data := make([]vehicleResponse, len(vehicles))
	for i, v := range vehicles {
		data[i] = vehicleToResponse(v)
	}
	writeJSON(w, http.StatusOK, listResponse[vehicleResponse]{Data: data})
}

// GetVehicle handles GET /vehicles/{id}.
func (s *Server) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	v, err := s.vehicles.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, vehicleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, vehicleToResponse(v))
}

// GetVehicleCalendar handles GET /vehicles/{id}/calendar.ics?from=&to=.
// The feed is plain iCalendar so members can subscribe from any calendar app.
func (s *Server) GetVehicleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	window, err := bindWindow(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	feed, err := s.vehicles.CalendarFeed(r.Context(), id, window.From.Time(), window.To.Time())
	if err != nil {
		s.writeServiceError(w, r, err, vehicleNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+id.String()+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// GetWholeDayBlock handles GET /vehicles/{id}/whole-day-block?date=.
// The booking form calls it before offering partial-day slots: 200 means the
// date is free of whole-day bookings, 409 names the one that blocks it.
func (s *Server) GetWholeDayBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	date, err := bindDate(r, "date")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	if err := s.bookings.CheckWholeDayBlock(r.Context(), id, date.Time); err != nil {
		s.writeServiceError(w, r, err, vehicleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wholeDayBlockResponse{Blocked: false})
}

// vehicleToResponse converts a domain.Vehicle into its wire form.
// Empty optional strings become nil pointers (omitted in JSON).
func vehicleToResponse(v domain.Vehicle) vehicleResponse {
	resp := vehicleResponse{
		ID:        v.ID,
		Name:      v.Name,
		HasAlert:  v.HasAlert,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
	if v.KeyLocation != "" {
		resp.KeyLocation = &v.KeyLocation
	}
	if v.Comment != "" {
		resp.Comment = &v.Comment
	}
	return resp
}
