package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/middleware"
)

const reservationNotFound = "reservation not found"

// reservationRequest is the body of POST and PUT /reservations.
type reservationRequest struct {
	VehicleID   openapi_types.UUID `json:"vehicle_id"`
	StartTime   *wallTime          `json:"start_time"`
	EndTime     *wallTime          `json:"end_time"`
	IsWholeDay  bool               `json:"is_whole_day"`
	Destination string             `json:"destination"`
	Recurrence  *recurrenceBody    `json:"recurrence,omitempty"`
}

type recurrenceBody struct {
	Frequency  string              `json:"frequency"`
	Interval   int                 `json:"interval,omitempty"`
	DaysOfWeek []int               `json:"days_of_week,omitempty"`
	DayOfMonth int                 `json:"day_of_month,omitempty"`
	EndType    string              `json:"end_type"`
	EndDate    *openapi_types.Date `json:"end_date,omitempty"`
	Count      int                 `json:"count,omitempty"`
}

type reservationResponse struct {
	ID             openapi_types.UUID  `json:"id"`
	VehicleID      openapi_types.UUID  `json:"vehicle_id"`
	OwnerID        openapi_types.UUID  `json:"owner_id"`
	OwnerName      string              `json:"owner_name,omitempty"`
	StartTime      wallTime            `json:"start_time"`
	EndTime        wallTime            `json:"end_time"`
	IsWholeDay     bool                `json:"is_whole_day"`
	Destination    string              `json:"destination,omitempty"`
	SeriesID       *openapi_types.UUID `json:"series_id,omitempty"`
	RecurrenceRule *recurrenceBody     `json:"recurrence_rule,omitempty"`
	IsException    bool                `json:"is_exception"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type listResponse[T any] struct {
	Data       []T         `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// CreateReservation handles POST /reservations. A body with "recurrence"
// books the whole series or nothing.
func (s *Server) CreateReservation(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	body, ok := decodeReservation(w, r)
	if !ok {
		return
	}
	in, err := requestToInput(body)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody(err.Error()))
		return
	}

	var created []domain.Reservation
	if body.Recurrence != nil {
		created, err = s.bookings.CreateSeries(r.Context(), actor, in, requestToRule(body.Recurrence))
	} else {
		var one domain.Reservation
		one, err = s.bookings.Create(r.Context(), actor, in)
		created = []domain.Reservation{one}
	}
	if err != nil {
		s.writeServiceError(w, r, err, "vehicle not found")
		return
	}

	w.Header().Set("Location", "/reservations/"+created[0].ID.String())
	writeJSON(w, http.StatusCreated, listResponse[reservationResponse]{Data: reservationsToResponse(created)})
}

// ListReservations handles GET /reservations?from=&to=&vehicle_id=.
// It returns every reservation overlapping the window, for all vehicles
// unless vehicle_id is given.
func (s *Server) ListReservations(w http.ResponseWriter, r *http.Request) {
	window, err := bindWindow(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	vehicleID, err := bindOptionalUUID(r, "vehicle_id")
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	rs, err := s.bookings.ListWindow(r.Context(), vehicleID, window.From.Time(), window.To.Time())
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[reservationResponse]{Data: reservationsToResponse(rs)})
}

// GetReservation handles GET /reservations/{id}.
func (s *Server) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	res, err := s.bookings.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, reservationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reservationToResponse(res))
}

// UpdateReservation handles PUT /reservations/{id}?scope=.
// An omitted vehicle_id keeps the reservation on its current vehicle.
func (s *Server) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	scope, err := bindScope(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	body, ok := decodeReservation(w, r)
	if !ok {
		return
	}
	if body.Recurrence != nil {
		writeJSON(w, http.StatusUnprocessableEntity,
			requestBody("the recurrence of an existing series cannot be changed; delete it and book a new series"))
		return
	}
	in, err := requestToInput(body)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody(err.Error()))
		return
	}

	updated, err := s.bookings.Edit(r.Context(), actor, id, scope, in)
	if err != nil {
		s.writeServiceError(w, r, err, reservationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[reservationResponse]{Data: reservationsToResponse(updated)})
}

// DeleteReservation handles DELETE /reservations/{id}?scope=.
func (s *Server) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	scope, err := bindScope(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	if err := s.bookings.Delete(r.Context(), actor, id, scope); err != nil {
		s.writeServiceError(w, r, err, reservationNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMyReservations handles GET /members/me/reservations.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	params, err := bindPagination(r)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	page, err := s.bookings.ListByOwner(r.Context(), actor.MemberID, params)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[reservationResponse]{
		Data: reservationsToResponse(page.Items),
		Pagination: &pagination{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
		},
	})
}

// --- mapping helpers --------------------------------------------------------

// decodeReservation reads the JSON body, writing the error response itself
// when it cannot.
func decodeReservation(w http.ResponseWriter, r *http.Request) (reservationRequest, bool) {
	var body reservationRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
	case errors.Is(err, io.EOF):
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("request body is required"))
	default:
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("malformed request body: "+err.Error()))
	}
	return body, false
}

// requestToInput converts a request body into a domain.ReservationInput.
// Returns an error if required fields are missing. A whole-day booking
// may omit end_time to book a single day.
func requestToInput(body reservationRequest) (domain.ReservationInput, error) {
	if body.StartTime == nil {
		return domain.ReservationInput{}, errors.New("start_time is required")
	}
	in := domain.ReservationInput{
		VehicleID:   body.VehicleID,
		Start:       body.StartTime.Time(),
		IsWholeDay:  body.IsWholeDay,
		Destination: body.Destination,
	}
	switch {
	case body.EndTime != nil:
		in.End = body.EndTime.Time()
	case body.IsWholeDay:
		in.End = in.Start
	default:
		return domain.ReservationInput{}, errors.New("end_time is required")
	}
	return in, nil
}

// requestToRule converts the recurrence body into a domain rule. Interval
// defaults to 1; all other checks are left to the rule's own validation.
func requestToRule(b *recurrenceBody) domain.RecurrenceRule {
	rule := domain.RecurrenceRule{
		Frequency:  domain.Frequency(b.Frequency),
		Interval:   b.Interval,
		DaysOfWeek: b.DaysOfWeek,
		DayOfMonth: b.DayOfMonth,
		EndType:    domain.EndType(b.EndType),
		Count:      b.Count,
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if b.EndDate != nil {
		d := b.EndDate.Time
		rule.EndDate = &d
	}
	return rule
}

func ruleToResponse(rule *domain.RecurrenceRule) *recurrenceBody {
	if rule == nil {
		return nil
	}
	b := &recurrenceBody{
		Frequency:  string(rule.Frequency),
		Interval:   rule.Interval,
		DaysOfWeek: rule.DaysOfWeek,
		DayOfMonth: rule.DayOfMonth,
		EndType:    string(rule.EndType),
		Count:      rule.Count,
	}
	if rule.EndDate != nil {
		b.EndDate = &openapi_types.Date{Time: *rule.EndDate}
	}
	return b
}

// reservationToResponse converts a domain.Reservation into its wire form.
func reservationToResponse(r domain.Reservation) reservationResponse {
	resp := reservationResponse{
		ID:             r.ID,
		VehicleID:      r.VehicleID,
		OwnerID:        r.OwnerID,
		OwnerName:      r.OwnerName,
		StartTime:      wallTime(r.StartTime),
		EndTime:        wallTime(r.EndTime),
		IsWholeDay:     r.IsWholeDay,
		Destination:    r.Destination,
		RecurrenceRule: ruleToResponse(r.RecurrenceRule),
		IsException:    r.IsException,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SeriesID != nil {
		id := *r.SeriesID
		resp.SeriesID = &id
	}
	return resp
}

// reservationsToResponse never returns nil so empty lists encode as [].
func reservationsToResponse(rs []domain.Reservation) []reservationResponse {
	out := make([]reservationResponse, len(rs))
	for i, r := range rs {
		out[i] = reservationToResponse(r)
	}
	return out
}
