package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Conflict names the booking that blocked the request on 409s.
	Conflict *conflictDetail `json:"conflict,omitempty"`
}

type conflictDetail struct {
	ReservationID openapi_types.UUID `json:"reservation_id"`
	VehicleID     openapi_types.UUID `json:"vehicle_id"`
	OwnerName     string             `json:"owner_name,omitempty"`
	StartTime     wallTime           `json:"start_time"`
	EndTime       wallTime           `json:"end_time"`
	// Date is the day of the rejected occurrence.
	Date openapi_types.Date `json:"date"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// notFoundBody returns an error body for a missing resource.
// The caller supplies the human-readable message (e.g. "reservation not found")
// because the handler is the layer that knows what was being looked up.
func notFoundBody(message string) errorResponse {
	return errorResponse{Error: errorDetail{Code: "not_found", Message: message}}
}

// validationBody returns an error body for a domain validation failure.
// The message is extracted from the wrapped domain.ErrValidation error.
func validationBody(err error) errorResponse {
	return errorResponse{Error: errorDetail{Code: "validation_error", Message: unwrapMessage(err)}}
}

// requestBody returns an error body for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) errorResponse {
	return errorResponse{Error: errorDetail{Code: "validation_error", Message: message}}
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.BookingService.Create: validation error: end time must be after start time"
// → "end time must be after start time"
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const marker = "validation error: "
	if i := strings.LastIndex(msg, marker); i >= 0 && len(msg) > i+len(marker) {
		return msg[i+len(marker):]
	}
	return msg
}

// writeServiceError maps a service error onto the API's status codes.
// notFound is the message used for domain.ErrNotFound.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var conflict *domain.ConflictError
	var blocked *domain.WholeDayBlockedError

	switch {
	case errors.Is(err, errBadParam):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorDetail{
			Code:     "conflict",
			Message:  conflict.Error(),
			Conflict: newConflictDetail(conflict.With, conflict.Candidate.Start),
		}})
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorDetail{
			Code:     "whole_day_blocked",
			Message:  blocked.Error(),
			Conflict: newConflictDetail(blocked.By, blocked.Date),
		}})
	case errors.Is(err, domain.ErrConflict):
		// Raised by the storage backstop, so there is no blocking booking to name.
		writeError(w, http.StatusConflict, "conflict", "the vehicle is already booked for that time")
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, validationBody(err))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "only the owner or an admin may change this reservation")
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, notFoundBody(notFound))
	default:
		s.log.ErrorContext(r.Context(), "unhandled error", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func newConflictDetail(with domain.Reservation, day time.Time) *conflictDetail {
	return &conflictDetail{
		ReservationID: with.ID,
		VehicleID:     with.VehicleID,
		OwnerName:     with.OwnerName,
		StartTime:     wallTime(with.StartTime),
		EndTime:       wallTime(with.EndTime),
		Date:          openapi_types.Date{Time: domain.DayStart(day)},
	}
}
