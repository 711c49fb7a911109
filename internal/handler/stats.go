package handler

import (
	"net/http"
	"time"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/middleware"
)

type vehicleUsageResponse struct {
	VehicleID string `json:"vehicle_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

type weekdayUsageResponse struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type usageStatsResponse struct {
	TotalReservations int                    `json:"total_reservations"`
	TotalVehicles     int                    `json:"total_vehicles"`
	TotalMembers      int                    `json:"total_members"`
	PerVehicle        []vehicleUsageResponse `json:"per_vehicle"`
	PerWeekday        []weekdayUsageResponse `json:"per_weekday"`
}

// GetStats handles GET /reservations/stats. Admins only.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	stats, err := s.exports.Stats(r.Context(), actor)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toUsageStatsResponse(stats))
}

// toUsageStatsResponse lists weekdays Sunday first.
func toUsageStatsResponse(st domain.UsageStats) usageStatsResponse {
	out := usageStatsResponse{
		TotalReservations: st.TotalReservations,
		TotalVehicles:     st.TotalVehicles,
		TotalMembers:      st.TotalMembers,
		PerVehicle:        make([]vehicleUsageResponse, 0, len(st.PerVehicle)),
		PerWeekday:        make([]weekdayUsageResponse, 0, len(st.PerWeekday)),
	}
	for _, v := range st.PerVehicle {
		out.PerVehicle = append(out.PerVehicle, vehicleUsageResponse{
			VehicleID: v.VehicleID.String(),
			Name:      v.Name,
			Count:     v.Count,
		})
	}
	for day, n := range st.PerWeekday {
		out.PerWeekday = append(out.PerWeekday, weekdayUsageResponse{Day: time.Weekday(day).String(), Count: n})
	}
	return out
}
