package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/handler"
	"github.com/pkordes/carshare/backend/internal/middleware"
)

// ---- mock ExportServicer ---------------------------------------------------

type mockExportServicer struct {
	export func(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.ExportRow, error)
	stats  func(ctx context.Context, actor domain.Actor) (domain.UsageStats, error)
}

func (m *mockExportServicer) Export(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.ExportRow, error) {
	return m.export(ctx, actor, from, to)
}

func (m *mockExportServicer) Stats(ctx context.Context, actor domain.Actor) (domain.UsageStats, error) {
	return m.stats(ctx, actor)
}

// compile-time check: mockExportServicer must satisfy handler.ExportServicer.
var _ handler.ExportServicer = (*mockExportServicer)(nil)

// ---- helpers ---------------------------------------------------------------

// newExportHTTPHandler wires a Server with only the export service mock.
func newExportHTTPHandler(exportSvc handler.ExportServicer) http.Handler {
	return handler.NewServer(nil, nil, exportSvc, nil).Routes()
}

// exportRequest builds an admin request for the given query string.
func exportRequest(t *testing.T, query string) *http.Request {
	t.Helper()
	req := newRequest(t, http.MethodGet, "/reservations/export?from=2025-03-01&to=2025-04-01"+query, nil)
	req.Header.Set(middleware.MemberAdminHeader, "true")
	return req
}

// exportRowFixture returns a fully-populated domain.ExportRow for testing.
func exportRowFixture() domain.ExportRow {
	return domain.ExportRow{
		ReservationID: uuid.New().String(),
		VehicleName:   "Blue Van",
		OwnerName:     "Alice",
		Start:         at(3, 9),
		End:           at(3, 17),
		Hours:         8,
		Destination:   "Lake, North Shore",
		SeriesID:      uuid.New().String(),
	}
}

func returning(rows ...domain.ExportRow) *mockExportServicer {
	return &mockExportServicer{
		export: func(context.Context, domain.Actor, time.Time, time.Time) ([]domain.ExportRow, error) {
			return rows, nil
		},
	}
}

// ---- GET /reservations/export (JSON) -------------------------------------

func TestGetExport_JSON_Default(t *testing.T) {
	row := exportRowFixture()
	var gotActor domain.Actor
	var gotFrom, gotTo time.Time
	svc := &mockExportServicer{
		export: func(_ context.Context, a domain.Actor, from, to time.Time) ([]domain.ExportRow, error) {
			gotActor, gotFrom, gotTo = a, from, to
			return []domain.ExportRow{row}, nil
		},
	}

	rec := serve(newExportHTTPHandler(svc), exportRequest(t, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.True(t, gotActor.IsAdmin)
	assert.Equal(t, at(1, 0), gotFrom)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), gotTo)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Blue Van", rows[0]["vehicle"])
	assert.Equal(t, "2025-03-03T09:00:00", rows[0]["start_time"])
	assert.EqualValues(t, 8, rows[0]["hours"])
}

func TestGetExport_JSON_EmptyOptionalsOmitted(t *testing.T) {
	row := exportRowFixture()
	row.Destination = ""
	row.SeriesID = ""

	rec := serve(newExportHTTPHandler(returning(row)), exportRequest(t, "&format=json"))

	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0], "destination")
	assert.NotContains(t, rows[0], "series_id")
}

func TestGetExport_JSON_EmptyResult(t *testing.T) {
	rec := serve(newExportHTTPHandler(returning()), exportRequest(t, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// ---- GET /reservations/export (CSV) --------------------------------------

func TestGetExport_CSV_EmptyResult_HasHeaderRow(t *testing.T) {
	rec := serve(newExportHTTPHandler(returning()), exportRequest(t, "&format=csv"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "reservation_id,"), "CSV should start with header row, got: %q", body)
}

func TestGetExport_CSV_OneRow_QuotesCommas(t *testing.T) {
	row := exportRowFixture()

	rec := serve(newExportHTTPHandler(returning(row)), exportRequest(t, "&format=csv"))

	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	// Header + 1 data row.
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "reservation_id")
	assert.Contains(t, lines[1], row.ReservationID)
	assert.Contains(t, lines[1], "2025-03-03T09:00:00")
	assert.Contains(t, lines[1], "8.00")
	assert.Contains(t, lines[1], `"Lake, North Shore"`)
}

// ---- error handling --------------------------------------------------------

func TestGetExport_403_NotAdmin(t *testing.T) {
	svc := &mockExportServicer{
		export: func(context.Context, domain.Actor, time.Time, time.Time) ([]domain.ExportRow, error) {
			return nil, fmt.Errorf("service.ExportService.Export: %w", domain.ErrForbidden)
		},
	}

	req := newRequest(t, http.MethodGet, "/reservations/export?from=2025-03-01&to=2025-04-01", nil)
	rec := serve(newExportHTTPHandler(svc), req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetExport_400_UnknownFormat(t *testing.T) {
	rec := serve(newExportHTTPHandler(returning()), exportRequest(t, "&format=xlsx"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetExport_ServiceError_Returns500(t *testing.T) {
	svc := &mockExportServicer{
		export: func(context.Context, domain.Actor, time.Time, time.Time) ([]domain.ExportRow, error) {
			return nil, fmt.Errorf("database unavailable")
		},
	}

	rec := serve(newExportHTTPHandler(svc), exportRequest(t, ""))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
