package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// errBadParam marks a path or query parameter that failed to bind.
// Handlers map it to 400, unlike body validation failures (422).
var errBadParam = errors.New("invalid parameter")

// pathID binds the {id} path segment.
func pathID(r *http.Request) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return id, fmt.Errorf("%w: id: %v", errBadParam, err)
	}
	return id, nil
}

// windowParams holds the from/to bounds shared by the listing and feed endpoints.
type windowParams struct {
	From wallTime
	To   wallTime
}

func bindWindow(r *http.Request) (windowParams, error) {
	var p windowParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "from", q, &p.From); err != nil {
		return p, fmt.Errorf("%w: from: %v", errBadParam, err)
	}
	if err := runtime.BindQueryParameter("form", true, true, "to", q, &p.To); err != nil {
		return p, fmt.Errorf("%w: to: %v", errBadParam, err)
	}
	return p, nil
}

// bindOptionalUUID binds an optional uuid query parameter, nil when absent.
func bindOptionalUUID(r *http.Request, name string) (*openapi_types.UUID, error) {
	var id *openapi_types.UUID
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &id); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errBadParam, name, err)
	}
	return id, nil
}

// bindScope reads ?scope=, defaulting to this_occurrence.
func bindScope(r *http.Request) (domain.Scope, error) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "scope", r.URL.Query(), &raw); err != nil {
		return "", fmt.Errorf("%w: scope: %v", errBadParam, err)
	}
	var s string
	if raw != nil {
		s = *raw
	}
	scope, ok := domain.ParseScope(s)
	if !ok {
		return "", fmt.Errorf("%w: scope must be this_occurrence or this_and_future", errBadParam)
	}
	return scope, nil
}

func bindDate(r *http.Request, name string) (openapi_types.Date, error) {
	var d openapi_types.Date
	if err := runtime.BindQueryParameter("form", true, true, name, r.URL.Query(), &d); err != nil {
		return d, fmt.Errorf("%w: %s: %v", errBadParam, name, err)
	}
	return d, nil
}

// bindPagination reads ?page= and ?limit= (defaults: page=1, limit=20, max=100).
func bindPagination(r *http.Request) (domain.PaginationParams, error) {
	var page, limit *int
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("%w: page: %v", errBadParam, err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("%w: limit: %v", errBadParam, err)
	}
	return domain.NewPaginationParams(page, limit), nil
}
