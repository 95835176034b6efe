// Package api is the HTTP boundary. Handlers decode requests, call the
// services and encode results; no business logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/metrogrid/cityql/internal/auth"
	"github.com/metrogrid/cityql/internal/domain"
	"github.com/metrogrid/cityql/internal/format"
	"github.com/metrogrid/cityql/internal/maps"
	"github.com/metrogrid/cityql/internal/queryplan"
	"github.com/metrogrid/cityql/internal/scopes"
)

// Handler serves the scope and map endpoints.
type Handler struct {
	scopes *scopes.Service
	maps   *maps.Service
}

// NewHandler creates the API handler.
func NewHandler(scopeService *scopes.Service, mapService *maps.Service) *Handler {
	return &Handler{scopes: scopeService, maps: mapService}
}

// Register mounts the routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/scopes", h.listScopes).Methods(http.MethodGet)
	r.HandleFunc("/scopes", h.createScope).Methods(http.MethodPost)
	r.HandleFunc("/scopes/{scope}", h.getScope).Methods(http.MethodGet)
	r.HandleFunc("/scopes/{scope}", h.updateScope).Methods(http.MethodPut)
	r.HandleFunc("/scopes/{scope}", h.deleteScope).Methods(http.MethodDelete)
	r.HandleFunc("/scopes/{scope}/metadata", h.scopeMetadata).Methods(http.MethodGet)
	r.HandleFunc("/scopes/{scope}/entities/{entity}/map", h.entitiesMap).Methods(http.MethodGet)
}

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var multi *bool
	if raw := r.URL.Query().Get("multi"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid multi parameter")
			return
		}
		multi = &value
	}

	views, err := h.scopes.GetScopeList(r.Context(), p, multi)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getScope(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	view, err := h.scopes.GetScope(r.Context(), mux.Vars(r)["scope"], p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "scope not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) scopeMetadata(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	tree, err := h.scopes.GetScopeMetadata(r.Context(), mux.Vars(r)["scope"], p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tree == nil {
		tree = []domain.CategoryMetadata{}
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) createScope(w http.ResponseWriter, r *http.Request) {
	var req domain.NewScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.scopes.CreateScope(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) updateScope(w http.ResponseWriter, r *http.Request) {
	var changes domain.ScopeUpdate
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.scopes.UpdateScope(r.Context(), mux.Vars(r)["scope"], changes); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) deleteScope(w http.ResponseWriter, r *http.Request) {
	if err := h.scopes.DeleteScope(r.Context(), mux.Vars(r)["scope"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) entitiesMap(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	req := queryplan.Request{
		Scope:    vars["scope"],
		Entity:   vars["entity"],
		Variable: query.Get("variable"),
		AggFunc:  query.Get("agg"),
	}

	if raw := query.Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		req.LookbackHours = hours
	}

	if rawStart, rawFinish := query.Get("start"), query.Get("finish"); rawStart != "" && rawFinish != "" {
		start, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start parameter")
			return
		}
		finish, err := time.Parse(time.RFC3339, rawFinish)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid finish parameter")
			return
		}
		req.Range = &domain.TimeRange{Start: start, Finish: finish}
	}

	if raw := query.Get("bbox"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bbox parameter")
			return
		}
		req.BBox = bbox
	}

	if raw := query.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Filter); err != nil {
			writeError(w, http.StatusBadRequest, "invalid filter parameter")
			return
		}
	}

	rows, err := h.maps.Entities(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch query.Get("format") {
	case "", "geojson":
		writeJSON(w, http.StatusOK, format.FeatureCollectionFromRows(rows))
	case "csv":
		// Windowed-variable requests render as a time series keyed on the
		// result column; plain map requests render the full row set.
		var out string
		if req.Variable != "" && req.Range != nil {
			points := format.TimeSeriesFromRows("TimeInstant", []string{req.Variable}, rows)
			out, err = format.TimeSeriesCSV(points)
		} else {
			out, err = format.RowsCSV(format.SortedColumns(rows), rows)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(out))
	case "xlsx":
		f, err := format.RowsWorkbook("entities", format.SortedColumns(rows), rows)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.WriteHeader(http.StatusOK)
		if err := f.Write(w); err != nil {
			logrus.WithError(err).Error("failed to stream workbook")
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported format")
	}
}

func parseBBox(raw string) (*domain.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox needs west,south,east,north")
	}
	values := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &domain.BBox{West: values[0], South: values[1], East: values[2], North: values[3]}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Missing
// catalog entries are a client error, not a server fault.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPermissionResolution),
		errors.Is(err, domain.ErrExecutionFailure),
		errors.Is(err, domain.ErrProvisioningPartial):
		logrus.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		logrus.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
