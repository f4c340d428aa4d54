package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

// RootMessage is returned by GET /.
const RootMessage = "Front desk backend is running"

// HandlerConfig configures the backend HTTP surface.
type HandlerConfig struct {
	Store       Store
	StaticDir   string
	CORSOrigins []string
	// Location interprets slot bounds given without an offset.
	Location *time.Location
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

type api struct {
	store  Store
	loc    *time.Location
	logger *observability.Logger
}

// NewHandler returns the backend routes wrapped in CORS and request
// observability.
func NewHandler(cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	a := &api{store: cfg.Store, loc: cfg.Location, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /get_insurance_status", a.handleInsuranceStatus)
	mux.HandleFunc("GET /check_appt_slots", a.handleApptSlots)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	if cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return observability.HTTPMiddleware(cfg.Logger, cfg.Metrics, CORS(cfg.CORSOrigins, mux))
}

func (a *api) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Error(r.Context(), "database ping failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleInsuranceStatus(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	accepted, err := a.store.InsuranceAccepted(r.Context(), name)
	switch {
	case errors.Is(err, ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "Insurance provider not found")
		return
	case err != nil:
		a.logger.Error(r.Context(), "insurance lookup failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "insurance lookup failed")
		return
	}

	a.logger.Debug(r.Context(), "insurance lookup", "name", name, "accepted", accepted)
	writeJSON(w, http.StatusOK, struct {
		Name     string `json:"name"`
		Accepted bool   `json:"accepted"`
	}{Name: name, Accepted: accepted})
}

func (a *api) handleApptSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := datetime.ParseInstant(q.Get("start_time"), a.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be an ISO 8601 timestamp")
		return
	}
	end, err := datetime.ParseInstant(q.Get("end_time"), a.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_time must be an ISO 8601 timestamp")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_time is before start_time")
		return
	}

	slots, err := a.store.AvailableSlots(r.Context(), start, end)
	if err != nil {
		a.logger.Error(r.Context(), "slot lookup failed", "start", start, "end", end, "error", err)
		writeError(w, http.StatusInternalServerError, "slot lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Slots []Slot `json:"slots"`
	}{Slots: slots})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
