package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	accepted  map[string]bool
	slots     []Slot
	err       error
	pingErr   error
	lastStart time.Time
	lastEnd   time.Time
}

func (f *fakeStore) InsuranceAccepted(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	accepted, ok := f.accepted[name]
	if !ok {
		return false, ErrProviderNotFound
	}
	return accepted, nil
}

func (f *fakeStore) AvailableSlots(_ context.Context, start, end time.Time) ([]Slot, error) {
	f.lastStart, f.lastEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.slots, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func serve(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandlerRoot(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{}})
	rec := serve(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec)["message"]; got != RootMessage {
		t.Errorf("message = %v, want %q", got, RootMessage)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	if rec := serve(t, h, http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestHandlerInsuranceStatus(t *testing.T) {
	store := &fakeStore{accepted: map[string]bool{"Cigna": true, "Humana": false}}
	h := NewHandler(HandlerConfig{Store: store})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "accepted",
			target:     "/get_insurance_status?name=Cigna",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"name": "Cigna", "accepted": true},
		},
		{
			name:       "not accepted",
			target:     "/get_insurance_status?name=Humana",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"name": "Humana", "accepted": false},
		},
		{
			name:       "unknown",
			target:     "/get_insurance_status?name=Sigma",
			wantStatus: http.StatusNotFound,
			wantBody:   map[string]any{"detail": "Insurance provider not found"},
		},
		{
			name:       "missing name",
			target:     "/get_insurance_status",
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, http.MethodGet, tt.target, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body := decodeBody(t, rec)
			for k, want := range tt.wantBody {
				if body[k] != want {
					t.Errorf("body[%q] = %v, want %v", k, body[k], want)
				}
			}
		})
	}
}

func TestHandlerInsuranceStatusStoreError(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{err: errors.New("db down")}})
	rec := serve(t, h, http.MethodGet, "/get_insurance_status?name=Cigna", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Error("internal error leaked to client")
	}
}

func TestHandlerApptSlots(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	first := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{slots: []Slot{{ID: 3, StartTime: first}}}
	h := NewHandler(HandlerConfig{Store: store, Location: ny})

	rec := serve(t, h, http.MethodGet, "/check_appt_slots?start_time=2024-03-05T09:00:00&end_time=2024-03-05T17:00:00-05:00", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if want := time.Date(2024, 3, 5, 9, 0, 0, 0, ny); !store.lastStart.Equal(want) {
		t.Errorf("start = %v, want %v", store.lastStart, want)
	}
	if want := time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC); !store.lastEnd.Equal(want) {
		t.Errorf("end = %v, want %v", store.lastEnd, want)
	}

	var body struct {
		Slots []Slot `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 1 || body.Slots[0].ID != 3 || !body.Slots[0].StartTime.Equal(first) {
		t.Errorf("slots = %+v", body.Slots)
	}
}

func TestHandlerApptSlotsEmpty(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{slots: []Slot{}}})
	rec := serve(t, h, http.MethodGet, "/check_appt_slots?start_time=2024-03-05T09:00:00Z&end_time=2024-03-05T17:00:00Z", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"slots":[]}` {
		t.Errorf("body = %s, want empty slots array", got)
	}
}

func TestHandlerApptSlotsErrors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		storeErr   error
		wantStatus int
	}{
		{"missing start", "/check_appt_slots?end_time=2024-03-05T17:00:00Z", nil, http.StatusBadRequest},
		{"bad end", "/check_appt_slots?start_time=2024-03-05T09:00:00Z&end_time=soon", nil, http.StatusBadRequest},
		{"reversed", "/check_appt_slots?start_time=2024-03-05T17:00:00Z&end_time=2024-03-05T09:00:00Z", nil, http.StatusBadRequest},
		{"store error", "/check_appt_slots?start_time=2024-03-05T09:00:00Z&end_time=2024-03-05T17:00:00Z", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(HandlerConfig{Store: &fakeStore{err: tt.storeErr}})
			rec := serve(t, h, http.MethodGet, tt.target, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if _, ok := decodeBody(t, rec)["detail"]; !ok {
				t.Error("error body missing detail")
			}
		})
	}
}

func TestHandlerHealthz(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{}})
	if rec := serve(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}
	h = NewHandler(HandlerConfig{Store: &fakeStore{pingErr: errors.New("gone")}})
	if rec := serve(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}

func TestHandlerStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cue1.mp3"), []byte("ID3"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	h := NewHandler(HandlerConfig{Store: &fakeStore{}, StaticDir: dir})

	rec := serve(t, h, http.MethodGet, "/static/cue1.mp3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ID3" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec := serve(t, h, http.MethodGet, "/static/cue2.mp3", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{}, CORSOrigins: []string{"https://app.example.com/"}})

	rec := serve(t, h, http.MethodOptions, "/get_insurance_status", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "X-Custom",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "X-Custom" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	rec = serve(t, h, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}

	wild := CORS([]string{"*"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec = serve(t, wild, http.MethodGet, "/", map[string]string{"Origin": "https://any.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example.com" {
		t.Errorf("wildcard Allow-Origin = %q", got)
	}
}
