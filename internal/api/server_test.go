package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/veildb/veildb/internal/access"
	"github.com/veildb/veildb/internal/cohort"
	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/engine"
	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/query"
	"github.com/veildb/veildb/internal/schema"
	"github.com/veildb/veildb/internal/source"
	"github.com/veildb/veildb/internal/state"
)

// testServer creates a Server with an engine over a temp state file and an
// in-memory cohort store.
func testServer(t *testing.T, opts ...Option) (*Server, *engine.Engine) {
	t.Helper()

	store, err := state.Load(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	cohorts := cohort.NewService(cohort.NewMemoryStore(), nil, false, slog.Default())
	eng := engine.New(config.Default(), store, cohorts, slog.Default())
	return New(eng, slog.Default(), 0, opts...), eng
}

// serveMux creates an http.ServeMux with the server's routes registered.
func serveMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func addTestConnection(t *testing.T, eng *engine.Engine, id string) {
	t.Helper()
	err := eng.Store().AddConnection(&state.Connection{
		Config: config.ConnectionConfig{
			ID:     id,
			Name:   "test",
			Type:   "sqlite3",
			Path:   "/tmp/test.db",
			Active: true,
		},
	})
	if err != nil {
		t.Fatalf("adding connection: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestListConnectionsEmpty(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	req := httptest.NewRequest("GET", "/api/connections", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []ConnectionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("connections = %v, want empty", resp)
	}
}

func TestConnectionResponseElidesCredentials(t *testing.T) {
	s, eng := testServer(t)
	mux := serveMux(s)

	err := eng.Store().AddConnection(&state.Connection{
		Config: config.ConnectionConfig{
			ID:       "conn-1",
			Name:     "prod",
			Type:     "postgresql",
			Host:     "db.internal",
			Username: "admin",
			Password: "hunter2",
			Active:   true,
		},
	})
	if err != nil {
		t.Fatalf("adding connection: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/connections", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if bytes.Contains(w.Body.Bytes(), []byte("hunter2")) {
		t.Error("response leaks the connection password")
	}
	if bytes.Contains(w.Body.Bytes(), []byte("admin")) {
		t.Error("response leaks the connection username")
	}
}

func TestKeyLifecycle(t *testing.T) {
	s, eng := testServer(t)
	mux := serveMux(s)
	addTestConnection(t, eng, "conn-1")

	body, _ := json.Marshal(CreateKeyRequest{Name: "analytics"})
	req := httptest.NewRequest("POST", "/api/connections/conn-1/keys", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("create key status = %d, want %d", w.Code, http.StatusOK)
	}
	var key access.Key
	if err := json.NewDecoder(w.Body).Decode(&key); err != nil {
		t.Fatalf("decoding key: %v", err)
	}
	if key.Token == "" || !key.Active || key.Name != "analytics" {
		t.Errorf("key = %+v, want active named key with token", key)
	}

	req = httptest.NewRequest("POST", "/api/connections/conn-1/keys/"+key.Token+"/revoke", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/connections/conn-1/keys", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var keys []access.Key
	if err := json.NewDecoder(w.Body).Decode(&keys); err != nil {
		t.Fatalf("decoding keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Active {
		t.Errorf("keys = %+v, want one revoked key", keys)
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	s, eng := testServer(t)
	mux := serveMux(s)
	addTestConnection(t, eng, "conn-1")

	req := httptest.NewRequest("POST", "/api/connections/conn-1/keys/nope/revoke", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestKeyedListUnknownToken(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	req := httptest.NewRequest("GET", "/api/keys/bogus-token/list", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestKeyedCountRevokedKey(t *testing.T) {
	s, eng := testServer(t)
	mux := serveMux(s)
	addTestConnection(t, eng, "conn-1")

	key, err := eng.Store().AddKey("conn-1", "counter")
	if err != nil {
		t.Fatalf("adding key: %v", err)
	}
	if err := eng.Store().RevokeKey("conn-1", key.Token); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/keys/"+key.Token+"/count?filters=city~Boston", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestKeyedWindow(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		start   int
		end     int
		noEnd   bool
		wantErr bool
	}{
		{name: "defaults", url: "/", start: 0, noEnd: true},
		{name: "offset only", url: "/?offset=10", start: 10, noEnd: true},
		{name: "offset and limit", url: "/?offset=10&limit=5", start: 10, end: 15},
		{name: "limit only", url: "/?limit=3", start: 0, end: 3},
		{name: "negative offset", url: "/?offset=-1", wantErr: true},
		{name: "bad offset", url: "/?offset=ten", wantErr: true},
		{name: "negative limit", url: "/?limit=-5", wantErr: true},
		{name: "bad limit", url: "/?limit=x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			start, end, err := keyedWindow(req)
			if tt.wantErr {
				var bad *query.InvalidSliceError
				if !errors.As(err, &bad) {
					t.Fatalf("err = %v, want InvalidSliceError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("keyedWindow failed: %v", err)
			}
			if start == nil || *start != tt.start {
				t.Errorf("start = %v, want %d", start, tt.start)
			}
			if tt.noEnd {
				if end != nil {
					t.Errorf("end = %d, want nil", *end)
				}
			} else if end == nil || *end != tt.end {
				t.Errorf("end = %v, want %d", end, tt.end)
			}
		})
	}
}

func TestKeyedFiltersRewritesTilde(t *testing.T) {
	req := httptest.NewRequest("GET", "/?filters=city~Boston+and+age%3E30", nil)
	if got, want := keyedFilters(req), "city=Boston and age>30"; got != want {
		t.Errorf("filters = %q, want %q", got, want)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"key revoked", access.ErrKeyRevoked, http.StatusUnauthorized},
		{"connection inactive", access.ErrConnectionInactive, http.StatusUnauthorized},
		{"key not found", access.ErrKeyNotFound, http.StatusNotFound},
		{"missing connection", &state.NotFoundError{Kind: "connection", ID: "x"}, http.StatusNotFound},
		{"missing cohort", cohort.ErrNotFound, http.StatusNotFound},
		{"malformed filter", &query.MalformedFilterError{Input: "age>"}, http.StatusBadRequest},
		{"bad slice", &query.InvalidSliceError{Input: "[10:5]"}, http.StatusBadRequest},
		{"unknown command", &query.UnknownCommandError{Input: "drop()"}, http.StatusBadRequest},
		{"unknown property", &query.UnknownPropertyError{Name: "ghost"}, http.StatusBadRequest},
		{"invalid sqlite file", fmt.Errorf("%w: /tmp/x.db", source.ErrInvalidFile), http.StatusBadRequest},
		{"unreachable backend", &source.ConnectError{BackendType: "postgresql", Err: errors.New("refused")}, http.StatusBadRequest},
		{"composite primary key", &schema.NoPrimaryKeyError{Table: "users"}, http.StatusBadRequest},
		{"unparsable birthday", &provider.InvalidBirthdayError{Value: "banana"}, http.StatusBadRequest},
		{"unparsable hour", &provider.InvalidArgumentError{Value: "x", Want: "whole number"}, http.StatusBadRequest},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCohortEndpoints(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	// Body missing required fields.
	body, _ := json.Marshal(CreateCohortRequest{Name: "incomplete"})
	req := httptest.NewRequest("POST", "/api/cohorts", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete create status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	// Filter expression that does not parse.
	body, _ = json.Marshal(CreateCohortRequest{
		Name:         "bad-query",
		ConnectionID: "conn-1",
		Query:        "age>",
	})
	req = httptest.NewRequest("POST", "/api/cohorts", bytes.NewReader(body))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad query create status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	body, _ = json.Marshal(CreateCohortRequest{
		Name:         "runners",
		ConnectionID: "conn-1",
		Query:        "run_distance>500",
	})
	req = httptest.NewRequest("POST", "/api/cohorts", bytes.NewReader(body))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var created cohort.Cohort
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decoding cohort: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created cohort has no id")
	}

	req = httptest.NewRequest("GET", "/api/cohorts/"+created.ID, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("DELETE", "/api/cohorts/"+created.ID, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/cohorts/"+created.ID, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetPropertiesUnknownConnection(t *testing.T) {
	s, _ := testServer(t)
	mux := serveMux(s)

	req := httptest.NewRequest("GET", "/api/connections/nope/properties", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
