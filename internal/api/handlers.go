package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/veildb/veildb/internal/cohort"
	"github.com/veildb/veildb/internal/query"
)

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.engine.Store().Connections()
	out := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionResponse(c))
	}
	jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	var req AddConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conn, err := s.engine.AddConnection(r.Context(), req.toConnectionConfig())
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toConnectionResponse(conn))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, true)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, false)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if err := s.engine.SetActive(r.PathValue("id"), active); err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	sch, err := s.engine.Introspect(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sch)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	sch, err := s.engine.Schema(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sch)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sug, err := s.engine.Suggest(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sug)
}

func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	conn, err := s.engine.Store().Connection(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, SavePropertiesRequest{
		UsersTable: conn.UsersTable,
		Properties: conn.Properties,
	})
}

func (s *Server) handleSaveProperties(w http.ResponseWriter, r *http.Request) {
	var req SavePropertiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if req.UsersTable != "" {
		if err := s.engine.SetUsersTable(r.Context(), id, req.UsersTable); err != nil {
			handleError(w, err)
			return
		}
	}
	if err := s.engine.SaveProperties(r.Context(), id, req.Properties); err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQuery runs one console command, `q`, against a connection.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	sess, err := s.engine.Manager(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	defer sess.Close()

	res, err := s.engine.Execute(r.Context(), sess, q)
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	conn, err := s.engine.Store().Connection(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, conn.Keys)
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := s.engine.Store().AddKey(r.PathValue("id"), req.Name)
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, key)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().RevokeKey(r.PathValue("id"), r.PathValue("key")); err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// keyedWindow parses offset/limit query parameters into a [start:end) window.
// Offset defaults to 0; a missing limit leaves the window open-ended.
func keyedWindow(r *http.Request) (start, end *int, err error) {
	q := r.URL.Query()
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, nil, &query.InvalidSliceError{Input: raw, Reason: "offset must be a non-negative integer"}
		}
	}
	start = &offset

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, nil, &query.InvalidSliceError{Input: raw, Reason: "limit must be a non-negative integer"}
		}
		e := offset + limit
		end = &e
	}
	return start, end, nil
}

// keyedFilters rewrites the URL-safe `~` equality marker back to `=`.
func keyedFilters(r *http.Request) string {
	return strings.ReplaceAll(r.URL.Query().Get("filters"), "~", "=")
}

func (s *Server) handleKeyedList(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.KeyedSession(r.Context(), r.PathValue("token"))
	if err != nil {
		handleError(w, err)
		return
	}
	defer sess.Close()

	start, end, err := keyedWindow(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var rows []query.Row
	if filters := keyedFilters(r); filters != "" {
		rows, err = sess.Manager.Filter(r.Context(), filters, start, end)
	} else {
		rows, err = sess.Manager.All(r.Context(), start, end)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"results": rows})
}

func (s *Server) handleKeyedCount(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.KeyedSession(r.Context(), r.PathValue("token"))
	if err != nil {
		handleError(w, err)
		return
	}
	defer sess.Close()

	filters := keyedFilters(r)
	if filters == "" {
		errorResponse(w, http.StatusBadRequest, "missing query parameter filters")
		return
	}

	n, err := sess.Manager.Count(r.Context(), filters)
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleListCohorts(w http.ResponseWriter, r *http.Request) {
	svc := s.engine.Cohorts()
	if svc == nil {
		errorResponse(w, http.StatusNotFound, "cohorts are not configured")
		return
	}
	cohorts, err := svc.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, cohorts)
}

func (s *Server) handleCreateCohort(w http.ResponseWriter, r *http.Request) {
	svc := s.engine.Cohorts()
	if svc == nil {
		errorResponse(w, http.StatusNotFound, "cohorts are not configured")
		return
	}

	var req CreateCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.ConnectionID == "" || req.Query == "" {
		errorResponse(w, http.StatusBadRequest, "name, connection_id and query are required")
		return
	}
	if _, err := query.ParseExpr(req.Query); err != nil {
		handleError(w, err)
		return
	}

	c := &cohort.Cohort{
		Name:         req.Name,
		Description:  req.Description,
		ConnectionID: req.ConnectionID,
		Query:        req.Query,
		CampaignID:   req.CampaignID,
		Owner:        req.Owner,
		Public:       req.Public,
	}
	if err := svc.Create(r.Context(), c); err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleGetCohort(w http.ResponseWriter, r *http.Request) {
	svc := s.engine.Cohorts()
	if svc == nil {
		errorResponse(w, http.StatusNotFound, "cohorts are not configured")
		return
	}
	c, err := svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleRefreshCohort(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.RefreshCohort(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCohort(w http.ResponseWriter, r *http.Request) {
	svc := s.engine.Cohorts()
	if svc == nil {
		errorResponse(w, http.StatusNotFound, "cohorts are not configured")
		return
	}
	if err := svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
