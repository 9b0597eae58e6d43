package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
)

type listResponse struct {
	Executions []*entity.Execution `json:"executions"`
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, r.URL.Query().Get("agent_id"))
}

func (s *Server) listAgentExecutions(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, chi.URLParam(r, "agentID"))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, agentID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, s.logger, "", common.InvalidInputf("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	execs, err := s.audit.List(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	if execs == nil {
		execs = []*entity.Execution{}
	}
	writeJSON(w, http.StatusOK, listResponse{Executions: execs})
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := s.audit.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) deleteExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.audit.Delete(r.Context(), id); err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executionReport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	exec, err := s.audit.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	body, err := s.reports.Render(r.Context(), exec, format)
	if err != nil {
		writeError(w, r, s.logger, exec.ID.String(), err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.%s"`, exec.ID, format))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
