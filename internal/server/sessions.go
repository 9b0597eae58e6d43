package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/services/audit"
)

// Multipart field names. The second name of each pair is accepted for older clients.
var (
	expenseFields   = []string{"expenses", "factures"}
	referenceFields = []string{"reference", "ordre_mission"}
)

type sessionResponse struct {
	ExecutionID string                  `json:"execution_id"`
	Status      string                  `json:"status"`
	Reference   *entity.ReferenceRecord `json:"reference,omitempty"`
	Verdicts    []entity.Verdict        `json:"verdicts"`
	Failures    []entity.PageFailure    `json:"failures,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), s.logger)
	maxBytes := s.cfg.MaxUploadMB << 20
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, s.logger, "", common.InvalidInputf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return
		}
		writeError(w, r, s.logger, "", common.InvalidInputf("expected a multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	expenses := formFiles(r.MultipartForm, expenseFields)
	references := formFiles(r.MultipartForm, referenceFields)
	if len(expenses) == 0 {
		writeError(w, r, s.logger, "", common.InvalidInputf("at least one file is required in field %q", expenseFields[0]))
		return
	}
	if len(references) == 0 {
		writeError(w, r, s.logger, "", common.InvalidInputf("a reference file is required in field %q", referenceFields[0]))
		return
	}

	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, s.logger, "", common.InvalidInputf("async must be a boolean"))
			return
		}
		async = v
	}

	root, err := os.MkdirTemp(s.tempDir, "session-*")
	if err != nil {
		writeError(w, r, s.logger, "", fmt.Errorf("stage uploads: %w", err))
		return
	}
	cleanup := func() {
		if err := os.RemoveAll(root); err != nil {
			logger.Warn("http.session.cleanup_failed", zap.String("dir", root), zap.Error(err))
		}
	}
	expenseDir, expenseNames, err := stage(root, "expenses", expenses)
	if err != nil {
		cleanup()
		writeError(w, r, s.logger, "", err)
		return
	}
	refDir, refNames, err := stage(root, "reference", references)
	if err != nil {
		cleanup()
		writeError(w, r, s.logger, "", err)
		return
	}

	req := audit.SessionRequest{
		AgentID:            strings.TrimSpace(r.FormValue("agent_id")),
		ExpenseLocation:    expenseDir,
		ReferenceLocation:  refDir,
		ExpenseDocuments:   expenseNames,
		ReferenceDocuments: refNames,
		Cleanup:            cleanup,
	}
	if async {
		s.submit(w, r, req)
		return
	}
	s.run(w, r, req)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, req audit.SessionRequest) {
	exec, err := s.audit.Run(r.Context(), req)
	if err != nil {
		id := ""
		if exec != nil {
			id = exec.ID.String()
		}
		writeError(w, r, s.logger, id, err)
		return
	}
	resp := sessionResponse{
		ExecutionID: exec.ID.String(),
		Status:      string(exec.Status),
		Verdicts:    []entity.Verdict{},
	}
	if exec.Result != nil {
		resp.Reference = exec.Result.Reference
		resp.Verdicts = exec.Result.Verdicts
		resp.Failures = exec.Result.Failures
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req audit.SessionRequest) {
	exec, err := s.audit.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	w.Header().Set("Location", "/api/v1/executions/"+exec.ID.String())
	writeJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": exec.ID.String(),
		"status":       string(exec.Status),
	})
}

func formFiles(form *multipart.Form, names []string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, n := range names {
		out = append(out, form.File[n]...)
	}
	return out
}

// stage copies uploads into root/sub, keeping their base names. Clashing names get a numeric prefix.
func stage(root, sub string, files []*multipart.FileHeader) (string, []string, error) {
	dir := filepath.Join(root, sub)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", nil, fmt.Errorf("stage uploads: %w", err)
	}
	names := make([]string, 0, len(files))
	seen := map[string]bool{}
	for i, fh := range files {
		name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
		if name == "." || name == "/" || name == "" {
			return "", nil, common.InvalidInputf("upload %d has no file name", i+1)
		}
		if seen[name] {
			name = fmt.Sprintf("%d-%s", i+1, name)
		}
		seen[name] = true
		if err := copyUpload(fh, filepath.Join(dir, name)); err != nil {
			return "", nil, err
		}
		names = append(names, name)
	}
	return dir, names, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return common.InvalidInputf("read upload %s: %v", fh.Filename, err)
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("stage upload %s: %w", fh.Filename, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("stage upload %s: %w", fh.Filename, err)
	}
	return out.Close()
}
