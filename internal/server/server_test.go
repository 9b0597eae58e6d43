package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/async"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
	"github.com/joseph-ayodele/expense-auditor/internal/pipeline"
	"github.com/joseph-ayodele/expense-auditor/internal/repository"
	"github.com/joseph-ayodele/expense-auditor/internal/server"
	"github.com/joseph-ayodele/expense-auditor/internal/services/audit"
)

// stagingRunner records the staged file names and answers one verdict per expense file.
type stagingRunner struct {
	err      error
	expenses []string
}

func (f *stagingRunner) Run(_ context.Context, s pipeline.Session) (pipeline.Session, error) {
	entries, err := os.ReadDir(s.ExpenseLocation)
	if err != nil {
		return s, err
	}
	for _, e := range entries {
		f.expenses = append(f.expenses, e.Name())
	}
	sort.Strings(f.expenses)
	if f.err != nil {
		s.State, s.Err = pipeline.StateErrored, f.err
		return s, f.err
	}
	s.State = pipeline.StateValidated
	s.Reference = &entity.ReferenceRecord{DestinationCity: "Rabat"}
	for _, name := range f.expenses {
		id := entity.SourceID(name, 1)
		s.Expenses = append(s.Expenses, entity.ExpenseRecord{Provenance: entity.Provenance{SourceID: id}, TotalAmount: "100", City: "Rabat"})
		s.Verdicts = append(s.Verdicts, entity.Verdict{SourceID: id, IsFraudulent: constants.FraudNo, Reasons: []string{}, Confidence: 0.6})
	}
	return s, nil
}

type fixture struct {
	handler http.Handler
	runner  *stagingRunner
	queue   *async.ProcessorQueue
	tmp     string
}

func newFixture(t *testing.T, runErr error) *fixture {
	t.Helper()
	db, err := repository.Open(context.Background(), common.StoreConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db, nil))

	runner := &stagingRunner{err: runErr}
	svc := audit.NewService(audit.Config{ValidationMode: "rules", AmountThreshold: 1000},
		repository.NewSQLExecutionRepository(db, nil), runner, nil, nil)
	q := async.NewProcessorQueue(svc, nil, async.WithWorkers(1))
	svc.AttachQueue(q)

	tmp := t.TempDir()
	srv := server.New(svc, export.NewService("MAD", nil), common.ServerConfig{MaxUploadMB: 4}, nil, server.WithTempDir(tmp))
	return &fixture{handler: srv.Routes(), runner: runner, queue: q, tmp: tmp}
}

func multipartBody(t *testing.T, fields map[string][]string, agent string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for field, names := range fields {
		for _, n := range names {
			part, err := mw.CreateFormFile(field, n)
			require.NoError(t, err)
			_, err = part.Write([]byte("fake image bytes"))
			require.NoError(t, err)
		}
	}
	if agent != "" {
		require.NoError(t, mw.WriteField("agent_id", agent))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (f *fixture) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type sessionBody struct {
	ExecutionID string           `json:"execution_id"`
	Status      string           `json:"status"`
	Verdicts    []entity.Verdict `json:"verdicts"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestCreateSession_Sync(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, map[string][]string{
		"expenses":  {"hotel.png", "taxi.jpg"},
		"reference": {"order.pdf"},
	}, "agent-1")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[sessionBody](t, rec)
	assert.NotEmpty(t, got.ExecutionID)
	assert.Equal(t, "completed", got.Status)
	require.Len(t, got.Verdicts, 2)
	assert.Equal(t, "hotel.png (page 1)", got.Verdicts[0].SourceID)
	assert.Equal(t, []string{"hotel.png", "taxi.jpg"}, f.runner.expenses)

	// staged uploads are removed after the run
	entries, err := os.ReadDir(f.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+got.ExecutionID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	exec := decode[entity.Execution](t, rec)
	assert.Equal(t, "agent-1", exec.AgentID)
	assert.Equal(t, []string{"hotel.png", "taxi.jpg"}, exec.InputSummary.ExpenseDocuments)
}

func TestCreateSession_LegacyFieldNames(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, map[string][]string{
		"factures":      {"a.png"},
		"ordre_mission": {"om.png"},
	}, "")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateSession_MissingReference(t *testing.T) {
	f := newFixture(t, common.NewAppError("MISSING_REFERENCE", "no reference record could be extracted", common.ErrMissingReference))
	body, ct := multipartBody(t, map[string][]string{
		"expenses":  {"hotel.png"},
		"reference": {"blank.png"},
	}, "")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decode[sessionBody](t, rec)
	assert.NotEmpty(t, got.ExecutionID)
	require.NotNil(t, got.Error)
	assert.Equal(t, "MISSING_REFERENCE", got.Error.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+got.ExecutionID, nil, "")
	exec := decode[entity.Execution](t, rec)
	assert.Equal(t, constants.ExecutionErrored, exec.Status)
}

func TestCreateSession_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, map[string][]string{"expenses": {"hotel.png"}}, "")
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, map[string][]string{"reference": {"order.pdf"}}, "")
	rec = f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions", bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, map[string][]string{"expenses": {"a.png"}, "reference": {"b.png"}}, "bad agent!")
	rec = f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode[sessionBody](t, rec).Error.Code)
}

func TestCreateSession_Async(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, map[string][]string{
		"expenses":  {"hotel.png"},
		"reference": {"order.pdf"},
	}, "agent-9")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions?async=true", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	got := decode[sessionBody](t, rec)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "/api/v1/executions/"+got.ExecutionID, rec.Header().Get("Location"))

	f.queue.Shutdown(context.Background())

	rec = f.do(t, http.MethodGet, "/api/v1/agents/agent-9/executions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Executions []entity.Execution `json:"executions"`
	}](t, rec)
	require.Len(t, list.Executions, 1)
	assert.Equal(t, constants.ExecutionCompleted, list.Executions[0].Status)
}

func TestExecutions_ListDeleteAndReport(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, map[string][]string{"expenses": {"hotel.png"}, "reference": {"order.pdf"}}, "agent-1")
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[sessionBody](t, rec).ExecutionID

	rec = f.do(t, http.MethodGet, "/api/v1/executions?agent_id=agent-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+id+"/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+id+"/report?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+id+"/report?format=doc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/executions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/executions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[sessionBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/executions/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/executions?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
