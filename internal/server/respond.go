package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	ExecutionID string    `json:"execution_id,omitempty"`
	Error       errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its status code. Internal causes are logged, not echoed.
func writeError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, executionID string, err error) {
	status := common.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		common.LoggerFromContext(r.Context(), fallback).Error("http.internal_error", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{
		ExecutionID: executionID,
		Error:       errorBody{Code: common.ErrorCode(err), Message: msg},
	})
}
