package api

import (
	"encoding/json"
	"net/http"

	"Jarvis-Orchestrator/internal/dispatch"
	xerrors "Jarvis-Orchestrator/internal/errors"
)

// errorBody 是所有错误响应的统一格式。
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeValidationFault, dispatch.CodeRequestValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, xerrors.CodeAgentNotFound, dispatch.CodeRequestNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, dispatch.CodeRequestConflict, dispatch.CodeRequestCompleted:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeQueueFailure, dispatch.CodeRequestPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusOf(code), errorBody{Error: xerrors.MessageOf(err), Code: string(code)})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeUnavailable(w http.ResponseWriter, component string) {
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error: component + " not configured",
		Code:  string(xerrors.CodeInitializationFailure),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
