package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeMissingField       = "missing_required_field"
	codeInvalidID          = "invalid_id"
	codeInvalidDueDate     = "invalid_due_date"
	codeInvalidPagination  = "invalid_pagination"
	codeInvalidStatus      = "invalid_status_filter"
	codeBookNotFound       = "book_not_found"
	codeBookNotAvailable   = "book_not_available"
	codeUserNotFound       = "user_not_found"
	codeBorrowNotFound     = "borrow_not_found"
	codeRequestNotFound    = "request_not_found"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeInvalidCredentials = "invalid_credentials"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
