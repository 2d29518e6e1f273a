package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rushteam/bookrec/core"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, core.ErrorCodeInvalidInput
	}
	de := core.GetDomainError(err)
	if de == nil {
		return http.StatusInternalServerError, "INTERNAL"
	}
	switch de.Code {
	case core.ErrorCodeNotFound, core.ErrorCodeModelNotFound:
		return http.StatusNotFound, de.Code
	case core.ErrorCodeNotReady:
		return http.StatusServiceUnavailable, de.Code
	case core.ErrorCodeEmptyCorpus, core.ErrorCodeInvalidInput:
		return http.StatusBadRequest, de.Code
	case core.ErrorCodeNotSupported:
		return http.StatusNotImplemented, de.Code
	default:
		return http.StatusInternalServerError, de.Code
	}
}
