package types

import (
	"net/http"

	appErr "github.com/branchcanvas/engine/pkg/errors"
)

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	code := string(appErr.CodeUnknown)
	if e, ok := err.(*appErr.AppError); ok {
		return &APIError{Code: string(e.Code), Message: e.Message}
	}
	return &APIError{Code: code, Message: err.Error()}
}

// StatusFromError maps an AppError code to an HTTP status.
func StatusFromError(err error) int {
	switch {
	case appErr.IsCode(err, appErr.CodeInvalid):
		return http.StatusBadRequest
	case appErr.IsCode(err, appErr.CodeNotFound):
		return http.StatusNotFound
	case appErr.IsCode(err, appErr.CodeConflict):
		return http.StatusConflict
	case appErr.IsCode(err, appErr.CodeUnauthorized):
		return http.StatusUnauthorized
	case appErr.IsCode(err, appErr.CodeForbidden):
		return http.StatusForbidden
	case appErr.IsCode(err, appErr.CodeUnavailable), appErr.IsCode(err, appErr.CodePrecondition):
		return http.StatusBadGateway
	case appErr.IsCode(err, appErr.CodeDeadline):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
