package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	HTTPStatus int       `json:"-"`
	Status     string    `json:"status"`
	Error      errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Render implements the render.Renderer interface for chi/render.
func (e *errorResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatus)
	return nil
}

func newErrorResponse(status int, code, message string) *errorResponse {
	return &errorResponse{
		HTTPStatus: status,
		Status:     "error",
		Error:      errorBody{Code: code, Message: message},
	}
}

// classify maps an activation error to its response and metric outcome.
// Unknown errors become a generic 500 so storage details are not echoed.
func classify(err error) (*errorResponse, string) {
	switch {
	case errors.Is(err, cnwlicense.ErrKeyNotFound):
		return newErrorResponse(http.StatusNotFound, cnwlicense.CodeKeyNotFound, cnwlicense.ErrKeyNotFound.Error()), outcomeKeyNotFound
	case errors.Is(err, cnwlicense.ErrQuotaExceeded):
		return newErrorResponse(http.StatusForbidden, cnwlicense.CodeQuotaExceeded, cnwlicense.ErrQuotaExceeded.Error()), outcomeQuotaExceeded
	case errors.Is(err, cnwlicense.ErrNotConfigured):
		return newErrorResponse(http.StatusInternalServerError, cnwlicense.CodeNotConfigured, "storage or signing secret not configured"), outcomeNotConfigured
	case errors.Is(err, context.DeadlineExceeded):
		return newErrorResponse(http.StatusGatewayTimeout, cnwlicense.CodeTimeout, "activation timed out"), outcomeTimeout
	case errors.Is(err, cnwlicense.ErrInvalidRequest):
		return newErrorResponse(http.StatusBadRequest, cnwlicense.CodeInvalidRequest, cnwlicense.ErrInvalidRequest.Error()), outcomeInvalidRequest
	default:
		return newErrorResponse(http.StatusInternalServerError, cnwlicense.CodeInternal, "internal server error"), outcomeError
	}
}
