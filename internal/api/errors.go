package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    lower(http.StatusText(status)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, nil)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict, nil)
}

func NewServiceUnavailableError(err error) *ApiError {
	return newApiError(http.StatusServiceUnavailable, err)
}

// fromError maps a chat error onto an HTTP error. Client errors keep the
// chat error's message; server errors keep only the status text.
func fromError(err error) *ApiError {
	var ce *chaterr.Error
	if !errors.As(err, &ce) {
		return NewInternalServerError(err)
	}

	var apiErr *ApiError
	switch ce.Kind {
	case chaterr.KindInvalidInput:
		apiErr = NewBadRequestError()
	case chaterr.KindNotFound:
		apiErr = NewNotFoundError()
	case chaterr.KindNotAuthorized, chaterr.KindNotInRoom:
		apiErr = NewForbiddenError()
	case chaterr.KindConflict:
		apiErr = NewConflictError()
	case chaterr.KindUnavailable:
		return NewServiceUnavailableError(err)
	default:
		return NewInternalServerError(err)
	}
	apiErr.Message = ce.Message

	return apiErr
}
