package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tcases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid input", chaterr.InvalidInput("room name is required"), http.StatusBadRequest, "room name is required"},
		{"not found", chaterr.NotFound("room not found"), http.StatusNotFound, "room not found"},
		{"not authorized", chaterr.NotAuthorized("user mismatch"), http.StatusForbidden, "user mismatch"},
		{"not in room", chaterr.NotInRoom("r1"), http.StatusForbidden, chaterr.NotInRoom("r1").Message},
		{"conflict", chaterr.Conflict("already friends"), http.StatusConflict, "already friends"},
		{"unavailable", chaterr.Unavailable("store down", errors.New("dial tcp")), http.StatusServiceUnavailable, "service unavailable"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := fromError(tc.err)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.message, apiErr.Message)
		})
	}
}

func TestApiErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp")
	apiErr := NewInternalServerError(cause)

	assert.ErrorIs(t, apiErr, cause)
	assert.Equal(t, "internal server error: dial tcp", apiErr.Error())
	assert.Equal(t, "not found", NewNotFoundError().Error())
}
