package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("therapist", cause), http.StatusNotFound},
		{BadRequest("bad", cause), http.StatusBadRequest},
		{Unauthorized(cause), http.StatusUnauthorized},
		{Forbidden(cause), http.StatusForbidden},
		{Conflict("taken", cause), http.StatusConflict},
		{Configuration("start must be before end", nil), http.StatusUnprocessableEntity},
		{Internal(cause), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestCodeOf_WrappedChain(t *testing.T) {
	sentinel := errors.New("duplicate record")
	err := fmt.Errorf("book: %w", Conflict("time already booked", sentinel))

	assert.Equal(t, ErrConflict, CodeOf(err))
	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrNotFound))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "time already booked: duplicate record", errors.Unwrap(err).Error())

	assert.Equal(t, ErrInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, "therapist not found", NotFound("therapist", nil).Error())
}
