package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{"bad request", BadRequest("x"), http.StatusBadRequest, "BAD_REQUEST"},
		{"validation", Validation("x"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", Forbidden("x"), http.StatusForbidden, "FORBIDDEN"},
		{"not found", NotFound("x"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", Conflict("x"), http.StatusConflict, "CONFLICT"},
		{"duplicate", Duplicate("x"), http.StatusConflict, "DUPLICATE"},
		{"internal", Internal("x"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"database", Database("x"), http.StatusInternalServerError, "DATABASE_ERROR"},
		{"external", ExternalService("x"), http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR"},
		{"unavailable", Unavailable("x"), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"business", Business("x"), http.StatusBadRequest, "BUSINESS_ERROR"},
		{"invalid operation", InvalidOperation("x"), http.StatusBadRequest, "INVALID_OPERATION"},
		{"resource locked", ResourceLocked("x"), http.StatusLocked, "RESOURCE_LOCKED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestErrorChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("query failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "DATABASE_ERROR", appErr.Code)
}

func TestErrorAsThroughWrapping(t *testing.T) {
	inner := NotFound("record not found").WithDetail(map[string]string{"id": "abc"})
	wrapped := fmt.Errorf("service layer: %w", inner)

	appErr, ok := From(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, map[string]string{"id": "abc"}, appErr.Detail)
}

func TestWithCodeKeepsStatus(t *testing.T) {
	err := BadRequest("start must be before end").WithCode("INVALID_DATE_RANGE")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "INVALID_DATE_RANGE", err.Code)
	assert.True(t, IsKind(err, "INVALID_DATE_RANGE"))
}

func TestIsComparesByCode(t *testing.T) {
	a := Duplicate("token already exists")
	b := Duplicate("another message")
	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, NotFound("x"))
}

func TestFromNonTaxonomyError(t *testing.T) {
	_, ok := From(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsKind(errors.New("plain"), "NOT_FOUND"))
}
