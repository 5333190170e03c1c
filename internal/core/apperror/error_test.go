package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NewNotFound("order", "x"), CodeNotFound, http.StatusNotFound},
		{"transition", NewInvalidTransition("order", "DRAFT", "SHIPPED"), CodeInvalidTransition, http.StatusConflict},
		{"stock", NewInsufficientStock("k", "5.0000", "1.0000"), CodeInsufficientStock, http.StatusConflict},
		{"duplicate", NewDuplicate("lot", "lot_code", "A1"), CodeDuplicate, http.StatusConflict},
		{"validation", NewValidation("bad"), CodeValidation, http.StatusBadRequest},
		{"internal", NewInternal(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestWrappedErrorsKeepCode(t *testing.T) {
	base := NewInsufficientStock("loc/item", "10.0000", "3.0000")
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.True(t, IsInsufficientStock(wrapped))
	assert.False(t, IsNotFound(wrapped))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "3.0000", appErr.Details["available"])
}

func TestPlainErrorsAreNotAppErrors(t *testing.T) {
	_, ok := AsAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestUnknownCodeIsServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, New("SOMETHING_ELSE", "x").HTTPStatus)
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := NewInternal(errors.New("disk full"))
	assert.Equal(t, "INTERNAL_ERROR: Internal server error: disk full", err.Error())
	assert.ErrorContains(t, NewValidation("lines required"), "VALIDATION_FAILURE: lines required")
}
