package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"VALIDATION_FAILED", http.StatusBadRequest},
		{"NOT_FOUND", http.StatusNotFound},
		{"DUPLICATE_TRIGGER", http.StatusConflict},
		{"IMMUTABILITY_VIOLATION", http.StatusConflict},
		{"LINEAGE_INCONSISTENCY", http.StatusConflict},
		{"CONCURRENCY_CONFLICT", http.StatusConflict},
		{"ALREADY_EXISTS", http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestResponseEnvelope(t *testing.T) {
	t.Run("success omits error", func(t *testing.T) {
		body, err := json.Marshal(NewSuccessResponse(map[string]string{"id": "inv_1"}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"data":{"id":"inv_1"}}`, string(body))
	})

	t.Run("error with data keeps both", func(t *testing.T) {
		resp := NewErrorResponseWithData(ErrCodeLineageInconsistency, "broken", "req-1", []int{1})
		body, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"success": false,
			"data": [1],
			"error": {"code": "LINEAGE_INCONSISTENCY", "message": "broken", "request_id": "req-1"}
		}`, string(body))
	})

	t.Run("validation details", func(t *testing.T) {
		resp := NewValidationErrorResponse("Request validation failed", "", []ValidationDetail{
			{Field: "delta", Message: "This field is required"},
		})
		assert.False(t, resp.Success)
		assert.Equal(t, ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "delta", resp.Error.Details[0].Field)
	})
}
