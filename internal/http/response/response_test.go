package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid category", err: apperr.ErrInvalidCategory, want: http.StatusBadRequest},
		{name: "plan not found wrapped", err: fmt.Errorf("op: %w", apperr.ErrPlanNotFound), want: http.StatusNotFound},
		{name: "coupon expired", err: apperr.ErrCouponExpired, want: http.StatusUnprocessableEntity},
		{name: "already applied", err: apperr.ErrCouponAlreadyApplied, want: http.StatusConflict},
		{name: "subscription exists", err: apperr.ErrSubscriptionExists, want: http.StatusConflict},
		{name: "store unavailable", err: apperr.Unavailable("op", errors.New("down")), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	resp := FromError(errors.New("pq: password authentication failed"))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.CodeInternal, resp.Code)
	assert.Equal(t, "internal error", resp.Error)
}

func TestRenderErrorWithData(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	RenderErrorWithData(w, r, fmt.Errorf("op: %w", apperr.ErrCouponAlreadyApplied), map[string]any{"discount_amount": "0"})

	assert.Equal(t, http.StatusConflict, w.Code)
	var got Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, apperr.CodeCouponAlreadyApplied, got.Code)
	assert.Equal(t, map[string]any{"discount_amount": "0"}, got.Data)
}

func TestValidationError(t *testing.T) {
	type req struct {
		PlanName string `validate:"required"`
		PlanType string `validate:"oneof=monthly quarterly yearly"`
	}
	err := validator.New().Struct(req{PlanType: "weekly"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	resp := ValidationError(verrs)
	assert.Equal(t, apperr.CodeInvalidRequest, resp.Code)
	assert.Contains(t, resp.Error, "field PlanName is a required field")
	assert.Contains(t, resp.Error, "field PlanType must be one of: monthly quarterly yearly")
}
