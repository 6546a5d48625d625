package appErrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{appErrors.Unauthorized(nil), http.StatusUnauthorized},
		{appErrors.NotFound("campaign", "c1"), http.StatusNotFound},
		{appErrors.Forbidden("campaign", "c1"), http.StatusForbidden},
		{appErrors.Validation("campaign_id is required", nil), http.StatusBadRequest},
		{appErrors.AdapterUnavailable("backfill", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, appErrors.HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", appErrors.NotFound("campaign", "c9"))

	assert.True(t, appErrors.Is(err, appErrors.KindNotFound))
	assert.False(t, appErrors.Is(err, appErrors.KindForbidden))
	assert.False(t, appErrors.Is(nil, appErrors.KindInternal))
	assert.Equal(t, "campaign c9 not found", errors.Unwrap(err).Error())
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := appErrors.AdapterUnavailable("event source", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "event source unavailable: connection refused", err.Error())
}
