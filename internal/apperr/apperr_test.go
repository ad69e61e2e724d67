package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casaluna/order-service/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Validation("bad input"), http.StatusBadRequest},
		{"not found", apperr.NotFound("missing"), http.StatusNotFound},
		{"forbidden", apperr.Forbidden("not yours"), http.StatusForbidden},
		{"conflict", apperr.Conflict("already paid"), http.StatusConflict},
		{"upstream", apperr.Upstream(errors.New("timeout"), "inventory unreachable"), http.StatusServiceUnavailable},
		{"internal", apperr.Internal(errors.New("boom"), "query failed"), http.StatusInternalServerError},
		{"untyped", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped typed", fmt.Errorf("context: %w", apperr.NotFound("missing")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "already paid", apperr.ClientMessage(apperr.Conflict("already paid")))
	assert.Equal(t, "internal server error", apperr.ClientMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "internal server error", apperr.ClientMessage(apperr.Internal(nil, "query failed")))
}

func TestIsKind_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", apperr.Forbidden("not yours"))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.False(t, apperr.IsKind(err, apperr.KindConflict))
}
