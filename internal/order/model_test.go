package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casaluna/order-service/internal/order"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from order.Status
		to   order.Status
		want bool
	}{
		{order.StatusUnconfirmed, order.StatusPending, true},
		{order.StatusUnconfirmed, order.StatusCancelled, true},
		{order.StatusUnconfirmed, order.StatusDelivered, false},
		{order.StatusPending, order.StatusDelivered, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusPending, order.StatusUnconfirmed, false},
		{order.StatusDelivered, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, order.StatusUnconfirmed.Terminal())
	assert.False(t, order.StatusPending.Terminal())
	assert.True(t, order.StatusDelivered.Terminal())
	assert.True(t, order.StatusCancelled.Terminal())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, order.StatusPending.Valid())
	assert.False(t, order.Status("SHIPPED").Valid())
}
