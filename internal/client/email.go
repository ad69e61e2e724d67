package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

type OrderConfirmation struct {
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	OrderID         uuid.UUID `json:"order_id"`
	Total           float64   `json:"total"`
	DeliveryAddress string    `json:"delivery_address,omitempty"`
	PlacedAt        time.Time `json:"placed_at"`
}

// Email notifications are best-effort; callers log failures and move on.
type Email interface {
	SendOrderConfirmation(ctx context.Context, payload OrderConfirmation, token string) error
}

type emailHTTP struct {
	httpClient
}

func NewEmail(baseURL string, timeout time.Duration) Email {
	return &emailHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *emailHTTP) SendOrderConfirmation(ctx context.Context, payload OrderConfirmation, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/emails/order-confirmation", token, payload, nil)
}
