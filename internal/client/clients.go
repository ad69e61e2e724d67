package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

// Client is the clients service's profile record for a registered customer.
type Client struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Address string    `json:"address"`
}

type Clients interface {
	GetClient(ctx context.Context, clientID uuid.UUID, token string) (*Client, error)
}

type clientsHTTP struct {
	httpClient
}

func NewClients(baseURL string, timeout time.Duration) Clients {
	return &clientsHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *clientsHTTP) GetClient(ctx context.Context, clientID uuid.UUID, token string) (*Client, error) {
	var cl Client
	path := fmt.Sprintf("/api/clients/%s", clientID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}
