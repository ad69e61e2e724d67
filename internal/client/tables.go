package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

type TableStatus string

const (
	TableAvailable TableStatus = "AVAILABLE"
	TableOccupied  TableStatus = "OCCUPIED"
)

type Table struct {
	ID     uuid.UUID   `json:"id"`
	Number int         `json:"number"`
	Status TableStatus `json:"status"`
}

type Tables interface {
	ListTables(ctx context.Context, token string) ([]Table, error)
	UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status TableStatus, token string) error
}

type tablesHTTP struct {
	httpClient
}

func NewTables(baseURL string, timeout time.Duration) Tables {
	return &tablesHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *tablesHTTP) ListTables(ctx context.Context, token string) ([]Table, error) {
	var tables []Table
	if err := c.doJSON(ctx, http.MethodGet, "/api/tables", token, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *tablesHTTP) UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status TableStatus, token string) error {
	path := fmt.Sprintf("/api/tables/%s/status", tableID)
	body := map[string]string{"status": string(status)}
	return c.doJSON(ctx, http.MethodPatch, path, token, body, nil)
}
