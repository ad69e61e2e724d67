package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

// Product is the inventory service's view of a sellable item.
type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	Active        bool      `json:"active"`
}

type Inventory interface {
	GetProduct(ctx context.Context, productID uuid.UUID, token string) (*Product, error)
	// ReduceStock decrements the available quantity; the decrement lives in
	// the inventory service's own consistency domain and is not undone by a
	// local transaction rollback.
	ReduceStock(ctx context.Context, productID uuid.UUID, quantity int, token string) error
}

type inventoryHTTP struct {
	httpClient
}

func NewInventory(baseURL string, timeout time.Duration) Inventory {
	return &inventoryHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *inventoryHTTP) GetProduct(ctx context.Context, productID uuid.UUID, token string) (*Product, error) {
	var product Product
	path := fmt.Sprintf("/api/products/%s", productID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *inventoryHTTP) ReduceStock(ctx context.Context, productID uuid.UUID, quantity int, token string) error {
	path := fmt.Sprintf("/api/products/%s/reduce-stock", productID)
	body := map[string]int{"quantity": quantity}
	return c.doJSON(ctx, http.MethodPatch, path, token, body, nil)
}
