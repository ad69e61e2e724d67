package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

type ReceiptLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Subtotal  float64   `json:"subtotal"`
}

type ReceiptRequest struct {
	OrderID         uuid.UUID     `json:"order_id"`
	CustomerID      uuid.UUID     `json:"customer_id"`
	Lines           []ReceiptLine `json:"lines"`
	Total           float64       `json:"total"`
	DeliveryAddress string        `json:"delivery_address,omitempty"`
	TableName       string        `json:"table_name,omitempty"`
	IssuedAt        time.Time     `json:"issued_at"`
}

type receiptResponse struct {
	FilePath string `json:"file_path"`
}

// Receipts renders a PDF summary of a finalized order and returns the path
// where the document was stored.
type Receipts interface {
	Generate(ctx context.Context, req ReceiptRequest, token string) (string, error)
}

type receiptsHTTP struct {
	httpClient
}

func NewReceipts(baseURL string, timeout time.Duration) Receipts {
	return &receiptsHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *receiptsHTTP) Generate(ctx context.Context, req ReceiptRequest, token string) (string, error) {
	var resp receiptResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/receipts", token, req, &resp); err != nil {
		return "", err
	}
	return resp.FilePath, nil
}
