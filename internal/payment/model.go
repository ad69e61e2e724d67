package payment

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/casaluna/order-service/internal/order"
)

// Payment records money collected for an order. It is created only inside the
// registration transaction and is immutable afterwards except for the receipt
// reference backfill.
type Payment struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	PaymentMethodID uuid.UUID `json:"payment_method_id"`
	Amount          float64   `json:"amount"`
	ReceiptURL      string    `json:"receipt_url,omitempty"`
	PaidAt          time.Time `json:"paid_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type Method struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Detail joins a payment with its order and method for read endpoints.
type Detail struct {
	Payment     Payment      `json:"payment"`
	MethodName  string       `json:"method_name"`
	CustomerID  uuid.UUID    `json:"customer_id"`
	OrderStatus order.Status `json:"order_status"`
	OrderTotal  float64      `json:"order_total"`
}

type HistoryFilter struct {
	From        *time.Time
	To          *time.Time
	MethodID    *uuid.UUID
	OrderStatus *order.Status
	Page        int
	Limit       int
}

type HistoryPage struct {
	Items      []Detail `json:"items"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}
