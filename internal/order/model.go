package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusUnconfirmed Status = "UNCONFIRMED"
	StatusPending     Status = "PENDING"
	StatusDelivered   Status = "DELIVERED"
	StatusCancelled   Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnconfirmed, StatusPending, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusUnconfirmed: {
		StatusPending:   true,
		StatusCancelled: true,
	},
	StatusPending: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the status machine allows moving from one
// status to another.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Channel string

const (
	ChannelWeb      Channel = "WEB"
	ChannelInPerson Channel = "IN_PERSON"
)

type Order struct {
	ID              uuid.UUID  `json:"id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	Status          Status     `json:"status"`
	Channel         Channel    `json:"channel"`
	Total           float64    `json:"total"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	TableID         *uuid.UUID `json:"table_id,omitempty"`
	PlacedAt        *time.Time `json:"placed_at,omitempty"`
	Lines           []Line     `json:"lines,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Line is one product entry on an order. An order holds at most one line per
// product; re-adding the product grows the quantity instead.
type Line struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Subtotal  float64   `json:"subtotal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
