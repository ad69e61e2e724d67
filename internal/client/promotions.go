package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

// Promotion is a time-bounded discount rule tied to a product. Exactly one of
// FixedPrice or PercentOff is expected to be set.
type Promotion struct {
	ID          uuid.UUID `json:"id"`
	Active      bool      `json:"active"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	MinQuantity int       `json:"min_quantity"`
	FixedPrice  *float64  `json:"fixed_price,omitempty"`
	PercentOff  *float64  `json:"percent_off,omitempty"`
}

// InWindow reports whether the promotion applies at the given moment.
func (p Promotion) InWindow(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

type Promotions interface {
	ActiveForProduct(ctx context.Context, productID uuid.UUID, token string) ([]Promotion, error)
}

type promotionsHTTP struct {
	httpClient
}

func NewPromotions(baseURL string, timeout time.Duration) Promotions {
	return &promotionsHTTP{newHTTPClient(baseURL, timeout)}
}

func (c *promotionsHTTP) ActiveForProduct(ctx context.Context, productID uuid.UUID, token string) ([]Promotion, error) {
	var promos []Promotion
	path := fmt.Sprintf("/api/promotions/product/%s", productID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &promos); err != nil {
		return nil, err
	}
	return promos, nil
}
