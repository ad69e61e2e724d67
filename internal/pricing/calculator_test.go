package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaluna/order-service/internal/client"
)

type mockInventory struct {
	getProduct  func(ctx context.Context, productID uuid.UUID, token string) (*client.Product, error)
	reduceStock func(ctx context.Context, productID uuid.UUID, quantity int, token string) error
}

func (m *mockInventory) GetProduct(ctx context.Context, productID uuid.UUID, token string) (*client.Product, error) {
	return m.getProduct(ctx, productID, token)
}

func (m *mockInventory) ReduceStock(ctx context.Context, productID uuid.UUID, quantity int, token string) error {
	return m.reduceStock(ctx, productID, quantity, token)
}

type mockPromotions struct {
	activeForProduct func(ctx context.Context, productID uuid.UUID, token string) ([]client.Promotion, error)
}

func (m *mockPromotions) ActiveForProduct(ctx context.Context, productID uuid.UUID, token string) ([]client.Promotion, error) {
	return m.activeForProduct(ctx, productID, token)
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCalculator(inv client.Inventory, promos client.Promotions) *Calculator {
	c := NewCalculator(inv, promos)
	c.now = func() time.Time { return fixedNow }
	return c
}

func floatPtr(v float64) *float64 { return &v }

func activePromo(rule func(*client.Promotion)) client.Promotion {
	p := client.Promotion{
		ID:        uuid.Must(uuid.NewV4()),
		Active:    true,
		StartDate: fixedNow.Add(-24 * time.Hour),
		EndDate:   fixedNow.Add(24 * time.Hour),
	}
	rule(&p)
	return p
}

func TestEffectivePrice(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name          string
		price         float64
		quantity      int
		promos        []client.Promotion
		promosErr     error
		wantFinal     float64
		wantDiscount  float64
		wantApplied   bool
		wantAppliedID int // index into promos
	}{
		{
			name:      "no promotions sells at original price",
			price:     10.00,
			quantity:  2,
			promos:    nil,
			wantFinal: 10.00,
		},
		{
			name:     "percent promotion applies",
			price:    5.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(20) }),
			},
			wantFinal:    4.00,
			wantDiscount: 1.00,
			wantApplied:  true,
		},
		{
			name:     "fixed price promotion applies",
			price:    10.00,
			quantity: 3,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.FixedPrice = floatPtr(7.50) }),
			},
			wantFinal:    7.50,
			wantDiscount: 7.50,
			wantApplied:  true,
		},
		{
			name:     "largest discount wins",
			price:    100.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(10) }),
				activePromo(func(p *client.Promotion) { p.FixedPrice = floatPtr(80) }),
				activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(5) }),
			},
			wantFinal:     80.00,
			wantDiscount:  20.00,
			wantApplied:   true,
			wantAppliedID: 1,
		},
		{
			name:     "first seen wins on equal discount",
			price:    100.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(10) }),
				activePromo(func(p *client.Promotion) { p.FixedPrice = floatPtr(90) }),
			},
			wantFinal:     90.00,
			wantDiscount:  10.00,
			wantApplied:   true,
			wantAppliedID: 0,
		},
		{
			name:     "inactive promotion is skipped",
			price:    10.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) {
					p.Active = false
					p.PercentOff = floatPtr(50)
				}),
			},
			wantFinal: 10.00,
		},
		{
			name:     "expired promotion is skipped",
			price:    10.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) {
					p.EndDate = fixedNow.Add(-time.Hour)
					p.PercentOff = floatPtr(50)
				}),
			},
			wantFinal: 10.00,
		},
		{
			name:     "minimum quantity not met",
			price:    10.00,
			quantity: 2,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) {
					p.MinQuantity = 3
					p.PercentOff = floatPtr(50)
				}),
			},
			wantFinal: 10.00,
		},
		{
			name:     "fixed price above original is discarded",
			price:    10.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.FixedPrice = floatPtr(12) }),
			},
			wantFinal: 10.00,
		},
		{
			name:     "percent out of range is discarded",
			price:    10.00,
			quantity: 1,
			promos: []client.Promotion{
				activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(150) }),
			},
			wantFinal: 10.00,
		},
		{
			name:      "promotion lookup failure degrades to original price",
			price:     10.00,
			quantity:  2,
			promosErr: errors.New("promotions unreachable"),
			wantFinal: 10.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &mockInventory{
				getProduct: func(ctx context.Context, id uuid.UUID, token string) (*client.Product, error) {
					return &client.Product{ID: id, Name: "Margherita", Price: tt.price, StockQuantity: 100, Active: true}, nil
				},
			}
			promos := &mockPromotions{
				activeForProduct: func(ctx context.Context, id uuid.UUID, token string) ([]client.Promotion, error) {
					return tt.promos, tt.promosErr
				},
			}

			calc := newTestCalculator(inv, promos)
			quote, err := calc.EffectivePrice(context.Background(), productID, tt.quantity, "token")
			require.NoError(t, err)

			assert.Equal(t, tt.wantFinal, quote.FinalPrice)
			assert.Equal(t, tt.wantDiscount, quote.DiscountAmount)
			if tt.wantApplied {
				require.NotNil(t, quote.Applied)
				assert.Equal(t, tt.promos[tt.wantAppliedID].ID, quote.Applied.ID)
			} else {
				assert.Nil(t, quote.Applied)
			}
		})
	}
}

func TestEffectivePrice_InventoryFailure(t *testing.T) {
	inv := &mockInventory{
		getProduct: func(ctx context.Context, id uuid.UUID, token string) (*client.Product, error) {
			return nil, errors.New("inventory unreachable")
		},
	}
	promos := &mockPromotions{
		activeForProduct: func(ctx context.Context, id uuid.UUID, token string) ([]client.Promotion, error) {
			return nil, nil
		},
	}

	calc := newTestCalculator(inv, promos)
	_, err := calc.EffectivePrice(context.Background(), uuid.Must(uuid.NewV4()), 1, "token")
	require.Error(t, err)
}

func TestOrderTotal(t *testing.T) {
	productA := uuid.Must(uuid.NewV4())
	productB := uuid.Must(uuid.NewV4())

	inv := &mockInventory{
		getProduct: func(ctx context.Context, id uuid.UUID, token string) (*client.Product, error) {
			switch id {
			case productA:
				return &client.Product{ID: id, Name: "A", Price: 10.00, StockQuantity: 100, Active: true}, nil
			case productB:
				return &client.Product{ID: id, Name: "B", Price: 5.00, StockQuantity: 100, Active: true}, nil
			}
			return nil, errors.New("unknown product")
		},
	}
	promos := &mockPromotions{
		activeForProduct: func(ctx context.Context, id uuid.UUID, token string) ([]client.Promotion, error) {
			if id == productB {
				return []client.Promotion{
					activePromo(func(p *client.Promotion) { p.PercentOff = floatPtr(20) }),
				}, nil
			}
			return nil, nil
		},
	}

	calc := newTestCalculator(inv, promos)
	result := calc.OrderTotal(context.Background(), []LineInput{
		{LineID: uuid.Must(uuid.NewV4()), ProductID: productA, Quantity: 2, StoredUnitPrice: 10.00, StoredSubtotal: 20.00},
		{LineID: uuid.Must(uuid.NewV4()), ProductID: productB, Quantity: 1, StoredUnitPrice: 5.00, StoredSubtotal: 5.00},
	}, "token")

	require.Len(t, result.Lines, 2)
	assert.Equal(t, 25.00, result.OriginalTotal)
	assert.Equal(t, 24.00, result.FinalTotal)
	assert.Equal(t, 1.00, result.TotalDiscount)
	assert.False(t, result.Lines[0].FellBack)
	assert.False(t, result.Lines[1].FellBack)
	assert.Equal(t, 4.00, result.Lines[1].Quote.FinalPrice)
}

func TestOrderTotal_LineFallback(t *testing.T) {
	healthy := uuid.Must(uuid.NewV4())
	broken := uuid.Must(uuid.NewV4())

	inv := &mockInventory{
		getProduct: func(ctx context.Context, id uuid.UUID, token string) (*client.Product, error) {
			if id == broken {
				return nil, errors.New("inventory unreachable")
			}
			return &client.Product{ID: id, Name: "ok", Price: 10.00, StockQuantity: 100, Active: true}, nil
		},
	}
	promos := &mockPromotions{
		activeForProduct: func(ctx context.Context, id uuid.UUID, token string) ([]client.Promotion, error) {
			return nil, nil
		},
	}

	calc := newTestCalculator(inv, promos)
	result := calc.OrderTotal(context.Background(), []LineInput{
		{LineID: uuid.Must(uuid.NewV4()), ProductID: healthy, Quantity: 1, StoredUnitPrice: 9.00, StoredSubtotal: 9.00},
		{LineID: uuid.Must(uuid.NewV4()), ProductID: broken, Quantity: 3, StoredUnitPrice: 4.00, StoredSubtotal: 12.00},
	}, "token")

	require.Len(t, result.Lines, 2)
	// The healthy line reprices at the live inventory price, the broken line
	// keeps its stored subtotal.
	assert.False(t, result.Lines[0].FellBack)
	assert.True(t, result.Lines[1].FellBack)
	assert.Equal(t, 4.00, result.Lines[1].Quote.FinalPrice)
	assert.Equal(t, 22.00, result.FinalTotal)
	assert.Equal(t, 0.00, result.TotalDiscount)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.56, Round2(10.555))
	assert.Equal(t, 10.55, Round2(10.554))
	assert.Equal(t, 0.00, Round2(0.0001))
}
