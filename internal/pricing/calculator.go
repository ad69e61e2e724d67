package pricing

import (
	"context"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/client"
)

// Quote is the effective price of a product for a given quantity after the
// best eligible promotion has been applied. Prices are per unit; the discount
// amount covers the whole quantity.
type Quote struct {
	ProductID       uuid.UUID
	Quantity        int
	OriginalPrice   float64
	FinalPrice      float64
	DiscountAmount  float64
	DiscountPercent float64
	Applied         *client.Promotion
}

// LineInput carries what the calculator needs to reprice one order line. The
// stored values are the fallback when pricing lookups fail.
type LineInput struct {
	LineID          uuid.UUID
	ProductID       uuid.UUID
	Quantity        int
	StoredUnitPrice float64
	StoredSubtotal  float64
}

// LinePricing is the repricing result for a single line. FellBack marks lines
// whose lookups failed and whose stored values were kept.
type LinePricing struct {
	LineID   uuid.UUID
	Quote    Quote
	FellBack bool
}

type OrderPricing struct {
	Lines         []LinePricing
	OriginalTotal float64
	FinalTotal    float64
	TotalDiscount float64
}

type Calculator struct {
	inventory  client.Inventory
	promotions client.Promotions
	now        func() time.Time
}

func NewCalculator(inventory client.Inventory, promotions client.Promotions) *Calculator {
	return &Calculator{
		inventory:  inventory,
		promotions: promotions,
		now:        time.Now,
	}
}

// EffectivePrice resolves the product's current price and applies the best
// eligible promotion. A promotion-lookup failure degrades to the original
// price with zero discount; pricing never blocks a sale. An inventory-lookup
// failure is returned as an error because there is no base price to fall
// back to.
func (c *Calculator) EffectivePrice(ctx context.Context, productID uuid.UUID, quantity int, token string) (Quote, error) {
	product, err := c.inventory.GetProduct(ctx, productID, token)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{
		ProductID:     productID,
		Quantity:      quantity,
		OriginalPrice: round2(product.Price),
		FinalPrice:    round2(product.Price),
	}

	promos, err := c.promotions.ActiveForProduct(ctx, productID, token)
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", productID).Msg("pricing: promotion lookup failed, selling at original price")
		return quote, nil
	}

	now := c.now()
	bestDiscount := 0.0
	for i := range promos {
		promo := promos[i]
		if !promo.Active || !promo.InWindow(now) || promo.MinQuantity > quantity {
			continue
		}

		unitFinal, ok := promoUnitPrice(promo, product.Price)
		if !ok {
			continue
		}

		// First-seen wins on equal discounts, so strictly greater.
		discount := (product.Price - unitFinal) * float64(quantity)
		if discount > bestDiscount {
			bestDiscount = discount
			quote.FinalPrice = round2(unitFinal)
			quote.Applied = &promos[i]
		}
	}

	quote.DiscountAmount = round2(bestDiscount)
	if quote.OriginalPrice > 0 {
		quote.DiscountPercent = round2((quote.OriginalPrice - quote.FinalPrice) / quote.OriginalPrice * 100)
	}

	return quote, nil
}

// OrderTotal reprices every line and aggregates the totals. Lines whose
// lookups fail keep their stored price and subtotal; the aggregate never
// fails.
func (c *Calculator) OrderTotal(ctx context.Context, lines []LineInput, token string) OrderPricing {
	result := OrderPricing{Lines: make([]LinePricing, 0, len(lines))}

	for _, line := range lines {
		quote, err := c.EffectivePrice(ctx, line.ProductID, line.Quantity, token)
		if err != nil {
			log.Warn().Err(err).
				Stringer("line_id", line.LineID).
				Stringer("product_id", line.ProductID).
				Msg("pricing: line repricing failed, keeping stored price")

			quote = Quote{
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				OriginalPrice: line.StoredUnitPrice,
				FinalPrice:    line.StoredUnitPrice,
			}
			result.Lines = append(result.Lines, LinePricing{LineID: line.LineID, Quote: quote, FellBack: true})
			result.OriginalTotal += line.StoredSubtotal
			result.FinalTotal += line.StoredSubtotal
			continue
		}

		result.Lines = append(result.Lines, LinePricing{LineID: line.LineID, Quote: quote})
		result.OriginalTotal += quote.OriginalPrice * float64(line.Quantity)
		result.FinalTotal += quote.FinalPrice * float64(line.Quantity)
	}

	result.OriginalTotal = round2(result.OriginalTotal)
	result.FinalTotal = round2(result.FinalTotal)
	result.TotalDiscount = round2(result.OriginalTotal - result.FinalTotal)

	return result
}

// promoUnitPrice resolves the candidate unit price for a promotion rule.
// Rules that would raise the price are discarded.
func promoUnitPrice(promo client.Promotion, original float64) (float64, bool) {
	switch {
	case promo.FixedPrice != nil:
		if *promo.FixedPrice >= original || *promo.FixedPrice < 0 {
			return 0, false
		}
		return *promo.FixedPrice, true
	case promo.PercentOff != nil:
		if *promo.PercentOff <= 0 || *promo.PercentOff > 100 {
			return 0, false
		}
		return original * (1 - *promo.PercentOff/100), true
	default:
		return 0, false
	}
}

// Subtotal computes a rounded line subtotal at the quoted final price.
func (q Quote) Subtotal() float64 {
	return round2(q.FinalPrice * float64(q.Quantity))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round2 rounds a monetary value to two decimal places.
func Round2(v float64) float64 {
	return round2(v)
}
