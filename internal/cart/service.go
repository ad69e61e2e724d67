// Package cart manages the single unconfirmed order a customer is still
// building. Confirmed orders are owned by the order package.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/client"
	"github.com/casaluna/order-service/internal/metrics"
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/pricing"
)

type AddItemResult struct {
	Order     *order.Order `json:"order"`
	Line      *order.Line  `json:"line"`
	LineCount int          `json:"line_count"`
}

type Service interface {
	AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int, token string) (*AddItemResult, error)
	// Cart returns the customer's unconfirmed order, or nil when none exists.
	Cart(ctx context.Context, customerID uuid.UUID) (*order.Order, error)
	CartLines(ctx context.Context, customerID uuid.UUID) ([]order.Line, error)
	UpdateLineQuantity(ctx context.Context, lineID, customerID uuid.UUID, quantity int) (*order.Order, error)
	RemoveLine(ctx context.Context, lineID, customerID uuid.UUID) (*order.Order, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type service struct {
	repo      order.Repository
	payments  order.PaymentChecker
	inventory client.Inventory
	metrics   *metrics.Metrics
}

func NewService(repo order.Repository, payments order.PaymentChecker, inventory client.Inventory, m *metrics.Metrics) Service {
	return &service{
		repo:      repo,
		payments:  payments,
		inventory: inventory,
		metrics:   m,
	}
}

func (s *service) AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int, token string) (*AddItemResult, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than zero")
	}

	product, err := s.inventory.GetProduct(ctx, productID, token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("product %s not found", productID)
		}
		return nil, err
	}
	if !product.Active {
		return nil, apperr.NotFound("product %q is not available", product.Name)
	}
	// Checked before the cart is created so a rejected add cannot leave an
	// empty cart behind. Re-checked cumulatively once the existing line is
	// known.
	if product.StockQuantity < quantity {
		return nil, apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
			product.Name, quantity, product.StockQuantity)
	}

	cart, err := s.findOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindLineByProduct(ctx, cart.ID, productID)
	if err != nil && !errors.Is(err, order.ErrLineNotFound) {
		return nil, fmt.Errorf("cart: failed to look up existing line: %w", err)
	}

	cumulative := quantity
	if existing != nil {
		cumulative += existing.Quantity
	}
	if product.StockQuantity < cumulative {
		return nil, apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
			product.Name, cumulative, product.StockQuantity)
	}

	// Re-adding merges into the existing line at the product's current
	// inventory price, not the price frozen when it was first added.
	var line *order.Line
	if existing != nil {
		existing.Quantity = cumulative
		existing.UnitPrice = pricing.Round2(product.Price)
		existing.Subtotal = pricing.Round2(product.Price * float64(cumulative))
		if err := s.repo.UpdateLine(ctx, existing); err != nil {
			return nil, fmt.Errorf("cart: failed to merge line: %w", err)
		}
		line = existing
	} else {
		line = &order.Line{
			OrderID:   cart.ID,
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: pricing.Round2(product.Price),
			Subtotal:  pricing.Round2(product.Price * float64(quantity)),
		}
		if err := s.repo.InsertLine(ctx, line); err != nil {
			return nil, fmt.Errorf("cart: failed to insert line: %w", err)
		}
	}

	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to reload lines: %w", err)
	}
	cart.Total = sumSubtotals(lines)
	if err := s.repo.UpdateTotal(ctx, cart.ID, cart.Total); err != nil {
		return nil, fmt.Errorf("cart: failed to update cart total: %w", err)
	}
	cart.Lines = lines

	if s.metrics != nil {
		s.metrics.RecordCartItemAdded()
	}
	log.Info().
		Stringer("order_id", cart.ID).
		Stringer("customer_id", customerID).
		Stringer("product_id", productID).
		Int("quantity", quantity).
		Msg("cart: product added")

	return &AddItemResult{Order: cart, Line: line, LineCount: len(lines)}, nil
}

func (s *service) Cart(ctx context.Context, customerID uuid.UUID) (*order.Order, error) {
	cart, err := s.repo.GetUnconfirmedByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cart: failed to load cart: %w", err)
	}

	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to load cart lines: %w", err)
	}
	cart.Lines = lines
	return cart, nil
}

func (s *service) CartLines(ctx context.Context, customerID uuid.UUID) ([]order.Line, error) {
	cart, err := s.repo.GetUnconfirmedByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return []order.Line{}, nil
		}
		return nil, fmt.Errorf("cart: failed to load cart: %w", err)
	}
	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to load cart lines: %w", err)
	}
	return lines, nil
}

func (s *service) UpdateLineQuantity(ctx context.Context, lineID, customerID uuid.UUID, quantity int) (*order.Order, error) {
	if quantity <= 0 {
		return s.RemoveLine(ctx, lineID, customerID)
	}

	line, cart, err := s.ownedCartLine(ctx, lineID, customerID)
	if err != nil {
		return nil, err
	}

	line.Quantity = quantity
	line.Subtotal = pricing.Round2(line.UnitPrice * float64(quantity))
	if err := s.repo.UpdateLine(ctx, line); err != nil {
		return nil, fmt.Errorf("cart: failed to update line quantity: %w", err)
	}

	return s.recomputeTotal(ctx, cart)
}

func (s *service) RemoveLine(ctx context.Context, lineID, customerID uuid.UUID) (*order.Order, error) {
	line, cart, err := s.ownedCartLine(ctx, lineID, customerID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteLine(ctx, line.ID); err != nil {
		return nil, fmt.Errorf("cart: failed to delete line %s: %w", line.ID, err)
	}

	cart.Total = pricing.Round2(cart.Total - line.Subtotal)
	if cart.Total < 0 {
		cart.Total = 0
	}
	if err := s.repo.UpdateTotal(ctx, cart.ID, cart.Total); err != nil {
		return nil, fmt.Errorf("cart: failed to update cart total: %w", err)
	}

	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to reload lines: %w", err)
	}
	cart.Lines = lines
	return cart, nil
}

func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	cart, err := s.repo.GetUnconfirmedByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil
		}
		return fmt.Errorf("cart: failed to load cart: %w", err)
	}

	// An unconfirmed order should never have a payment; checked anyway
	// because deleting a paid order would orphan the payment row.
	paid, err := s.payments.ExistsByOrder(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("cart: failed to check payments for cart %s: %w", cart.ID, err)
	}
	if paid {
		return apperr.Conflict("cart %s has a registered payment and cannot be cleared", cart.ID)
	}

	if err := s.repo.Delete(ctx, cart.ID); err != nil {
		return fmt.Errorf("cart: failed to delete cart %s: %w", cart.ID, err)
	}
	log.Info().Stringer("order_id", cart.ID).Stringer("customer_id", customerID).Msg("cart: cleared")
	return nil
}

func (s *service) findOrCreateCart(ctx context.Context, customerID uuid.UUID) (*order.Order, error) {
	cart, err := s.repo.GetUnconfirmedByCustomer(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("cart: failed to load cart: %w", err)
	}

	cart = &order.Order{
		CustomerID: customerID,
		Status:     order.StatusUnconfirmed,
		Channel:    order.ChannelWeb,
	}
	if err := s.repo.CreateOrder(ctx, cart); err != nil {
		// A concurrent request created the cart between the lookup and
		// the insert; use the winner's cart.
		if errors.Is(err, order.ErrCartExists) {
			return s.repo.GetUnconfirmedByCustomer(ctx, customerID)
		}
		return nil, fmt.Errorf("cart: failed to create cart: %w", err)
	}
	log.Info().Stringer("order_id", cart.ID).Stringer("customer_id", customerID).Msg("cart: created")
	return cart, nil
}

// ownedCartLine loads a line and verifies it belongs to an unconfirmed order
// owned by the caller.
func (s *service) ownedCartLine(ctx context.Context, lineID, customerID uuid.UUID) (*order.Line, *order.Order, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		if errors.Is(err, order.ErrLineNotFound) {
			return nil, nil, apperr.NotFound("order line %s not found", lineID)
		}
		return nil, nil, fmt.Errorf("cart: failed to load line: %w", err)
	}

	o, err := s.repo.GetByID(ctx, line.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("cart: failed to load order for line: %w", err)
	}
	if o.CustomerID != customerID {
		return nil, nil, apperr.Forbidden("order line %s does not belong to the caller", lineID)
	}
	if o.Status != order.StatusUnconfirmed {
		return nil, nil, apperr.Conflict("order %s is already confirmed and cannot be edited as a cart", o.ID)
	}
	return line, o, nil
}

func (s *service) recomputeTotal(ctx context.Context, cart *order.Order) (*order.Order, error) {
	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to reload lines: %w", err)
	}
	cart.Total = sumSubtotals(lines)
	if err := s.repo.UpdateTotal(ctx, cart.ID, cart.Total); err != nil {
		return nil, fmt.Errorf("cart: failed to update cart total: %w", err)
	}
	cart.Lines = lines
	return cart, nil
}

func sumSubtotals(lines []order.Line) float64 {
	total := 0.0
	for _, l := range lines {
		total += l.Subtotal
	}
	return pricing.Round2(total)
}
