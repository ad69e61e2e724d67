package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/client"
	"github.com/casaluna/order-service/internal/metrics"
	"github.com/casaluna/order-service/internal/pricing"
)

// Pricer resolves promotional pricing; implemented by pricing.Calculator.
type Pricer interface {
	EffectivePrice(ctx context.Context, productID uuid.UUID, quantity int, token string) (pricing.Quote, error)
	OrderTotal(ctx context.Context, lines []pricing.LineInput, token string) pricing.OrderPricing
}

// PaymentChecker reports whether an order already has a registered payment.
type PaymentChecker interface {
	ExistsByOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type StaffLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// StaffOrderResult reports a staff-entered order together with any post-step
// failures (receipt generation, table occupation) that did not roll the order
// back.
type StaffOrderResult struct {
	Order       *Order   `json:"order"`
	ReceiptPath string   `json:"receipt_path,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

type Service interface {
	Confirm(ctx context.Context, customerID uuid.UUID, deliveryAddress, token string) (*Order, error)
	CreateStaffOrder(ctx context.Context, staffID uuid.UUID, lines []StaffLine, tableID *uuid.UUID, token string) (*StaffOrderResult, error)
	AddLine(ctx context.Context, orderID, productID uuid.UUID, quantity int, token string) (*Order, *Line, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error)
	Cancel(ctx context.Context, orderID, customerID uuid.UUID) error
	RemoveLine(ctx context.Context, lineID uuid.UUID) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	History(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	InProgress(ctx context.Context) ([]Order, error)
	All(ctx context.Context) ([]Order, error)
	Detail(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

type service struct {
	repo      Repository
	payments  PaymentChecker
	pricer    Pricer
	inventory client.Inventory
	tables    client.Tables
	clients   client.Clients
	email     client.Email
	receipts  client.Receipts
	metrics   *metrics.Metrics
}

func NewService(
	repo Repository,
	payments PaymentChecker,
	pricer Pricer,
	inventory client.Inventory,
	tables client.Tables,
	clients client.Clients,
	email client.Email,
	receipts client.Receipts,
	m *metrics.Metrics,
) Service {
	return &service{
		repo:      repo,
		payments:  payments,
		pricer:    pricer,
		inventory: inventory,
		tables:    tables,
		clients:   clients,
		email:     email,
		receipts:  receipts,
		metrics:   m,
	}
}

func (s *service) Confirm(ctx context.Context, customerID uuid.UUID, deliveryAddress, token string) (*Order, error) {
	profile, err := s.clients.GetClient(ctx, customerID, token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("customer %s is not a registered client", customerID)
		}
		return nil, err
	}

	cart, err := s.repo.GetUnconfirmedByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.Validation("customer %s has no active cart to confirm", customerID)
		}
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}

	lines, err := s.repo.GetLinesByOrder(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("cart is empty, add at least one product before confirming")
	}

	for _, line := range lines {
		if err := s.checkAvailability(ctx, line.ProductID, line.Quantity, token); err != nil {
			return nil, err
		}
	}

	repriced := s.pricer.OrderTotal(ctx, toLineInputs(lines), token)
	for i := range lines {
		lp := repriced.Lines[i]
		lines[i].UnitPrice = lp.Quote.FinalPrice
		lines[i].Subtotal = lp.Quote.Subtotal()
		if lp.FellBack {
			lines[i].Subtotal = pricing.Round2(lines[i].UnitPrice * float64(lines[i].Quantity))
		}
		if err := s.repo.UpdateLine(ctx, &lines[i]); err != nil {
			return nil, fmt.Errorf("service: failed to persist repriced line %s: %w", lines[i].ID, err)
		}
	}

	if deliveryAddress == "" {
		deliveryAddress = profile.Address
	}

	now := time.Now().UTC()
	cart.Status = StatusPending
	cart.Total = sumSubtotals(lines)
	cart.DeliveryAddress = deliveryAddress
	cart.PlacedAt = &now

	if err := s.repo.UpdateOrder(ctx, cart); err != nil {
		return nil, fmt.Errorf("service: failed to confirm order %s: %w", cart.ID, err)
	}
	cart.Lines = lines

	if err := s.email.SendOrderConfirmation(ctx, client.OrderConfirmation{
		Email:           profile.Email,
		Name:            profile.Name,
		OrderID:         cart.ID,
		Total:           cart.Total,
		DeliveryAddress: cart.DeliveryAddress,
		PlacedAt:        now,
	}, token); err != nil {
		log.Warn().Err(err).Stringer("order_id", cart.ID).Msg("service: order confirmation email failed")
	}

	if s.metrics != nil {
		s.metrics.RecordOrderConfirmed()
	}
	log.Info().Stringer("order_id", cart.ID).Stringer("customer_id", customerID).Msg("service: order confirmed")

	return cart, nil
}

func (s *service) CreateStaffOrder(ctx context.Context, staffID uuid.UUID, staffLines []StaffLine, tableID *uuid.UUID, token string) (*StaffOrderResult, error) {
	if len(staffLines) == 0 {
		return nil, apperr.Validation("order must contain at least one line")
	}

	lines := make([]Line, 0, len(staffLines))
	total := 0.0
	for _, in := range staffLines {
		if in.Quantity <= 0 {
			return nil, apperr.Validation("quantity for product %s must be greater than zero", in.ProductID)
		}
		product, err := s.getActiveProduct(ctx, in.ProductID, token)
		if err != nil {
			return nil, err
		}
		if product.StockQuantity < in.Quantity {
			return nil, apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
				product.Name, in.Quantity, product.StockQuantity)
		}

		subtotal := pricing.Round2(product.Price * float64(in.Quantity))
		lines = append(lines, Line{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: pricing.Round2(product.Price),
			Subtotal:  subtotal,
		})
		total += subtotal
	}

	var tableName string
	if tableID != nil {
		table, err := s.findTable(ctx, *tableID, token)
		if err != nil {
			return nil, err
		}
		if table.Status != client.TableAvailable {
			return nil, apperr.Conflict("table %d is not available", table.Number)
		}
		tableName = fmt.Sprintf("Table %d", table.Number)
	}

	o := &Order{
		CustomerID: staffID,
		Status:     StatusUnconfirmed,
		Channel:    ChannelInPerson,
		Total:      pricing.Round2(total),
		TableID:    tableID,
	}
	if err := s.repo.CreateOrderWithLines(ctx, o, lines); err != nil {
		return nil, fmt.Errorf("service: failed to create staff order: %w", err)
	}

	// Post-steps do not roll the order back; failures are reported as
	// warnings alongside the created order.
	result := &StaffOrderResult{Order: o}

	receiptPath, err := s.receipts.Generate(ctx, buildReceiptRequest(o, tableName), token)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: receipt generation failed for staff order")
		result.Warnings = append(result.Warnings, "order created, but receipt generation failed")
	} else {
		result.ReceiptPath = receiptPath
	}

	if tableID != nil {
		if err := s.tables.UpdateTableStatus(ctx, *tableID, client.TableOccupied, token); err != nil {
			log.Warn().Err(err).Stringer("order_id", o.ID).Stringer("table_id", *tableID).Msg("service: failed to mark table occupied")
			result.Warnings = append(result.Warnings, "order created, but the table could not be marked occupied")
		}
	}

	log.Info().Stringer("order_id", o.ID).Stringer("staff_id", staffID).Msg("service: staff order created")
	return result, nil
}

func (s *service) AddLine(ctx context.Context, orderID, productID uuid.UUID, quantity int, token string) (*Order, *Line, error) {
	if quantity <= 0 {
		return nil, nil, apperr.Validation("quantity must be greater than zero")
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, nil, apperr.NotFound("order %s not found", orderID)
		}
		return nil, nil, fmt.Errorf("service: failed to load order: %w", err)
	}
	if o.Status == StatusCancelled {
		return nil, nil, apperr.Conflict("cannot add products to a cancelled order")
	}

	product, err := s.getActiveProduct(ctx, productID, token)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.FindLineByProduct(ctx, orderID, productID)
	if err != nil && !errors.Is(err, ErrLineNotFound) {
		return nil, nil, fmt.Errorf("service: failed to look up existing line: %w", err)
	}

	cumulative := quantity
	if existing != nil {
		cumulative += existing.Quantity
	}
	if product.StockQuantity < cumulative {
		return nil, nil, apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
			product.Name, cumulative, product.StockQuantity)
	}

	line, err := s.upsertLine(ctx, orderID, existing, productID, quantity, product.Price)
	if err != nil {
		return nil, nil, err
	}

	lines, err := s.repo.GetLinesByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("service: failed to reload lines: %w", err)
	}
	o.Total = sumSubtotals(lines)
	if err := s.repo.UpdateTotal(ctx, orderID, o.Total); err != nil {
		return nil, nil, fmt.Errorf("service: failed to update order total: %w", err)
	}
	o.Lines = lines

	return o, line, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, error) {
	if !newStatus.Valid() {
		return nil, apperr.Validation("unknown order status %q", newStatus)
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.NotFound("order %s not found", orderID)
		}
		return nil, fmt.Errorf("service: failed to load order for status update: %w", err)
	}

	if o.Status.Terminal() {
		return nil, apperr.Conflict("order %s is already %s and cannot change status", orderID, o.Status)
	}
	if !CanTransition(o.Status, newStatus) {
		return nil, apperr.Conflict("transition from %s to %s is not allowed", o.Status, newStatus)
	}

	if newStatus == StatusPending {
		paid, err := s.payments.ExistsByOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to check payments for order %s: %w", orderID, err)
		}
		if !paid {
			return nil, apperr.Conflict("order %s has no registered payment", orderID)
		}
	}

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).
		Stringer("old_status", o.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")

	o.Status = newStatus
	return o, nil
}

func (s *service) Cancel(ctx context.Context, orderID, customerID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return apperr.NotFound("order %s not found", orderID)
		}
		return fmt.Errorf("service: failed to load order for cancel: %w", err)
	}
	if o.CustomerID != customerID {
		return apperr.Forbidden("order %s does not belong to the caller", orderID)
	}
	if o.Status != StatusUnconfirmed && o.Status != StatusPending {
		return apperr.Conflict("order %s cannot be cancelled from status %s", orderID, o.Status)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		return fmt.Errorf("service: failed to cancel order %s: %w", orderID, err)
	}
	log.Info().Stringer("order_id", orderID).Msg("service: order cancelled by customer")
	return nil
}

func (s *service) RemoveLine(ctx context.Context, lineID uuid.UUID) error {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return apperr.NotFound("order line %s not found", lineID)
		}
		return fmt.Errorf("service: failed to load line: %w", err)
	}

	o, err := s.repo.GetByID(ctx, line.OrderID)
	if err != nil {
		return fmt.Errorf("service: failed to load order for line removal: %w", err)
	}
	if o.Status.Terminal() {
		return apperr.Conflict("cannot remove products from a %s order", o.Status)
	}

	if err := s.repo.DeleteLine(ctx, lineID); err != nil {
		return fmt.Errorf("service: failed to delete line %s: %w", lineID, err)
	}

	lines, err := s.repo.GetLinesByOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("service: failed to reload lines: %w", err)
	}
	if err := s.repo.UpdateTotal(ctx, o.ID, sumSubtotals(lines)); err != nil {
		return fmt.Errorf("service: failed to update order total: %w", err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return apperr.NotFound("order %s not found", orderID)
		}
		return fmt.Errorf("service: failed to load order for deletion: %w", err)
	}
	if o.Status == StatusDelivered {
		return apperr.Conflict("delivered orders cannot be deleted")
	}

	paid, err := s.payments.ExistsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("service: failed to check payments for order %s: %w", orderID, err)
	}
	if paid {
		return apperr.Conflict("order %s has a registered payment, cancel it instead", orderID)
	}

	if err := s.repo.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("service: failed to delete order %s: %w", orderID, err)
	}
	log.Info().Stringer("order_id", orderID).Msg("service: order deleted")
	return nil
}

func (s *service) History(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch order history: %w", err)
	}
	return orders, nil
}

func (s *service) InProgress(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch in-progress orders: %w", err)
	}
	return orders, nil
}

func (s *service) All(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch orders: %w", err)
	}
	return orders, nil
}

func (s *service) Detail(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.NotFound("order %s not found", orderID)
		}
		return nil, fmt.Errorf("service: failed to load order: %w", err)
	}
	lines, err := s.repo.GetLinesByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load order lines: %w", err)
	}
	o.Lines = lines
	return o, nil
}

// getActiveProduct loads a product and rejects inactive ones.
func (s *service) getActiveProduct(ctx context.Context, productID uuid.UUID, token string) (*client.Product, error) {
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
	return product, nil
}

func (s *service) checkAvailability(ctx context.Context, productID uuid.UUID, quantity int, token string) error {
	product, err := s.getActiveProduct(ctx, productID, token)
	if err != nil {
		return err
	}
	if product.StockQuantity < quantity {
		return apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
			product.Name, quantity, product.StockQuantity)
	}
	return nil
}

func (s *service) findTable(ctx context.Context, tableID uuid.UUID, token string) (*client.Table, error) {
	tables, err := s.tables.ListTables(ctx, token)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if tables[i].ID == tableID {
			return &tables[i], nil
		}
	}
	return nil, apperr.NotFound("table %s not found", tableID)
}

func (s *service) upsertLine(ctx context.Context, orderID uuid.UUID, existing *Line, productID uuid.UUID, quantity int, unitPrice float64) (*Line, error) {
	if existing != nil {
		existing.Quantity += quantity
		existing.UnitPrice = pricing.Round2(unitPrice)
		existing.Subtotal = pricing.Round2(unitPrice * float64(existing.Quantity))
		if err := s.repo.UpdateLine(ctx, existing); err != nil {
			return nil, fmt.Errorf("service: failed to merge line: %w", err)
		}
		return existing, nil
	}

	line := &Line{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: pricing.Round2(unitPrice),
		Subtotal:  pricing.Round2(unitPrice * float64(quantity)),
	}
	if err := s.repo.InsertLine(ctx, line); err != nil {
		return nil, fmt.Errorf("service: failed to insert line: %w", err)
	}
	return line, nil
}

func buildReceiptRequest(o *Order, tableName string) client.ReceiptRequest {
	lines := make([]client.ReceiptLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, client.ReceiptLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return client.ReceiptRequest{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		Lines:           lines,
		Total:           o.Total,
		DeliveryAddress: o.DeliveryAddress,
		TableName:       tableName,
		IssuedAt:        time.Now().UTC(),
	}
}

func toLineInputs(lines []Line) []pricing.LineInput {
	inputs := make([]pricing.LineInput, 0, len(lines))
	for _, l := range lines {
		inputs = append(inputs, pricing.LineInput{
			LineID:          l.ID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			StoredUnitPrice: l.UnitPrice,
			StoredSubtotal:  l.Subtotal,
		})
	}
	return inputs
}

func sumSubtotals(lines []Line) float64 {
	total := 0.0
	for _, l := range lines {
		total += l.Subtotal
	}
	return pricing.Round2(total)
}
