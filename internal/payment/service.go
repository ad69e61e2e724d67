package payment

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
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/pricing"
)

// RegisterResult is the successful outcome of a payment registration.
type RegisterResult struct {
	Order       *order.Order `json:"order"`
	Payment     *Payment     `json:"payment"`
	ReceiptPath string       `json:"receipt_path"`
}

type Service interface {
	RegisterPayment(ctx context.Context, orderID, customerID, methodID uuid.UUID, deliveryAddress, token string) (*RegisterResult, error)
	PendingOrders(ctx context.Context) ([]order.Order, error)
	Methods(ctx context.Context) ([]Method, error)
	CreateMethod(ctx context.Context, name string) (*Method, error)
	Method(ctx context.Context, methodID uuid.UUID) (*Method, error)
	UpdateMethod(ctx context.Context, methodID uuid.UUID, name string) (*Method, error)
	DeleteMethod(ctx context.Context, methodID uuid.UUID) error
	History(ctx context.Context, filter HistoryFilter) (*HistoryPage, error)
	Detail(ctx context.Context, paymentID uuid.UUID) (*Detail, error)
}

type service struct {
	store     Store
	repo      Repository
	orders    order.Repository
	pricer    order.Pricer
	inventory client.Inventory
	tables    client.Tables
	receipts  client.Receipts
	metrics   *metrics.Metrics
}

func NewService(
	store Store,
	repo Repository,
	orders order.Repository,
	pricer order.Pricer,
	inventory client.Inventory,
	tables client.Tables,
	receipts client.Receipts,
	m *metrics.Metrics,
) Service {
	return &service{
		store:     store,
		repo:      repo,
		orders:    orders,
		pricer:    pricer,
		inventory: inventory,
		tables:    tables,
		receipts:  receipts,
		metrics:   m,
	}
}

// RegisterPayment finalizes an order: it reprices every line at the best
// current promotion, re-validates and reserves stock, records the payment,
// moves the order to pending and attaches a receipt. Everything runs inside
// one database transaction; any failure rolls back all local writes. The
// inventory decrement is an external call and is not undone by the rollback.
func (s *service) RegisterPayment(ctx context.Context, orderID, customerID, methodID uuid.UUID, deliveryAddress, token string) (*RegisterResult, error) {
	start := time.Now()
	result, err := s.registerPayment(ctx, orderID, customerID, methodID, deliveryAddress, token)
	if s.metrics != nil {
		s.metrics.RecordPaymentDuration(time.Since(start))
		if err != nil {
			s.metrics.RecordPaymentFailed()
		} else {
			s.metrics.RecordPaymentRegistered()
		}
	}
	return result, err
}

func (s *service) registerPayment(ctx context.Context, orderID, customerID, methodID uuid.UUID, deliveryAddress, token string) (*RegisterResult, error) {
	var result *RegisterResult

	err := s.store.RunPaymentTx(ctx, func(tx TxStore) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, order.ErrOrderNotFound) {
				return apperr.NotFound("order %s not found", orderID)
			}
			return fmt.Errorf("payment: failed to load order: %w", err)
		}
		if o.CustomerID != customerID {
			return apperr.Forbidden("order %s does not belong to the caller", orderID)
		}
		if o.Status != order.StatusUnconfirmed {
			return apperr.Conflict("order %s is not in a payable state (status %s)", orderID, o.Status)
		}

		method, err := tx.GetMethod(ctx, methodID)
		if err != nil {
			if errors.Is(err, ErrMethodNotFound) {
				return apperr.NotFound("payment method %s not found", methodID)
			}
			return fmt.Errorf("payment: failed to load payment method: %w", err)
		}

		lines, err := tx.GetLines(ctx, orderID)
		if err != nil {
			return fmt.Errorf("payment: failed to load order lines: %w", err)
		}
		if len(lines) == 0 {
			return apperr.Validation("order %s has no lines to pay for", orderID)
		}

		// Reprice each line at the best current promotion. Lines whose
		// lookups fail keep their stored subtotal instead of aborting the
		// payment.
		repriced := s.pricer.OrderTotal(ctx, toLineInputs(lines), token)
		total := 0.0
		for i := range lines {
			lp := repriced.Lines[i]
			if !lp.FellBack {
				lines[i].UnitPrice = lp.Quote.FinalPrice
				lines[i].Subtotal = lp.Quote.Subtotal()
				if err := tx.UpdateLinePricing(ctx, lines[i].ID, lines[i].UnitPrice, lines[i].Subtotal); err != nil {
					return fmt.Errorf("payment: failed to persist repriced line %s: %w", lines[i].ID, err)
				}
			}
			total += lines[i].Subtotal
		}
		total = pricing.Round2(total)

		// Authoritative stock check against live inventory; the cart-time
		// check may be stale by now.
		for _, line := range lines {
			if err := s.checkStock(ctx, line, token); err != nil {
				return err
			}
		}

		reserved := 0
		for _, line := range lines {
			if err := s.inventory.ReduceStock(ctx, line.ProductID, line.Quantity, token); err != nil {
				if reserved > 0 {
					// The decrements already made live in the inventory
					// service and are not restored by our rollback.
					log.Warn().
						Stringer("order_id", orderID).
						Int("reserved_lines", reserved).
						Msg("payment: aborting after partial stock reservation, external stock not compensated")
				}
				return apperr.Upstream(err, "failed to reserve stock for product %s", line.ProductID)
			}
			reserved++
		}

		now := time.Now().UTC()
		p := &Payment{
			OrderID:         orderID,
			PaymentMethodID: method.ID,
			Amount:          total,
			PaidAt:          now,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("payment: failed to record payment: %w", err)
		}

		if deliveryAddress == "" {
			deliveryAddress = o.DeliveryAddress
		}
		if err := tx.MarkOrderPending(ctx, orderID, total, deliveryAddress, now); err != nil {
			return fmt.Errorf("payment: failed to update order: %w", err)
		}
		o.Status = order.StatusPending
		o.Total = total
		o.DeliveryAddress = deliveryAddress
		o.PlacedAt = &now
		o.Lines = lines

		// Receipt failure aborts the whole payment here; the staff-order
		// flow treats it as a warning instead.
		receiptPath, err := s.generateReceipt(ctx, o, token)
		if err != nil {
			return apperr.Upstream(err, "payment recorded but receipt generation failed, transaction aborted")
		}
		if err := tx.SetReceiptURL(ctx, p.ID, receiptPath); err != nil {
			return fmt.Errorf("payment: failed to attach receipt: %w", err)
		}
		p.ReceiptURL = receiptPath

		result = &RegisterResult{Order: o, Payment: p, ReceiptPath: receiptPath}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("payment_id", result.Payment.ID).
		Float64("amount", result.Payment.Amount).
		Msg("payment: registered")
	return result, nil
}

func (s *service) checkStock(ctx context.Context, line order.Line, token string) error {
	product, err := s.inventory.GetProduct(ctx, line.ProductID, token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotFound("product %s no longer exists", line.ProductID)
		}
		return err
	}
	if !product.Active {
		return apperr.Conflict("product %q is no longer available", product.Name)
	}
	if product.StockQuantity < line.Quantity {
		return apperr.Conflict("insufficient stock for product %q: requested %d, available %d",
			product.Name, line.Quantity, product.StockQuantity)
	}
	return nil
}

func (s *service) generateReceipt(ctx context.Context, o *order.Order, token string) (string, error) {
	tableName := ""
	if o.TableID != nil {
		tables, err := s.tables.ListTables(ctx, token)
		if err != nil {
			log.Warn().Err(err).Stringer("order_id", o.ID).Msg("payment: table lookup failed, receipt will omit the table")
		} else {
			for _, t := range tables {
				if t.ID == *o.TableID {
					tableName = fmt.Sprintf("Table %d", t.Number)
					break
				}
			}
		}
	}

	lines := make([]client.ReceiptLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, client.ReceiptLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}

	return s.receipts.Generate(ctx, client.ReceiptRequest{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		Lines:           lines,
		Total:           o.Total,
		DeliveryAddress: o.DeliveryAddress,
		TableName:       tableName,
		IssuedAt:        time.Now().UTC(),
	}, token)
}

func (s *service) PendingOrders(ctx context.Context) ([]order.Order, error) {
	orders, err := s.orders.ListByStatus(ctx, order.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to list pending orders: %w", err)
	}
	return orders, nil
}

func (s *service) Methods(ctx context.Context) ([]Method, error) {
	methods, err := s.repo.ListMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to list payment methods: %w", err)
	}
	return methods, nil
}

func (s *service) CreateMethod(ctx context.Context, name string) (*Method, error) {
	m := &Method{Name: name}
	if err := s.repo.CreateMethod(ctx, m); err != nil {
		if errors.Is(err, ErrMethodNameTaken) {
			return nil, apperr.Conflict("payment method %q already exists", name)
		}
		return nil, fmt.Errorf("payment: failed to create payment method: %w", err)
	}
	return m, nil
}

func (s *service) Method(ctx context.Context, methodID uuid.UUID) (*Method, error) {
	m, err := s.repo.GetMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			return nil, apperr.NotFound("payment method %s not found", methodID)
		}
		return nil, fmt.Errorf("payment: failed to load payment method: %w", err)
	}
	return m, nil
}

func (s *service) UpdateMethod(ctx context.Context, methodID uuid.UUID, name string) (*Method, error) {
	m := &Method{ID: methodID, Name: name}
	if err := s.repo.UpdateMethod(ctx, m); err != nil {
		switch {
		case errors.Is(err, ErrMethodNotFound):
			return nil, apperr.NotFound("payment method %s not found", methodID)
		case errors.Is(err, ErrMethodNameTaken):
			return nil, apperr.Conflict("payment method %q already exists", name)
		}
		return nil, fmt.Errorf("payment: failed to update payment method: %w", err)
	}
	return m, nil
}

func (s *service) DeleteMethod(ctx context.Context, methodID uuid.UUID) error {
	if err := s.repo.DeleteMethod(ctx, methodID); err != nil {
		switch {
		case errors.Is(err, ErrMethodNotFound):
			return apperr.NotFound("payment method %s not found", methodID)
		case errors.Is(err, ErrMethodInUse):
			return apperr.Conflict("payment method %s is referenced by payments and cannot be deleted", methodID)
		}
		return fmt.Errorf("payment: failed to delete payment method: %w", err)
	}
	return nil
}

func (s *service) History(ctx context.Context, filter HistoryFilter) (*HistoryPage, error) {
	page, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to fetch payment history: %w", err)
	}
	return page, nil
}

func (s *service) Detail(ctx context.Context, paymentID uuid.UUID) (*Detail, error) {
	d, err := s.repo.GetDetail(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, apperr.NotFound("payment %s not found", paymentID)
		}
		return nil, fmt.Errorf("payment: failed to load payment detail: %w", err)
	}
	return d, nil
}

func toLineInputs(lines []order.Line) []pricing.LineInput {
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
