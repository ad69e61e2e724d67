package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/order"
)

// TxStore is the view of the database a payment registration sees: every
// write goes through the same transaction and becomes visible only on commit.
type TxStore interface {
	// GetOrderForUpdate locks the order row so concurrent registrations for
	// the same order serialize; the loser sees the committed status.
	GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	GetMethod(ctx context.Context, methodID uuid.UUID) (*Method, error)
	GetLines(ctx context.Context, orderID uuid.UUID) ([]order.Line, error)
	UpdateLinePricing(ctx context.Context, lineID uuid.UUID, unitPrice, subtotal float64) error
	CreatePayment(ctx context.Context, p *Payment) error
	MarkOrderPending(ctx context.Context, orderID uuid.UUID, total float64, deliveryAddress string, placedAt time.Time) error
	SetReceiptURL(ctx context.Context, paymentID uuid.UUID, url string) error
}

// Store runs a function inside a single database transaction. Returning an
// error from fn rolls back every write.
type Store interface {
	RunPaymentTx(ctx context.Context, fn func(tx TxStore) error) error
}

type pgxStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) Store {
	return &pgxStore{db: db}
}

func (s *pgxStore) RunPaymentTx(ctx context.Context, fn func(tx TxStore) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("store: failed to rollback payment transaction after panic")
			}
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("store: failed to rollback payment transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("store: failed to commit payment transaction: %w", commitErr)
		}
	}()

	err = fn(&pgxTxStore{tx: tx})
	return err
}

type pgxTxStore struct {
	tx pgx.Tx
}

func (s *pgxTxStore) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	query := `
		SELECT id, customer_id, status, channel, total, delivery_address, table_id, placed_at, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`
	var o order.Order
	var status, channel string
	err := s.tx.QueryRow(ctx, query, orderID).Scan(
		&o.ID, &o.CustomerID, &status, &channel, &o.Total,
		&o.DeliveryAddress, &o.TableID, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("store: failed to lock order %s: %w", orderID, err)
	}
	o.Status = order.Status(status)
	o.Channel = order.Channel(channel)
	return &o, nil
}

func (s *pgxTxStore) GetMethod(ctx context.Context, methodID uuid.UUID) (*Method, error) {
	var m Method
	err := s.tx.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM payment_methods WHERE id = $1
	`, methodID).Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("store: failed to select payment method %s: %w", methodID, err)
	}
	return &m, nil
}

func (s *pgxTxStore) GetLines(ctx context.Context, orderID uuid.UUID) ([]order.Line, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	lines := make([]order.Line, 0)
	for rows.Next() {
		var line order.Line
		err := rows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
			&line.UnitPrice, &line.Subtotal, &line.CreatedAt, &line.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: failed to scan line for order %s: %w", orderID, err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating lines for order %s: %w", orderID, err)
	}
	return lines, nil
}

func (s *pgxTxStore) UpdateLinePricing(ctx context.Context, lineID uuid.UUID, unitPrice, subtotal float64) error {
	cmdTag, err := s.tx.Exec(ctx, `
		UPDATE order_lines SET unit_price = $1, subtotal = $2, updated_at = $3 WHERE id = $4
	`, unitPrice, subtotal, time.Now().UTC(), lineID)
	if err != nil {
		return fmt.Errorf("store: failed to update line pricing %s: %w", lineID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return order.ErrLineNotFound
	}
	return nil
}

func (s *pgxTxStore) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("store: failed to generate payment id: %w", err)
		}
		p.ID = id
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, payment_method_id, amount, receipt_url, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.OrderID, p.PaymentMethodID, p.Amount, p.ReceiptURL, p.PaidAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: failed to insert payment for order %s: %w", p.OrderID, err)
	}
	return nil
}

func (s *pgxTxStore) MarkOrderPending(ctx context.Context, orderID uuid.UUID, total float64, deliveryAddress string, placedAt time.Time) error {
	cmdTag, err := s.tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, total = $2, delivery_address = $3, placed_at = $4, updated_at = $5
		WHERE id = $6
	`, string(order.StatusPending), total, deliveryAddress, placedAt, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("store: failed to mark order %s pending: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (s *pgxTxStore) SetReceiptURL(ctx context.Context, paymentID uuid.UUID, url string) error {
	cmdTag, err := s.tx.Exec(ctx, `UPDATE payments SET receipt_url = $1 WHERE id = $2`, url, paymentID)
	if err != nil {
		return fmt.Errorf("store: failed to set receipt url on payment %s: %w", paymentID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
