package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrLineNotFound  = errors.New("order line not found")
	// ErrCartExists reports that the customer already has an open web cart.
	ErrCartExists = errors.New("customer already has an open cart")
)

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	CreateOrderWithLines(ctx context.Context, o *Order, lines []Line) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetUnconfirmedByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	UpdateTotal(ctx context.Context, orderID uuid.UUID, total float64) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)

	GetLine(ctx context.Context, lineID uuid.UUID) (*Line, error)
	GetLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]Line, error)
	FindLineByProduct(ctx context.Context, orderID, productID uuid.UUID) (*Line, error)
	InsertLine(ctx context.Context, line *Line) error
	UpdateLine(ctx context.Context, line *Line) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, customer_id, status, channel, total, delivery_address, table_id, placed_at, created_at, updated_at`

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order id: %w", err)
		}
		o.ID = id
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		o.ID, o.CustomerID, string(o.Status), string(o.Channel), o.Total,
		o.DeliveryAddress, o.TableID, o.PlacedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return ErrCartExists
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateOrderWithLines(ctx context.Context, o *Order, lines []Line) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback CreateOrderWithLines")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	if o.ID == uuid.Nil {
		id, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order id: %w", genErr)
			return err
		}
		o.ID = id
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, query,
		o.ID, o.CustomerID, string(o.Status), string(o.Channel), o.Total,
		o.DeliveryAddress, o.TableID, o.PlacedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		lineID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate line id: %w", genErr)
			return err
		}
		line.ID = lineID
		line.OrderID = o.ID
		line.CreatedAt = now
		line.UpdatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, line.ID, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal, line.CreatedAt, line.UpdatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to insert line for order %s: %w", o.ID, err)
		}
	}

	o.Lines = lines
	return nil
}

func scanOrder(row pgx.Row, o *Order) error {
	var status, channel string
	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &channel, &o.Total,
		&o.DeliveryAddress, &o.TableID, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	o.Status = Status(status)
	o.Channel = Channel(channel)
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := scanOrder(r.db.QueryRow(ctx, query, orderID), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", orderID, err)
	}
	return &o, nil
}

func (r *postgresRepository) GetUnconfirmedByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 AND status = $2 AND channel = $3`

	var o Order
	err := scanOrder(r.db.QueryRow(ctx, query, customerID, string(StatusUnconfirmed), string(ChannelWeb)), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart for customer %s: %w", customerID, err)
	}
	return &o, nil
}

func (r *postgresRepository) UpdateOrder(ctx context.Context, o *Order) error {
	o.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE orders
		SET status = $1, total = $2, delivery_address = $3, placed_at = $4, table_id = $5, updated_at = $6
		WHERE id = $7
	`
	cmdTag, err := r.db.Exec(ctx, query,
		string(o.Status), o.Total, o.DeliveryAddress, o.PlacedAt, o.TableID, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateTotal(ctx context.Context, orderID uuid.UUID, total float64) error {
	query := `UPDATE orders SET total = $1, updated_at = $2 WHERE id = $3`

	cmdTag, err := r.db.Exec(ctx, query, total, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update order total %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`

	cmdTag, err := r.db.Exec(ctx, query, string(status), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.queryOrdersWithLines(ctx, query, customerID)
}

func (r *postgresRepository) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	return r.queryOrdersWithLines(ctx, query, string(status))
}

func (r *postgresRepository) ListAll(ctx context.Context) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	return r.queryOrdersWithLines(ctx, query)
}

func (r *postgresRepository) queryOrdersWithLines(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Lines = make([]Line, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	lineRows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_lines
		WHERE order_id = ANY($1)
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line Line
		err := lineRows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
			&line.UnitPrice, &line.Subtotal, &line.CreatedAt, &line.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line: %w", err)
		}
		if o, ok := ordersMap[line.OrderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	if err = lineRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines: %w", err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}

func (r *postgresRepository) GetLine(ctx context.Context, lineID uuid.UUID) (*Line, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_lines
		WHERE id = $1
	`
	var line Line
	err := r.db.QueryRow(ctx, query, lineID).Scan(
		&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
		&line.UnitPrice, &line.Subtotal, &line.CreatedAt, &line.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("repository: failed to select line %s: %w", lineID, err)
	}
	return &line, nil
}

func (r *postgresRepository) GetLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var line Line
		err := rows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
			&line.UnitPrice, &line.Subtotal, &line.CreatedAt, &line.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan line for order %s: %w", orderID, err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating lines for order %s: %w", orderID, err)
	}
	return lines, nil
}

func (r *postgresRepository) FindLineByProduct(ctx context.Context, orderID, productID uuid.UUID) (*Line, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_lines
		WHERE order_id = $1 AND product_id = $2
	`
	var line Line
	err := r.db.QueryRow(ctx, query, orderID, productID).Scan(
		&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
		&line.UnitPrice, &line.Subtotal, &line.CreatedAt, &line.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("repository: failed to select line for product %s on order %s: %w", productID, orderID, err)
	}
	return &line, nil
}

func (r *postgresRepository) InsertLine(ctx context.Context, line *Line) error {
	if line.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate line id: %w", err)
		}
		line.ID = id
	}

	now := time.Now().UTC()
	line.CreatedAt = now
	line.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, subtotal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, line.ID, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert line for order %s: %w", line.OrderID, err)
	}
	return nil
}

func (r *postgresRepository) UpdateLine(ctx context.Context, line *Line) error {
	line.UpdatedAt = time.Now().UTC()

	cmdTag, err := r.db.Exec(ctx, `
		UPDATE order_lines
		SET quantity = $1, unit_price = $2, subtotal = $3, updated_at = $4
		WHERE id = $5
	`, line.Quantity, line.UnitPrice, line.Subtotal, line.UpdatedAt, line.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update line %s: %w", line.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM order_lines WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete line %s: %w", lineID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
