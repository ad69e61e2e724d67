package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casaluna/order-service/internal/order"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrMethodNotFound  = errors.New("payment method not found")
	ErrMethodNameTaken = errors.New("payment method name already exists")
	ErrMethodInUse     = errors.New("payment method is referenced by payments")
)

type Repository interface {
	ExistsByOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, paymentID uuid.UUID) (*Payment, error)
	GetDetail(ctx context.Context, paymentID uuid.UUID) (*Detail, error)
	History(ctx context.Context, filter HistoryFilter) (*HistoryPage, error)

	CreateMethod(ctx context.Context, m *Method) error
	GetMethod(ctx context.Context, methodID uuid.UUID) (*Method, error)
	ListMethods(ctx context.Context) ([]Method, error)
	UpdateMethod(ctx context.Context, m *Method) error
	DeleteMethod(ctx context.Context, methodID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) ExistsByOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check payments for order %s: %w", orderID, err)
	}
	return exists, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, payment_method_id, amount, receipt_url, paid_at, created_at
		FROM payments
		WHERE id = $1
	`, paymentID).Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &p.ReceiptURL, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment %s: %w", paymentID, err)
	}
	return &p, nil
}

const detailColumns = `
	p.id, p.order_id, p.payment_method_id, p.amount, p.receipt_url, p.paid_at, p.created_at,
	m.name, o.customer_id, o.status, o.total`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	var status string
	err := row.Scan(
		&d.Payment.ID, &d.Payment.OrderID, &d.Payment.PaymentMethodID, &d.Payment.Amount,
		&d.Payment.ReceiptURL, &d.Payment.PaidAt, &d.Payment.CreatedAt,
		&d.MethodName, &d.CustomerID, &status, &d.OrderTotal,
	)
	if err != nil {
		return nil, err
	}
	d.OrderStatus = order.Status(status)
	return &d, nil
}

func (r *postgresRepository) GetDetail(ctx context.Context, paymentID uuid.UUID) (*Detail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM payments p
		JOIN payment_methods m ON m.id = p.payment_method_id
		JOIN orders o ON o.id = p.order_id
		WHERE p.id = $1
	`
	d, err := scanDetail(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment detail %s: %w", paymentID, err)
	}
	return d, nil
}

func (r *postgresRepository) History(ctx context.Context, filter HistoryFilter) (*HistoryPage, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)

	appendCond := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.From != nil {
		appendCond("p.paid_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		appendCond("p.paid_at <= $%d", *filter.To)
	}
	if filter.MethodID != nil {
		appendCond("p.payment_method_id = $%d", *filter.MethodID)
	}
	if filter.OrderStatus != nil {
		appendCond("o.status = $%d", string(*filter.OrderStatus))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	fromClause := `
		FROM payments p
		JOIN payment_methods m ON m.id = p.payment_method_id
		JOIN orders o ON o.id = p.order_id
	` + whereClause

	var total int
	countQuery := `SELECT COUNT(*) ` + fromClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("repository: failed to count payment history: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	args = append(args, limit, (page-1)*limit)
	listQuery := fmt.Sprintf(`SELECT %s %s ORDER BY p.paid_at DESC LIMIT $%d OFFSET $%d`,
		detailColumns, fromClause, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payment history: %w", err)
	}
	defer rows.Close()

	items := make([]Detail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment history row: %w", err)
		}
		items = append(items, *d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating payment history: %w", err)
	}

	totalPages := (total + limit - 1) / limit
	return &HistoryPage{Items: items, Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

func (r *postgresRepository) CreateMethod(ctx context.Context, m *Method) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate method id: %w", err)
		}
		m.ID = id
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_methods (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.Name, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return ErrMethodNameTaken
		}
		return fmt.Errorf("repository: failed to insert payment method: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetMethod(ctx context.Context, methodID uuid.UUID) (*Method, error) {
	var m Method
	err := r.db.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM payment_methods WHERE id = $1
	`, methodID).Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment method %s: %w", methodID, err)
	}
	return &m, nil
}

func (r *postgresRepository) ListMethods(ctx context.Context) ([]Method, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at, updated_at FROM payment_methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payment methods: %w", err)
	}
	defer rows.Close()

	methods := make([]Method, 0)
	for rows.Next() {
		var m Method
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating payment methods: %w", err)
	}
	return methods, nil
}

func (r *postgresRepository) UpdateMethod(ctx context.Context, m *Method) error {
	m.UpdatedAt = time.Now().UTC()

	cmdTag, err := r.db.Exec(ctx, `
		UPDATE payment_methods SET name = $1, updated_at = $2 WHERE id = $3
	`, m.Name, m.UpdatedAt, m.ID)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return ErrMethodNameTaken
		}
		return fmt.Errorf("repository: failed to update payment method %s: %w", m.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMethodNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteMethod(ctx context.Context, methodID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM payment_methods WHERE id = $1`, methodID)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrMethodInUse
		}
		return fmt.Errorf("repository: failed to delete payment method %s: %w", methodID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMethodNotFound
	}
	return nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
