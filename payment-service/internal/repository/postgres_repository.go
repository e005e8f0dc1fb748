package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation    = "23505"
	pqInvalidTextFormat  = "22P02"
	defaultOutboxBatch   = 100
	orderColumns         = `id, receipt_number, user_id, items, subtotal, shipping_amount, tax_amount, total_amount, currency,
	          shipping_address, payment_method, payment_status, status, gateway_order_id, gateway_payment_id,
	          gateway_signature, payer_handle, created_at, updated_at`
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cred *Credentials) (*PostgresStore, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresStore{db: db}, nil
}

func (r *PostgresStore) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "payment_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresStore) Create(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.ReceiptNumber,
		order.UserID,
		string(itemsJSON),
		order.Subtotal,
		order.ShippingAmount,
		order.TaxAmount,
		order.TotalAmount,
		order.Currency,
		string(addressJSON),
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
		order.GatewayOrderID,
		order.GatewayPaymentID,
		order.GatewaySignature,
		order.PayerHandle,
		order.CreatedAt,
		order.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *PostgresStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *PostgresStore) ConditionalUpdate(ctx context.Context, id string, expected domain.PaymentStatus, patch domain.OrderPatch) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE orders SET
	              payment_status     = COALESCE($3::text, payment_status),
	              status             = COALESCE($4::text, status),
	              gateway_order_id   = COALESCE($5::text, gateway_order_id),
	              gateway_payment_id = COALESCE($6::text, gateway_payment_id),
	              gateway_signature  = COALESCE($7::text, gateway_signature),
	              updated_at         = NOW()
	          WHERE id = $1 AND payment_status = $2 AND (NOT $8::bool OR gateway_order_id = '')
	          RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, query,
		id,
		expected,
		nullableStatus(patch.PaymentStatus),
		nullableOrderStatus(patch.Status),
		patch.GatewayOrderID,
		patch.GatewayPaymentID,
		patch.GatewaySignature,
		patch.UnreferencedOnly))

	if isInvalidID(err) {
		return nil, ErrOrderNotFound
	}
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if e2 := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); e2 != nil {
			return nil, fmt.Errorf("check order existence: %w", e2)
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrConditionFailed
	}
	if err != nil {
		return nil, fmt.Errorf("conditional update order: %w", err)
	}

	if patch.Event != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_outbox (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
			patch.Event.ID,
			patch.Event.AggregateID,
			patch.Event.EventType,
			string(patch.Event.Payload),
			patch.Event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

func (r *PostgresStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE payment_status = 'pending' AND gateway_order_id = '' AND created_at < $1
	          ORDER BY created_at ASC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *PostgresStore) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.PaymentEvent, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM payment_outbox WHERE published_at IS NULL
	          ORDER BY created_at ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*domain.PaymentEvent
	for rows.Next() {
		var ev domain.PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresStore) MarkEventAsPublished(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payment_outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		if isInvalidID(err) {
			return ErrEventNotFound
		}
		return fmt.Errorf("mark event as published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PostgresStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, addressJSON []byte
	err := row.Scan(
		&order.ID,
		&order.ReceiptNumber,
		&order.UserID,
		&itemsJSON,
		&order.Subtotal,
		&order.ShippingAmount,
		&order.TaxAmount,
		&order.TotalAmount,
		&order.Currency,
		&addressJSON,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Status,
		&order.GatewayOrderID,
		&order.GatewayPaymentID,
		&order.GatewaySignature,
		&order.PayerHandle,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &order, nil
}

func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextFormat
}

func nullableStatus(s *domain.PaymentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func nullableOrderStatus(s *domain.OrderStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
