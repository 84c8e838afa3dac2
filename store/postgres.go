package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	model "github.com/jeffsasaki/store-admin/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const TopicOrderPaid = "order.paid"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEventAlreadyApplied = errors.New("webhook event already applied")
	ErrOrderAlreadyPaid    = fmt.Errorf("order already paid: %w", ErrEventAlreadyApplied)
)

type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Open connects through lib/pq and pings once.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Postgres) StoreExists(ctx context.Context, storeID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID).Scan(&exists)
	return exists, err
}

func (s *Postgres) FindProducts(ctx context.Context, storeID string, ids []string) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, price, is_archived
		FROM products
		WHERE store_id = $1 AND id = ANY($2)`,
		storeID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.IsArchived); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateOrder inserts one unpaid order and one order item per product id
// in a single transaction. Repeated ids yield repeated items.
func (s *Postgres) CreateOrder(ctx context.Context, storeID string, productIDs []string) (*model.Order, error) {
	order := &model.Order{
		ID:        uuid.NewString(),
		StoreID:   storeID,
		CreatedAt: s.now().UTC(),
	}
	order.UpdatedAt = order.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, store_id, is_paid, address, phone, created_at, updated_at)
		VALUES ($1, $2, false, '', '', $3, $3)`,
		order.ID, order.StoreID, order.CreatedAt)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, productID := range productIDs {
		item := model.OrderItem{ID: uuid.NewString(), OrderID: order.ID, ProductID: productID}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id) VALUES ($1, $2, $3)`,
			item.ID, item.OrderID, item.ProductID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrder removes an unpaid order and its items. It is the compensating
// action for a checkout whose gateway session could not be created.
func (s *Postgres) DeleteOrder(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1 AND is_paid = false`, orderID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type PaidOrder struct {
	EventID   string
	EventType string
	OrderID   string
	Address   string
	Phone     string
}

// MarkOrderPaid applies a completed checkout in one transaction: it records
// the event id, flips the order to paid, archives every product the order
// references and enqueues an order.paid outbox event.
//
// It returns ErrEventAlreadyApplied when the event id was seen before,
// ErrOrderAlreadyPaid (which matches ErrEventAlreadyApplied) when another
// event already paid the order, and ErrOrderNotFound when no order matches.
// Nothing is written in any of these cases.
func (s *Postgres) MarkOrderPaid(ctx context.Context, paid PaidOrder) (*model.OrderPaidEvent, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_events (id, type, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		paid.EventID, paid.EventType, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		tx.Rollback()
		return nil, err
	} else if n == 0 {
		tx.Rollback()
		return nil, ErrEventAlreadyApplied
	}

	var storeID string
	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET is_paid = true, address = $2, phone = $3, updated_at = $4
		WHERE id = $1 AND is_paid = false
		RETURNING store_id`,
		paid.OrderID, paid.Address, paid.Phone, now).Scan(&storeID)
	if err == sql.ErrNoRows {
		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, paid.OrderID).Scan(&exists)
		tx.Rollback()
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrOrderAlreadyPaid
		}
		return nil, ErrOrderNotFound
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT product_id FROM order_items WHERE order_id = $1`, paid.OrderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	var productIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			tx.Rollback()
			return nil, err
		}
		productIDs = append(productIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return nil, err
	}

	if len(productIDs) > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET is_archived = true, updated_at = $2 WHERE id = ANY($1)`,
			pq.Array(productIDs), now)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	event := &model.OrderPaidEvent{
		OrderID:    paid.OrderID,
		StoreID:    storeID,
		ProductIDs: productIDs,
		Address:    paid.Address,
		Phone:      paid.Phone,
		PaidAt:     now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, topic, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), paid.OrderID, TopicOrderPaid, payload, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return event, nil
}

// ListProducts returns the storefront listing: non-archived products of a
// store, newest first.
func (s *Postgres) ListProducts(ctx context.Context, storeID string, filter model.ProductFilter) ([]model.Product, error) {
	where := []string{"store_id = $1", "is_archived = false"}
	args := []any{storeID}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	add("category_id", filter.CategoryID)
	add("size_id", filter.SizeID)
	add("color_id", filter.ColorID)
	if filter.IsFeatured {
		where = append(where, "is_featured = true")
	}

	query := fmt.Sprintf(`
		SELECT id, store_id, category_id, size_id, color_id, name, price, is_featured, is_archived, created_at, updated_at
		FROM products
		WHERE %s
		ORDER BY created_at DESC`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.CategoryID, &p.SizeID, &p.ColorID, &p.Name, &p.Price,
			&p.IsFeatured, &p.IsArchived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListOrders returns the admin order listing, newest first, with one
// product name per order item.
func (s *Postgres) ListOrders(ctx context.Context, storeID string) ([]model.OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.phone, o.address, o.is_paid, o.created_at, p.name, p.price
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE o.store_id = $1
		ORDER BY o.created_at DESC, o.id`,
		storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []model.OrderSummary{}
	index := map[string]int{}
	for rows.Next() {
		var (
			o     model.OrderSummary
			name  string
			price decimal.Decimal
		)
		if err := rows.Scan(&o.ID, &o.Phone, &o.Address, &o.IsPaid, &o.CreatedAt, &name, &price); err != nil {
			return nil, err
		}

		i, ok := index[o.ID]
		if !ok {
			o.TotalPrice = decimal.Zero
			orders = append(orders, o)
			i = len(orders) - 1
			index[o.ID] = i
		}
		orders[i].Products = append(orders[i].Products, name)
		orders[i].TotalPrice = orders[i].TotalPrice.Add(price)
	}
	return orders, rows.Err()
}

// PaidSaleLines returns one line per item of every paid order of a store.
func (s *Postgres) PaidSaleLines(ctx context.Context, storeID string) ([]model.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.created_at, p.price
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE o.store_id = $1 AND o.is_paid = true`,
		storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []model.SaleLine
	for rows.Next() {
		var l model.SaleLine
		if err := rows.Scan(&l.OrderedAt, &l.Price); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Postgres) CountPaidOrders(ctx context.Context, storeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE store_id = $1 AND is_paid = true`, storeID).Scan(&n)
	return n, err
}

func (s *Postgres) CountActiveProducts(ctx context.Context, storeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE store_id = $1 AND is_archived = false`, storeID).Scan(&n)
	return n, err
}

func (s *Postgres) PendingOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, topic, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Topic, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Postgres) MarkOutboxPublished(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $2 WHERE id = $1`, id, s.now().UTC())
	return err
}
