package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/storefront/internal/model"
)

// OrderRepo manages orders and their line items.
type OrderRepo struct{ db *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = "o.id, o.user_id, o.status, o.total, o.shipping_address, o.billing_address, o.created_at, o.updated_at"

// ListByUser returns the user's orders newest first with items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders o WHERE o.user_id = ? ORDER BY o.created_at DESC", userID)
}

// ListAll returns a page of all orders newest first, for the admin console.
func (r *OrderRepo) ListAll(ctx context.Context, limit, offset int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders o ORDER BY o.created_at DESC LIMIT ? OFFSET ?", limit, offset)
}

// Get returns one order.  When userID is non-empty the order must belong
// to that user; otherwise ErrNotFound is returned so ownership does not leak.
func (r *OrderRepo) Get(ctx context.Context, id, userID string) (model.Order, error) {
	q := "SELECT " + orderColumns + " FROM orders o WHERE o.id = ?"
	args := []any{id}
	if userID != "" {
		q += " AND o.user_id = ?"
		args = append(args, userID)
	}
	orders, err := r.list(ctx, q, args...)
	if err != nil {
		return model.Order{}, err
	}
	if len(orders) == 0 {
		return model.Order{}, ErrNotFound
	}
	return orders[0], nil
}

// Create inserts a pending order with its items in one transaction.
func (r *OrderRepo) Create(ctx context.Context, in model.OrderInput) (model.Order, error) {
	id := newID()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO orders (id, user_id, status, total, shipping_address, billing_address) VALUES (?,?,?,?,?,?)",
		id, in.UserID, model.OrderPending, in.Total, jsonOrEmpty(in.ShippingAddress), jsonOrEmpty(in.BillingAddress)); err != nil {
		return model.Order{}, err
	}
	if len(in.Items) > 0 {
		q := "INSERT INTO order_items (id, order_id, product_id, quantity, price) VALUES "
		args := make([]any, 0, len(in.Items)*5)
		for i, it := range in.Items {
			if i > 0 {
				q += ","
			}
			q += "(?, ?, ?, ?, ?)"
			args = append(args, newID(), id, it.ProductID, it.Quantity, it.Price)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return model.Order{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	committed = true
	return r.Get(ctx, id, "")
}

// UpdateStatus sets an order's status.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return affectedOrNotFound(r.db.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", status, id))
}

// Totals returns the order count and revenue over non-cancelled orders.
func (r *OrderRepo) Totals(ctx context.Context) (count int, revenue float64, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN status <> ? THEN total ELSE 0 END), 0) FROM orders",
		model.OrderCancelled).Scan(&count, &revenue)
	return count, revenue, err
}

func (r *OrderRepo) list(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []model.Order{}
	for rows.Next() {
		var (
			o                 model.Order
			shipping, billing []byte
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &shipping, &billing, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.ShippingAddress = json.RawMessage(shipping)
		o.BillingAddress = json.RawMessage(billing)
		o.Items = []model.OrderItem{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepo) attachItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, `+productColumns+`
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id`+productJoins+`
		 WHERE oi.order_id IN (`+placeholders(len(ids))+`)
		 ORDER BY oi.created_at`,
		stringArgs(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it model.OrderItem
			pr productRow
		)
		dest := append([]any{&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price}, pr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		it.Product = pr.product()
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	var ptrs []*model.Product
	for i := range orders {
		for j := range orders[i].Items {
			ptrs = append(ptrs, &orders[i].Items[j].Product)
		}
	}
	return attachImages(ctx, r.db, ptrs)
}

func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("{}")
	}
	return raw
}
