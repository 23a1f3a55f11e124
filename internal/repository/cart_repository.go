package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/storefront/internal/model"
)

// CartRepo provides data access to the cart_items table.  Every write is
// scoped by user_id so one user can never touch another user's rows; a
// write that matches nothing in scope reports ErrNotFound.
type CartRepo struct {
	db *sql.DB
}

// NewCartRepo returns a new CartRepo bound to the provided database.
func NewCartRepo(db *sql.DB) *CartRepo { return &CartRepo{db: db} }

// ListByUser returns the user's line items newest first, each with a
// product snapshot including category, brand and images.
func (r *CartRepo) ListByUser(ctx context.Context, userID string) ([]model.CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at, `+productColumns+`
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id`+productJoins+`
		 WHERE ci.user_id = ?
		 ORDER BY ci.created_at DESC, ci.id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []model.CartItem{}
	for rows.Next() {
		var (
			it model.CartItem
			pr productRow
		)
		dest := append([]any{&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt}, pr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		it.Product = pr.product()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*model.Product, len(items))
	for i := range items {
		ptrs[i] = &items[i].Product
	}
	if err := attachImages(ctx, r.db, ptrs); err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert adds quantity to the (user, product) row, inserting it when absent.
// The unique key uq_cart_user_product guarantees a single row per pair.
// ErrNotFound is returned when the product does not exist.
func (r *CartRepo) Upsert(ctx context.Context, userID, productID string, quantity int) error {
	return affectedOrNotFound(r.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, user_id, product_id, quantity)
		 SELECT ?, ?, p.id, ? FROM products p WHERE p.id = ?
		 ON DUPLICATE KEY UPDATE quantity = cart_items.quantity + ?`,
		newID(), userID, quantity, productID, quantity))
}

// UpdateQuantity sets the quantity of one of the user's rows.
func (r *CartRepo) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	return affectedOrNotFound(r.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = ? WHERE id = ? AND user_id = ?",
		quantity, itemID, userID))
}

// Delete removes one of the user's rows.
func (r *CartRepo) Delete(ctx context.Context, userID, itemID string) error {
	return affectedOrNotFound(r.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = ? AND user_id = ?", itemID, userID))
}

// DeleteAllForUser empties the user's cart.  An already empty cart is not an error.
func (r *CartRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", userID)
	return err
}
