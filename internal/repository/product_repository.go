package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
)

// ProductRepo manages products and their galleries.
type ProductRepo struct{ db *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// DB exposes the underlying sql.DB for callers that span repositories in
// one transaction.
func (r *ProductRepo) DB() *sql.DB { return r.db }

// List returns products newest first, filtered by category/brand slug,
// featured flag and a case-insensitive name search.
func (r *ProductRepo) List(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "c.slug = ?")
		args = append(args, f.Category)
	}
	if f.Brand != "" {
		where = append(where, "b.slug = ?")
		args = append(args, f.Brand)
	}
	if f.Featured != nil {
		where = append(where, "p.featured = ?")
		args = append(args, *f.Featured)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "LOWER(p.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = model.DefaultProductLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + productColumns + " FROM products p" + productJoins
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY p.created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		var pr productRow
		if err := rows.Scan(pr.dest()...); err != nil {
			return nil, err
		}
		out = append(out, pr.product())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*model.Product, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := attachImages(ctx, r.db, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBySlug returns one product with images and reviews (each with the
// reviewer's profile).
func (r *ProductRepo) GetBySlug(ctx context.Context, slug string) (model.Product, error) {
	return r.getOne(ctx, "p.slug = ?", slug)
}

// GetByID returns one product with images and reviews.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (model.Product, error) {
	return r.getOne(ctx, "p.id = ?", id)
}

func (r *ProductRepo) getOne(ctx context.Context, cond string, arg any) (model.Product, error) {
	var pr productRow
	err := r.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p"+productJoins+" WHERE "+cond+" LIMIT 1", arg).
		Scan(pr.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	p := pr.product()
	if err := attachImages(ctx, r.db, []*model.Product{&p}); err != nil {
		return model.Product{}, err
	}
	reviews, err := listReviews(ctx, r.db, p.ID)
	if err != nil {
		return model.Product{}, err
	}
	p.Reviews = reviews
	return p, nil
}

// Create inserts a product and its gallery in one transaction and returns
// the stored product.
func (r *ProductRepo) Create(ctx context.Context, in model.ProductInput) (model.Product, error) {
	id := newID()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO products
			(id, name, slug, description, price, compare_at_price, category_id, brand_id, stock, featured)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			id, in.Name, in.Slug, nullString(in.Description), in.Price, nullFloatPtr(in.CompareAtPrice),
			nullString(in.CategoryID), nullString(in.BrandID), in.Stock, in.Featured)
		if err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return err
		}
		return insertImages(ctx, tx, id, in.Images)
	})
	if err != nil {
		return model.Product{}, err
	}
	return r.GetByID(ctx, id)
}

// Update applies the set fields of patch.  A non-nil Images replaces the
// gallery: existing rows are deleted and the new ones inserted in order.
func (r *ProductRepo) Update(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Slug != nil {
		add("slug", *patch.Slug)
	}
	if patch.Description != nil {
		add("description", nullString(*patch.Description))
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.CompareAtPrice != nil {
		add("compare_at_price", *patch.CompareAtPrice)
	}
	if patch.CategoryID != nil {
		add("category_id", nullString(*patch.CategoryID))
	}
	if patch.BrandID != nil {
		add("brand_id", nullString(*patch.BrandID))
	}
	if patch.Stock != nil {
		add("stock", *patch.Stock)
	}
	if patch.Featured != nil {
		add("featured", *patch.Featured)
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if len(sets) > 0 {
			err := affectedOrNotFound(tx.ExecContext(ctx,
				"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...))
			if err != nil {
				if isDuplicate(err) {
					return ErrConflict
				}
				return err
			}
		} else if err := exists(ctx, tx, "products", id); err != nil {
			return err
		}
		if patch.Images == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM product_images WHERE product_id = ?", id); err != nil {
			return err
		}
		return insertImages(ctx, tx, id, *patch.Images)
	})
	if err != nil {
		return model.Product{}, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a product with its gallery.
func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM product_images WHERE product_id = ?", id); err != nil {
			return err
		}
		return affectedOrNotFound(tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id))
	})
}

// Count returns the number of products and how many are below the low-stock threshold.
func (r *ProductRepo) Count(ctx context.Context) (total, lowStock int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(stock < ?), 0) FROM products", model.LowStockThreshold).
		Scan(&total, &lowStock)
	return total, lowStock, err
}

func (r *ProductRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertImages(ctx context.Context, tx *sql.Tx, productID string, images []model.ImageInput) error {
	if len(images) == 0 {
		return nil
	}
	q := "INSERT INTO product_images (id, product_id, url, alt, position) VALUES "
	args := make([]any, 0, len(images)*5)
	for i, img := range images {
		if i > 0 {
			q += ","
		}
		q += "(?, ?, ?, ?, ?)"
		args = append(args, newID(), productID, img.URL, nullString(img.Alt), i)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// exists returns ErrNotFound unless table has a row with the given id.
func exists(ctx context.Context, q queryer, table, id string) error {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ? LIMIT 1", table), id)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	return nil
}
