package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/storefront/internal/model"
)

// CatalogRepo reads the category and brand taxonomies.
type CatalogRepo struct{ db *sql.DB }

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListCategories returns all categories ordered by name.
func (r *CatalogRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, slug, description, image_url, created_at FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Category{}
	for rows.Next() {
		var (
			c           model.Category
			desc, image sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &desc, &image, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Description, c.ImageURL = desc.String, image.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBrands returns all brands ordered by name.
func (r *CatalogRepo) ListBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, slug, description, logo_url, created_at FROM brands ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Brand{}
	for rows.Next() {
		var (
			b          model.Brand
			desc, logo sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &desc, &logo, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Description, b.LogoURL = desc.String, logo.String
		out = append(out, b)
	}
	return out, rows.Err()
}
