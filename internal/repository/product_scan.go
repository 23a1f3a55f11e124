package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

// productColumns and productJoins select a product with its category and
// brand in one row.  Every query that embeds a product snapshot (catalog,
// cart, orders) reuses them so the nested shape stays identical.
const productColumns = `p.id, p.name, p.slug, p.description, p.price, p.compare_at_price,
	p.category_id, p.brand_id, p.stock, p.featured, p.rating, p.review_count, p.created_at, p.updated_at,
	c.id, c.name, c.slug, c.description, c.image_url, c.created_at,
	b.id, b.name, b.slug, b.description, b.logo_url, b.created_at`

const productJoins = ` LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN brands b ON b.id = p.brand_id`

// productRow holds the nullable scan targets for productColumns.
type productRow struct {
	p model.Product

	description, categoryID, brandID sql.NullString
	compareAt, rating                sql.NullFloat64

	catID, catName, catSlug, catDesc, catImage sql.NullString
	catCreated                                 sql.NullTime

	brID, brName, brSlug, brDesc, brLogo sql.NullString
	brCreated                            sql.NullTime
}

func (r *productRow) dest() []any {
	return []any{
		&r.p.ID, &r.p.Name, &r.p.Slug, &r.description, &r.p.Price, &r.compareAt,
		&r.categoryID, &r.brandID, &r.p.Stock, &r.p.Featured, &r.rating, &r.p.ReviewCount, &r.p.CreatedAt, &r.p.UpdatedAt,
		&r.catID, &r.catName, &r.catSlug, &r.catDesc, &r.catImage, &r.catCreated,
		&r.brID, &r.brName, &r.brSlug, &r.brDesc, &r.brLogo, &r.brCreated,
	}
}

func (r *productRow) product() model.Product {
	p := r.p
	p.Description = r.description.String
	p.CategoryID = r.categoryID.String
	p.BrandID = r.brandID.String
	p.CompareAtPrice = floatPtr(r.compareAt)
	p.Rating = floatPtr(r.rating)
	if r.catID.Valid {
		p.Category = &model.Category{
			ID: r.catID.String, Name: r.catName.String, Slug: r.catSlug.String,
			Description: r.catDesc.String, ImageURL: r.catImage.String, CreatedAt: timeOrZero(r.catCreated),
		}
	}
	if r.brID.Valid {
		p.Brand = &model.Brand{
			ID: r.brID.String, Name: r.brName.String, Slug: r.brSlug.String,
			Description: r.brDesc.String, LogoURL: r.brLogo.String, CreatedAt: timeOrZero(r.brCreated),
		}
	}
	p.Images = []model.ProductImage{}
	return p
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// loadImages returns the galleries of the given products keyed by product id,
// each ordered by position.
func loadImages(ctx context.Context, q queryer, productIDs []string) (map[string][]model.ProductImage, error) {
	out := make(map[string][]model.ProductImage, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, product_id, url, alt, position FROM product_images
		 WHERE product_id IN (`+placeholders(len(productIDs))+`)
		 ORDER BY product_id, position`,
		stringArgs(productIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			img model.ProductImage
			alt sql.NullString
		)
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &alt, &img.Position); err != nil {
			return nil, err
		}
		img.Alt = alt.String
		out[img.ProductID] = append(out[img.ProductID], img)
	}
	return out, rows.Err()
}

// attachImages fills Images on every product pointed to by ps.
func attachImages(ctx context.Context, q queryer, ps []*model.Product) error {
	ids := make([]string, 0, len(ps))
	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.ID]; !ok {
			seen[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}
	}
	images, err := loadImages(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if imgs, ok := images[p.ID]; ok {
			p.Images = imgs
		} else {
			p.Images = []model.ProductImage{}
		}
	}
	return nil
}
