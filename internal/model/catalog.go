package model

import "time"

// Category is a row of `categories`.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Brand is a row of `brands`.
type Brand struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductImage is a row of `product_images`; Position orders a product's gallery.
type ProductImage struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	Position  int    `json:"position"`
}

// Product is a catalog entry with its nested category, brand and images.
// Reviews are only populated by detail lookups.
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description,omitempty"`
	Price          float64        `json:"price"`
	CompareAtPrice *float64       `json:"compare_at_price,omitempty"`
	CategoryID     string         `json:"category_id,omitempty"`
	BrandID        string         `json:"brand_id,omitempty"`
	Stock          int            `json:"stock"`
	Featured       bool           `json:"featured"`
	Rating         *float64       `json:"rating,omitempty"`
	ReviewCount    int            `json:"review_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Category       *Category      `json:"category"`
	Brand          *Brand         `json:"brand"`
	Images         []ProductImage `json:"images"`
	Reviews        []Review       `json:"reviews,omitempty"`
}

// ImageInput describes one gallery image in create/update requests.
type ImageInput struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ProductInput carries the fields of a new product.
type ProductInput struct {
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Description    string       `json:"description,omitempty"`
	Price          float64      `json:"price"`
	CompareAtPrice *float64     `json:"compare_at_price,omitempty"`
	CategoryID     string       `json:"category_id,omitempty"`
	BrandID        string       `json:"brand_id,omitempty"`
	Stock          int          `json:"stock"`
	Featured       bool         `json:"featured"`
	Images         []ImageInput `json:"images"`
}

// ProductPatch carries a partial product update.  A non-nil Images slice
// replaces the whole gallery.
type ProductPatch struct {
	Name           *string       `json:"name,omitempty"`
	Slug           *string       `json:"slug,omitempty"`
	Description    *string       `json:"description,omitempty"`
	Price          *float64      `json:"price,omitempty"`
	CompareAtPrice *float64      `json:"compare_at_price,omitempty"`
	CategoryID     *string       `json:"category_id,omitempty"`
	BrandID        *string       `json:"brand_id,omitempty"`
	Stock          *int          `json:"stock,omitempty"`
	Featured       *bool         `json:"featured,omitempty"`
	Images         *[]ImageInput `json:"images,omitempty"`
}

// ProductFilter narrows catalog listings.  Category and Brand are slugs.
type ProductFilter struct {
	Category string
	Brand    string
	Featured *bool
	Search   string
	Limit    int
	Offset   int
}

// DefaultProductLimit is the page size used when a filter sets none.
const DefaultProductLimit = 12
