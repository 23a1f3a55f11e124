package model

import "time"

// CartItem is one (user, product) line of a cart together with a snapshot
// of the product as it was when the list was loaded.
type CartItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Product   Product   `json:"product"`
}

// Subtotal is quantity × current snapshot price.
func (c CartItem) Subtotal() float64 { return float64(c.Quantity) * c.Product.Price }
