package model

import "time"

// Review is a row of `reviews`; User is filled for product detail pages.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      *Profile  `json:"user,omitempty"`
}

// ValidRating reports whether r is within 1..5.
func ValidRating(r int) bool { return r >= 1 && r <= 5 }
