// Package queue defines message payloads exchanged over the message broker
// and the background consumer that writes them to an audit log.
package queue

import "time"

// Event types published by the gateway.
const (
	EventSignedUp     = "auth.signed_up"
	EventSignedIn     = "auth.signed_in"
	EventSignedOut    = "auth.signed_out"
	EventUserUpdated  = "auth.user_updated"
	EventCartChanged  = "cart.changed"
	EventCartCleared  = "cart.cleared"
	EventOrderPlaced  = "order.placed"
	EventOrderUpdated = "order.status_updated"
)

// StorefrontEvent is published after a successful auth, cart or order write.
// It carries enough context for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type StorefrontEvent struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ProductID   string    `json:"product_id,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Total       float64   `json:"total,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
