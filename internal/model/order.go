package model

import (
	"encoding/json"
	"time"
)

// Order statuses.  Only pending is produced by checkout; the others are set
// from the admin console.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Order is a row of `orders` with its line items.  Addresses are stored as
// opaque JSON documents.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	Total           float64         `json:"total"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	BillingAddress  json.RawMessage `json:"billing_address"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"items"`
}

// OrderItem freezes the price a product was sold at.
type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Product   Product `json:"product"`
}

// OrderInput is what checkout hands to the order repository.
type OrderInput struct {
	UserID          string
	Total           float64
	ShippingAddress json.RawMessage
	BillingAddress  json.RawMessage
	Items           []OrderItemInput
}

// OrderItemInput is one line of OrderInput.
type OrderItemInput struct {
	ProductID string
	Quantity  int
	Price     float64
}

// DashboardStats feeds the admin dashboard.
type DashboardStats struct {
	TotalOrders      int     `json:"total_orders"`
	TotalCustomers   int     `json:"total_customers"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalProducts    int     `json:"total_products"`
	LowStockProducts int     `json:"low_stock_products"`
	RecentOrders     []Order `json:"recent_orders"`
}

// LowStockThreshold marks products whose stock is below it as low.
const LowStockThreshold = 10
