package models

import "time"

type Order struct {
	ID           int64       `json:"id"`
	RestaurantID int64       `json:"restaurant_id"`
	Table        *string     `json:"table,omitempty"`
	Items        []OrderItem `json:"items"`
	Total        float64     `json:"total"`
	CreatedAt    time.Time   `json:"created_at"`
	PrintedAt    *time.Time  `json:"printed_at,omitempty"`
}

// OrderItem carries whatever the submitting client sent. The store keeps the
// list as an opaque JSON payload and never re-derives the order total from it.
type OrderItem struct {
	Qty   int     `json:"qty"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// OrderView is the shape handed to a polling printer agent. CreatedAt is
// pre-rendered as an RFC 3339 UTC string so every consumer sees the Z marker.
type OrderView struct {
	ID        int64       `json:"id"`
	Table     *string     `json:"table"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt string      `json:"created_at"`
}
