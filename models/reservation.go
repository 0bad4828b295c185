package models

import "time"

// Reservation is a time-bounded hold on stock tied to an in-progress order.
// The row's existence is the guard against double release: whichever path
// deletes it first (caller release, order confirm, expiry sweep) owns the
// reserved units.
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	Quantity  int64     `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
