package models

import "time"

// InventoryRecord tracks the durable stock state of a single product.
// Reserved must never exceed Quantity; the reservation path is the only
// writer allowed to grow Reserved and it re-checks availability inside its
// own atomic step.
type InventoryRecord struct {
	ProductID    string    `json:"product_id"`
	SKU          string    `json:"sku"`
	Quantity     int64     `json:"quantity"`
	Reserved     int64     `json:"reserved"`
	ReorderLevel int64     `json:"reorder_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available is the sellable amount right now.
func (r *InventoryRecord) Available() int64 {
	return r.Quantity - r.Reserved
}

func (r *InventoryRecord) IsLowStock() bool {
	return r.Available() <= r.ReorderLevel
}
