package models

import (
	"gofalre.io/inventory/models/enum"
	"time"
)

// InventoryUpdate is a pending quantity delta while queued, and an immutable
// change-log row once applied. NewQuantity is filled in at application time
// so the log can be replayed against the initial quantity for auditing.
type InventoryUpdate struct {
	ID             uint64            `json:"id"`
	ProductID      string            `json:"product_id"`
	QuantityChange int64             `json:"quantity_change"`
	Reason         enum.UpdateReason `json:"reason"`
	NewQuantity    int64             `json:"new_quantity"`
	UserID         string            `json:"user_id,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
