package models

import (
	"gofalre.io/inventory/models/enum"
	"time"
)

// InventoryEvent is the wire form of every event kind published by the
// engine. Fields not meaningful for a kind are left zero and omitted.
type InventoryEvent struct {
	Type         enum.EventType `json:"type"`
	ProductID    string         `json:"product_id,omitempty"`
	OrderID      string         `json:"order_id,omitempty"`
	Quantity     int64          `json:"quantity,omitempty"`
	NewLevel     int64          `json:"new_level,omitempty"`
	CurrentStock int64          `json:"current_stock,omitempty"`
	ReorderLevel int64          `json:"reorder_level,omitempty"`
	Severity     enum.Severity  `json:"severity,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}
