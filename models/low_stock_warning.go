package models

import "gofalre.io/inventory/models/enum"

// LowStockWarning is derived from an InventoryRecord at scan time and never
// persisted. ProductName is a best-effort label from the catalog.
type LowStockWarning struct {
	ProductID    string        `json:"product_id"`
	ProductName  string        `json:"product_name,omitempty"`
	CurrentStock int64         `json:"current_stock"`
	ReorderLevel int64         `json:"reorder_level"`
	Severity     enum.Severity `json:"severity"`
}
