package models

// StockLevel is the read view returned by stock queries.
type StockLevel struct {
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	Reserved   int64  `json:"reserved"`
	Available  int64  `json:"available"`
	IsLowStock bool   `json:"is_low_stock"`
}

func NewStockLevel(record *InventoryRecord) *StockLevel {
	return &StockLevel{
		ProductID:  record.ProductID,
		Quantity:   record.Quantity,
		Reserved:   record.Reserved,
		Available:  record.Available(),
		IsLowStock: record.IsLowStock(),
	}
}
