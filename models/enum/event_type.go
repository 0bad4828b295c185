package enum

// EventType names the event kinds published on the event channel.
type EventType string

const (
	EventTypeInventoryUpdated   EventType = "inventory-updated"
	EventTypeInventoryReserved  EventType = "inventory-reserved"
	EventTypeInventoryReleased  EventType = "inventory-released"
	EventTypeInventoryConfirmed EventType = "inventory-confirmed"
	EventTypeLowStockWarning    EventType = "low-stock-warning"
)
