package enum

// UpdateReason classifies a quantity delta for the change log.
type UpdateReason string

const (
	UpdateReasonSale       UpdateReason = "sale"
	UpdateReasonReturn     UpdateReason = "return"
	UpdateReasonRestock    UpdateReason = "restock"
	UpdateReasonAdjustment UpdateReason = "adjustment"
	UpdateReasonDamage     UpdateReason = "damage"
)

func (r UpdateReason) Valid() bool {
	switch r {
	case UpdateReasonSale, UpdateReasonReturn, UpdateReasonRestock,
		UpdateReasonAdjustment, UpdateReasonDamage:
		return true
	}
	return false
}
