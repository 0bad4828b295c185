package models

import (
	"github.com/stripe/stripe-go/v79"
	"time"
)

// Product is the read-only catalog view consumed for labeling. The engine
// never mutates the catalog.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     float64         `json:"price"`
	Currency  stripe.Currency `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}
