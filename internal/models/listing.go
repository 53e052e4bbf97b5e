package models

import (
	"time"
)

// Listing statuses (catalog moderation happens outside this service; only
// APPROVED listings are purchasable here)
const (
	ListingApproved = "APPROVED"
	ListingPending  = "PENDING"
	ListingRejected = "REJECTED"
)

// Listing is the catalog view this service reads and whose counters it
// mutates on settlement. BasePrice is the seller's earnings target and may be
// absent, in which case earnings are derived backward from DisplayPrice.
type Listing struct {
	ID                  string    `json:"id" db:"id"`
	SellerID            string    `json:"seller_id" db:"seller_id"`
	Title               string    `json:"title" db:"title"`
	BasePrice           *int64    `json:"base_price,omitempty" db:"base_price"` // in paise
	DisplayPrice        int64     `json:"display_price" db:"display_price"`    // in paise
	UnitsSold           int       `json:"units_sold" db:"units_sold"`
	SellerEarningsTotal int64     `json:"seller_earnings_total" db:"seller_earnings_total"`
	Status              string    `json:"status" db:"status"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
