package models

import (
	"time"
)

// Channel statuses
const (
	ChannelOpen     = "OPEN"
	ChannelResolved = "RESOLVED"
)

// Deal statuses, monotonic: PENDING -> SELLER_MARKED -> COMPLETED
const (
	DealPending      = "PENDING"
	DealSellerMarked = "SELLER_MARKED"
	DealCompleted    = "COMPLETED"
)

// EscrowChannel is the per-(listing, buyer, seller) deal-tracking context.
// Channel status and deal status are orthogonal axes.
type EscrowChannel struct {
	ID               string    `json:"id" db:"id"`
	ListingID        string    `json:"listing_id" db:"listing_id"`
	BuyerID          string    `json:"buyer_id" db:"buyer_id"`
	SellerID         string    `json:"seller_id" db:"seller_id"`
	AdminID          string    `json:"admin_id,omitempty" db:"admin_id"`
	ChannelStatus    string    `json:"channel_status" db:"channel_status"`
	DealStatus       string    `json:"deal_status" db:"deal_status"`
	SellerMarkedDone bool      `json:"seller_marked_done" db:"seller_marked_done"`
	AdminRequested   bool      `json:"admin_requested" db:"admin_requested"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
