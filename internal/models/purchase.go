package models

import (
	"time"
)

// Settlement methods
const (
	MethodWallet  = "WALLET"
	MethodGateway = "GATEWAY"
	MethodDeal    = "DEAL"
)

// Purchase statuses
const (
	PurchaseCompleted = "COMPLETED"
	PurchaseRefunded  = "REFUNDED"
)

// Purchase is the permanent record of one settled sale. Created exactly once
// per settlement; only the status may change afterwards (COMPLETED -> REFUNDED).
type Purchase struct {
	ID             string    `json:"id" db:"id"`
	BuyerID        string    `json:"buyer_id" db:"buyer_id"`
	SellerID       string    `json:"seller_id" db:"seller_id"`
	ListingID      string    `json:"listing_id" db:"listing_id"`
	ChannelID      string    `json:"channel_id,omitempty" db:"channel_id"`
	GrossAmount    int64     `json:"gross_amount" db:"gross_amount"` // what the buyer pays, in paise
	Commission     int64     `json:"commission" db:"commission"`
	SellerEarnings int64     `json:"seller_earnings" db:"seller_earnings"`
	Method         string    `json:"method" db:"method"` // WALLET, GATEWAY or DEAL
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
