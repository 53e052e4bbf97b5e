package events

import (
	"time"
)

// SettlementCompleted is emitted after a purchase settles and its database
// transaction commits. Amounts are in paise.
type SettlementCompleted struct {
	PurchaseID     string    `json:"purchase_id"`
	BuyerID        string    `json:"buyer_id"`
	SellerID       string    `json:"seller_id"`
	ListingID      string    `json:"listing_id"`
	GrossAmount    int64     `json:"gross_amount"`
	Commission     int64     `json:"commission"`
	SellerEarnings int64     `json:"seller_earnings"`
	Method         string    `json:"method"`
	OccurredAt     time.Time `json:"occurred_at"`
}
