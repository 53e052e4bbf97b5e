package services

import (
	"github.com/shopspring/decimal"
)

// CommissionSplit is the outcome of splitting a price between the seller and
// the platform. SellerEarnings + PlatformFee always equals DisplayPrice
// exactly; whichever side is derived is computed as the remainder, never
// rounded independently.
type CommissionSplit struct {
	SellerEarnings int64 // in paise
	PlatformFee    int64 // in paise
	DisplayPrice   int64 // in paise
}

var oneHundred = decimal.NewFromInt(100)

// SplitForward computes the platform fee on top of a known seller earnings
// target. The fee is rounded half-up to the nearest paisa.
func SplitForward(sellerEarnings int64, commissionPercent float64) CommissionSplit {
	fee := decimal.NewFromInt(sellerEarnings).
		Mul(decimal.NewFromFloat(commissionPercent)).
		Div(oneHundred).
		Round(0).
		IntPart()

	return CommissionSplit{
		SellerEarnings: sellerEarnings,
		PlatformFee:    fee,
		DisplayPrice:   sellerEarnings + fee,
	}
}

// SplitBackward derives the seller earnings from a known display price when
// no base price is stored. Earnings are rounded half-up; the fee is the
// remainder so the split reconstructs the display price without drift.
func SplitBackward(displayPrice int64, commissionPercent float64) CommissionSplit {
	divisor := decimal.NewFromFloat(commissionPercent).Div(oneHundred).Add(decimal.NewFromInt(1))
	earnings := decimal.NewFromInt(displayPrice).
		Div(divisor).
		Round(0).
		IntPart()

	return CommissionSplit{
		SellerEarnings: earnings,
		PlatformFee:    displayPrice - earnings,
		DisplayPrice:   displayPrice,
	}
}

// SplitForListing picks the mode: forward from a stored base price when the
// listing has one, backward from the display price otherwise. Every purchase
// path uses this single derivation.
func SplitForListing(basePrice *int64, displayPrice int64, commissionPercent float64) CommissionSplit {
	if basePrice != nil {
		// The stored base price is the seller's earnings; the fee is the
		// remainder of what the buyer actually pays.
		return CommissionSplit{
			SellerEarnings: *basePrice,
			PlatformFee:    displayPrice - *basePrice,
			DisplayPrice:   displayPrice,
		}
	}
	return SplitBackward(displayPrice, commissionPercent)
}
