package models

import (
	"time"
)

// Ledger entry directions
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// Ledger entry categories
const (
	CategorySale               = "SALE"
	CategoryPurchase           = "PURCHASE"
	CategoryCommission         = "COMMISSION"
	CategoryDeposit            = "DEPOSIT"
	CategoryWithdrawal         = "WITHDRAWAL"
	CategoryCommissionReversal = "COMMISSION_REVERSAL"
)

// LedgerEntry is an immutable record of a single credit or debit against one
// account. Amounts are in paise. The account balance is always the signed sum
// of its entries; it is never read back from a cached field.
type LedgerEntry struct {
	ID          string    `json:"id" db:"id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	Direction   string    `json:"direction" db:"direction"` // DEBIT or CREDIT
	Amount      int64     `json:"amount" db:"amount"`       // in paise, always > 0
	Category    string    `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
	RelatedType string    `json:"related_type,omitempty" db:"related_type"`
	RelatedID   string    `json:"related_id,omitempty" db:"related_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Signed returns the entry amount with its direction applied.
func (e *LedgerEntry) Signed() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// Account is a wallet row. Balance is a denormalized cache refreshed after
// each ledger write; authoritative reads recompute from ledger_entries.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Balance   int64     `json:"balance" db:"balance"` // cached, in paise
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
