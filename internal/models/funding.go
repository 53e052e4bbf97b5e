package models

import (
	"time"
)

// Funding request kinds
const (
	FundingDeposit    = "DEPOSIT"
	FundingWithdrawal = "WITHDRAWAL"
)

// Funding methods
const (
	FundingMethodCrypto = "CRYPTO"
	FundingMethodBank   = "BANK_TRANSFER"
)

// Funding request statuses; PENDING -> APPROVED|REJECTED is one way
const (
	FundingPending  = "PENDING"
	FundingApproved = "APPROVED"
	FundingRejected = "REJECTED"
)

// FundingProof carries the method-specific evidence attached to a request.
type FundingProof struct {
	TxHash       string `json:"tx_hash,omitempty" validate:"omitempty,max=128"`
	FromAddress  string `json:"from_address,omitempty" validate:"omitempty,max=128"`
	ToAddress    string `json:"to_address,omitempty" validate:"omitempty,max=128"`
	Reference    string `json:"reference,omitempty" validate:"omitempty,max=64"`
	BankName     string `json:"bank_name,omitempty" validate:"omitempty,max=100"`
	AccountLast4 string `json:"account_last4,omitempty" validate:"omitempty,len=4,numeric"`
}

// FundingRequest is a user-submitted, admin-decided deposit or withdrawal.
// The ledger is only touched when an approver acts.
type FundingRequest struct {
	ID         string       `json:"id" db:"id"`
	AccountID  string       `json:"account_id" db:"account_id"`
	Kind       string       `json:"kind" db:"kind"` // DEPOSIT or WITHDRAWAL
	Amount     int64        `json:"amount" db:"amount"`
	Method     string       `json:"method" db:"method"`
	Proof      FundingProof `json:"proof" db:"proof"`
	Status     string       `json:"status" db:"status"`
	ApproverID string       `json:"approver_id,omitempty" db:"approver_id"`
	Note       string       `json:"note,omitempty" db:"note"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
