package models

// PlatformSettings is the process-wide singleton row. The commission
// recipient is an explicit account reference, never derived from a role
// query. AcceptedAddresses maps a funding method to the payment address shown
// to depositors.
type PlatformSettings struct {
	CommissionPercent float64           `json:"commission_percent" db:"commission_percent"` // 0-100
	PlatformAccountID string            `json:"platform_account_id" db:"platform_account_id"`
	AcceptedAddresses map[string]string `json:"accepted_addresses" db:"accepted_addresses"`
}
