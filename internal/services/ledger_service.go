package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vikray/backend/internal/models"
)

// TransactionsPageSize is the fixed page size for wallet statements.
const TransactionsPageSize = 20

// LedgerService owns the append-only ledger_entries table and the cached
// accounts rows. All writes happen inside a caller-provided *sql.Tx so a
// settlement's entries commit or roll back together.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// LockAccountTx upserts the account row and takes a FOR UPDATE lock on it.
// The lock serializes check-then-debit per account; the cached balance on the
// row is never trusted for that check.
func (ls *LedgerService) LockAccountTx(tx *sql.Tx, accountID string) (*models.Account, error) {
	_, err := tx.Exec(`
		INSERT INTO accounts (id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (id) DO NOTHING`, accountID)
	if err != nil {
		return nil, err
	}

	var account models.Account
	err = tx.QueryRow(`
		SELECT id, balance, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.Balance, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// LockAccountsTx locks several accounts in lexical order to avoid deadlocks
// between concurrent settlements touching the same parties.
func (ls *LedgerService) LockAccountsTx(tx *sql.Tx, accountIDs ...string) error {
	ids := make([]string, 0, len(accountIDs))
	seen := map[string]bool{}
	for _, id := range accountIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := ls.LockAccountTx(tx, id); err != nil {
			return err
		}
	}
	return nil
}

// BalanceTx recomputes the authoritative balance as the signed sum of all
// ledger entries for the account.
func (ls *LedgerService) BalanceTx(tx *sql.Tx, accountID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1`, accountID).Scan(&balance)
	return balance, err
}

// Balance is the authoritative read used outside a settlement transaction.
func (ls *LedgerService) Balance(accountID string) (int64, error) {
	var balance int64
	err := ls.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1`, accountID).Scan(&balance)
	return balance, err
}

// AppendEntryTx inserts one immutable ledger entry and refreshes the cached
// balance on the account row inside the same transaction.
func (ls *LedgerService) AppendEntryTx(tx *sql.Tx, entry *models.LedgerEntry) error {
	if entry.Amount <= 0 {
		return fmt.Errorf("ledger entry amount must be positive, got %d", entry.Amount)
	}
	if entry.Direction != models.DirectionCredit && entry.Direction != models.DirectionDebit {
		return fmt.Errorf("invalid ledger entry direction %q", entry.Direction)
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(`
		INSERT INTO ledger_entries
		(id, account_id, direction, amount, category, description, related_type, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.AccountID, entry.Direction, entry.Amount, entry.Category,
		entry.Description, entry.RelatedType, entry.RelatedID, entry.CreatedAt)
	if err != nil {
		return err
	}

	// Cache refresh only; reads recompute from the entries.
	_, err = tx.Exec(`
		UPDATE accounts
		SET balance = (
			SELECT COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)
			FROM ledger_entries
			WHERE account_id = $1
		), updated_at = NOW()
		WHERE id = $1`, entry.AccountID)
	return err
}

// ListEntries returns one page of an account's statement, newest first.
// Pages are 1-based.
func (ls *LedgerService) ListEntries(accountID string, page int) ([]models.LedgerEntry, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * TransactionsPageSize

	rows, err := ls.db.Query(`
		SELECT id, account_id, direction, amount, category, description,
		       COALESCE(related_type, ''), COALESCE(related_id, ''), created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, TransactionsPageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.Category,
			&e.Description, &e.RelatedType, &e.RelatedID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// HasCompletedPurchaseTx reports whether the buyer already holds a completed
// purchase for the listing. The partial unique index is the real guard; this
// pre-check just produces a friendlier error on the common path.
func (ls *LedgerService) HasCompletedPurchaseTx(tx *sql.Tx, buyerID, listingID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE buyer_id = $1 AND listing_id = $2 AND status = 'COMPLETED'
		)`, buyerID, listingID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
