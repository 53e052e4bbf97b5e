package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vikray/backend/internal/interfaces"
	"github.com/vikray/backend/internal/middleware"
	"github.com/vikray/backend/internal/models"
	"github.com/vikray/backend/internal/models/events"
)

// TopicSettlementCompleted is the Kafka topic for post-commit settlement events.
const TopicSettlementCompleted = "settlement_completed"

// SettlementService orchestrates the purchase paths: it consults settings and
// the commission split, writes the paired ledger entries, creates the
// purchase record and bumps the listing counters — all inside one database
// transaction per settlement.
type SettlementService struct {
	db        *sql.DB
	ledger    *LedgerService
	catalog   *CatalogService
	settings  *SettingsService
	events    interfaces.EventPublisher
	validator *ValidationHelper
}

func NewSettlementService(db *sql.DB, ledger *LedgerService, catalog *CatalogService,
	settings *SettingsService, publisher interfaces.EventPublisher) *SettlementService {
	return &SettlementService{
		db:        db,
		ledger:    ledger,
		catalog:   catalog,
		settings:  settings,
		events:    publisher,
		validator: NewValidationHelper(),
	}
}

// SettleWalletPurchase settles an instant purchase paid from the buyer's
// wallet balance. Safe to retry: a second call for the same (buyer, listing)
// fails AlreadyPurchased without touching the ledger.
func (s *SettlementService) SettleWalletPurchase(buyerID, listingID string) (*models.Purchase, error) {
	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	listing, err := s.catalog.GetListingTx(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingApproved {
		return nil, ErrListingUnavailable()
	}

	if err := s.ledger.LockAccountsTx(tx, buyerID, listing.SellerID, settings.PlatformAccountID); err != nil {
		return nil, err
	}

	already, err := s.ledger.HasCompletedPurchaseTx(tx, buyerID, listingID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, ErrAlreadyPurchased()
	}

	balance, err := s.ledger.BalanceTx(tx, buyerID)
	if err != nil {
		return nil, err
	}
	if balance < listing.DisplayPrice {
		return nil, ErrInsufficientFunds(listing.DisplayPrice, balance)
	}

	purchase, err := s.settleTx(tx, listing, buyerID, "", models.MethodWallet, settings, true)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.PublishSettlementEvent(purchase)
	return purchase, nil
}

// SettleGatewayPurchase settles a purchase paid through the external payment
// gateway. The money moved outside the ledger, so no buyer debit is written;
// the gateway collaborator's verification result gates the whole operation.
func (s *SettlementService) SettleGatewayPurchase(buyerID, listingID string, paymentVerified bool) (*models.Purchase, error) {
	if !paymentVerified {
		return nil, newDomainError(CodeNotAuthorized, "Payment has not been verified by the gateway")
	}

	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	listing, err := s.catalog.GetListingTx(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingApproved {
		return nil, ErrListingUnavailable()
	}

	if err := s.ledger.LockAccountsTx(tx, listing.SellerID, settings.PlatformAccountID); err != nil {
		return nil, err
	}

	already, err := s.ledger.HasCompletedPurchaseTx(tx, buyerID, listingID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, ErrAlreadyPurchased()
	}

	purchase, err := s.settleTx(tx, listing, buyerID, "", models.MethodGateway, settings, false)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.PublishSettlementEvent(purchase)
	return purchase, nil
}

// SettleDealTx writes the deal-variant settlement inside the caller's
// transaction. The escrow state machine owns the transaction and the channel
// lock; this method owns the money movement so every path shares one shape.
func (s *SettlementService) SettleDealTx(tx *sql.Tx, listing *models.Listing, buyerID, channelID string,
	settings *models.PlatformSettings) (*models.Purchase, error) {

	if err := s.ledger.LockAccountsTx(tx, buyerID, listing.SellerID, settings.PlatformAccountID); err != nil {
		return nil, err
	}

	balance, err := s.ledger.BalanceTx(tx, buyerID)
	if err != nil {
		return nil, err
	}
	if balance < listing.DisplayPrice {
		return nil, ErrInsufficientFunds(listing.DisplayPrice, balance)
	}

	return s.settleTx(tx, listing, buyerID, channelID, models.MethodDeal, settings, true)
}

// settleTx performs the shared write sequence: purchase record first (the
// partial unique index on it is the idempotence guard), then ledger entries,
// then listing counters.
func (s *SettlementService) settleTx(tx *sql.Tx, listing *models.Listing, buyerID, channelID, method string,
	settings *models.PlatformSettings, debitBuyer bool) (*models.Purchase, error) {

	split := SplitForListing(listing.BasePrice, listing.DisplayPrice, settings.CommissionPercent)

	purchase := &models.Purchase{
		ID:             uuid.NewString(),
		BuyerID:        buyerID,
		SellerID:       listing.SellerID,
		ListingID:      listing.ID,
		ChannelID:      channelID,
		GrossAmount:    split.DisplayPrice,
		Commission:     split.PlatformFee,
		SellerEarnings: split.SellerEarnings,
		Method:         method,
		Status:         models.PurchaseCompleted,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := tx.Exec(`
		INSERT INTO purchases
		(id, buyer_id, seller_id, listing_id, channel_id, gross_amount, commission, seller_earnings, method, status, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
		purchase.ID, purchase.BuyerID, purchase.SellerID, purchase.ListingID, purchase.ChannelID,
		purchase.GrossAmount, purchase.Commission, purchase.SellerEarnings,
		purchase.Method, purchase.Status, purchase.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyPurchased()
		}
		return nil, err
	}

	if debitBuyer {
		err = s.ledger.AppendEntryTx(tx, &models.LedgerEntry{
			AccountID:   buyerID,
			Direction:   models.DirectionDebit,
			Amount:      split.DisplayPrice,
			Category:    models.CategoryPurchase,
			Description: "Purchase of " + listing.Title,
			RelatedType: "purchase",
			RelatedID:   purchase.ID,
		})
		if err != nil {
			return nil, err
		}
	}

	err = s.ledger.AppendEntryTx(tx, &models.LedgerEntry{
		AccountID:   listing.SellerID,
		Direction:   models.DirectionCredit,
		Amount:      split.SellerEarnings,
		Category:    models.CategorySale,
		Description: "Sale of " + listing.Title,
		RelatedType: "purchase",
		RelatedID:   purchase.ID,
	})
	if err != nil {
		return nil, err
	}

	if split.PlatformFee > 0 && settings.PlatformAccountID != "" {
		err = s.ledger.AppendEntryTx(tx, &models.LedgerEntry{
			AccountID:   settings.PlatformAccountID,
			Direction:   models.DirectionCredit,
			Amount:      split.PlatformFee,
			Category:    models.CategoryCommission,
			Description: "Commission on " + listing.Title,
			RelatedType: "purchase",
			RelatedID:   purchase.ID,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.catalog.RecordSaleTx(tx, listing.ID, split.SellerEarnings); err != nil {
		return nil, err
	}

	return purchase, nil
}

// Refund flips a completed purchase to refunded and rolls the listing
// counters back. Ledger entries are deliberately left in place; money already
// credited is handled out of band.
func (s *SettlementService) Refund(purchaseID, reason string) (*models.Purchase, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var purchase models.Purchase
	var channelID sql.NullString
	err = tx.QueryRow(`
		SELECT id, buyer_id, seller_id, listing_id, channel_id, gross_amount,
		       commission, seller_earnings, method, status, created_at
		FROM purchases
		WHERE id = $1
		FOR UPDATE`, purchaseID).Scan(
		&purchase.ID, &purchase.BuyerID, &purchase.SellerID, &purchase.ListingID, &channelID,
		&purchase.GrossAmount, &purchase.Commission, &purchase.SellerEarnings,
		&purchase.Method, &purchase.Status, &purchase.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Purchase")
	}
	if err != nil {
		return nil, err
	}
	purchase.ChannelID = channelID.String

	if purchase.Status != models.PurchaseCompleted {
		return nil, ErrAlreadyRefunded()
	}

	_, err = tx.Exec(`UPDATE purchases SET status = $1 WHERE id = $2`,
		models.PurchaseRefunded, purchase.ID)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.ReverseSaleTx(tx, purchase.ListingID, purchase.SellerEarnings); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	purchase.Status = models.PurchaseRefunded
	log.Printf("[SETTLEMENT] Refunded purchase %s (%s): %s", purchase.ID, FormatINR(purchase.GrossAmount), reason)
	return &purchase, nil
}

// PublishSettlementEvent emits the post-commit Kafka event. Failures are
// logged, never propagated; the settlement has already committed.
func (s *SettlementService) PublishSettlementEvent(purchase *models.Purchase) {
	if s.events == nil {
		return
	}
	event := events.SettlementCompleted{
		PurchaseID:     purchase.ID,
		BuyerID:        purchase.BuyerID,
		SellerID:       purchase.SellerID,
		ListingID:      purchase.ListingID,
		GrossAmount:    purchase.GrossAmount,
		Commission:     purchase.Commission,
		SellerEarnings: purchase.SellerEarnings,
		Method:         purchase.Method,
		OccurredAt:     purchase.CreatedAt,
	}
	if err := s.events.Publish(TopicSettlementCompleted, event); err != nil {
		log.Printf("[SETTLEMENT] Failed to publish event for purchase %s: %v", purchase.ID, err)
	}
}

// PurchaseWithWallet settles an instant wallet purchase
// @Summary Buy a listing with wallet balance
// @Description Debit the buyer's wallet and settle the sale with the seller and platform
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchase body object{listing_id=string} true "Listing to buy"
// @Success 201 {object} models.Purchase
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /purchases/wallet [post]
func (s *SettlementService) PurchaseWithWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id" validate:"required"`
	}
	if !decodeAndValidate(s.validator, w, r, &req) {
		return
	}

	purchase, err := s.SettleWalletPurchase(middleware.UserID(r.Context()), req.ListingID)
	if err != nil {
		SendDomainError(w, err, "Failed to process purchase")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(purchase)
}

// PurchaseWithGateway settles a gateway-verified purchase
// @Summary Record a gateway purchase
// @Description Settle a sale paid through the external payment gateway; the verification result is supplied by the gateway callback
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchase body object{listing_id=string,payment_verified=bool} true "Listing and verification result"
// @Success 201 {object} models.Purchase
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /purchases/gateway [post]
func (s *SettlementService) PurchaseWithGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID       string `json:"listing_id" validate:"required"`
		PaymentVerified bool   `json:"payment_verified"`
	}
	if !decodeAndValidate(s.validator, w, r, &req) {
		return
	}

	purchase, err := s.SettleGatewayPurchase(middleware.UserID(r.Context()), req.ListingID, req.PaymentVerified)
	if err != nil {
		SendDomainError(w, err, "Failed to process purchase")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(purchase)
}

// RefundPurchase refunds a completed purchase
// @Summary Refund a purchase
// @Description Mark a completed purchase as refunded and roll back the listing counters
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchaseId path string true "Purchase ID"
// @Param refund body object{reason=string} true "Refund reason"
// @Success 200 {object} models.Purchase
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /purchases/{purchaseId}/refund [post]
func (s *SettlementService) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	var req struct {
		Reason string `json:"reason" validate:"max=500"`
	}
	if !decodeAndValidate(s.validator, w, r, &req) {
		return
	}

	purchase, err := s.Refund(purchaseID, req.Reason)
	if err != nil {
		SendDomainError(w, err, "Failed to process refund")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(purchase)
}

// GetBalance returns the acting user's wallet balance
// @Summary Get wallet balance
// @Description Recompute the balance from the ledger and return it in paise
// @Tags wallet
// @Produce json
// @Success 200 {object} object{account_id=string,balance=int64,display=string}
// @Router /wallet/balance [get]
func (s *SettlementService) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.UserID(r.Context())

	balance, err := s.ledger.Balance(accountID)
	if err != nil {
		log.Printf("[WALLET] Failed to compute balance for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"account_id": accountID,
		"balance":    balance,
		"display":    FormatINR(balance),
	})
}

// ListWalletTransactions returns one page of the acting user's statement
// @Summary List wallet transactions
// @Description Paginated ledger entries for the acting user, newest first
// @Tags wallet
// @Produce json
// @Param page query int false "Page number (1-based)"
// @Success 200 {object} object{transactions=[]models.LedgerEntry,page=int,count=int}
// @Router /wallet/transactions [get]
func (s *SettlementService) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.UserID(r.Context())

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	entries, err := s.ledger.ListEntries(accountID, page)
	if err != nil {
		log.Printf("[WALLET] Failed to list transactions for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": entries,
		"page":         page,
		"count":        len(entries),
	})
}
