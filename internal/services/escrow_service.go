package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vikray/backend/internal/interfaces"
	"github.com/vikray/backend/internal/middleware"
	"github.com/vikray/backend/internal/models"
)

// EscrowService runs the per-channel deal state machine:
// PENDING -> SELLER_MARKED -> COMPLETED, with the channel's OPEN/RESOLVED
// status as an orthogonal axis. The confirm transition is the only path that
// moves money and must execute exactly once per channel.
type EscrowService struct {
	db         *sql.DB
	catalog    *CatalogService
	settings   *SettingsService
	settlement *SettlementService
	messenger  interfaces.SystemMessenger
	validator  *ValidationHelper
}

func NewEscrowService(db *sql.DB, catalog *CatalogService, settings *SettingsService,
	settlement *SettlementService, messenger interfaces.SystemMessenger) *EscrowService {
	return &EscrowService{
		db:         db,
		catalog:    catalog,
		settings:   settings,
		settlement: settlement,
		messenger:  messenger,
		validator:  NewValidationHelper(),
	}
}

// LookupOrCreateChannel returns the channel for (listing, buyer, seller),
// creating it if this buyer has not opened one yet. The unique index makes a
// concurrent double-create converge on one row.
func (es *EscrowService) LookupOrCreateChannel(listingID, buyerID string) (*models.EscrowChannel, error) {
	tx, err := es.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	listing, err := es.catalog.GetListingTx(tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == buyerID {
		return nil, ErrNotAuthorized("open a deal channel on your own listing")
	}

	_, err = tx.Exec(`
		INSERT INTO escrow_channels
		(id, listing_id, buyer_id, seller_id, channel_status, deal_status, seller_marked_done, admin_requested, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, NOW(), NOW())
		ON CONFLICT (listing_id, buyer_id, seller_id) DO NOTHING`,
		uuid.NewString(), listingID, buyerID, listing.SellerID,
		models.ChannelOpen, models.DealPending)
	if err != nil {
		return nil, err
	}

	channel, err := es.getChannelTx(tx, "", listingID, buyerID, listing.SellerID)
	if err != nil {
		return nil, err
	}

	return channel, tx.Commit()
}

// MarkSellerDone records the seller's claim that their side of the deal is
// finished. Only the seller may call it; a completed deal cannot be re-marked.
func (es *EscrowService) MarkSellerDone(channelID, actingUserID string) (*models.EscrowChannel, error) {
	tx, err := es.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	channel, err := es.lockChannelTx(tx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.SellerID != actingUserID {
		return nil, ErrNotAuthorized("mark this deal as done")
	}
	if channel.DealStatus == models.DealCompleted {
		return nil, ErrAlreadyCompleted()
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels
		SET deal_status = $1, seller_marked_done = TRUE, updated_at = NOW()
		WHERE id = $2`, models.DealSellerMarked, channelID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	channel.DealStatus = models.DealSellerMarked
	channel.SellerMarkedDone = true
	es.sendSystemMessage(channelID, "Seller has marked the deal as done. Waiting for the buyer to confirm.")
	return channel, nil
}

// ConfirmDeal is the buyer's terminal confirmation. It settles the deal
// through the settlement engine inside one transaction with the channel row
// locked, so a double-click cannot settle twice: the second call sees
// COMPLETED and fails AlreadyCompleted with zero writes.
func (es *EscrowService) ConfirmDeal(channelID, actingUserID string) (*models.Purchase, error) {
	settings, err := es.settings.Get()
	if err != nil {
		return nil, err
	}

	tx, err := es.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	channel, err := es.lockChannelTx(tx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.BuyerID != actingUserID {
		return nil, ErrNotAuthorized("confirm this deal")
	}
	if channel.DealStatus == models.DealCompleted {
		return nil, ErrAlreadyCompleted()
	}
	if channel.DealStatus != models.DealSellerMarked {
		return nil, ErrSellerNotMarked()
	}

	listing, err := es.catalog.GetListingTx(tx, channel.ListingID)
	if err != nil {
		return nil, err
	}

	purchase, err := es.settlement.SettleDealTx(tx, listing, channel.BuyerID, channelID, settings)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels
		SET deal_status = $1, channel_status = $2, updated_at = NOW()
		WHERE id = $3`, models.DealCompleted, models.ChannelResolved, channelID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	es.settlement.PublishSettlementEvent(purchase)
	es.sendSystemMessage(channelID,
		"Deal confirmed. "+FormatINR(purchase.SellerEarnings)+" has been credited to the seller.")
	return purchase, nil
}

// RequestAdminEscalation flags the channel for admin attention without
// touching the deal status.
func (es *EscrowService) RequestAdminEscalation(channelID, actingUserID string) error {
	tx, err := es.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	channel, err := es.lockChannelTx(tx, channelID)
	if err != nil {
		return err
	}
	if actingUserID != channel.BuyerID && actingUserID != channel.SellerID {
		return ErrNotAuthorized("escalate this channel")
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels SET admin_requested = TRUE, updated_at = NOW() WHERE id = $1`,
		channelID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	es.sendSystemMessage(channelID, "An admin has been requested to join this channel.")
	return nil
}

// JoinAsAdmin attaches an admin to the channel.
func (es *EscrowService) JoinAsAdmin(channelID, actingUserID, role string) error {
	if role != middleware.RoleAdmin {
		return ErrNotAuthorized("join this channel as an admin")
	}

	tx, err := es.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := es.lockChannelTx(tx, channelID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels SET admin_id = $1, updated_at = NOW() WHERE id = $2`,
		actingUserID, channelID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	es.sendSystemMessage(channelID, "An admin has joined the channel.")
	return nil
}

// CloseChannel resolves the channel. Admin only; the deal status is untouched.
func (es *EscrowService) CloseChannel(channelID, actingUserID, role string) error {
	if role != middleware.RoleAdmin {
		return ErrNotAuthorized("close this channel")
	}

	tx, err := es.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := es.lockChannelTx(tx, channelID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels SET channel_status = $1, updated_at = NOW() WHERE id = $2`,
		models.ChannelResolved, channelID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	es.sendSystemMessage(channelID, "This channel has been closed by an admin.")
	return nil
}

// ReopenChannel moves a resolved channel back to open. Buyer or seller only.
func (es *EscrowService) ReopenChannel(channelID, actingUserID string) error {
	tx, err := es.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	channel, err := es.lockChannelTx(tx, channelID)
	if err != nil {
		return err
	}
	if actingUserID != channel.BuyerID && actingUserID != channel.SellerID {
		return ErrNotAuthorized("reopen this channel")
	}
	if channel.ChannelStatus != models.ChannelResolved {
		return newDomainError(CodeInvalidState, "This channel is not resolved")
	}

	_, err = tx.Exec(`
		UPDATE escrow_channels SET channel_status = $1, updated_at = NOW() WHERE id = $2`,
		models.ChannelOpen, channelID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	es.sendSystemMessage(channelID, "The channel has been reopened.")
	return nil
}

// lockChannelTx loads a channel by id with a FOR UPDATE lock.
func (es *EscrowService) lockChannelTx(tx *sql.Tx, channelID string) (*models.EscrowChannel, error) {
	return es.getChannelTx(tx, channelID, "", "", "")
}

func (es *EscrowService) getChannelTx(tx *sql.Tx, channelID, listingID, buyerID, sellerID string) (*models.EscrowChannel, error) {
	query := `
		SELECT id, listing_id, buyer_id, seller_id, COALESCE(admin_id, ''),
		       channel_status, deal_status, seller_marked_done, admin_requested,
		       created_at, updated_at
		FROM escrow_channels `
	var row *sql.Row
	if channelID != "" {
		row = tx.QueryRow(query+`WHERE id = $1 FOR UPDATE`, channelID)
	} else {
		row = tx.QueryRow(query+`WHERE listing_id = $1 AND buyer_id = $2 AND seller_id = $3 FOR UPDATE`,
			listingID, buyerID, sellerID)
	}

	var channel models.EscrowChannel
	err := row.Scan(&channel.ID, &channel.ListingID, &channel.BuyerID, &channel.SellerID,
		&channel.AdminID, &channel.ChannelStatus, &channel.DealStatus,
		&channel.SellerMarkedDone, &channel.AdminRequested, &channel.CreatedAt, &channel.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Channel")
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (es *EscrowService) sendSystemMessage(channelID, text string) {
	if es.messenger == nil {
		return
	}
	if err := es.messenger.SendSystemMessage(channelID, text); err != nil {
		log.Printf("[ESCROW] Failed to send system message to channel %s: %v", channelID, err)
	}
}

// OpenChannel opens or returns the deal channel for a listing
// @Summary Open a deal channel
// @Description Look up or create the escrow channel between the acting buyer and the listing's seller
// @Tags channels
// @Accept json
// @Produce json
// @Param channel body object{listing_id=string} true "Listing to negotiate"
// @Success 200 {object} models.EscrowChannel
// @Failure 404 {object} ErrorResponse
// @Router /channels [post]
func (es *EscrowService) OpenChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID string `json:"listing_id" validate:"required"`
	}
	if !decodeAndValidate(es.validator, w, r, &req) {
		return
	}

	channel, err := es.LookupOrCreateChannel(req.ListingID, middleware.UserID(r.Context()))
	if err != nil {
		SendDomainError(w, err, "Failed to open channel")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(channel)
}

// MarkDone marks the seller side of the deal as done
// @Summary Mark deal done (seller)
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 200 {object} models.EscrowChannel
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /channels/{channelId}/mark-done [post]
func (es *EscrowService) MarkDone(w http.ResponseWriter, r *http.Request) {
	channel, err := es.MarkSellerDone(chi.URLParam(r, "channelId"), middleware.UserID(r.Context()))
	if err != nil {
		SendDomainError(w, err, "Failed to mark deal as done")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(channel)
}

// Confirm settles the deal (buyer)
// @Summary Confirm deal (buyer)
// @Description Settle the deal: debit the buyer, credit the seller and platform, complete the channel
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 201 {object} models.Purchase
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /channels/{channelId}/confirm [post]
func (es *EscrowService) Confirm(w http.ResponseWriter, r *http.Request) {
	purchase, err := es.ConfirmDeal(chi.URLParam(r, "channelId"), middleware.UserID(r.Context()))
	if err != nil {
		SendDomainError(w, err, "Failed to confirm deal")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(purchase)
}

// Escalate requests an admin
// @Summary Request admin escalation
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 200 {object} object{status=string}
// @Failure 403 {object} ErrorResponse
// @Router /channels/{channelId}/escalate [post]
func (es *EscrowService) Escalate(w http.ResponseWriter, r *http.Request) {
	if err := es.RequestAdminEscalation(chi.URLParam(r, "channelId"), middleware.UserID(r.Context())); err != nil {
		SendDomainError(w, err, "Failed to escalate channel")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "escalated"})
}

// Join attaches the acting admin to the channel
// @Summary Join channel as admin
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 200 {object} object{status=string}
// @Failure 403 {object} ErrorResponse
// @Router /channels/{channelId}/join [post]
func (es *EscrowService) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := es.JoinAsAdmin(chi.URLParam(r, "channelId"), middleware.UserID(ctx), middleware.Role(ctx)); err != nil {
		SendDomainError(w, err, "Failed to join channel")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "joined"})
}

// Close resolves the channel
// @Summary Close channel (admin)
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 200 {object} object{status=string}
// @Failure 403 {object} ErrorResponse
// @Router /channels/{channelId}/close [post]
func (es *EscrowService) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := es.CloseChannel(chi.URLParam(r, "channelId"), middleware.UserID(ctx), middleware.Role(ctx)); err != nil {
		SendDomainError(w, err, "Failed to close channel")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
}

// Reopen moves a resolved channel back to open
// @Summary Reopen channel (buyer or seller)
// @Tags channels
// @Produce json
// @Param channelId path string true "Channel ID"
// @Success 200 {object} object{status=string}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /channels/{channelId}/reopen [post]
func (es *EscrowService) Reopen(w http.ResponseWriter, r *http.Request) {
	if err := es.ReopenChannel(chi.URLParam(r, "channelId"), middleware.UserID(r.Context())); err != nil {
		SendDomainError(w, err, "Failed to reopen channel")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reopened"})
}
