package services

import (
	"database/sql"
	"errors"

	"github.com/vikray/backend/internal/models"
)

// CatalogService is the thin collaborator view over listings: the settlement
// paths read a listing and adjust its sale counters, nothing more. Catalog
// CRUD and moderation live elsewhere.
type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

// GetListingTx loads a listing with a FOR UPDATE lock so counter updates from
// concurrent settlements serialize.
func (cs *CatalogService) GetListingTx(tx *sql.Tx, listingID string) (*models.Listing, error) {
	var listing models.Listing
	err := tx.QueryRow(`
		SELECT id, seller_id, title, base_price, display_price, units_sold,
		       seller_earnings_total, status, created_at
		FROM listings
		WHERE id = $1
		FOR UPDATE`, listingID).Scan(
		&listing.ID, &listing.SellerID, &listing.Title, &listing.BasePrice,
		&listing.DisplayPrice, &listing.UnitsSold, &listing.SellerEarningsTotal,
		&listing.Status, &listing.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Listing")
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// RecordSaleTx bumps the cumulative sale counters after a settlement.
func (cs *CatalogService) RecordSaleTx(tx *sql.Tx, listingID string, sellerEarnings int64) error {
	_, err := tx.Exec(`
		UPDATE listings
		SET units_sold = units_sold + 1,
		    seller_earnings_total = seller_earnings_total + $1
		WHERE id = $2`, sellerEarnings, listingID)
	return err
}

// ReverseSaleTx rolls the counters back on refund, floored at zero.
func (cs *CatalogService) ReverseSaleTx(tx *sql.Tx, listingID string, sellerEarnings int64) error {
	_, err := tx.Exec(`
		UPDATE listings
		SET units_sold = GREATEST(units_sold - 1, 0),
		    seller_earnings_total = GREATEST(seller_earnings_total - $1, 0)
		WHERE id = $2`, sellerEarnings, listingID)
	return err
}
