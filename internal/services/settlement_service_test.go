package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vikray/backend/internal/models"
)

func newSettlementFixture(t *testing.T) (*SettlementService, sqlmock.Sqlmock, *MockEventPublisher, func()) {
	t.Helper()

	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)

	publisher := new(MockEventPublisher)
	ledger := NewLedgerService(db)
	catalog := NewCatalogService(db)
	settings := NewSettingsService(db)
	svc := NewSettlementService(db, ledger, catalog, settings, publisher)

	return svc, dbMock, publisher, func() { db.Close() }
}

func TestSettleWalletPurchase(t *testing.T) {
	t.Run("settles and splits the commission", func(t *testing.T) {
		svc, dbMock, publisher, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingApproved))

		// Accounts lock in lexical order regardless of role.
		expectAccountLock(dbMock, "buyer1")
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")

		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectBalance(dbMock, "buyer1", 100000)

		dbMock.ExpectExec("INSERT INTO purchases").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLedgerEntry(dbMock, "buyer1")
		expectLedgerEntry(dbMock, "seller1")
		expectLedgerEntry(dbMock, "platform")
		dbMock.ExpectExec("UPDATE listings").WithArgs(int64(90000), "listing1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		publisher.On("Publish", TopicSettlementCompleted, mock.Anything).Return(nil)

		purchase, err := svc.SettleWalletPurchase("buyer1", "listing1")
		require.NoError(t, err)
		assert.Equal(t, int64(99000), purchase.GrossAmount)
		assert.Equal(t, int64(9000), purchase.Commission)
		assert.Equal(t, int64(90000), purchase.SellerEarnings)
		assert.Equal(t, models.MethodWallet, purchase.Method)
		assert.Equal(t, models.PurchaseCompleted, purchase.Status)

		assert.NoError(t, dbMock.ExpectationsWereMet())
		publisher.AssertExpectations(t)
	})

	t.Run("insufficient balance leaves the ledger untouched", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingApproved))
		expectAccountLock(dbMock, "buyer1")
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")
		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectBalance(dbMock, "buyer1", 1000)
		dbMock.ExpectRollback()

		_, err := svc.SettleWalletPurchase("buyer1", "listing1")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeInsufficientFunds, de.Code)
		assert.Equal(t, "You need ₹990.00 but have ₹10.00", de.Message)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("second purchase of the same listing is rejected", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingApproved))
		expectAccountLock(dbMock, "buyer1")
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")
		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectRollback()

		_, err := svc.SettleWalletPurchase("buyer1", "listing1")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeAlreadyPurchased, de.Code)
	})

	t.Run("unique index backstops a racing duplicate", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingApproved))
		expectAccountLock(dbMock, "buyer1")
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")
		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectBalance(dbMock, "buyer1", 100000)
		dbMock.ExpectExec("INSERT INTO purchases").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_completed_purchase"})
		dbMock.ExpectRollback()

		_, err := svc.SettleWalletPurchase("buyer1", "listing1")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeAlreadyPurchased, de.Code)
	})

	t.Run("unapproved listing cannot be bought", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingPending))
		dbMock.ExpectRollback()

		_, err := svc.SettleWalletPurchase("buyer1", "listing1")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeListingUnavailable, de.Code)
	})

	t.Run("zero commission skips the platform credit", func(t *testing.T) {
		svc, dbMock, publisher, closeDB := newSettlementFixture(t)
		defer closeDB()

		// Listing priced without a stored base; backward split at 0%.
		expectSettings(dbMock, 0, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", nil, 99000, models.ListingApproved))
		expectAccountLock(dbMock, "buyer1")
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")
		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectBalance(dbMock, "buyer1", 100000)
		dbMock.ExpectExec("INSERT INTO purchases").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLedgerEntry(dbMock, "buyer1")
		expectLedgerEntry(dbMock, "seller1")
		// No platform entry at 0% commission.
		dbMock.ExpectExec("UPDATE listings").WithArgs(int64(99000), "listing1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		publisher.On("Publish", TopicSettlementCompleted, mock.Anything).Return(nil)

		purchase, err := svc.SettleWalletPurchase("buyer1", "listing1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), purchase.Commission)
		assert.Equal(t, int64(99000), purchase.SellerEarnings)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestSettleGatewayPurchase(t *testing.T) {
	t.Run("unverified payment is refused before any query", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		_, err := svc.SettleGatewayPurchase("buyer1", "listing1", false)
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeNotAuthorized, de.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("settles without a buyer debit", func(t *testing.T) {
		svc, dbMock, publisher, closeDB := newSettlementFixture(t)
		defer closeDB()

		expectSettings(dbMock, 10, "platform")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM listings").WithArgs("listing1").
			WillReturnRows(listingRows("listing1", "seller1", "Phone", int64(90000), 99000, models.ListingApproved))

		// The buyer's wallet is not part of a gateway settlement.
		expectAccountLock(dbMock, "platform")
		expectAccountLock(dbMock, "seller1")

		dbMock.ExpectQuery("SELECT EXISTS").WithArgs("buyer1", "listing1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		dbMock.ExpectExec("INSERT INTO purchases").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLedgerEntry(dbMock, "seller1")
		expectLedgerEntry(dbMock, "platform")
		dbMock.ExpectExec("UPDATE listings").WithArgs(int64(90000), "listing1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		publisher.On("Publish", TopicSettlementCompleted, mock.Anything).Return(nil)

		purchase, err := svc.SettleGatewayPurchase("buyer1", "listing1", true)
		require.NoError(t, err)
		assert.Equal(t, models.MethodGateway, purchase.Method)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		publisher.AssertExpectations(t)
	})
}

func TestRefund(t *testing.T) {
	purchaseCols := []string{
		"id", "buyer_id", "seller_id", "listing_id", "channel_id",
		"gross_amount", "commission", "seller_earnings", "method", "status", "created_at",
	}

	t.Run("flips status and rolls back listing counters", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM purchases").WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(purchaseCols).
				AddRow("p1", "buyer1", "seller1", "listing1", nil,
					int64(99000), int64(9000), int64(90000),
					models.MethodWallet, models.PurchaseCompleted, time.Now()))
		dbMock.ExpectExec("UPDATE purchases").WithArgs(models.PurchaseRefunded, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE listings").WithArgs(int64(90000), "listing1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		purchase, err := svc.Refund("p1", "item not delivered")
		require.NoError(t, err)
		assert.Equal(t, models.PurchaseRefunded, purchase.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("refunding twice fails", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM purchases").WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(purchaseCols).
				AddRow("p1", "buyer1", "seller1", "listing1", nil,
					int64(99000), int64(9000), int64(90000),
					models.MethodWallet, models.PurchaseRefunded, time.Now()))
		dbMock.ExpectRollback()

		_, err := svc.Refund("p1", "again")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeAlreadyRefunded, de.Code)
	})

	t.Run("unknown purchase", func(t *testing.T) {
		svc, dbMock, _, closeDB := newSettlementFixture(t)
		defer closeDB()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("FROM purchases").WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(purchaseCols))
		dbMock.ExpectRollback()

		_, err := svc.Refund("nope", "")
		de, ok := AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, CodeNotFound, de.Code)
	})
}
