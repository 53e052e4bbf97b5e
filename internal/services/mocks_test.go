package services

import (
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/mock"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(topic string, event any) error {
	args := m.Called(topic, event)
	return args.Error(0)
}

type MockSystemMessenger struct {
	mock.Mock
}

func (m *MockSystemMessenger) SendSystemMessage(channelID, text string) error {
	args := m.Called(channelID, text)
	return args.Error(0)
}

// expectSettings queues the singleton settings read.
func expectSettings(dbMock sqlmock.Sqlmock, percent float64, platformAccountID string) {
	dbMock.ExpectQuery("FROM platform_settings").WillReturnRows(
		sqlmock.NewRows([]string{"commission_percent", "platform_account_id", "accepted_addresses"}).
			AddRow(percent, platformAccountID, []byte(`{}`)))
}

// expectAccountLock queues the upsert-then-lock pair for one account.
func expectAccountLock(dbMock sqlmock.Sqlmock, accountID string) {
	dbMock.ExpectExec("INSERT INTO accounts").WithArgs(accountID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectQuery("SELECT id, balance, updated_at").WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "updated_at"}).
			AddRow(accountID, int64(0), time.Now()))
}

// expectBalance queues the signed-sum balance read for one account.
func expectBalance(dbMock sqlmock.Sqlmock, accountID string, balance int64) {
	dbMock.ExpectQuery("FROM ledger_entries").WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(balance))
}

// expectLedgerEntry queues the entry insert and the cached-balance refresh.
func expectLedgerEntry(dbMock sqlmock.Sqlmock, accountID string) {
	dbMock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("UPDATE accounts").WithArgs(accountID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func listingRows(id, sellerID, title string, basePrice any, displayPrice int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "seller_id", "title", "base_price", "display_price",
		"units_sold", "seller_earnings_total", "status", "created_at",
	}).AddRow(id, sellerID, title, basePrice, displayPrice, 0, int64(0), status, time.Now())
}

func channelRows(id, listingID, buyerID, sellerID, channelStatus, dealStatus string, sellerMarked bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "listing_id", "buyer_id", "seller_id", "admin_id",
		"channel_status", "deal_status", "seller_marked_done", "admin_requested",
		"created_at", "updated_at",
	}).AddRow(id, listingID, buyerID, sellerID, "", channelStatus, dealStatus, sellerMarked, false, now, now)
}
