package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Error codes for expected, caller-recoverable conditions. Anything else is
// a store-level failure and surfaces as a generic 500 without detail.
const (
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeListingUnavailable = "LISTING_UNAVAILABLE"
	CodeAlreadyPurchased   = "ALREADY_PURCHASED"
	CodeAlreadyCompleted   = "ALREADY_COMPLETED"
	CodeAlreadyDecided     = "ALREADY_DECIDED"
	CodeSellerNotMarked    = "SELLER_NOT_MARKED"
	CodeDuplicateWithdraw  = "DUPLICATE_PENDING_WITHDRAWAL"
	CodeAlreadyRefunded    = "ALREADY_REFUNDED"
	CodeInvalidState       = "INVALID_STATE"
)

// DomainError carries a machine code plus a message ready to render to the
// user without translation in the caller.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func newDomainError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func ErrNotAuthorized(action string) *DomainError {
	return newDomainError(CodeNotAuthorized, "You are not allowed to %s", action)
}

func ErrNotFound(entity string) *DomainError {
	return newDomainError(CodeNotFound, "%s not found", entity)
}

func ErrInsufficientFunds(need, have int64) *DomainError {
	return newDomainError(CodeInsufficientFunds, "You need %s but have %s", FormatINR(need), FormatINR(have))
}

func ErrListingUnavailable() *DomainError {
	return newDomainError(CodeListingUnavailable, "This listing is not available for purchase")
}

func ErrAlreadyPurchased() *DomainError {
	return newDomainError(CodeAlreadyPurchased, "You have already purchased this listing")
}

func ErrAlreadyCompleted() *DomainError {
	return newDomainError(CodeAlreadyCompleted, "This deal has already been completed")
}

func ErrAlreadyDecided() *DomainError {
	return newDomainError(CodeAlreadyDecided, "This request has already been decided")
}

func ErrSellerNotMarked() *DomainError {
	return newDomainError(CodeSellerNotMarked, "The seller has not marked this deal as done yet")
}

func ErrAlreadyRefunded() *DomainError {
	return newDomainError(CodeAlreadyRefunded, "This purchase has already been refunded")
}

func ErrDuplicatePendingWithdrawal() *DomainError {
	return newDomainError(CodeDuplicateWithdraw, "You already have a pending withdrawal request")
}

// AsDomainError unwraps err into a *DomainError if it is one.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// httpStatus maps an error code to the response status used by all handlers.
func httpStatus(code string) int {
	switch code {
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientFunds, CodeListingUnavailable:
		return http.StatusUnprocessableEntity
	case CodeAlreadyPurchased, CodeAlreadyCompleted, CodeAlreadyDecided,
		CodeSellerNotMarked, CodeDuplicateWithdraw, CodeAlreadyRefunded, CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// isUniqueViolation reports whether err is a Postgres 23505. Settlement
// idempotence rests on partial unique indexes, so this is how a lost race
// surfaces.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// FormatINR renders an amount in paise as a rupee string, e.g. 99050 -> "₹990.50".
func FormatINR(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}
