package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDomainErrors(t *testing.T) {
	t.Run("insufficient funds message is render-ready", func(t *testing.T) {
		err := ErrInsufficientFunds(99000, 1000)
		assert.Equal(t, CodeInsufficientFunds, err.Code)
		assert.Equal(t, "You need ₹990.00 but have ₹10.00", err.Message)
	})

	t.Run("unwraps through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("confirm deal: %w", ErrAlreadyCompleted())
		de, ok := AsDomainError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, CodeAlreadyCompleted, de.Code)
	})

	t.Run("plain errors are not domain errors", func(t *testing.T) {
		_, ok := AsDomainError(errors.New("connection reset"))
		assert.False(t, ok)
	})
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[string]int{
		CodeNotAuthorized:      http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeInsufficientFunds:  http.StatusUnprocessableEntity,
		CodeListingUnavailable: http.StatusUnprocessableEntity,
		CodeAlreadyPurchased:   http.StatusConflict,
		CodeAlreadyCompleted:   http.StatusConflict,
		CodeAlreadyDecided:     http.StatusConflict,
		CodeSellerNotMarked:    http.StatusConflict,
		CodeDuplicateWithdraw:  http.StatusConflict,
		CodeAlreadyRefunded:    http.StatusConflict,
		CodeInvalidState:       http.StatusConflict,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, httpStatus(code), "code %s", code)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("not a pq error")))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
}

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "₹0.00", FormatINR(0))
	assert.Equal(t, "₹9.90", FormatINR(990))
	assert.Equal(t, "₹990.50", FormatINR(99050))
	assert.Equal(t, "-₹1.05", FormatINR(-105))
}
