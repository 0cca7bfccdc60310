package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLedgerError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindInsufficientFunds, "balance 10, requested 20", nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("withdraw: %w", err)
	assert.ErrorIs(t, wrapped, ErrInsufficientFunds)
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
}

func TestLedgerError_UnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindStorageUnavailable, "storage unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetryable(t *testing.T) {
	retryable := []*LedgerError{ErrConflict, ErrStorageUnavailable}
	for _, e := range retryable {
		assert.True(t, IsRetryable(e), e.Kind)
	}

	permanent := []*LedgerError{
		ErrAccountNotFound, ErrDuplicateAccount, ErrRecipientNotFound, ErrSelfTransferNotAllowed,
		ErrInvalidAmount, ErrInvalidRequest, ErrInsufficientFunds, ErrAccountInactive,
	}
	for _, e := range permanent {
		assert.False(t, IsRetryable(e), e.Kind)
	}

	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestTransaction_Consistent(t *testing.T) {
	credit := &Transaction{
		Direction:     DirectionCredit,
		Amount:        decimal.RequireFromString("100"),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.RequireFromString("100"),
	}
	assert.True(t, credit.Consistent())
	assert.True(t, credit.SignedAmount().Equal(decimal.RequireFromString("100")))

	debit := &Transaction{
		Direction:     DirectionDebit,
		Amount:        decimal.RequireFromString("30.5"),
		BalanceBefore: decimal.RequireFromString("100"),
		BalanceAfter:  decimal.RequireFromString("69.5"),
	}
	assert.True(t, debit.Consistent())
	assert.True(t, debit.SignedAmount().Equal(decimal.RequireFromString("-30.5")))

	debit.BalanceAfter = decimal.RequireFromString("70")
	assert.False(t, debit.Consistent())
}

func TestEnums(t *testing.T) {
	assert.True(t, AccountCategorySavings.Valid())
	assert.True(t, AccountCategoryCurrent.Valid())
	assert.False(t, AccountCategory("checking").Valid())

	assert.True(t, TransactionKindTransfer.Valid())
	assert.False(t, TransactionKind("refund").Valid())

	assert.False(t, TransactionStatusPending.Terminal())
	assert.True(t, TransactionStatusCompleted.Terminal())
	assert.True(t, TransactionStatusFailed.Terminal())
}
