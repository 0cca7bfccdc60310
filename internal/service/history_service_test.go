package service

import (
	"context"
	"testing"

	"ledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryService_OnlyCompletedVisible(t *testing.T) {
	fx := newFixture(t, defaultEngineConfig())
	ctx := context.Background()
	acc := fx.openAccount(t, "alice", "10")

	// 绕过引擎写入一条 pending 和一条 failed
	for _, fail := range []bool{false, true} {
		id, err := fx.store.Ledger().Append(ctx, &model.Transaction{
			TransactionNo: "TXN-manual",
			AccountID:     acc.ID,
			Kind:          model.TransactionKindDeposit,
			Direction:     model.DirectionCredit,
			Amount:        dec("1"),
			BalanceBefore: dec("10"),
			BalanceAfter:  dec("11"),
			Status:        model.TransactionStatusPending,
		})
		require.NoError(t, err)
		if fail {
			require.NoError(t, fx.store.Ledger().MarkFailed(ctx, id))
		}
	}

	records, err := fx.history.ListTransactions(ctx, acc.ID, 0, 0, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.TransactionStatusCompleted, records[0].Status)
}

func TestHistoryService_PaginationAndFilter(t *testing.T) {
	fx := newFixture(t, defaultEngineConfig())
	ctx := context.Background()
	acc := fx.openAccount(t, "alice", "0")

	for i := 0; i < 120; i++ {
		_, err := fx.transactions.Deposit(ctx, DepositRequest{AccountID: acc.ID, Amount: dec("1")})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := fx.transactions.Withdraw(ctx, WithdrawRequest{AccountID: acc.ID, Amount: dec("1")})
		require.NoError(t, err)
	}

	page, err := fx.history.ListTransactions(ctx, acc.ID, 0, 0, "")
	require.NoError(t, err)
	assert.Len(t, page, DefaultPageSize)
	assert.Equal(t, model.TransactionKindWithdrawal, page[0].Kind, "newest first")
	for i := 1; i < len(page); i++ {
		assert.False(t, page[i].CreatedAt.After(page[i-1].CreatedAt))
	}

	page, err = fx.history.ListTransactions(ctx, acc.ID, 0, 1000, "")
	require.NoError(t, err)
	assert.Len(t, page, MaxPageSize)

	page, err = fx.history.ListTransactions(ctx, acc.ID, -3, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	first, err := fx.history.ListTransactions(ctx, acc.ID, 0, 2, "")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, page[0].ID)

	withdrawals, err := fx.history.ListTransactions(ctx, acc.ID, 0, 100, model.TransactionKindWithdrawal)
	require.NoError(t, err)
	assert.Len(t, withdrawals, 5)

	tail, err := fx.history.ListTransactions(ctx, acc.ID, 124, 10, "")
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	empty, err := fx.history.ListTransactions(ctx, acc.ID, 500, 10, "")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestHistoryService_Errors(t *testing.T) {
	fx := newFixture(t, defaultEngineConfig())
	ctx := context.Background()
	acc := fx.openAccount(t, "alice", "0")

	_, err := fx.history.ListTransactions(ctx, acc.ID, 0, 10, "refund")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = fx.history.ListTransactions(ctx, "missing", 0, 10, "")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestNewHistoryService_Limits(t *testing.T) {
	svc := NewHistoryService(nil, 50, 20)
	assert.Equal(t, 20, svc.defaultLimit)
	assert.Equal(t, 20, svc.maxLimit)

	svc = NewHistoryService(nil, 0, 0)
	assert.Equal(t, DefaultPageSize, svc.defaultLimit)
	assert.Equal(t, MaxPageSize, svc.maxLimit)
}
