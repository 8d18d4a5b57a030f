package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccount(t *testing.T) {
	account, err := NewAccount("u1", "savings", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, AccountActive, account.Status)
	assert.Equal(t, "savings", account.Type)

	_, err = NewAccount("", "savings", decimal.Zero)
	assert.ErrorIs(t, err, ErrMissingOwner)

	_, err = NewAccount("u1", "savings", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrNegativeBalance)

	account, err = NewAccount("u1", "", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "checking", account.Type)
}

func TestTransactionConstructors(t *testing.T) {
	amount := decimal.NewFromInt(5)

	deposit, err := NewDeposit("acc-1", amount)
	require.NoError(t, err)
	assert.Equal(t, TypeDeposit, deposit.Type)
	assert.Empty(t, deposit.SourceAccountID)
	assert.Equal(t, "acc-1", deposit.DestinationAccountID)
	assert.Equal(t, StatusCompleted, deposit.Status)

	withdrawal, err := NewWithdrawal("acc-1", amount)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", withdrawal.SourceAccountID)
	assert.Empty(t, withdrawal.DestinationAccountID)

	transfer, err := NewTransfer("acc-1", "acc-2", amount)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", transfer.SourceAccountID)
	assert.Equal(t, "acc-2", transfer.DestinationAccountID)

	_, err = NewDeposit("", amount)
	assert.ErrorIs(t, err, ErrMissingAccountID)
	_, err = NewWithdrawal("acc-1", decimal.Zero)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
	_, err = NewTransfer("acc-1", "acc-1", amount)
	assert.ErrorIs(t, err, ErrSameAccount)
	_, err = NewTransfer("acc-1", "acc-2", decimal.NewFromInt(-3))
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}
