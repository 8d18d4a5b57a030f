package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
)

func newAccount(t *testing.T, store *Store, userID string, balance int64) models.Account {
	t.Helper()
	account, err := models.NewAccount(userID, "checking", decimal.NewFromInt(balance))
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := newAccount(t, store, "u1", 10)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, models.AccountActive, got.Status)

	exists, err := store.AccountExists(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.CreateAccount(ctx, account)
	assert.ErrorIs(t, err, interfaces.ErrDuplicate)

	require.NoError(t, store.UpdateAccountStatus(ctx, account.ID, models.AccountClosed))
	got, err = store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountClosed, got.Status)

	require.NoError(t, store.UpdateAccountType(ctx, account.ID, "savings"))
	got, err = store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "savings", got.Type)
	assert.ErrorIs(t, store.UpdateAccountType(ctx, "missing", "savings"), interfaces.ErrNotFound)

	require.NoError(t, store.DeleteAccount(ctx, account.ID))
	_, err = store.GetAccount(ctx, account.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	list, err := store.ListAccountsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMutateBalance(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := newAccount(t, store, "u1", 100)

	balance, err := store.MutateBalance(ctx, account.ID, decimal.NewFromInt(-30), "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(70)))

	_, err = store.MutateBalance(ctx, account.ID, decimal.NewFromInt(-100), "")
	assert.ErrorIs(t, err, interfaces.ErrInsufficientFunds)

	_, err = store.MutateBalance(ctx, account.ID, decimal.NewFromInt(-10), "intruder")
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	_, err = store.MutateBalance(ctx, "missing", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// Failed mutations leave the balance untouched.
	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(70)))
}

func TestMutateBalanceConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := newAccount(t, store, "u1", 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MutateBalance(ctx, account.ID, decimal.NewFromInt(1), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := newAccount(t, store, "u1", 100)
	destination := newAccount(t, store, "u2", 50)

	record, err := models.NewTransfer(source.ID, destination.ID, decimal.NewFromInt(200))
	require.NoError(t, err)

	// Source cannot cover the debit: neither side moves, nothing is logged.
	err = store.Apply(ctx, record, []interfaces.BalanceChange{
		{AccountID: source.ID, Delta: decimal.NewFromInt(-200), ExpectedOwner: "u1"},
		{AccountID: destination.ID, Delta: decimal.NewFromInt(200)},
	})
	require.ErrorIs(t, err, interfaces.ErrInsufficientFunds)

	got, _ := store.GetAccount(ctx, source.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
	got, _ = store.GetAccount(ctx, destination.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)))
	_, err = store.GetTransaction(ctx, record.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// The credit side failing must also leave the debit unapplied.
	record2, err := models.NewTransfer(source.ID, destination.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	err = store.Apply(ctx, record2, []interfaces.BalanceChange{
		{AccountID: source.ID, Delta: decimal.NewFromInt(-10), ExpectedOwner: "u1"},
		{AccountID: "missing", Delta: decimal.NewFromInt(10)},
	})
	require.ErrorIs(t, err, interfaces.ErrNotFound)
	got, _ = store.GetAccount(ctx, source.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

// A change set may name the same account more than once; later changes must
// be checked against the staged balance, not the original, and a failure on
// any of them must leave the account untouched.
func TestApplyAccumulatesRepeatedAccounts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := newAccount(t, store, "u1", 100)

	record, err := models.NewWithdrawal(account.ID, decimal.NewFromInt(120))
	require.NoError(t, err)
	err = store.Apply(ctx, record, []interfaces.BalanceChange{
		{AccountID: account.ID, Delta: decimal.NewFromInt(-60), ExpectedOwner: "u1"},
		{AccountID: account.ID, Delta: decimal.NewFromInt(-60), ExpectedOwner: "u1"},
	})
	require.ErrorIs(t, err, interfaces.ErrInsufficientFunds)

	got, _ := store.GetAccount(ctx, account.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)), "failed Apply must leave no partial state")
	_, err = store.GetTransaction(ctx, record.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// A net that stays non-negative commits as one unit.
	record2, err := models.NewWithdrawal(account.ID, decimal.NewFromInt(30))
	require.NoError(t, err)
	require.NoError(t, store.Apply(ctx, record2, []interfaces.BalanceChange{
		{AccountID: account.ID, Delta: decimal.NewFromInt(-60), ExpectedOwner: "u1"},
		{AccountID: account.ID, Delta: decimal.NewFromInt(30), ExpectedOwner: "u1"},
	}))
	got, _ = store.GetAccount(ctx, account.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(70)))
}

func TestApplyCommitsBalancesAndRecordTogether(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := newAccount(t, store, "u1", 100)
	destination := newAccount(t, store, "u2", 0)

	record, err := models.NewTransfer(source.ID, destination.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	require.NoError(t, store.Apply(ctx, record, []interfaces.BalanceChange{
		{AccountID: source.ID, Delta: decimal.NewFromInt(-40), ExpectedOwner: "u1"},
		{AccountID: destination.ID, Delta: decimal.NewFromInt(40)},
	}))

	got, err := store.GetTransaction(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	err = store.Apply(ctx, record, nil)
	assert.ErrorIs(t, err, interfaces.ErrDuplicate)
}

func TestQueryTransactionsFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a := newAccount(t, store, "u1", 0)
	b := newAccount(t, store, "u1", 0)
	foreign := newAccount(t, store, "u2", 0)

	base := time.Now().Add(-time.Hour)
	appendAt := func(record models.Transaction, at time.Time) {
		record.CreatedAt = at
		_, err := store.Append(ctx, record)
		require.NoError(t, err)
	}

	deposit, _ := models.NewDeposit(a.ID, decimal.NewFromInt(10))
	appendAt(deposit, base)
	withdrawal, _ := models.NewWithdrawal(b.ID, decimal.NewFromInt(5))
	appendAt(withdrawal, base.Add(time.Minute))
	transfer, _ := models.NewTransfer(a.ID, b.ID, decimal.NewFromInt(3))
	appendAt(transfer, base.Add(2*time.Minute))
	foreignTx, _ := models.NewDeposit(foreign.ID, decimal.NewFromInt(99))
	appendAt(foreignTx, base.Add(3*time.Minute))

	visible := []string{a.ID, b.ID}

	records, err := store.QueryTransactions(ctx, interfaces.TransactionFilter{AccountIDs: visible})
	require.NoError(t, err)
	require.Len(t, records, 3, "foreign transactions stay invisible")
	assert.Equal(t, deposit.ID, records[0].ID)
	assert.Equal(t, withdrawal.ID, records[1].ID)
	assert.Equal(t, transfer.ID, records[2].ID)

	records, err = store.QueryTransactions(ctx, interfaces.TransactionFilter{
		AccountIDs: visible,
		AccountID:  b.ID,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, withdrawal.ID, records[0].ID)
	assert.Equal(t, transfer.ID, records[1].ID)

	start := base.Add(30 * time.Second)
	end := base.Add(90 * time.Second)
	records, err = store.QueryTransactions(ctx, interfaces.TransactionFilter{
		AccountIDs: visible,
		Start:      &start,
		End:        &end,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, withdrawal.ID, records[0].ID)
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.SaveAPIKey(ctx, "u1", "hash-1"))

	userID, err := store.LookupAPIKey(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = store.LookupAPIKey(ctx, "unknown")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
