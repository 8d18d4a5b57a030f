package auth

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/storage/memory"
)

func TestOwnsAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	guard := NewGuard(store)

	account, err := models.NewAccount("u1", "checking", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, account))

	owns, err := guard.OwnsAccount(ctx, "u1", account.ID)
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = guard.OwnsAccount(ctx, "u2", account.ID)
	require.NoError(t, err)
	assert.False(t, owns)

	owns, err = guard.OwnsAccount(ctx, "u1", "no-such-account")
	require.NoError(t, err)
	assert.False(t, owns, "a missing account is simply not owned")
}
