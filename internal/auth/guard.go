// Package auth implements the ownership check the ledger engine runs before
// debiting an account.
package auth

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
)

// Guard answers "does this user own this account". It is a pure predicate
// over the account store and performs no mutation.
type Guard struct {
	accounts interfaces.AccountStore
}

func NewGuard(accounts interfaces.AccountStore) *Guard {
	return &Guard{accounts: accounts}
}

// OwnsAccount reports whether accountID exists and belongs to userID. A
// missing account is not an error, it is simply not owned.
func (g *Guard) OwnsAccount(ctx context.Context, userID, accountID string) (bool, error) {
	account, err := g.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return account.UserID == userID, nil
}
