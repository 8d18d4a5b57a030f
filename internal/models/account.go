package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
)

var (
	ErrMissingOwner      = errors.New("account owner is required")
	ErrNegativeBalance   = errors.New("balance must not be negative")
	ErrMissingAccountID  = errors.New("account id is required")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrSameAccount       = errors.New("source and destination are the same account")
)

// Account holds the balance a user owns. The balance is only ever mutated
// through the ledger engine; everywhere else an Account is a read-only
// snapshot.
type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"account_type"`
	Balance   decimal.Decimal `json:"balance"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewAccount builds an active account with a fresh id. The initial balance
// must not be negative.
func NewAccount(userID, accountType string, initial decimal.Decimal) (Account, error) {
	if strings.TrimSpace(userID) == "" {
		return Account{}, ErrMissingOwner
	}
	if initial.IsNegative() {
		return Account{}, ErrNegativeBalance
	}
	if accountType == "" {
		accountType = "checking"
	}
	return Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      accountType,
		Balance:   initial,
		Status:    AccountActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}
