package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

type TransactionStatus string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"

	// StatusCompleted is the only externally visible status: a transaction
	// record exists only once the balance mutation it describes committed.
	StatusCompleted TransactionStatus = "completed"
)

// Transaction is the immutable audit record of a completed ledger operation.
// SourceAccountID is empty for deposits, DestinationAccountID is empty for
// withdrawals; a transfer carries both.
type Transaction struct {
	ID                   string            `json:"id"`
	Type                 TransactionType   `json:"transaction_type"`
	Amount               decimal.Decimal   `json:"amount"`
	SourceAccountID      string            `json:"source_account_id,omitempty"`
	DestinationAccountID string            `json:"destination_account_id,omitempty"`
	Status               TransactionStatus `json:"status"`
	CreatedAt            time.Time         `json:"created_at"`
}

// NewDeposit builds a deposit record crediting destinationAccountID.
func NewDeposit(destinationAccountID string, amount decimal.Decimal) (Transaction, error) {
	if destinationAccountID == "" {
		return Transaction{}, ErrMissingAccountID
	}
	return newTransaction(TypeDeposit, "", destinationAccountID, amount)
}

// NewWithdrawal builds a withdrawal record debiting sourceAccountID.
func NewWithdrawal(sourceAccountID string, amount decimal.Decimal) (Transaction, error) {
	if sourceAccountID == "" {
		return Transaction{}, ErrMissingAccountID
	}
	return newTransaction(TypeWithdrawal, sourceAccountID, "", amount)
}

// NewTransfer builds a transfer record moving amount between two distinct
// accounts.
func NewTransfer(sourceAccountID, destinationAccountID string, amount decimal.Decimal) (Transaction, error) {
	if sourceAccountID == "" || destinationAccountID == "" {
		return Transaction{}, ErrMissingAccountID
	}
	if sourceAccountID == destinationAccountID {
		return Transaction{}, ErrSameAccount
	}
	return newTransaction(TypeTransfer, sourceAccountID, destinationAccountID, amount)
}

func newTransaction(t TransactionType, source, destination string, amount decimal.Decimal) (Transaction, error) {
	if amount.Sign() <= 0 {
		return Transaction{}, ErrNonPositiveAmount
	}
	return Transaction{
		ID:                   uuid.NewString(),
		Type:                 t,
		Amount:               amount,
		SourceAccountID:      source,
		DestinationAccountID: destination,
		Status:               StatusCompleted,
		CreatedAt:            time.Now().UTC(),
	}, nil
}
