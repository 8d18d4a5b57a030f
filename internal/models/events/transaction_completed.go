package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionCompleted struct {
	TransactionID        string          `json:"transaction_id"`
	TransactionType      string          `json:"transaction_type"`
	SourceAccountID      string          `json:"source_account_id,omitempty"`
	DestinationAccountID string          `json:"destination_account_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	OccurredAt           time.Time       `json:"occurred_at"`
}
