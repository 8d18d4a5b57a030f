package ledger

import (
	"errors"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
)

// Caller-facing error taxonomy. Handlers match these with errors.Is and map
// them to stable response codes; raw storage errors never reach a caller
// except wrapped in ErrStorage.
var (
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrInvalidAccount            = errors.New("invalid account")
	ErrInvalidSourceAccount      = errors.New("invalid source account")
	ErrInvalidDestinationAccount = errors.New("invalid destination account")
	ErrInvalidTransfer           = errors.New("cannot transfer to the same account")
	ErrAccountNotEmpty           = errors.New("account balance must be zero")
	ErrBusy                      = errors.New("account busy, try again")
	ErrStorage                   = errors.New("storage failure")

	// ErrInsufficientFunds is decided inside the store's atomic section and
	// surfaces unchanged.
	ErrInsufficientFunds = interfaces.ErrInsufficientFunds
)

// Retryable reports whether the caller may retry the operation as-is. Only
// lock contention is retryable; everything else is a terminal verdict.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
