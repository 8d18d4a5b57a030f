package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
)

// Store-level sentinel errors. Implementations wrap them with detail via
// fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("account owned by another user")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicate         = errors.New("duplicate entry")
)

// BalanceChange is one side of a ledger operation: apply Delta to the
// account's balance. When ExpectedOwner is non-empty the store re-checks
// ownership inside the same atomic section as the write.
type BalanceChange struct {
	AccountID     string
	Delta         decimal.Decimal
	ExpectedOwner string
}

// TransactionFilter selects transactions visible to a caller. AccountIDs is
// the visibility set (any transaction touching one of them matches);
// AccountID optionally narrows to a single account; Start/End bound
// CreatedAt inclusively when non-nil.
type TransactionFilter struct {
	AccountIDs []string
	AccountID  string
	Start      *time.Time
	End        *time.Time
}

// AccountStore holds account records keyed by id. MutateBalance is atomic
// with respect to concurrent calls on the same account: the owner check, the
// non-negative check and the write happen in one atomic section.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	AccountExists(ctx context.Context, id string) (bool, error)
	ListAccountsForUser(ctx context.Context, userID string) ([]models.Account, error)
	CreateAccount(ctx context.Context, account models.Account) error
	UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error
	UpdateAccountType(ctx context.Context, id string, accountType string) error
	DeleteAccount(ctx context.Context, id string) error
	MutateBalance(ctx context.Context, id string, delta decimal.Decimal, expectedOwner string) (decimal.Decimal, error)
}

// TransactionLog is the append-only audit trail. Records are immutable once
// appended. QueryTransactions returns results ordered by CreatedAt ascending
// and each call returns an independent slice, so iteration is restartable.
type TransactionLog interface {
	Append(ctx context.Context, record models.Transaction) (string, error)
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
}

// CredentialStore maps hashed API keys to user ids for the request layer.
type CredentialStore interface {
	SaveAPIKey(ctx context.Context, userID, keyHash string) error
	LookupAPIKey(ctx context.Context, keyHash string) (string, error)
}

// LedgerStore is the storage contract the ledger engine runs against.
//
// Apply is the atomic unit of a ledger operation: every balance change and
// the appended record become visible together, or not at all. A change that
// would drive a balance negative, targets a missing account, or fails its
// owner check aborts the whole unit with no side effects.
type LedgerStore interface {
	AccountStore
	TransactionLog
	CredentialStore

	Apply(ctx context.Context, record models.Transaction, changes []BalanceChange) error
}
