// Package ledger implements the transactional ledger engine: the only
// component allowed to mutate account balances. Every operation is a bounded
// critical section over the accounts it touches, and the balance mutation
// plus the appended transaction record commit as one atomic unit through the
// store's Apply.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/auth"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models/events"
)

// TopicTransactionCompleted is where completed operations are announced.
const TopicTransactionCompleted = "transaction_completed"

const defaultLockWait = 2 * time.Second

// Ledger orchestrates deposits, withdrawals and transfers against a
// LedgerStore. A per-account lock table serializes mutations on the same
// account while operations on disjoint accounts run in parallel.
type Ledger struct {
	store     interfaces.LedgerStore
	guard     *auth.Guard
	publisher interfaces.EventPublisher
	locks     *lockTable
	lockWait  time.Duration
	logger    *slog.Logger
}

// NewLedger wires the engine. lockWait bounds how long an operation waits for
// an account lock before failing with ErrBusy; zero selects the default.
func NewLedger(store interfaces.LedgerStore, guard *auth.Guard, publisher interfaces.EventPublisher, logger *slog.Logger, lockWait time.Duration) *Ledger {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:     store,
		guard:     guard,
		publisher: publisher,
		locks:     newLockTable(),
		lockWait:  lockWait,
		logger:    logger,
	}
}

// Deposit credits amount to destinationAccountID, which must belong to
// actingUserID and be active.
func (l *Ledger) Deposit(ctx context.Context, actingUserID, destinationAccountID string, amount decimal.Decimal) (models.Transaction, error) {
	if amount.Sign() <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}

	if err := l.locks.acquire(ctx, destinationAccountID, l.lockWait); err != nil {
		return models.Transaction{}, err
	}
	defer l.locks.release(destinationAccountID)

	if err := l.authorize(ctx, actingUserID, destinationAccountID, ErrInvalidAccount); err != nil {
		return models.Transaction{}, err
	}

	record, err := models.NewDeposit(destinationAccountID, amount)
	if err != nil {
		return models.Transaction{}, foldConstructorError(err, ErrInvalidAccount)
	}

	changes := []interfaces.BalanceChange{
		{AccountID: destinationAccountID, Delta: amount, ExpectedOwner: actingUserID},
	}
	if err := l.store.Apply(ctx, record, changes); err != nil {
		return models.Transaction{}, l.mapApplyError(err, ErrInvalidAccount, ErrInvalidAccount)
	}

	l.completed(record)
	return record, nil
}

// Withdraw debits amount from sourceAccountID, which must belong to
// actingUserID. The balance check and the debit are one atomic step inside
// the store, so concurrent withdrawals cannot overdraw.
func (l *Ledger) Withdraw(ctx context.Context, actingUserID, sourceAccountID string, amount decimal.Decimal) (models.Transaction, error) {
	if amount.Sign() <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}

	if err := l.locks.acquire(ctx, sourceAccountID, l.lockWait); err != nil {
		return models.Transaction{}, err
	}
	defer l.locks.release(sourceAccountID)

	if err := l.authorize(ctx, actingUserID, sourceAccountID, ErrInvalidAccount); err != nil {
		return models.Transaction{}, err
	}

	record, err := models.NewWithdrawal(sourceAccountID, amount)
	if err != nil {
		return models.Transaction{}, foldConstructorError(err, ErrInvalidAccount)
	}

	changes := []interfaces.BalanceChange{
		{AccountID: sourceAccountID, Delta: amount.Neg(), ExpectedOwner: actingUserID},
	}
	if err := l.store.Apply(ctx, record, changes); err != nil {
		return models.Transaction{}, l.mapApplyError(err, ErrInvalidAccount, ErrInvalidAccount)
	}

	l.completed(record)
	return record, nil
}

// Transfer moves amount from sourceAccountID (owned by actingUserID) to
// destinationAccountID (any existing active account). Both balances change
// and one record is appended, or nothing happens at all. Locks are taken in
// ascending account-id order to rule out deadlock.
func (l *Ledger) Transfer(ctx context.Context, actingUserID, sourceAccountID, destinationAccountID string, amount decimal.Decimal) (models.Transaction, error) {
	if amount.Sign() <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}
	if sourceAccountID == destinationAccountID {
		// A self-transfer is rejected outright: the debit-then-credit pair
		// against one account is not a no-op under concurrent mutation.
		return models.Transaction{}, ErrInvalidTransfer
	}

	ids := []string{sourceAccountID, destinationAccountID}
	if err := l.locks.acquireAll(ctx, ids, l.lockWait); err != nil {
		return models.Transaction{}, err
	}
	defer l.locks.releaseAll(ids)

	if err := l.authorize(ctx, actingUserID, sourceAccountID, ErrInvalidSourceAccount); err != nil {
		return models.Transaction{}, err
	}
	destination, err := l.store.GetAccount(ctx, destinationAccountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Transaction{}, ErrInvalidDestinationAccount
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if destination.Status != models.AccountActive {
		return models.Transaction{}, ErrInvalidDestinationAccount
	}

	record, err := models.NewTransfer(sourceAccountID, destinationAccountID, amount)
	if err != nil {
		return models.Transaction{}, foldConstructorError(err, ErrInvalidTransfer)
	}

	changes := []interfaces.BalanceChange{
		{AccountID: sourceAccountID, Delta: amount.Neg(), ExpectedOwner: actingUserID},
		{AccountID: destinationAccountID, Delta: amount},
	}
	if err := l.store.Apply(ctx, record, changes); err != nil {
		return models.Transaction{}, l.mapApplyError(err, ErrInvalidSourceAccount, ErrInvalidDestinationAccount)
	}

	l.completed(record)
	return record, nil
}

// QueryTransactions returns the acting user's transaction history, optionally
// narrowed to one account and a date range, ordered by CreatedAt ascending.
func (l *Ledger) QueryTransactions(ctx context.Context, actingUserID, accountID string, start, end *time.Time) ([]models.Transaction, error) {
	accounts, err := l.store.ListAccountsForUser(ctx, actingUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	filter := interfaces.TransactionFilter{
		AccountID: accountID,
		Start:     start,
		End:       end,
	}
	for _, account := range accounts {
		filter.AccountIDs = append(filter.AccountIDs, account.ID)
	}
	if len(filter.AccountIDs) == 0 {
		return []models.Transaction{}, nil
	}

	records, err := l.store.QueryTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}

// GetTransaction returns one record if the acting user owns either side.
func (l *Ledger) GetTransaction(ctx context.Context, actingUserID, transactionID string) (models.Transaction, error) {
	record, err := l.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Transaction{}, fmt.Errorf("%w: transaction %s", ErrInvalidAccount, transactionID)
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, id := range []string{record.SourceAccountID, record.DestinationAccountID} {
		if id == "" {
			continue
		}
		owns, err := l.guard.OwnsAccount(ctx, actingUserID, id)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if owns {
			return record, nil
		}
	}
	return models.Transaction{}, fmt.Errorf("%w: transaction %s", ErrInvalidAccount, transactionID)
}

// CloseAccount marks the account closed under the same exclusivity as a
// debit, so it cannot race an in-flight mutation.
func (l *Ledger) CloseAccount(ctx context.Context, actingUserID, accountID string) error {
	if err := l.locks.acquire(ctx, accountID, l.lockWait); err != nil {
		return err
	}
	defer l.locks.release(accountID)

	owns, err := l.guard.OwnsAccount(ctx, actingUserID, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !owns {
		return fmt.Errorf("%w: account %s", ErrInvalidAccount, accountID)
	}

	if err := l.store.UpdateAccountStatus(ctx, accountID, models.AccountClosed); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// DeleteAccount removes an owned, empty account. It acquires the account lock
// first: deletion must never interleave with a debit or credit. The lock
// entry is discarded together with the account.
func (l *Ledger) DeleteAccount(ctx context.Context, actingUserID, accountID string) error {
	if err := l.locks.acquire(ctx, accountID, l.lockWait); err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			l.locks.release(accountID)
		}
	}()

	account, err := l.store.GetAccount(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("%w: account %s", ErrInvalidAccount, accountID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if account.UserID != actingUserID {
		return fmt.Errorf("%w: account %s", ErrInvalidAccount, accountID)
	}
	if !account.Balance.IsZero() {
		return fmt.Errorf("%w: account %s holds %s", ErrAccountNotEmpty, accountID, account.Balance)
	}

	if err := l.store.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.locks.forget(accountID)
	released = true
	return nil
}

// authorize verifies ownership and active status, reporting notOwned when the
// account is missing, foreign or closed. Run while holding the account lock.
func (l *Ledger) authorize(ctx context.Context, userID, accountID string, notOwned error) error {
	owns, err := l.guard.OwnsAccount(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !owns {
		return fmt.Errorf("%w: account %s", notOwned, accountID)
	}

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if account.Status != models.AccountActive {
		return fmt.Errorf("%w: account %s is %s", notOwned, accountID, account.Status)
	}
	return nil
}

// foldConstructorError maps record-constructor failures onto the caller
// facing taxonomy: identity problems fold to accountErr, everything else is
// an amount problem.
func foldConstructorError(err error, accountErr error) error {
	if errors.Is(err, models.ErrMissingAccountID) || errors.Is(err, models.ErrSameAccount) {
		return fmt.Errorf("%w: %v", accountErr, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
}

// mapApplyError folds store sentinels into the caller-facing taxonomy. The
// engine validated both accounts under their locks, so a store-level miss is
// still translated rather than leaked.
func (l *Ledger) mapApplyError(err error, sourceErr, destinationErr error) error {
	switch {
	case errors.Is(err, interfaces.ErrInsufficientFunds):
		return fmt.Errorf("%w", ErrInsufficientFunds)
	case errors.Is(err, interfaces.ErrUnauthorized):
		return fmt.Errorf("%w: %v", sourceErr, err)
	case errors.Is(err, interfaces.ErrNotFound):
		return fmt.Errorf("%w: %v", destinationErr, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

// completed announces a committed operation. Publishing is best effort: the
// balances and the record are already durable, so a broker hiccup is logged
// and swallowed.
func (l *Ledger) completed(record models.Transaction) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionCompleted{
		TransactionID:        record.ID,
		TransactionType:      string(record.Type),
		SourceAccountID:      record.SourceAccountID,
		DestinationAccountID: record.DestinationAccountID,
		Amount:               record.Amount,
		OccurredAt:           record.CreatedAt,
	}
	if err := l.publisher.Publish(TopicTransactionCompleted, event); err != nil {
		l.logger.Error("failed to publish transaction event",
			slog.String("transaction_id", record.ID),
			slog.String("error", err.Error()))
	}
}
