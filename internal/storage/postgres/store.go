// Package postgres is the relational LedgerStore. Apply runs the balance
// updates and the transaction insert in one sql transaction, so the database
// guarantees the atomic unit even across process crashes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	account_type TEXT NOT NULL,
	balance      NUMERIC(20,4) NOT NULL CHECK (balance >= 0),
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS accounts_user_id_idx ON accounts (user_id);

CREATE TABLE IF NOT EXISTS transactions (
	id                     TEXT PRIMARY KEY,
	transaction_type       TEXT NOT NULL,
	amount                 NUMERIC(20,4) NOT NULL CHECK (amount > 0),
	source_account_id      TEXT,
	destination_account_id TEXT,
	status                 TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_source_idx ON transactions (source_account_id);
CREATE INDEX IF NOT EXISTS transactions_destination_idx ON transactions (destination_account_id);
CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at);

CREATE TABLE IF NOT EXISTS api_keys (
	key_hash   TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables on first start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT id, user_id, account_type, balance, status, created_at
	FROM accounts WHERE id = $1`

	var account models.Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.Type,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *Store) AccountExists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM accounts WHERE id = $1 LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID string) ([]models.Account, error) {
	const query = `SELECT id, user_id, account_type, balance, status, created_at
	FROM accounts WHERE user_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Type,
			&account.Balance,
			&account.Status,
			&account.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, user_id, account_type, balance, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.UserID, account.Type, account.Balance, account.Status, account.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s", interfaces.ErrDuplicate, account.ID)
	}
	return err
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	const query = `UPDATE accounts SET status = $1 WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

func (s *Store) UpdateAccountType(ctx context.Context, id string, accountType string) error {
	const query = `UPDATE accounts SET account_type = $1 WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, accountType, id)
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	const query = `DELETE FROM accounts WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

// MutateBalance applies delta in a single guarded UPDATE: the statement only
// matches when the resulting balance stays non-negative (and the owner
// matches, when requested), so check and write are one atomic step.
func (s *Store) MutateBalance(ctx context.Context, id string, delta decimal.Decimal, expectedOwner string) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	balance, err := mutateInTx(ctx, tx, interfaces.BalanceChange{
		AccountID:     id,
		Delta:         delta,
		ExpectedOwner: expectedOwner,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, tx.Commit()
}

func mutateInTx(ctx context.Context, tx *sql.Tx, change interfaces.BalanceChange) (decimal.Decimal, error) {
	const query = `UPDATE accounts
	SET balance = balance + $1::numeric
	WHERE id = $2
	  AND balance + $1::numeric >= 0
	  AND ($3 = '' OR user_id = $3)
	RETURNING balance`

	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, query, change.Delta, change.AccountID, change.ExpectedOwner).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, diagnoseMiss(ctx, tx, change)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// diagnoseMiss decides why the guarded UPDATE matched nothing. Runs inside
// the same transaction, so the row state it sees is the state the UPDATE saw.
func diagnoseMiss(ctx context.Context, tx *sql.Tx, change interfaces.BalanceChange) error {
	const query = `SELECT user_id, balance FROM accounts WHERE id = $1`

	var owner string
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, query, change.AccountID).Scan(&owner, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, change.AccountID)
	}
	if err != nil {
		return err
	}
	if change.ExpectedOwner != "" && owner != change.ExpectedOwner {
		return fmt.Errorf("%w: account %s", interfaces.ErrUnauthorized, change.AccountID)
	}
	return fmt.Errorf("%w: account %s has %s, change %s",
		interfaces.ErrInsufficientFunds, change.AccountID, balance, change.Delta)
}

// Apply commits every balance change and the record in one sql transaction.
func (s *Store) Apply(ctx context.Context, record models.Transaction, changes []interfaces.BalanceChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, change := range changes {
		if _, err := mutateInTx(ctx, tx, change); err != nil {
			return err
		}
	}
	if err := appendInTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit()
}

func appendInTx(ctx context.Context, tx *sql.Tx, record models.Transaction) error {
	const query = `INSERT INTO transactions
	(id, transaction_type, amount, source_account_id, destination_account_id, status, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`

	_, err := tx.ExecContext(ctx, query,
		record.ID,
		record.Type,
		record.Amount,
		record.SourceAccountID,
		record.DestinationAccountID,
		record.Status,
		record.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", interfaces.ErrDuplicate, record.ID)
	}
	return err
}

func (s *Store) Append(ctx context.Context, record models.Transaction) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := appendInTx(ctx, tx, record); err != nil {
		return "", err
	}
	return record.ID, tx.Commit()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	const query = `SELECT id, transaction_type, amount,
	COALESCE(source_account_id, ''), COALESCE(destination_account_id, ''), status, created_at
	FROM transactions WHERE id = $1`

	var record models.Transaction
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Type,
		&record.Amount,
		&record.SourceAccountID,
		&record.DestinationAccountID,
		&record.Status,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("%w: transaction %s", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return record, nil
}

func (s *Store) QueryTransactions(ctx context.Context, filter interfaces.TransactionFilter) ([]models.Transaction, error) {
	const query = `SELECT id, transaction_type, amount,
	COALESCE(source_account_id, ''), COALESCE(destination_account_id, ''), status, created_at
	FROM transactions
	WHERE (source_account_id = ANY($1) OR destination_account_id = ANY($1))
	  AND ($2 = '' OR source_account_id = $2 OR destination_account_id = $2)
	  AND ($3::timestamptz IS NULL OR created_at >= $3)
	  AND ($4::timestamptz IS NULL OR created_at <= $4)
	ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query,
		pq.Array(filter.AccountIDs), filter.AccountID, filter.Start, filter.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.Transaction, 0)
	for rows.Next() {
		var record models.Transaction
		if err := rows.Scan(
			&record.ID,
			&record.Type,
			&record.Amount,
			&record.SourceAccountID,
			&record.DestinationAccountID,
			&record.Status,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) SaveAPIKey(ctx context.Context, userID, keyHash string) error {
	const query = `INSERT INTO api_keys (key_hash, user_id) VALUES ($1, $2)
	ON CONFLICT (key_hash) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, keyHash, userID)
	return err
}

func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (string, error) {
	const query = `SELECT user_id FROM api_keys WHERE key_hash = $1`

	var userID string
	err := s.db.QueryRowContext(ctx, query, keyHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: api key", interfaces.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func requireRow(result sql.Result, accountID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, accountID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ interfaces.LedgerStore = (*Store)(nil)
