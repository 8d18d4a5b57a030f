// Package memory is the in-memory LedgerStore: accounts in a map, the
// transaction log as an append-only slice with a per-account index. One
// RWMutex covers the whole store, which makes Apply a single critical
// section over both the balances and the log.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[string]models.Account
	userIndex    map[string][]string
	transactions []models.Transaction
	txByID       map[string]int
	txByAccount  map[string][]int
	apiKeys      map[string]string
}

func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]models.Account),
		userIndex:   make(map[string][]string),
		txByID:      make(map[string]int),
		txByAccount: make(map[string][]int),
		apiKeys:     make(map[string]string),
	}
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	return account, nil
}

func (s *Store) AccountExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[id]
	return ok, nil
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID string) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Account, 0, len(s.userIndex[userID]))
	for _, id := range s.userIndex[userID] {
		if account, ok := s.accounts[id]; ok {
			result = append(result, account)
		}
	}
	return result, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", interfaces.ErrDuplicate, account.ID)
	}
	s.accounts[account.ID] = account
	s.userIndex[account.UserID] = append(s.userIndex[account.UserID], account.ID)
	return nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	account.Status = status
	s.accounts[id] = account
	return nil
}

func (s *Store) UpdateAccountType(ctx context.Context, id string, accountType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	account.Type = accountType
	s.accounts[id] = account
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	delete(s.accounts, id)

	ids := s.userIndex[account.UserID]
	for i, accountID := range ids {
		if accountID == id {
			s.userIndex[account.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// MutateBalance applies delta to one account. The owner check and the
// non-negative check run under the same lock as the write, so no concurrent
// mutation can slip between check and commit.
func (s *Store) MutateBalance(ctx context.Context, id string, delta decimal.Decimal, expectedOwner string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(id, delta, expectedOwner)
}

func (s *Store) mutateLocked(id string, delta decimal.Decimal, expectedOwner string) (decimal.Decimal, error) {
	account, ok := s.accounts[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %s", interfaces.ErrNotFound, id)
	}
	if expectedOwner != "" && account.UserID != expectedOwner {
		return decimal.Zero, fmt.Errorf("%w: account %s", interfaces.ErrUnauthorized, id)
	}

	next := account.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: account %s has %s, change %s",
			interfaces.ErrInsufficientFunds, id, account.Balance, delta)
	}

	account.Balance = next
	s.accounts[id] = account
	return next, nil
}

// Apply commits every balance change and the record in one critical section.
// Changes are staged on copies, with repeated accounts accumulating against
// the staged balance, and written back only once every change checked out, so
// a failure leaves no partial state behind.
func (s *Store) Apply(ctx context.Context, record models.Transaction, changes []interfaces.BalanceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txByID[record.ID]; exists {
		return fmt.Errorf("%w: transaction %s", interfaces.ErrDuplicate, record.ID)
	}

	staged := make(map[string]models.Account, len(changes))
	for _, change := range changes {
		account, ok := staged[change.AccountID]
		if !ok {
			account, ok = s.accounts[change.AccountID]
			if !ok {
				return fmt.Errorf("%w: account %s", interfaces.ErrNotFound, change.AccountID)
			}
		}
		if change.ExpectedOwner != "" && account.UserID != change.ExpectedOwner {
			return fmt.Errorf("%w: account %s", interfaces.ErrUnauthorized, change.AccountID)
		}

		next := account.Balance.Add(change.Delta)
		if next.IsNegative() {
			return fmt.Errorf("%w: account %s has %s, change %s",
				interfaces.ErrInsufficientFunds, change.AccountID, account.Balance, change.Delta)
		}
		account.Balance = next
		staged[change.AccountID] = account
	}

	for id, account := range staged {
		s.accounts[id] = account
	}
	s.appendLocked(record)
	return nil
}

func (s *Store) Append(ctx context.Context, record models.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txByID[record.ID]; exists {
		return "", fmt.Errorf("%w: transaction %s", interfaces.ErrDuplicate, record.ID)
	}
	s.appendLocked(record)
	return record.ID, nil
}

func (s *Store) appendLocked(record models.Transaction) {
	idx := len(s.transactions)
	s.transactions = append(s.transactions, record)
	s.txByID[record.ID] = idx
	if record.SourceAccountID != "" {
		s.txByAccount[record.SourceAccountID] = append(s.txByAccount[record.SourceAccountID], idx)
	}
	if record.DestinationAccountID != "" {
		s.txByAccount[record.DestinationAccountID] = append(s.txByAccount[record.DestinationAccountID], idx)
	}
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.txByID[id]
	if !ok {
		return models.Transaction{}, fmt.Errorf("%w: transaction %s", interfaces.ErrNotFound, id)
	}
	return s.transactions[idx], nil
}

// QueryTransactions returns matching records ordered by CreatedAt ascending.
// The result is a fresh slice each call.
func (s *Store) QueryTransactions(ctx context.Context, filter interfaces.TransactionFilter) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := make(map[string]bool, len(filter.AccountIDs))
	for _, id := range filter.AccountIDs {
		visible[id] = true
	}

	seen := make(map[int]bool)
	result := make([]models.Transaction, 0)
	for _, accountID := range filter.AccountIDs {
		for _, idx := range s.txByAccount[accountID] {
			if seen[idx] {
				continue
			}
			seen[idx] = true

			record := s.transactions[idx]
			if !matches(record, visible, filter) {
				continue
			}
			result = append(result, record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func matches(record models.Transaction, visible map[string]bool, filter interfaces.TransactionFilter) bool {
	if !visible[record.SourceAccountID] && !visible[record.DestinationAccountID] {
		return false
	}
	if filter.AccountID != "" &&
		record.SourceAccountID != filter.AccountID && record.DestinationAccountID != filter.AccountID {
		return false
	}
	if filter.Start != nil && record.CreatedAt.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && record.CreatedAt.After(*filter.End) {
		return false
	}
	return true
}

func (s *Store) SaveAPIKey(ctx context.Context, userID, keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[keyHash] = userID
	return nil
}

func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.apiKeys[keyHash]
	if !ok {
		return "", fmt.Errorf("%w: api key", interfaces.ErrNotFound)
	}
	return userID, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
