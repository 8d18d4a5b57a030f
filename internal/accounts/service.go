// Package accounts is the account-management collaborator: creation and
// owner-scoped reads. It never touches balances directly; closing and
// deleting accounts go through the ledger engine because those need the same
// exclusivity as a debit.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
)

var (
	ErrNotFound       = errors.New("account not found or unauthorized")
	ErrInvalidRequest = errors.New("invalid account request")
)

type Service struct {
	store  interfaces.AccountStore
	logger *slog.Logger
}

func NewService(store interfaces.AccountStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Create opens an account for userID with an optional initial balance.
func (s *Service) Create(ctx context.Context, userID, accountType string, initial decimal.Decimal) (models.Account, error) {
	account, err := models.NewAccount(userID, accountType, initial)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created",
		slog.String("account_id", account.ID),
		slog.String("user_id", userID),
		slog.String("account_type", account.Type))
	return account, nil
}

// Get returns the account only when it belongs to userID.
func (s *Service) Get(ctx context.Context, userID, accountID string) (models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	if account.UserID != userID {
		return models.Account{}, ErrNotFound
	}
	return account, nil
}

// UpdateType relabels the account's type. A plain metadata write: the balance
// is not involved, so this does not go through the ledger engine.
func (s *Service) UpdateType(ctx context.Context, userID, accountID, accountType string) (models.Account, error) {
	if strings.TrimSpace(accountType) == "" {
		return models.Account{}, fmt.Errorf("%w: account type is required", ErrInvalidRequest)
	}

	account, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return models.Account{}, err
	}

	if err := s.store.UpdateAccountType(ctx, account.ID, accountType); err != nil {
		return models.Account{}, fmt.Errorf("failed to update account: %w", err)
	}
	account.Type = accountType
	return account, nil
}

// List returns every account the user owns.
func (s *Service) List(ctx context.Context, userID string) ([]models.Account, error) {
	return s.store.ListAccountsForUser(ctx, userID)
}
