package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/ledger"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/models"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/security"
)

type issueKeyRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) issueKey(c *fiber.Ctx) error {
	var req issueKeyRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	rawKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		s.logger.Error("failed to generate API key", slog.String("error", err.Error()))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "could not generate key"})
	}
	if err := s.credentials.SaveAPIKey(c.Context(), req.UserID, keyHash); err != nil {
		s.logger.Error("failed to save API key", slog.String("error", err.Error()))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "could not save key"})
	}

	// The raw key is shown exactly once; only its hash is stored.
	return c.Status(http.StatusCreated).JSON(fiber.Map{"api_key": rawKey})
}

type createAccountRequest struct {
	AccountType    string          `json:"account_type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (s *Server) createAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	account, err := s.accounts.Create(c.Context(), actingUser(c), req.AccountType, req.InitialBalance)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(account)
}

func (s *Server) listAccounts(c *fiber.Ctx) error {
	list, err := s.accounts.List(c.Context(), actingUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"accounts": list})
}

func (s *Server) getAccount(c *fiber.Ctx) error {
	account, err := s.accounts.Get(c.Context(), actingUser(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.SetAccountBalance(account.ID, account.Balance.InexactFloat64())
	return c.JSON(account)
}

type updateAccountRequest struct {
	Status      models.AccountStatus `json:"status"`
	AccountType string               `json:"account_type"`
}

func (s *Server) updateAccount(c *fiber.Ctx) error {
	var req updateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Status == "" && req.AccountType == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}
	if req.Status != "" && req.Status != models.AccountClosed {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "only status=closed is supported"})
	}

	userID := actingUser(c)
	if req.AccountType != "" {
		if _, err := s.accounts.UpdateType(c.Context(), userID, c.Params("id"), req.AccountType); err != nil {
			return s.fail(c, err)
		}
	}
	if req.Status == models.AccountClosed {
		if err := s.engine.CloseAccount(c.Context(), userID, c.Params("id")); err != nil {
			return s.fail(c, err)
		}
	}

	account, err := s.accounts.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(account)
}

func (s *Server) deleteAccount(c *fiber.Ctx) error {
	if err := s.engine.DeleteAccount(c.Context(), actingUser(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

type createTransactionRequest struct {
	TransactionType      models.TransactionType `json:"transaction_type"`
	Amount               decimal.Decimal        `json:"amount"`
	SourceAccountID      string                 `json:"source_account_id"`
	DestinationAccountID string                 `json:"destination_account_id"`
}

// createTransaction dispatches on transaction_type the way the transaction
// endpoint of the upstream API does.
func (s *Server) createTransaction(c *fiber.Ctx) error {
	start := time.Now()

	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	userID := actingUser(c)
	var (
		record models.Transaction
		err    error
	)
	switch req.TransactionType {
	case models.TypeDeposit:
		if req.DestinationAccountID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "destination_account_id is required for deposits"})
		}
		record, err = s.engine.Deposit(c.Context(), userID, req.DestinationAccountID, req.Amount)
	case models.TypeWithdrawal:
		if req.SourceAccountID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "source_account_id is required for withdrawals"})
		}
		record, err = s.engine.Withdraw(c.Context(), userID, req.SourceAccountID, req.Amount)
	case models.TypeTransfer:
		if req.SourceAccountID == "" || req.DestinationAccountID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "source and destination account ids are required for transfers"})
		}
		record, err = s.engine.Transfer(c.Context(), userID, req.SourceAccountID, req.DestinationAccountID, req.Amount)
	default:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid transaction type"})
	}

	op := string(req.TransactionType)
	if err != nil {
		if ledger.Retryable(err) {
			s.metrics.RecordLockTimeout()
		}
		s.metrics.RecordOperation(op, errKind(err), time.Since(start))
		return s.fail(c, err)
	}
	s.metrics.RecordOperation(op, "success", time.Since(start))

	return c.Status(http.StatusCreated).JSON(fiber.Map{"transaction": record})
}

func (s *Server) listTransactions(c *fiber.Ctx) error {
	var start, end *time.Time
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "start_date must be RFC3339"})
		}
		start = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be RFC3339"})
		}
		end = &t
	}

	records, err := s.engine.QueryTransactions(c.Context(), actingUser(c), c.Query("account_id"), start, end)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"transactions": records})
}

func (s *Server) getTransaction(c *fiber.Ctx) error {
	record, err := s.engine.GetTransaction(c.Context(), actingUser(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"transaction": record})
}
