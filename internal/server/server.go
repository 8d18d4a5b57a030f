// Package server is the request layer in front of the ledger engine: fiber
// routes, API-key authentication and the mapping from ledger error kinds to
// HTTP statuses.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/accounts"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/ledger"
	"github.com/sheikh-saqib/bank-ledger-engine/pkg/metrics"
)

type Server struct {
	engine      *ledger.Ledger
	accounts    *accounts.Service
	credentials interfaces.CredentialStore
	metrics     *metrics.Collector
	logger      *slog.Logger
	app         *fiber.App
}

func New(engine *ledger.Ledger, accountService *accounts.Service, credentials interfaces.CredentialStore, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:      engine,
		accounts:    accountService,
		credentials: credentials,
		metrics:     collector,
		logger:      logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/v1")
	api.Post("/keys", s.issueKey)

	private := api.Use(s.requireAPIKey())
	private.Post("/accounts", s.createAccount)
	private.Get("/accounts", s.listAccounts)
	private.Get("/accounts/:id", s.getAccount)
	private.Patch("/accounts/:id", s.updateAccount)
	private.Delete("/accounts/:id", s.deleteAccount)
	private.Post("/transactions", s.createTransaction)
	private.Get("/transactions", s.listTransactions)
	private.Get("/transactions/:id", s.getTransaction)

	s.app = app
	return s
}

// App exposes the fiber app for serving and for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// statusForError maps the engine's stable error kinds onto HTTP statuses.
// Retryable contention gets 503 so clients know to back off and retry.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidTransfer),
		errors.Is(err, accounts.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidAccount),
		errors.Is(err, ledger.ErrInvalidSourceAccount),
		errors.Is(err, ledger.ErrInvalidDestinationAccount),
		errors.Is(err, accounts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAccountNotEmpty):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errKind is the stable machine-readable code returned alongside the message
// and used as the metrics result label.
func errKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ledger.ErrInvalidTransfer):
		return "invalid_transfer"
	case errors.Is(err, accounts.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ledger.ErrInvalidSourceAccount):
		return "invalid_source_account"
	case errors.Is(err, ledger.ErrInvalidDestinationAccount):
		return "invalid_destination_account"
	case errors.Is(err, ledger.ErrInvalidAccount), errors.Is(err, accounts.ErrNotFound):
		return "invalid_account"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrAccountNotEmpty):
		return "account_not_empty"
	case errors.Is(err, ledger.ErrBusy):
		return "busy"
	default:
		return "storage_failure"
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
		return c.Status(status).JSON(fiber.Map{"error": "internal error", "code": errKind(err)})
	}
	return c.Status(status).JSON(fiber.Map{
		"error":     err.Error(),
		"code":      errKind(err),
		"retryable": ledger.Retryable(err),
	})
}
