package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/transaction"
)

// Handler exposes balance and money movement endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	WalletID string `json:"wallet_id"`
	Amount   int64  `json:"amount"`
}

type transferRequest struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       int64  `json:"amount"`
}

// Add credits a wallet.
func (h *Handler) Add(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.AddMoney(c.UserContext(), req.WalletID, req.Amount); err != nil && !movedMoney(err) {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(true)
}

// Withdraw debits a wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.WithdrawMoney(c.UserContext(), req.WalletID, req.Amount); err != nil && !movedMoney(err) {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(true)
}

// Transfer moves money between two wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.TransferMoney(c.UserContext(), req.FromWalletID, req.ToWalletID, req.Amount)
	if err != nil && !(res.Committed() && movedMoney(err)) {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(true)
}

// Balance returns the wallet balance as a bare integer.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.GetWalletBalance(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Transactions lists the wallet history. Optional query parameters: since and
// until (RFC3339), type and status.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txs, err := h.service.ListTransactions(c.UserContext(), c.Params("walletId"), filter)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(txs)
}

func parseFilter(c *fiber.Ctx) (transaction.Filter, error) {
	var (
		f   transaction.Filter
		err error
	)
	if v := c.Query("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := c.Query("until"); v != "" {
		if f.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if f.Type, err = transaction.ParseType(c.Query("type")); err != nil {
		return f, err
	}
	if f.Status, err = transaction.ParseStatus(c.Query("status")); err != nil {
		return f, err
	}
	return f, nil
}

// movedMoney reports an error that only concerns the audit record: the
// balance change itself committed, so the caller must not retry.
func movedMoney(err error) bool {
	return errors.Is(err, ErrRecordFailed)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet does not exist")
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSameWallet),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrBalanceLimitExceeded):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConcurrencyConflict):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
