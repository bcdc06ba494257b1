package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet provisioning and money movement endpoints.
func RegisterWalletRoutes(app *fiber.App, wallets *wallet.Handler, money *ledger.Handler, limit fiber.Handler) {
	grp := app.Group("/wallets")
	grp.Put("/add", limit, money.Add)
	grp.Put("/withdraw", limit, money.Withdraw)
	grp.Post("/:userId", limit, wallets.Create)
	grp.Get("/:walletId", wallets.Get)
	grp.Get("/:walletId/balance", money.Balance)
	grp.Get("/:walletId/transactions", money.Transactions)
	grp.Delete("/:walletId", limit, wallets.Delete)

	app.Put("/transfer", limit, money.Transfer)
}
