package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/user"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterUserRoutes wires user administration endpoints.
func RegisterUserRoutes(app *fiber.App, users *user.Handler, wallets *wallet.Handler, limit fiber.Handler) {
	grp := app.Group("/users")
	grp.Post("/", limit, users.Create)
	grp.Get("/", users.List)
	grp.Get("/:userId", users.Get)
	grp.Get("/:userId/wallets", wallets.ListByUser)
	grp.Delete("/:userId", limit, users.Delete)
}
