package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/lock"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/transaction"
	"github.com/congo-pay/wallet_ledger/internal/user"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// stores holds the persistence and coordination backends picked for this process.
type stores struct {
	users    user.Repository
	wallets  wallet.Repository
	records  transaction.Repository
	locks    lock.Locker
	notifier notification.Notifier
}

// selectStores uses Postgres and Redis when configured and in-memory
// equivalents otherwise.
func selectStores(d Deps) stores {
	var s stores
	if d.DB != nil {
		s.users = user.NewPostgresRepository(d.DB)
		s.wallets = wallet.NewPostgresRepository(d.DB)
		s.records = transaction.NewPostgresRepository(d.DB)
	} else {
		s.users = user.NewMemoryRepository()
		s.wallets = wallet.NewMemoryRepository()
		s.records = transaction.NewMemoryRepository()
	}

	logNotifier := notification.NewLoggerNotifier(d.Logger)
	if d.Cache != nil {
		s.locks = lock.NewRedis(d.Cache, d.Cfg.LockTTL, d.Cfg.LockTimeout)
		s.notifier = notification.Multi{logNotifier, notification.NewRedisPublisher(d.Cache)}
	} else {
		s.locks = lock.NewLocal(d.Cfg.LockTimeout)
		s.notifier = logNotifier
	}
	return s
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.DB == nil && !d.Cfg.IsDev() {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	collector := metrics.New(d.Registry)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Metrics(collector))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	s := selectStores(d)
	userSvc := user.NewService(s.users)
	walletSvc := wallet.NewService(s.wallets, userSvc, d.Cfg.MaxWalletBalance, d.Logger)
	ledgerSvc := ledger.NewService(ledger.Deps{
		Wallets:    s.wallets,
		Records:    s.records,
		Locks:      s.locks,
		Notifier:   s.notifier,
		Metrics:    collector,
		Logger:     d.Logger,
		MaxRetries: d.Cfg.MaxRetries,
	})

	limit := middleware.RateLimit(d.Cache, d.Cfg.RateLimit)
	RegisterUserRoutes(app, user.NewHandler(userSvc), wallet.NewHandler(walletSvc), limit)
	RegisterWalletRoutes(app, wallet.NewHandler(walletSvc), ledger.NewHandler(ledgerSvc), limit)

	return nil
}
