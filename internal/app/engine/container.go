package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/config"
	"github.com/amarcoder01/market-engine/internal/domain/models"
	"github.com/amarcoder01/market-engine/internal/infrastructure/feed"
	"github.com/amarcoder01/market-engine/internal/infrastructure/kafka"
	"github.com/amarcoder01/market-engine/internal/infrastructure/notifier"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres/migrator"
	redisInfra "github.com/amarcoder01/market-engine/internal/infrastructure/redis"
	"github.com/amarcoder01/market-engine/internal/obs"
	"github.com/amarcoder01/market-engine/internal/services/alerts"
	svcEngine "github.com/amarcoder01/market-engine/internal/services/engine"
	"github.com/amarcoder01/market-engine/internal/services/notify"
	"github.com/amarcoder01/market-engine/internal/services/orderbook"
	"github.com/amarcoder01/market-engine/internal/services/pricecache"
	"github.com/amarcoder01/market-engine/internal/services/scheduler"
	"github.com/amarcoder01/market-engine/internal/storage/memory"
)

// storage is the full persistence surface the services need. Both the
// postgres store and the in-memory store satisfy it.
type storage interface {
	Ping(ctx context.Context) error

	SaveAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	UpdateAccountValue(ctx context.Context, accountID uuid.UUID, totalValue decimal.Decimal) error
	GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (models.Position, error)
	ListPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)

	SaveOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
	ListPendingOrdersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Order, error)
	ApplyFill(ctx context.Context, application models.FillApplication) error

	SaveAlert(ctx context.Context, alert models.PriceAlert) error
	GetAlert(ctx context.Context, id uuid.UUID) (models.PriceAlert, error)
	ListActiveAlerts(ctx context.Context) ([]models.PriceAlert, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus) error
	TouchAlert(ctx context.Context, id uuid.UUID, checkedAt time.Time) error
	TriggerAlert(ctx context.Context, id uuid.UUID, price decimal.Decimal, triggeredAt time.Time) error
	SaveAlertHistory(ctx context.Context, entry models.AlertHistoryEntry) error
	ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]models.AlertHistoryEntry, error)
}

// Container assembles the whole engine. With no database configured it
// runs on the in-memory store and the synthetic feed, which is how local
// runs and tests work.
type Container struct {
	PostgresPool *pgxpool.Pool
	RedisClient  *goredis.Client
	Producer     *kafka.Publisher

	Metrics       *obs.Metrics
	Cache         *pricecache.Cache
	Scheduler     *scheduler.Scheduler
	Engine        *svcEngine.Engine
	MetricsServer *http.Server
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	const op = "app.NewContainer"

	container := &Container{
		Metrics: obs.NewMetrics(),
	}

	var store storage
	if cfg.DBURI == "" {
		store = memory.NewStore()
	} else {
		pool, err := postgres.NewPgxPool(ctx, cfg.DBURI)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		container.PostgresPool = pool

		m, err := migrator.NewMigrator(pool, cfg.MigrationsDir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err = m.Up(ctx); err != nil {
			return nil, fmt.Errorf("%s: migrate: %w", op, err)
		}

		store = postgres.NewStore(pool)
	}

	var l2 pricecache.L2
	var limiter svcEngine.RateLimiter
	if cfg.RedisAddr != "" {
		client, err := redisInfra.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		container.RedisClient = client
		l2 = redisInfra.NewQuoteCache(client)
		limiter = redisInfra.NewUserRateLimiter(client, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	var provider pricecache.Provider
	if cfg.Feed.Synthetic || cfg.Env == "dev" {
		provider = feed.NewSynthetic()
	} else {
		provider = feed.NewClient(cfg.Feed, cfg.CircuitBreaker)
	}

	container.Cache = pricecache.New(provider, l2, pricecache.Config{
		BatchSize:  cfg.Feed.BatchSize,
		BatchDelay: cfg.Feed.BatchDelay,
		Timeout:    cfg.Feed.Timeout,
		Staleness:  cfg.Feed.Staleness,
	}, container.Metrics)

	commission, err := decimal.NewFromString(cfg.Trading.Commission)
	if err != nil {
		return nil, fmt.Errorf("%s: parse commission: %w", op, err)
	}

	book := orderbook.NewService(store, store, store, store, container.Cache, commission, container.Metrics)
	registry := alerts.NewRegistry(store, store, container.Cache, container.Metrics)

	var sender notify.Sender
	if cfg.Notify.WebhookURL != "" {
		sender = notifier.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	} else {
		sender = notifier.NewLogSender()
	}
	dispatcher := notify.NewDispatcher(sender, store, cfg.Notify.MaxTries, container.Metrics)

	var publisher scheduler.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.FillTopic, cfg.AlertTopic)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		container.Producer = producer
		publisher = producer
	}

	container.Scheduler = scheduler.New(
		container.Cache,
		book,
		registry,
		dispatcher,
		store,
		publisher,
		cfg.Scheduler.Interval,
		container.Metrics,
	)

	container.Engine = svcEngine.New(store, store, book, registry, container.Scheduler, container.Cache, limiter)
	container.MetricsServer = obs.NewServer(cfg.MetricsAddress, container.Metrics, store)

	return container, nil
}

func (c *Container) Close() {
	if c.PostgresPool != nil {
		c.PostgresPool.Close()
	}
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
	if c.Producer != nil {
		_ = c.Producer.Close()
	}
}
