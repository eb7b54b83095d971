package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
	"github.com/amarcoder01/market-engine/internal/services/ledger"
)

type QuoteRefresher interface {
	Refresh(ctx context.Context, symbols []string) int
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

type OrderMatcher interface {
	TryFill(ctx context.Context) []models.Fill
	Symbols(ctx context.Context) ([]string, error)
}

type AlertEvaluator interface {
	Evaluate(ctx context.Context) []models.TriggeredAlert
	Symbols(ctx context.Context) ([]string, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, triggered models.TriggeredAlert) error
}

// AccountMarker re-values accounts touched by fills: total value is cash
// plus positions priced at the freshest usable quote.
type AccountMarker interface {
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	ListPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error)
	UpdateAccountValue(ctx context.Context, accountID uuid.UUID, totalValue decimal.Decimal) error
}

// EventPublisher hands fills and triggers to the broker, best-effort.
type EventPublisher interface {
	PublishFill(ctx context.Context, fill models.Fill) error
	PublishAlertTriggered(ctx context.Context, triggered models.TriggeredAlert) error
}

// Scheduler drives the tick: refresh quotes, match orders, re-value
// accounts, evaluate alerts, dispatch notifications. One tick runs at a
// time; the next one does not start before the previous finished.
type Scheduler struct {
	cache     QuoteRefresher
	orders    OrderMatcher
	alerts    AlertEvaluator
	notifier  Notifier
	accounts  AccountMarker
	publisher EventPublisher
	interval  time.Duration
	metrics   *obs.Metrics

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	nextCheck time.Time

	now func() time.Time
}

func New(
	cache QuoteRefresher,
	orders OrderMatcher,
	alerts AlertEvaluator,
	notifier Notifier,
	accounts AccountMarker,
	publisher EventPublisher,
	interval time.Duration,
	metrics *obs.Metrics,
) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		cache:     cache,
		orders:    orders,
		alerts:    alerts,
		notifier:  notifier,
		accounts:  accounts,
		publisher: publisher,
		interval:  interval,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Start launches the tick loop. Calling it on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.nextCheck = s.now().Add(s.interval)

	go s.loop(ctx, s.stop, s.done)
	logger.Info(ctx, "scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight tick to finish. Stopping
// a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	logger.Info(ctx, "scheduler stopped")
}

func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SchedulerStatus{
		Active:      s.running,
		Interval:    s.interval,
		NextCheckAt: s.nextCheck,
	}
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First pass right away so a fresh start does not wait a full interval.
	s.RunOnce(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full tick. It is what the loop calls and what tests
// drive directly.
func (s *Scheduler) RunOnce(ctx context.Context) {
	tickCtx := logger.ContextWithTickID(ctx, uuid.NewString()[:8])
	started := s.now()

	symbols := s.symbolUniverse(tickCtx)
	refreshed := 0
	if len(symbols) > 0 {
		refreshed = s.cache.Refresh(tickCtx, symbols)
	}

	fills := s.orders.TryFill(tickCtx)
	for _, fill := range fills {
		s.publishFill(tickCtx, fill)
	}
	s.markAccounts(tickCtx, fills)

	triggered := s.alerts.Evaluate(tickCtx)
	for _, trigger := range triggered {
		s.publishTrigger(tickCtx, trigger)
		if err := s.notifier.Dispatch(tickCtx, trigger); err != nil {
			// Already recorded in alert history; the trigger stands.
			logger.Warn(tickCtx, "notification dispatch failed", zap.Error(err))
		}
	}

	elapsed := s.now().Sub(started)
	s.metrics.TickDuration.Observe(elapsed.Seconds())
	s.metrics.TicksTotal.Inc()

	s.mu.Lock()
	s.nextCheck = s.now().Add(s.interval)
	s.mu.Unlock()

	logger.Debug(tickCtx, "tick completed",
		zap.Int("symbols", len(symbols)),
		zap.Int("refreshed", refreshed),
		zap.Int("fills", len(fills)),
		zap.Int("triggered", len(triggered)),
		zap.Duration("elapsed", elapsed),
	)
}

func (s *Scheduler) symbolUniverse(ctx context.Context) []string {
	orderSymbols, err := s.orders.Symbols(ctx)
	if err != nil {
		logger.Error(ctx, "order symbol listing failed", zap.Error(err))
	}
	alertSymbols, err := s.alerts.Symbols(ctx)
	if err != nil {
		logger.Error(ctx, "alert symbol listing failed", zap.Error(err))
	}
	return append(orderSymbols, alertSymbols...)
}

func (s *Scheduler) markAccounts(ctx context.Context, fills []models.Fill) {
	seen := make(map[uuid.UUID]bool, len(fills))
	for _, fill := range fills {
		if seen[fill.AccountID] {
			continue
		}
		seen[fill.AccountID] = true

		account, err := s.accounts.GetAccount(ctx, fill.AccountID)
		if err != nil {
			logger.Warn(ctx, "account revaluation load failed", zap.Error(err))
			continue
		}
		positions, err := s.accounts.ListPositions(ctx, fill.AccountID)
		if err != nil {
			logger.Warn(ctx, "account revaluation positions failed", zap.Error(err))
			continue
		}

		value := account.CashBalance.Add(ledger.MarketValue(positions, func(symbol string) (decimal.Decimal, bool) {
			return s.cache.Price(ctx, symbol)
		}))
		if err := s.accounts.UpdateAccountValue(ctx, fill.AccountID, value); err != nil {
			logger.Warn(ctx, "account revaluation write failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) publishFill(ctx context.Context, fill models.Fill) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishFill(ctx, fill); err != nil {
		logger.Warn(ctx, "fill event publish failed", zap.Error(err))
		return
	}
	s.metrics.EventsPublished.Inc()
}

func (s *Scheduler) publishTrigger(ctx context.Context, triggered models.TriggeredAlert) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAlertTriggered(ctx, triggered); err != nil {
		logger.Warn(ctx, "alert event publish failed", zap.Error(err))
		return
	}
	s.metrics.EventsPublished.Inc()
}
