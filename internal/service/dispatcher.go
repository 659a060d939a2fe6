package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/telemetry"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultLease            = time.Minute

	maxDeliveryAttempts = 8
	baseRetryDelay      = 5 * time.Second
	maxRetryDelay       = 10 * time.Minute
)

var errAttemptsExhausted = errors.New("delivery attempts exhausted")

// Dispatcher доставляет уведомления из outbox после фиксации транзакций.
type Dispatcher struct {
	repo     OutboxRepository
	notifier Notifier
	logger   *zap.Logger
	metrics  *telemetry.Metrics

	interval  time.Duration
	batchSize int
	lease     time.Duration
	now       func() time.Time

	wake chan struct{}
}

// DispatcherOption настраивает Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchInterval задаёт период опроса outbox.
func WithDispatchInterval(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDispatchBatchSize задаёт число уведомлений, забираемых за один проход.
func WithDispatchBatchSize(n int) DispatcherOption {
	return func(p *Dispatcher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithDispatcherMetrics подключает метрики доставки.
func WithDispatcherMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(p *Dispatcher) { p.metrics = m }
}

// WithDispatcherClock подменяет источник времени.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(p *Dispatcher) { p.now = now }
}

// NewDispatcher создаёт диспетчер outbox.
func NewDispatcher(repo OutboxRepository, notifier Notifier, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		interval:  defaultDispatchInterval,
		batchSize: defaultDispatchBatch,
		lease:     defaultLease,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wake просит диспетчер обработать outbox, не дожидаясь тика. Не блокирует.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run обрабатывает outbox до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started",
		zap.Duration("interval", d.interval), zap.Int("batchSize", d.batchSize))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wake:
		}

		for {
			n, err := d.DeliverPending(ctx)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error("outbox dispatch failed", zap.Error(err))
				}
				break
			}
			if n < d.batchSize {
				break
			}
		}
	}
}

// DeliverPending забирает одну пачку уведомлений и пытается их доставить.
// Возвращает число забранных уведомлений.
func (d *Dispatcher) DeliverPending(ctx context.Context) (int, error) {
	now := d.now()

	batch, err := d.repo.ClaimPendingNotifications(ctx, d.batchSize, now, now.Add(d.lease))
	if err != nil {
		return 0, err
	}

	for _, n := range batch {
		d.deliver(ctx, n)
	}
	return len(batch), nil
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	// Attempts уже учитывает текущий захват. Превышение лимита означает, что
	// предыдущие захваты не дошли до отметки о результате.
	if n.Attempts > maxDeliveryAttempts {
		d.logger.Warn("notification delivery attempts exhausted",
			zap.String("notificationID", n.ID.String()),
			zap.Int64("userID", n.UserID),
			zap.Int("attempts", n.Attempts),
		)
		if err := d.repo.MarkNotificationFailed(ctx, n.ID, errAttemptsExhausted.Error(), d.now(), true); err != nil {
			d.logger.Error("failed to mark notification failed",
				zap.String("notificationID", n.ID.String()), zap.Error(err))
		}
		return
	}

	err := d.notifier.Notify(ctx, n)
	if err == nil {
		if err := d.repo.MarkNotificationDelivered(ctx, n.ID, d.now()); err != nil {
			d.logger.Error("failed to mark notification delivered",
				zap.String("notificationID", n.ID.String()), zap.Error(err))
			return
		}
		if d.metrics != nil {
			d.metrics.NotificationsSent.Add(ctx, 1)
		}
		return
	}

	if d.metrics != nil {
		d.metrics.NotificationsFailed.Add(ctx, 1)
	}

	attempt := n.Attempts
	final := attempt >= maxDeliveryAttempts
	next := d.now().Add(retryDelay(attempt))

	d.logger.Warn("notification delivery failed",
		zap.String("notificationID", n.ID.String()),
		zap.Int64("userID", n.UserID),
		zap.Int("attempt", attempt),
		zap.Bool("final", final),
		zap.Error(err),
	)

	if err := d.repo.MarkNotificationFailed(ctx, n.ID, err.Error(), next, final); err != nil {
		d.logger.Error("failed to reschedule notification",
			zap.String("notificationID", n.ID.String()), zap.Error(err))
	}
}

// retryDelay возвращает задержку перед попыткой attempt+1: 5s, 10s, 20s, ... не более 10 минут.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
