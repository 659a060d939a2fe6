// Package service реализует движок оценки предложений и присуждения тендеров.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/repository"
	"github.com/mmeshcher/agrotender/internal/telemetry"
)

const defaultEvaluateConcurrency = 4

// OutboxRepository описывает доступ к очереди исходящих уведомлений.
type OutboxRepository interface {
	ClaimPendingNotifications(ctx context.Context, limit int, now, leaseUntil time.Time) ([]model.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time, final bool) error
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	OutboxRepository

	Close() error
	GetTender(ctx context.Context, id int64) (*model.Tender, error)
	GetBid(ctx context.Context, id int64) (*model.Bid, error)
	ListBidsByTender(ctx context.Context, tenderID int64) ([]model.Bid, error)
	GetVendorProfile(ctx context.Context, vendorID int64) (model.VendorProfile, error)
	UpdateBidScore(ctx context.Context, bidID int64, score model.ScoreBreakdown, at time.Time) error
	RunInTransaction(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Notifier доставляет уведомление пользователю. Доставка выполняется после фиксации транзакции.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// ProfileCache кэширует профили поставщиков.
type ProfileCache interface {
	Get(vendorID int64) (model.VendorProfile, bool)
	Set(profile model.VendorProfile)
}

// Service содержит бизнес-логику оценки и присуждения тендеров.
type Service struct {
	repo     Repository
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	profiles ProfileCache

	now                 func() time.Time
	newID               func() uuid.UUID
	onAwardCommitted    func()
	evaluateConcurrency int
}

// Option настраивает Service.
type Option func(*Service)

// WithProfileCache подключает кэш профилей поставщиков.
func WithProfileCache(c ProfileCache) Option {
	return func(s *Service) { s.profiles = c }
}

// WithMetrics подключает инструменты метрик.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAwardHook задаёт функцию, вызываемую после успешной фиксации присуждения
// (например, чтобы разбудить диспетчер outbox).
func WithAwardHook(fn func()) Option {
	return func(s *Service) { s.onAwardCommitted = fn }
}

// WithEvaluateConcurrency ограничивает число параллельно оцениваемых предложений.
func WithEvaluateConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.evaluateConcurrency = n
		}
	}
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:                repo,
		logger:              logger,
		now:                 time.Now,
		newID:               uuid.New,
		evaluateConcurrency: defaultEvaluateConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
