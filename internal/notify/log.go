package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
)

// Log записывает уведомления в журнал. Используется, когда внешний транспорт не настроен.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, n model.Notification) error {
	l.logger.Info("notification",
		zap.String("id", n.ID.String()),
		zap.Int64("userID", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Int64("tenderID", n.TenderID),
	)
	return nil
}
