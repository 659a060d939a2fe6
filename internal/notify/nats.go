package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
)

const (
	streamName    = "AGROTENDER_NOTIFICATIONS"
	subjectPrefix = "notifications."
)

// JetStream публикует уведомления в поток NATS JetStream.
// Тема сообщения: notifications.<kind>.<userID>.
type JetStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// ConnectJetStream подключается к NATS и создаёт поток уведомлений, если его нет.
func ConnectJetStream(ctx context.Context, url string, logger *zap.Logger) (*JetStream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(url, nats.Name("agrotender"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", zap.String("url", url), zap.String("stream", streamName))
	return &JetStream{nc: nc, js: js, logger: logger}, nil
}

// Notify публикует уведомление. ID уведомления используется как Nats-Msg-Id,
// поэтому повторная публикация в окне дедупликации потока не создаёт дубль.
func (j *JetStream) Notify(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	subject := notificationSubject(n)
	if _, err := j.js.Publish(ctx, subject, data, jetstream.WithMsgID(n.ID.String())); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close закрывает соединение с NATS.
func (j *JetStream) Close() error {
	j.nc.Close()
	return nil
}

func notificationSubject(n model.Notification) string {
	return fmt.Sprintf("%s%s.%d", subjectPrefix, n.Kind, n.UserID)
}
