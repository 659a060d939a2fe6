// Package notify содержит реализации доставки уведомлений из outbox.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
)

const notificationsPath = "/api/notifications"

// Webhook отправляет уведомления POST-запросом во внешний сервис уведомлений.
type Webhook struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewWebhook создаёт клиент сервиса уведомлений по указанному адресу.
// Временные ошибки (сеть, 5xx, 429) повторяются несколько раз в рамках одного вызова.
func NewWebhook(baseURL string, logger *zap.Logger) *Webhook {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 5 * time.Second
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{l: logger}

	return &Webhook{baseURL: base, httpClient: client}
}

// Notify отправляет уведомление. ID уведомления передаётся в Idempotency-Key,
// чтобы получатель мог отбросить повторную доставку.
func (w *Webhook) Notify(ctx context.Context, n model.Notification) error {
	if w == nil || w.baseURL == "" {
		return fmt.Errorf("notifier not configured")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+notificationsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID.String())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// leveledLogger направляет журнал retryablehttp в zap.
type leveledLogger struct {
	l *zap.Logger
}

func (l leveledLogger) sugar() *zap.SugaredLogger {
	if l.l == nil {
		return zap.NewNop().Sugar()
	}
	return l.l.Sugar()
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar().Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar().Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar().Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar().Warnw(msg, keysAndValues...)
}
