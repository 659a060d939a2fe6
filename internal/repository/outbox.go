package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/agrotender/internal/model"
)

// ClaimPendingNotifications забирает до limit уведомлений, готовых к отправке на момент now,
// и продлевает им next_attempt_at до leaseUntil, чтобы параллельный диспетчер их не взял.
// Каждый захват считается попыткой доставки, даже если отметка о результате не дойдёт до базы.
func (r *PostgresRepository) ClaimPendingNotifications(ctx context.Context, limit int, now, leaseUntil time.Time) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE notification_outbox o
		 SET next_attempt_at = $2, attempts = o.attempts + 1
		 WHERE o.id IN (
			SELECT id FROM notification_outbox
			WHERE status = $3 AND next_attempt_at <= $1
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING o.id, o.user_id, o.kind, o.title, o.body, o.tender_id, o.bid_id, o.created_at, o.attempts`,
		now, leaseUntil, string(model.OutboxStatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n    model.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.TenderID, &n.BidID, &n.CreatedAt, &n.Attempts); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = model.NotificationKind(kind)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkNotificationDelivered отмечает уведомление доставленным.
func (r *PostgresRepository) MarkNotificationDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = $2, delivered_at = $3 WHERE id = $1`,
		id, string(model.OutboxStatusDelivered), at,
	)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	return nil
}

// MarkNotificationFailed фиксирует неудачную попытку доставки. При final уведомление
// переводится в failed и больше не отправляется, иначе откладывается до nextAttemptAt.
func (r *PostgresRepository) MarkNotificationFailed(ctx context.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time, final bool) error {
	status := model.OutboxStatusPending
	if final {
		status = model.OutboxStatusFailed
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = $2, last_error = $3, next_attempt_at = $4
		 WHERE id = $1`,
		id, string(status), lastErr, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}
