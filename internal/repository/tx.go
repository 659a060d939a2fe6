package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/agrotender/internal/model"
)

// Tx описывает операции, выполняемые внутри одной транзакции хранилища.
type Tx interface {
	// GetTenderForUpdate читает тендер и блокирует его строку до конца транзакции.
	GetTenderForUpdate(ctx context.Context, id int64) (*model.Tender, error)
	GetBid(ctx context.Context, id int64) (*model.Bid, error)
	// ListBidsByTenderForUpdate читает и блокирует все предложения тендера.
	ListBidsByTenderForUpdate(ctx context.Context, tenderID int64) ([]model.Bid, error)
	// TransitionTender меняет статус, только если текущий статус равен from. Возвращает false, если строка не изменилась.
	TransitionTender(ctx context.Context, id int64, from, to model.TenderStatus) (bool, error)
	// AwardTender переводит закрытый тендер в awarded и записывает поля присуждения.
	AwardTender(ctx context.Context, tenderID int64, award model.TenderAward) (bool, error)
	// AwardBid переводит предложение из submitted в awarded.
	AwardBid(ctx context.Context, bidID int64, notes string, at time.Time) (bool, error)
	// RejectOtherBids переводит все остальные submitted-предложения тендера в rejected.
	RejectOtherBids(ctx context.Context, tenderID, winnerBidID int64) (int64, error)
	EnqueueNotifications(ctx context.Context, notifications []model.Notification) error
	RecordAudit(ctx context.Context, entry model.AuditEntry) error
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetTenderForUpdate(ctx context.Context, id int64) (*model.Tender, error) {
	return getTender(ctx, t.tx, id, true)
}

func (t *pgTx) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	return getBid(ctx, t.tx, id)
}

func (t *pgTx) ListBidsByTenderForUpdate(ctx context.Context, tenderID int64) ([]model.Bid, error) {
	return listBidsByTender(ctx, t.tx, tenderID, true)
}

func (t *pgTx) TransitionTender(ctx context.Context, id int64, from, to model.TenderStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tenders SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("transition tender: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AwardTender(ctx context.Context, tenderID int64, award model.TenderAward) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tenders
		 SET status = $2, awarded_to = $3, awarded_bid_id = $4, awarded_amount = $5,
		     award_notes = $6, awarded_at = $7, awarded_by = $8
		 WHERE id = $1 AND status = $9`,
		tenderID, string(model.TenderStatusAwarded), award.VendorID, award.BidID, award.Amount,
		award.Notes, award.AwardedAt, award.AwardedBy, string(model.TenderStatusClosed),
	)
	if err != nil {
		return false, fmt.Errorf("award tender: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AwardBid(ctx context.Context, bidID int64, notes string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bids SET status = $2, award_notes = $3, awarded_at = $4 WHERE id = $1 AND status = $5`,
		bidID, string(model.BidStatusAwarded), notes, at, string(model.BidStatusSubmitted),
	)
	if err != nil {
		return false, fmt.Errorf("award bid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) RejectOtherBids(ctx context.Context, tenderID, winnerBidID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bids SET status = $3 WHERE tender_id = $1 AND id <> $2 AND status = $4`,
		tenderID, winnerBidID, string(model.BidStatusRejected), string(model.BidStatusSubmitted),
	)
	if err != nil {
		return 0, fmt.Errorf("reject bids: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) EnqueueNotifications(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range notifications {
		batch.Queue(
			`INSERT INTO notification_outbox (id, user_id, kind, title, body, tender_id, bid_id, status, next_attempt_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
			n.ID, n.UserID, string(n.Kind), n.Title, n.Body, n.TenderID, n.BidID,
			string(model.OutboxStatusPending), n.CreatedAt,
		)
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	return nil
}

func (t *pgTx) RecordAudit(ctx context.Context, e model.AuditEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO audit_log (actor_id, action, tender_id, bid_id, vendor_id, amount, details, created_at)
		 VALUES ($1, $2, NULLIF($3::bigint, 0), NULLIF($4::bigint, 0), NULLIF($5::bigint, 0), $6, $7, $8)`,
		e.ActorID, e.Action, e.TenderID, e.BidID, e.VendorID, e.Amount, e.Details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
