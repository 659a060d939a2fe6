package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/repository"
	"github.com/mmeshcher/agrotender/internal/telemetry"
)

type awardOutcome struct {
	tender        *model.Tender
	winner        model.Bid
	rejected      int64
	notifications int
	autoClosed    bool
}

// Award присуждает тендер tenderID предложению bidID от имени actorID.
//
// Все изменения (статус тендера, победитель, отклонение остальных предложений,
// уведомления в outbox и запись журнала) фиксируются одной транзакцией.
// Нарушение предусловий возвращается как есть (ErrTenderNotFound, ErrBidNotFound,
// ErrTenderStillOpen, ErrBidNotEligible, ErrAlreadyAwarded), сбой хранилища
// возвращается как *model.AwardError. После AwardError и после таймаута на стороне вызывающего
// нужно перечитать статус тендера: транзакция могла успеть зафиксироваться.
func (s *Service) Award(ctx context.Context, tenderID, bidID int64, notes string, actorID int64) error {
	ctx, span := telemetry.StartAwardSpan(ctx, tenderID, bidID, actorID)
	defer span.End()

	start := s.now()

	var outcome awardOutcome
	err := s.repo.RunInTransaction(ctx, func(tx repository.Tx) error {
		o, err := s.awardInTx(ctx, tx, tenderID, bidID, notes, actorID)
		if err != nil {
			return err
		}
		outcome = o
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordAwardFailure(ctx, err)

		if model.IsPrecondition(err) {
			s.logger.Info("award rejected",
				zap.Int64("tenderID", tenderID), zap.Int64("bidID", bidID),
				zap.Int64("actorID", actorID), zap.Error(err))
			return err
		}

		s.logger.Error("award transaction failed",
			zap.Int64("tenderID", tenderID), zap.Int64("bidID", bidID),
			zap.Int64("actorID", actorID), zap.Error(err))
		return &model.AwardError{TenderID: tenderID, BidID: bidID, Err: err}
	}

	if s.metrics != nil {
		s.metrics.AwardsSucceeded.Add(ctx, 1)
		s.metrics.AwardDurationSeconds.Record(ctx, s.now().Sub(start).Seconds())
	}

	s.logger.Info("tender awarded",
		zap.Int64("tenderID", tenderID),
		zap.String("tenderNumber", outcome.tender.Number),
		zap.Int64("bidID", bidID),
		zap.Int64("vendorID", outcome.winner.VendorID),
		zap.Float64("amount", outcome.winner.Amount),
		zap.Int64("rejectedBids", outcome.rejected),
		zap.Int("notifications", outcome.notifications),
		zap.Bool("closedOnDeadline", outcome.autoClosed),
		zap.Int64("actorID", actorID),
	)

	if s.onAwardCommitted != nil {
		s.onAwardCommitted()
	}

	return nil
}

func (s *Service) awardInTx(ctx context.Context, tx repository.Tx, tenderID, bidID int64, notes string, actorID int64) (awardOutcome, error) {
	now := s.now()

	tender, err := tx.GetTenderForUpdate(ctx, tenderID)
	if err != nil {
		return awardOutcome{}, err
	}

	// Открытый тендер с истёкшим сроком считается закрытым.
	autoClose := tender.Status == model.TenderStatusOpen && tender.IsPastDeadline(now)
	effective := tender.Status
	if autoClose {
		effective = model.TenderStatusClosed
	}
	if !effective.CanTransitionTo(model.TenderStatusAwarded) {
		return awardOutcome{}, notAwardable(tender)
	}

	bids, err := tx.ListBidsByTenderForUpdate(ctx, tenderID)
	if err != nil {
		return awardOutcome{}, err
	}

	winner, err := findEligibleBid(ctx, tx, bids, tenderID, bidID)
	if err != nil {
		return awardOutcome{}, err
	}

	if autoClose {
		ok, err := tx.TransitionTender(ctx, tenderID, model.TenderStatusOpen, model.TenderStatusClosed)
		if err != nil {
			return awardOutcome{}, err
		}
		if !ok {
			return awardOutcome{}, fmt.Errorf("tender %d status changed while locked", tenderID)
		}
	}

	award := model.TenderAward{
		VendorID:  winner.VendorID,
		BidID:     winner.ID,
		Amount:    winner.Amount,
		Notes:     notes,
		AwardedAt: now,
		AwardedBy: actorID,
	}

	ok, err := tx.AwardTender(ctx, tenderID, award)
	if err != nil {
		return awardOutcome{}, err
	}
	if !ok {
		return awardOutcome{}, fmt.Errorf("%w: tender %d", model.ErrAlreadyAwarded, tenderID)
	}

	ok, err = tx.AwardBid(ctx, winner.ID, notes, now)
	if err != nil {
		return awardOutcome{}, err
	}
	if !ok {
		return awardOutcome{}, fmt.Errorf("%w: bid %d is no longer submitted", model.ErrBidNotEligible, winner.ID)
	}

	rejected, err := tx.RejectOtherBids(ctx, tenderID, winner.ID)
	if err != nil {
		return awardOutcome{}, err
	}

	notifications := s.buildNotifications(tender, winner, bids, now)
	if err := tx.EnqueueNotifications(ctx, notifications); err != nil {
		return awardOutcome{}, err
	}

	err = tx.RecordAudit(ctx, model.AuditEntry{
		ActorID:  actorID,
		Action:   model.AuditActionTenderAwarded,
		TenderID: tenderID,
		BidID:    winner.ID,
		VendorID: winner.VendorID,
		Amount:   winner.Amount,
		Details: fmt.Sprintf("tender %s awarded to vendor %d for %.2f; %d bids rejected",
			tender.Number, winner.VendorID, winner.Amount, rejected),
		CreatedAt: now,
	})
	if err != nil {
		return awardOutcome{}, err
	}

	return awardOutcome{
		tender:        tender,
		winner:        winner,
		rejected:      rejected,
		notifications: len(notifications),
		autoClosed:    autoClose,
	}, nil
}

func notAwardable(t *model.Tender) error {
	switch t.Status {
	case model.TenderStatusAwarded:
		return fmt.Errorf("%w: tender %d", model.ErrAlreadyAwarded, t.ID)
	case model.TenderStatusOpen, model.TenderStatusPendingApproval:
		return fmt.Errorf("%w: tender %d is %s", model.ErrTenderStillOpen, t.ID, t.Status)
	default:
		return fmt.Errorf("tender %d has unknown status %q", t.ID, t.Status)
	}
}

func findEligibleBid(ctx context.Context, tx repository.Tx, bids []model.Bid, tenderID, bidID int64) (model.Bid, error) {
	for _, b := range bids {
		if b.ID != bidID {
			continue
		}
		if !b.Status.CanTransitionTo(model.BidStatusAwarded) {
			return model.Bid{}, fmt.Errorf("%w: bid %d is %s", model.ErrBidNotEligible, bidID, b.Status)
		}
		return b, nil
	}

	// Предложения нет среди предложений тендера: либо его нет вовсе, либо оно от другого тендера.
	other, err := tx.GetBid(ctx, bidID)
	if err != nil {
		return model.Bid{}, err
	}
	return model.Bid{}, fmt.Errorf("%w: bid %d belongs to tender %d, not %d",
		model.ErrBidNotEligible, bidID, other.TenderID, tenderID)
}

// buildNotifications формирует уведомления по снимку предложений, прочитанному в транзакции:
// одно «award» победителю и одно «not selected» каждому проигравшему поставщику.
func (s *Service) buildNotifications(t *model.Tender, winner model.Bid, bids []model.Bid, now time.Time) []model.Notification {
	res := []model.Notification{{
		ID:        s.newID(),
		UserID:    winner.VendorID,
		Kind:      model.NotificationAwarded,
		Title:     "Tender Awarded",
		Body:      fmt.Sprintf("Congratulations! Your bid for tender %s (%s) has been accepted. Awarded amount: %.2f.", t.Number, t.Title, winner.Amount),
		TenderID:  t.ID,
		BidID:     winner.ID,
		CreatedAt: now,
	}}

	notified := map[int64]bool{winner.VendorID: true}
	for _, b := range bids {
		if b.ID == winner.ID || b.Status != model.BidStatusSubmitted || notified[b.VendorID] {
			continue
		}
		notified[b.VendorID] = true

		res = append(res, model.Notification{
			ID:        s.newID(),
			UserID:    b.VendorID,
			Kind:      model.NotificationNotSelected,
			Title:     "Tender Result",
			Body:      fmt.Sprintf("Your bid for tender %s (%s) was not selected. Thank you for participating.", t.Number, t.Title),
			TenderID:  t.ID,
			BidID:     b.ID,
			CreatedAt: now,
		})
	}

	return res
}

func (s *Service) recordAwardFailure(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	reason := "storage"
	if model.IsPrecondition(err) {
		reason = "precondition"
	}
	s.metrics.AwardsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// CloseTender вручную закрывает открытый тендер (open → closed).
func (s *Service) CloseTender(ctx context.Context, tenderID, actorID int64) error {
	err := s.repo.RunInTransaction(ctx, func(tx repository.Tx) error {
		tender, err := tx.GetTenderForUpdate(ctx, tenderID)
		if err != nil {
			return err
		}
		if !tender.Status.CanTransitionTo(model.TenderStatusClosed) {
			return fmt.Errorf("%w: tender %d is %s", model.ErrTenderNotOpen, tenderID, tender.Status)
		}

		ok, err := tx.TransitionTender(ctx, tenderID, model.TenderStatusOpen, model.TenderStatusClosed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: tender %d", model.ErrTenderNotOpen, tenderID)
		}

		return tx.RecordAudit(ctx, model.AuditEntry{
			ActorID:   actorID,
			Action:    model.AuditActionTenderClosed,
			TenderID:  tenderID,
			Details:   fmt.Sprintf("tender %s closed manually", tender.Number),
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("tender closed", zap.Int64("tenderID", tenderID), zap.Int64("actorID", actorID))
	return nil
}
