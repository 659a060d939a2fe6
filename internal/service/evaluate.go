package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/scoring"
	"github.com/mmeshcher/agrotender/internal/telemetry"
	"github.com/mmeshcher/agrotender/internal/validation"
)

// Evaluate пересчитывает оценки предложений тендера и возвращает число оценённых предложений.
// Без force оцениваются только submitted-предложения без оценки, с force все предложения.
//
// Предложения с некорректными данными пропускаются, их ошибки (ErrInvalidBid,
// ErrInvalidVendorProfile) возвращаются вместе через errors.Join после оценки остальных.
// Повторный запуск на неизменных данных ничего не меняет в хранилище.
func (s *Service) Evaluate(ctx context.Context, tenderID int64, force bool) (int, error) {
	ctx, span := telemetry.StartEvaluateSpan(ctx, tenderID, force)
	defer span.End()

	count, err := s.evaluate(ctx, tenderID, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return count, err
}

func (s *Service) evaluate(ctx context.Context, tenderID int64, force bool) (int, error) {
	tender, err := s.repo.GetTender(ctx, tenderID)
	if err != nil {
		return 0, err
	}
	if err := validation.ValidateBudget(tender.BudgetMin, tender.BudgetMax); err != nil {
		return 0, fmt.Errorf("tender %d: %w", tenderID, err)
	}

	bids, err := s.repo.ListBidsByTender(ctx, tenderID)
	if err != nil {
		return 0, err
	}

	targets := make([]model.Bid, 0, len(bids))
	for _, b := range bids {
		if force || (b.Status == model.BidStatusSubmitted && b.Score == nil) {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var (
		evaluated atomic.Int64
		mu        sync.Mutex
		invalid   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.evaluateConcurrency)

	for _, bid := range targets {
		g.Go(func() error {
			changed, err := s.scoreBid(gctx, *tender, bid)
			if err != nil {
				if errors.Is(err, model.ErrInvalidBid) || errors.Is(err, model.ErrInvalidVendorProfile) {
					mu.Lock()
					invalid = append(invalid, fmt.Errorf("bid %d: %w", bid.ID, err))
					mu.Unlock()
					return nil
				}
				return err
			}

			evaluated.Add(1)
			if changed && s.metrics != nil {
				s.metrics.BidsScored.Add(gctx, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("evaluate failed", zap.Int64("tenderID", tenderID), zap.Error(err))
		return int(evaluated.Load()), err
	}

	s.logger.Info("bids evaluated",
		zap.Int64("tenderID", tenderID),
		zap.Bool("force", force),
		zap.Int64("evaluated", evaluated.Load()),
		zap.Int("skipped", len(invalid)),
	)

	return int(evaluated.Load()), errors.Join(invalid...)
}

// scoreBid считает оценку одного предложения и сохраняет её, если она изменилась.
func (s *Service) scoreBid(ctx context.Context, tender model.Tender, bid model.Bid) (bool, error) {
	profile, err := s.vendorProfile(ctx, bid.VendorID)
	if err != nil {
		return false, err
	}

	score, err := scoring.Calculate(bid, tender, profile)
	if err != nil {
		return false, err
	}

	if bid.Score != nil && *bid.Score == score {
		return false, nil
	}

	if err := s.repo.UpdateBidScore(ctx, bid.ID, score, s.now()); err != nil {
		return false, fmt.Errorf("save score of bid %d: %w", bid.ID, err)
	}
	return true, nil
}

func (s *Service) vendorProfile(ctx context.Context, vendorID int64) (model.VendorProfile, error) {
	if s.profiles != nil {
		if p, ok := s.profiles.Get(vendorID); ok {
			return p, nil
		}
	}

	p, err := s.repo.GetVendorProfile(ctx, vendorID)
	if err != nil {
		return model.VendorProfile{}, fmt.Errorf("load vendor profile %d: %w", vendorID, err)
	}

	if s.profiles != nil {
		s.profiles.Set(p)
	}
	return p, nil
}

// RankedBids возвращает предложения тендера в порядке рейтинга.
// Неоценённые submitted-предложения оцениваются при первом просмотре.
func (s *Service) RankedBids(ctx context.Context, tenderID int64) ([]model.RankedBid, error) {
	if _, err := s.Evaluate(ctx, tenderID, false); err != nil {
		if !errors.Is(err, model.ErrInvalidBid) && !errors.Is(err, model.ErrInvalidVendorProfile) {
			return nil, err
		}
		s.logger.Warn("some bids left unscored", zap.Int64("tenderID", tenderID), zap.Error(err))
	}

	bids, err := s.repo.ListBidsByTender(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(bids), nil
}
