package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/validation"
)

const tenderColumns = `id, tender_number, title, description, COALESCE(category_id, 0), quantity, unit,
	budget_min, budget_max, deadline, delivery_location, delivery_date, requirements, status,
	created_by, created_at, awarded_to, awarded_bid_id, awarded_amount, award_notes, awarded_at, awarded_by`

const bidColumns = `id, tender_id, vendor_id, amount, delivery_timeline, proposal, status, submitted_at,
	score_breakdown, bid_score, score_updated_at, award_notes, awarded_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanTender(row scannable) (*model.Tender, error) {
	var (
		t             model.Tender
		status        string
		awardedTo     *int64
		awardedBidID  *int64
		awardedAmount *float64
		awardNotes    *string
		awardedAt     *time.Time
		awardedBy     *int64
	)

	err := row.Scan(
		&t.ID, &t.Number, &t.Title, &t.Description, &t.CategoryID, &t.Quantity, &t.Unit,
		&t.BudgetMin, &t.BudgetMax, &t.Deadline, &t.DeliveryLocation, &t.DeliveryDate, &t.Requirements, &status,
		&t.CreatedBy, &t.CreatedAt, &awardedTo, &awardedBidID, &awardedAmount, &awardNotes, &awardedAt, &awardedBy,
	)
	if err != nil {
		return nil, err
	}

	t.Status = model.TenderStatus(status)
	if awardedBidID != nil {
		t.Award = &model.TenderAward{
			VendorID:  deref(awardedTo),
			BidID:     *awardedBidID,
			Amount:    deref(awardedAmount),
			Notes:     deref(awardNotes),
			AwardedBy: deref(awardedBy),
		}
		if awardedAt != nil {
			t.Award.AwardedAt = *awardedAt
		}
	}

	return &t, nil
}

func scanBid(row scannable) (*model.Bid, error) {
	var (
		b          model.Bid
		status     string
		breakdown  []byte
		total      *float64
		awardNotes *string
	)

	err := row.Scan(
		&b.ID, &b.TenderID, &b.VendorID, &b.Amount, &b.DeliveryTimeline, &b.Proposal, &status, &b.SubmittedAt,
		&breakdown, &total, &b.ScoreUpdatedAt, &awardNotes, &b.AwardedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = model.BidStatus(status)
	b.AwardNotes = deref(awardNotes)

	if breakdown != nil {
		var score model.ScoreBreakdown
		if err := json.Unmarshal(breakdown, &score); err != nil {
			return nil, fmt.Errorf("decode score breakdown of bid %d: %w", b.ID, err)
		}
		score.Total = deref(total)
		b.Score = &score
	}

	return &b, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func getTender(ctx context.Context, q querier, id int64, forUpdate bool) (*model.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tenders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t, err := scanTender(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", model.ErrTenderNotFound, id)
		}
		return nil, fmt.Errorf("get tender: %w", err)
	}
	return t, nil
}

func getBid(ctx context.Context, q querier, id int64) (*model.Bid, error) {
	b, err := scanBid(q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", model.ErrBidNotFound, id)
		}
		return nil, fmt.Errorf("get bid: %w", err)
	}
	return b, nil
}

func listBidsByTender(ctx context.Context, q querier, tenderID int64, forUpdate bool) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE tender_id = $1 ORDER BY submitted_at, id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, tenderID)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return bids, nil
}

// GetTender возвращает тендер по идентификатору.
func (r *PostgresRepository) GetTender(ctx context.Context, id int64) (*model.Tender, error) {
	return getTender(ctx, r.pool, id, false)
}

// GetBid возвращает предложение по идентификатору.
func (r *PostgresRepository) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	return getBid(ctx, r.pool, id)
}

// ListBidsByTender возвращает все предложения тендера в порядке подачи.
func (r *PostgresRepository) ListBidsByTender(ctx context.Context, tenderID int64) ([]model.Bid, error) {
	return listBidsByTender(ctx, r.pool, tenderID, false)
}

// CreateTender проверяет и сохраняет новый тендер.
func (r *PostgresRepository) CreateTender(ctx context.Context, t *model.Tender) (int64, error) {
	if err := validation.ValidateTender(t); err != nil {
		return 0, err
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tenders (tender_number, title, description, category_id, quantity, unit, budget_min, budget_max,
			deadline, delivery_location, delivery_date, requirements, status, created_by)
		 VALUES ($1, $2, $3, NULLIF($4::bigint, 0), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`,
		t.Number, t.Title, t.Description, t.CategoryID, t.Quantity, t.Unit, t.BudgetMin, t.BudgetMax,
		t.Deadline, t.DeliveryLocation, t.DeliveryDate, t.Requirements, string(t.Status), t.CreatedBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("tender number %s already exists: %w", t.Number, err)
		}
		return 0, fmt.Errorf("create tender: %w", err)
	}
	return id, nil
}

// CreateBid сохраняет предложение поставщика в статусе submitted.
func (r *PostgresRepository) CreateBid(ctx context.Context, b *model.Bid) (int64, error) {
	if err := validation.ValidateBid(b); err != nil {
		return 0, err
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO bids (tender_id, vendor_id, amount, delivery_timeline, proposal, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 RETURNING id`,
		b.TenderID, b.VendorID, b.Amount, b.DeliveryTimeline, b.Proposal,
		string(model.BidStatusSubmitted), nullTime(b.SubmittedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create bid: %w", err)
	}
	return id, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpdateBidScore сохраняет разбивку и итоговую оценку предложения.
func (r *PostgresRepository) UpdateBidScore(ctx context.Context, bidID int64, score model.ScoreBreakdown, at time.Time) error {
	breakdown, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score breakdown: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE bids SET score_breakdown = $2, bid_score = $3, score_updated_at = $4 WHERE id = $1`,
		bidID, breakdown, score.Total, at,
	)
	if err != nil {
		return fmt.Errorf("update bid score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", model.ErrBidNotFound, bidID)
	}
	return nil
}

// GetVendorProfile возвращает средний рейтинг и опыт поставщика.
// Поставщик без оценок получает рейтинг 0.
func (r *PostgresRepository) GetVendorProfile(ctx context.Context, vendorID int64) (model.VendorProfile, error) {
	p := model.VendorProfile{VendorID: vendorID}
	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE((SELECT AVG(rating)::float8 FROM vendor_ratings WHERE vendor_id = $1), 0),
			COALESCE((SELECT experience_years::float8 FROM vendor_profiles WHERE vendor_id = $1), 0)`,
		vendorID,
	).Scan(&p.Rating, &p.ExperienceYears)
	if err != nil {
		return model.VendorProfile{}, fmt.Errorf("get vendor profile: %w", err)
	}
	return p, nil
}
