// Package model содержит доменные сущности сервиса оценки и присуждения тендеров.
package model

import "time"

// Tender описывает закупочный тендер, опубликованный администратором.
type Tender struct {
	ID               int64
	Number           string
	Title            string
	Description      string
	CategoryID       int64
	Quantity         float64
	Unit             string
	BudgetMin        float64
	BudgetMax        float64
	Deadline         time.Time
	DeliveryLocation string
	DeliveryDate     *time.Time
	Requirements     string
	Status           TenderStatus
	CreatedBy        int64
	CreatedAt        time.Time

	Award *TenderAward
}

// TenderAward содержит аудиторские поля присуждения тендера.
type TenderAward struct {
	VendorID  int64
	BidID     int64
	Amount    float64
	Notes     string
	AwardedAt time.Time
	AwardedBy int64
}

// IsPastDeadline сообщает, истёк ли срок подачи предложений на момент now.
func (t *Tender) IsPastDeadline(now time.Time) bool {
	return !t.Deadline.IsZero() && !now.Before(t.Deadline)
}

// Bid описывает предложение поставщика по тендеру.
type Bid struct {
	ID               int64
	TenderID         int64
	VendorID         int64
	Amount           float64
	DeliveryTimeline int
	Proposal         string
	Status           BidStatus
	SubmittedAt      time.Time

	Score          *ScoreBreakdown
	ScoreUpdatedAt *time.Time

	AwardNotes string
	AwardedAt  *time.Time
}

// VendorProfile содержит данные поставщика, используемые при оценке.
type VendorProfile struct {
	VendorID        int64
	Rating          float64
	ExperienceYears float64
}

// ScoreBreakdown содержит пять компонентов оценки предложения и их сумму.
type ScoreBreakdown struct {
	PriceCompetitiveness float64 `json:"price_competitiveness"`
	DeliveryTimeline     float64 `json:"delivery_timeline"`
	VendorRating         float64 `json:"vendor_rating"`
	Experience           float64 `json:"experience"`
	ProposalQuality      float64 `json:"proposal_quality"`
	Total                float64 `json:"-"`
}

// RankedBid связывает предложение с его местом в рейтинге (1 соответствует лучшему).
type RankedBid struct {
	Rank int
	Bid  Bid
}
