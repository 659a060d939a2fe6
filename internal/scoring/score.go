// Package scoring реализует расчёт оценки предложений и их ранжирование.
// Все функции пакета чистые: одинаковые входные данные дают одинаковый результат.
package scoring

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/validation"
)

// Максимальные веса компонентов оценки, в сумме 100.
const (
	MaxPriceScore      = 40
	MaxDeliveryScore   = 25
	MaxRatingScore     = 20
	MaxExperienceScore = 10
	MaxProposalScore   = 5
)

const (
	optimalDeliveryDays    = 7
	maxCountedDeliveryDays = 30
	maxRating              = 5
	experienceCapYears     = 10
	proposalMinLength      = 100
	proposalCapLength      = 1000
	scorePrecision         = 2
)

var (
	priceWeight      = decimal.NewFromInt(MaxPriceScore)
	deliveryWeight   = decimal.NewFromInt(MaxDeliveryScore)
	ratingWeight     = decimal.NewFromInt(MaxRatingScore)
	experienceWeight = decimal.NewFromInt(MaxExperienceScore)
	proposalWeight   = decimal.NewFromInt(MaxProposalScore)
)

// Calculate рассчитывает оценку предложения bid по тендеру tender с учётом профиля поставщика.
// Каждый компонент округляется до двух знаков, итог равен сумме округлённых компонентов.
//
// Некорректный бюджет тендера возвращает model.ErrInvalidTenderConfiguration,
// некорректное предложение возвращает model.ErrInvalidBid, профиль вне диапазона возвращает model.ErrInvalidVendorProfile.
func Calculate(bid model.Bid, tender model.Tender, profile model.VendorProfile) (model.ScoreBreakdown, error) {
	if err := validation.ValidateBudget(tender.BudgetMin, tender.BudgetMax); err != nil {
		return model.ScoreBreakdown{}, err
	}
	if err := validation.ValidateBid(&bid); err != nil {
		return model.ScoreBreakdown{}, err
	}
	if err := validation.ValidateVendorProfile(profile); err != nil {
		return model.ScoreBreakdown{}, err
	}

	price := priceScore(bid.Amount, tender.BudgetMin, tender.BudgetMax)
	delivery := deliveryScore(bid.DeliveryTimeline)
	rating := ratingScore(profile.Rating)
	experience := experienceScore(profile.ExperienceYears)
	proposal := proposalScore(bid.Proposal)

	total := price.Add(delivery).Add(rating).Add(experience).Add(proposal)

	return model.ScoreBreakdown{
		PriceCompetitiveness: toFloat(price),
		DeliveryTimeline:     toFloat(delivery),
		VendorRating:         toFloat(rating),
		Experience:           toFloat(experience),
		ProposalQuality:      toFloat(proposal),
		Total:                toFloat(total),
	}, nil
}

// priceScore: чем ниже цена в пределах бюджета, тем выше оценка; вне бюджета — 0.
func priceScore(amount, budgetMin, budgetMax float64) decimal.Decimal {
	if amount < budgetMin || amount > budgetMax {
		return decimal.Zero
	}

	lo := decimal.NewFromFloat(budgetMin)
	hi := decimal.NewFromFloat(budgetMax)
	a := decimal.NewFromFloat(amount)

	return hi.Sub(a).Div(hi.Sub(lo)).Mul(priceWeight).Round(scorePrecision)
}

func deliveryScore(days int) decimal.Decimal {
	counted := min(days, maxCountedDeliveryDays)
	if counted >= optimalDeliveryDays {
		return decimal.Zero
	}

	optimal := decimal.NewFromInt(optimalDeliveryDays)
	return optimal.Sub(decimal.NewFromInt(int64(counted))).
		Div(optimal).
		Mul(deliveryWeight).
		Round(scorePrecision)
}

func ratingScore(rating float64) decimal.Decimal {
	return decimal.NewFromFloat(rating).
		Div(decimal.NewFromInt(maxRating)).
		Mul(ratingWeight).
		Round(scorePrecision)
}

func experienceScore(years float64) decimal.Decimal {
	ratio := decimal.NewFromFloat(years).Div(decimal.NewFromInt(experienceCapYears))
	ratio = decimal.Min(ratio, decimal.NewFromInt(1))
	return ratio.Mul(experienceWeight).Round(scorePrecision)
}

// proposalScore оценивает только длину текста в символах.
// TODO: заменить эвристику длины на сигнал качества содержания, когда он появится в данных тендеров.
func proposalScore(proposal string) decimal.Decimal {
	length := utf8.RuneCountInString(proposal)
	if length <= proposalMinLength {
		return decimal.Zero
	}

	ratio := decimal.NewFromInt(int64(length)).Div(decimal.NewFromInt(proposalCapLength))
	ratio = decimal.Min(ratio, decimal.NewFromInt(1))
	return ratio.Mul(proposalWeight).Round(scorePrecision)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
