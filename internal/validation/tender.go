// Package validation содержит функции валидации входных данных тендеров и предложений.
package validation

import (
	"fmt"
	"math"

	"github.com/mmeshcher/agrotender/internal/model"
)

// ValidateBudget проверяет бюджетный диапазон тендера: обе границы положительны и min < max.
func ValidateBudget(budgetMin, budgetMax float64) error {
	if !isFinite(budgetMin) || !isFinite(budgetMax) {
		return fmt.Errorf("%w: budget must be a finite number", model.ErrInvalidTenderConfiguration)
	}
	if budgetMin <= 0 || budgetMax <= 0 {
		return fmt.Errorf("%w: budget must be positive (min=%v, max=%v)", model.ErrInvalidTenderConfiguration, budgetMin, budgetMax)
	}
	if budgetMin >= budgetMax {
		return fmt.Errorf("%w: budget_min %v must be less than budget_max %v", model.ErrInvalidTenderConfiguration, budgetMin, budgetMax)
	}
	return nil
}

// ValidateTender проверяет инварианты тендера, которые должны выполняться с момента создания.
func ValidateTender(t *model.Tender) error {
	if t == nil {
		return fmt.Errorf("%w: tender is nil", model.ErrInvalidTenderConfiguration)
	}
	if err := ValidateBudget(t.BudgetMin, t.BudgetMax); err != nil {
		return err
	}
	if t.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", model.ErrInvalidTenderConfiguration)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidTenderConfiguration, t.Status)
	}
	return nil
}

// ValidateBid проверяет данные предложения перед расчётом оценки.
// Срок поставки <= 0 считается ошибкой данных, а не «мгновенной» поставкой.
func ValidateBid(b *model.Bid) error {
	if b == nil {
		return fmt.Errorf("%w: bid is nil", model.ErrInvalidBid)
	}
	if !isFinite(b.Amount) || b.Amount <= 0 {
		return fmt.Errorf("%w: bid %d amount must be positive", model.ErrInvalidBid, b.ID)
	}
	if b.DeliveryTimeline <= 0 {
		return fmt.Errorf("%w: bid %d delivery timeline must be positive, got %d", model.ErrInvalidBid, b.ID, b.DeliveryTimeline)
	}
	return nil
}

// ValidateVendorProfile проверяет диапазоны рейтинга (0–5) и опыта (>= 0).
func ValidateVendorProfile(p model.VendorProfile) error {
	if !isFinite(p.Rating) || p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("%w: vendor %d rating %v out of range [0, 5]", model.ErrInvalidVendorProfile, p.VendorID, p.Rating)
	}
	if !isFinite(p.ExperienceYears) || p.ExperienceYears < 0 {
		return fmt.Errorf("%w: vendor %d experience must not be negative", model.ErrInvalidVendorProfile, p.VendorID)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
