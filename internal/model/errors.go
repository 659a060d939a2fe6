package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTenderConfiguration возвращается, если бюджет тендера некорректен (min >= max или значения <= 0).
	ErrInvalidTenderConfiguration = errors.New("invalid tender configuration")
	// ErrInvalidBid возвращается для предложений с некорректными данными (например, срок поставки <= 0).
	ErrInvalidBid = errors.New("invalid bid input")
	// ErrInvalidVendorProfile возвращается, если рейтинг или опыт поставщика вне допустимого диапазона.
	ErrInvalidVendorProfile = errors.New("invalid vendor profile")
	// ErrTenderNotFound возвращается, если тендер не найден.
	ErrTenderNotFound = errors.New("tender not found")
	// ErrBidNotFound возвращается, если предложение не найдено.
	ErrBidNotFound = errors.New("bid not found")
	// ErrTenderStillOpen возвращается при попытке присудить тендер до его закрытия.
	ErrTenderStillOpen = errors.New("tender is still open")
	// ErrTenderNotOpen возвращается при попытке закрыть тендер, который не находится в статусе open.
	ErrTenderNotOpen = errors.New("tender is not open")
	// ErrBidNotEligible возвращается, если предложение не относится к тендеру или уже не в статусе submitted.
	ErrBidNotEligible = errors.New("bid is not eligible for award")
	// ErrAlreadyAwarded возвращается, если тендер уже присуждён. Повторять вызов не нужно.
	ErrAlreadyAwarded = errors.New("tender already awarded")
	// ErrAwardFailed возвращается при сбое хранилища во время присуждения. Перед повтором нужно перечитать статус тендера.
	ErrAwardFailed = errors.New("award failed")
)

// AwardError оборачивает ошибку хранилища, из-за которой транзакция присуждения откатилась.
type AwardError struct {
	TenderID int64
	BidID    int64
	Err      error
}

func (e *AwardError) Error() string {
	return fmt.Sprintf("award tender %d to bid %d: %v", e.TenderID, e.BidID, e.Err)
}

func (e *AwardError) Unwrap() error {
	return e.Err
}

// Is позволяет сопоставлять AwardError с ErrAwardFailed через errors.Is.
func (e *AwardError) Is(target error) bool {
	return target == ErrAwardFailed
}

// IsPrecondition сообщает, является ли ошибка нарушением предусловия присуждения,
// а не сбоем хранилища.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrTenderNotFound) ||
		errors.Is(err, ErrBidNotFound) ||
		errors.Is(err, ErrTenderStillOpen) ||
		errors.Is(err, ErrBidNotEligible) ||
		errors.Is(err, ErrAlreadyAwarded) ||
		errors.Is(err, ErrInvalidTenderConfiguration)
}
