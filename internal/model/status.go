package model

// TenderStatus описывает стадию жизненного цикла тендера.
type TenderStatus string

const (
	TenderStatusPendingApproval TenderStatus = "pending_approval"
	TenderStatusOpen            TenderStatus = "open"
	TenderStatusClosed          TenderStatus = "closed"
	TenderStatusAwarded         TenderStatus = "awarded"
)

var tenderTransitions = map[TenderStatus][]TenderStatus{
	TenderStatusPendingApproval: {TenderStatusOpen},
	TenderStatusOpen:            {TenderStatusClosed},
	TenderStatusClosed:          {TenderStatusAwarded},
	TenderStatusAwarded:         {},
}

// Valid сообщает, является ли статус известным.
func (s TenderStatus) Valid() bool {
	_, ok := tenderTransitions[s]
	return ok
}

// CanTransitionTo проверяет допустимость перехода. Переходы только вперёд, на один шаг.
func (s TenderStatus) CanTransitionTo(next TenderStatus) bool {
	for _, allowed := range tenderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BidStatus описывает статус предложения.
type BidStatus string

const (
	BidStatusSubmitted BidStatus = "submitted"
	BidStatusAwarded   BidStatus = "awarded"
	BidStatusRejected  BidStatus = "rejected"
)

var bidTransitions = map[BidStatus][]BidStatus{
	BidStatusSubmitted: {BidStatusAwarded, BidStatusRejected},
	BidStatusAwarded:   {},
	BidStatusRejected:  {},
}

// Valid сообщает, является ли статус известным.
func (s BidStatus) Valid() bool {
	_, ok := bidTransitions[s]
	return ok
}

// CanTransitionTo проверяет допустимость перехода предложения.
func (s BidStatus) CanTransitionTo(next BidStatus) bool {
	for _, allowed := range bidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
