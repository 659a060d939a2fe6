package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/agrotender/internal/model"
	"github.com/mmeshcher/agrotender/internal/repository"
)

var errStorage = errors.New("storage unavailable")

type outboxRow struct {
	n           model.Notification
	status      model.OutboxStatus
	nextAttempt time.Time
	lastErr     string
}

type memState struct {
	tenders  map[int64]model.Tender
	bids     map[int64]model.Bid
	profiles map[int64]model.VendorProfile
	outbox   []outboxRow
	audit    []model.AuditEntry
}

func (s memState) clone() memState {
	return memState{
		tenders:  maps.Clone(s.tenders),
		bids:     maps.Clone(s.bids),
		profiles: s.profiles,
		outbox:   append([]outboxRow(nil), s.outbox...),
		audit:    append([]model.AuditEntry(nil), s.audit...),
	}
}

// memStore реализует хранилище в памяти с сериализуемыми транзакциями: изменения
// применяются к копии состояния и публикуются только при успешном завершении.
type memStore struct {
	mu    sync.Mutex
	state memState

	failOn       string
	profileLoads int
	scoreWrites  int
	claimErr     error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		tenders:  map[int64]model.Tender{},
		bids:     map[int64]model.Bid{},
		profiles: map[int64]model.VendorProfile{},
	}}
}

func (m *memStore) addTender(t model.Tender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tenders[t.ID] = t
}

func (m *memStore) addBid(b model.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.bids[b.ID] = b
}

func (m *memStore) addProfile(p model.VendorProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.profiles[p.VendorID] = p
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) Close() error { return nil }

func (m *memStore) GetTender(ctx context.Context, id int64) (*model.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getTender(id)
}

func (m *memStore) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getBid(id)
}

func (m *memStore) ListBidsByTender(ctx context.Context, tenderID int64) ([]model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listBids(tenderID), nil
}

func (m *memStore) GetVendorProfile(ctx context.Context, vendorID int64) (model.VendorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileLoads++
	p, ok := m.state.profiles[vendorID]
	if !ok {
		return model.VendorProfile{VendorID: vendorID}, nil
	}
	return p, nil
}

func (m *memStore) UpdateBidScore(ctx context.Context, bidID int64, score model.ScoreBreakdown, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "UpdateBidScore" {
		return errStorage
	}
	b, ok := m.state.bids[bidID]
	if !ok {
		return model.ErrBidNotFound
	}
	b.Score = &score
	b.ScoreUpdatedAt = &at
	m.state.bids[bidID] = b
	m.scoreWrites++
	return nil
}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), failOn: m.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	if m.failOn == "Commit" {
		return errStorage
	}
	m.state = tx.state
	return nil
}

func (m *memStore) ClaimPendingNotifications(ctx context.Context, limit int, now, leaseUntil time.Time) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}

	var res []model.Notification
	for i := range m.state.outbox {
		if len(res) == limit {
			break
		}
		row := &m.state.outbox[i]
		if row.status != model.OutboxStatusPending || row.nextAttempt.After(now) {
			continue
		}
		row.nextAttempt = leaseUntil
		row.n.Attempts++
		res = append(res, row.n)
	}
	return res, nil
}

func (m *memStore) MarkNotificationDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.updateOutbox(id, func(r *outboxRow) {
		r.status = model.OutboxStatusDelivered
	})
}

func (m *memStore) MarkNotificationFailed(ctx context.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time, final bool) error {
	return m.updateOutbox(id, func(r *outboxRow) {
		if final {
			r.status = model.OutboxStatusFailed
		}
		r.lastErr = lastErr
		r.nextAttempt = nextAttemptAt
	})
}

func (m *memStore) updateOutbox(id uuid.UUID, fn func(r *outboxRow)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.outbox {
		if m.state.outbox[i].n.ID == id {
			fn(&m.state.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("notification %s not found", id)
}

func (s memState) getTender(id int64) (*model.Tender, error) {
	t, ok := s.tenders[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", model.ErrTenderNotFound, id)
	}
	return &t, nil
}

func (s memState) getBid(id int64) (*model.Bid, error) {
	b, ok := s.bids[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", model.ErrBidNotFound, id)
	}
	return &b, nil
}

func (s memState) listBids(tenderID int64) []model.Bid {
	var res []model.Bid
	for _, b := range s.bids {
		if b.TenderID == tenderID {
			res = append(res, b)
		}
	}
	return res
}

type memTx struct {
	state  memState
	failOn string
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("%s: %w", op, errStorage)
	}
	return nil
}

func (t *memTx) GetTenderForUpdate(ctx context.Context, id int64) (*model.Tender, error) {
	if err := t.fail("GetTenderForUpdate"); err != nil {
		return nil, err
	}
	return t.state.getTender(id)
}

func (t *memTx) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	return t.state.getBid(id)
}

func (t *memTx) ListBidsByTenderForUpdate(ctx context.Context, tenderID int64) ([]model.Bid, error) {
	return t.state.listBids(tenderID), nil
}

func (t *memTx) TransitionTender(ctx context.Context, id int64, from, to model.TenderStatus) (bool, error) {
	if err := t.fail("TransitionTender"); err != nil {
		return false, err
	}
	tender, ok := t.state.tenders[id]
	if !ok || tender.Status != from {
		return false, nil
	}
	tender.Status = to
	t.state.tenders[id] = tender
	return true, nil
}

func (t *memTx) AwardTender(ctx context.Context, tenderID int64, award model.TenderAward) (bool, error) {
	if err := t.fail("AwardTender"); err != nil {
		return false, err
	}
	// Параллельная транзакция успела присудить тендер между чтением и записью.
	if t.failOn == "AwardTenderLost" {
		return false, nil
	}
	tender, ok := t.state.tenders[tenderID]
	if !ok || tender.Status != model.TenderStatusClosed {
		return false, nil
	}
	tender.Status = model.TenderStatusAwarded
	tender.Award = &award
	t.state.tenders[tenderID] = tender
	return true, nil
}

func (t *memTx) AwardBid(ctx context.Context, bidID int64, notes string, at time.Time) (bool, error) {
	if err := t.fail("AwardBid"); err != nil {
		return false, err
	}
	b, ok := t.state.bids[bidID]
	if !ok || b.Status != model.BidStatusSubmitted {
		return false, nil
	}
	b.Status = model.BidStatusAwarded
	b.AwardNotes = notes
	b.AwardedAt = &at
	t.state.bids[bidID] = b
	return true, nil
}

func (t *memTx) RejectOtherBids(ctx context.Context, tenderID, winnerBidID int64) (int64, error) {
	if err := t.fail("RejectOtherBids"); err != nil {
		return 0, err
	}
	var n int64
	for id, b := range t.state.bids {
		if b.TenderID == tenderID && id != winnerBidID && b.Status == model.BidStatusSubmitted {
			b.Status = model.BidStatusRejected
			t.state.bids[id] = b
			n++
		}
	}
	return n, nil
}

func (t *memTx) EnqueueNotifications(ctx context.Context, notifications []model.Notification) error {
	if err := t.fail("EnqueueNotifications"); err != nil {
		return err
	}
	for _, n := range notifications {
		t.state.outbox = append(t.state.outbox, outboxRow{
			n:           n,
			status:      model.OutboxStatusPending,
			nextAttempt: n.CreatedAt,
		})
	}
	return nil
}

func (t *memTx) RecordAudit(ctx context.Context, entry model.AuditEntry) error {
	if err := t.fail("RecordAudit"); err != nil {
		return err
	}
	t.state.audit = append(t.state.audit, entry)
	return nil
}
