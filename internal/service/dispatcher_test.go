package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/agrotender/internal/model"
)

type stubNotifier struct {
	mu   sync.Mutex
	err  error
	sent []model.Notification
}

func (n *stubNotifier) Notify(ctx context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func awardedStore(t *testing.T) *memStore {
	t.Helper()

	store := newMemStore()
	store.addTender(closedTender(1))
	store.addBid(submittedBid(11, 1, 100, 90))
	store.addBid(submittedBid(12, 1, 200, 60))
	require.NoError(t, newTestService(store).Award(context.Background(), 1, 11, "", 7))
	return store
}

func TestDispatcher_DeliversPending(t *testing.T) {
	store := awardedStore(t)
	notifier := &stubNotifier{}
	d := NewDispatcher(store, notifier, nil, WithDispatcherClock(fixedClock))

	n, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, notifier.count())

	for _, r := range store.snapshot().outbox {
		assert.Equal(t, model.OutboxStatusDelivered, r.status)
	}

	n, err = d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_ReschedulesFailedDelivery(t *testing.T) {
	store := awardedStore(t)
	notifier := &stubNotifier{err: errors.New("connection refused")}
	d := NewDispatcher(store, notifier, nil, WithDispatcherClock(fixedClock))

	n, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, r := range store.snapshot().outbox {
		assert.Equal(t, model.OutboxStatusPending, r.status)
		assert.Equal(t, 1, r.n.Attempts)
		assert.Equal(t, "connection refused", r.lastErr)
		assert.Equal(t, testNow.Add(baseRetryDelay), r.nextAttempt)
	}

	n, err = d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "rescheduled notifications must wait for back-off")
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	store := awardedStore(t)
	notifier := &stubNotifier{err: errors.New("boom")}

	now := testNow
	d := NewDispatcher(store, notifier, nil, WithDispatcherClock(func() time.Time { return now }))

	for i := 0; i < maxDeliveryAttempts; i++ {
		_, err := d.DeliverPending(context.Background())
		require.NoError(t, err)
		now = now.Add(maxRetryDelay)
	}

	for _, r := range store.snapshot().outbox {
		assert.Equal(t, model.OutboxStatusFailed, r.status)
		assert.Equal(t, maxDeliveryAttempts, r.n.Attempts)
	}

	n, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_AbandonedClaimsCountAsAttempts(t *testing.T) {
	store := awardedStore(t)
	notifier := &stubNotifier{}

	// Захваты без отметки о результате, как после падения диспетчера.
	now := testNow
	for i := 0; i < maxDeliveryAttempts; i++ {
		claimed, err := store.ClaimPendingNotifications(context.Background(), 10, now, now.Add(defaultLease))
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		now = now.Add(2 * defaultLease)
	}

	d := NewDispatcher(store, notifier, nil, WithDispatcherClock(func() time.Time { return now }))
	n, err := d.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, notifier.count())

	for _, r := range store.snapshot().outbox {
		assert.Equal(t, model.OutboxStatusFailed, r.status)
		assert.Equal(t, maxDeliveryAttempts+1, r.n.Attempts)
		assert.Equal(t, errAttemptsExhausted.Error(), r.lastErr)
	}
}

func TestDispatcher_ClaimError(t *testing.T) {
	store := newMemStore()
	store.claimErr = errStorage
	d := NewDispatcher(store, &stubNotifier{}, nil)

	_, err := d.DeliverPending(context.Background())
	assert.ErrorIs(t, err, errStorage)
}

func TestDispatcher_WakeDoesNotBlock(t *testing.T) {
	d := NewDispatcher(newMemStore(), &stubNotifier{}, nil)

	d.Wake()
	d.Wake()
	d.Wake()

	assert.Len(t, d.wake, 1)
}

func TestDispatcher_RunDeliversOnWake(t *testing.T) {
	store := awardedStore(t)
	notifier := &stubNotifier{}
	d := NewDispatcher(store, notifier, nil,
		WithDispatchInterval(time.Hour),
		WithDispatcherClock(fixedClock),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Wake()
	assert.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 7, want: 320 * time.Second},
		{attempt: 8, want: maxRetryDelay},
		{attempt: 30, want: maxRetryDelay},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}
