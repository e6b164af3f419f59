package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ponto.service/internal/agent/connectivity"
	"ponto.service/internal/core/model"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []model.Punch
	fail  func(p model.Punch) error
	block chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, p model.Punch) error {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail != nil {
		return f.fail(p)
	}
	return nil
}

func (f *fakeSubmitter) submitted() []model.Punch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Punch(nil), f.calls...)
}

// spyStore counts store access on top of a MemoryStore.
type spyStore struct {
	MemoryStore
	loads, saves int
}

func (s *spyStore) Load(ctx context.Context) ([]Entry, error) {
	s.loads++
	return s.MemoryStore.Load(ctx)
}

func (s *spyStore) Save(ctx context.Context, e []Entry) error {
	s.saves++
	return s.MemoryStore.Save(ctx, e)
}

type recordingDeadLetter struct {
	entries []Entry
	reasons []string
}

func (r *recordingDeadLetter) RecordAbandoned(_ context.Context, e Entry, reason string) error {
	r.entries = append(r.entries, e)
	r.reasons = append(r.reasons, reason)
	return nil
}

func newPunch(fs afero.Fs, employee string, typ model.PunchType) model.Punch {
	selfie := fmt.Sprintf("/selfies/%s-%s.jpg", employee, typ)
	_ = afero.WriteFile(fs, selfie, []byte("jpeg"), 0o644)
	return model.Punch{
		EmployeeID: employee,
		Type:       typ,
		Timestamp:  time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
		Latitude:   -23.5505,
		Longitude:  -46.6333,
		SelfieRef:  selfie,
		DeviceID:   "device-1",
	}
}

func newTestQueue(store Store, sub Submitter, online bool, opts ...Option) (*Queue, *connectivity.Flag, afero.Fs) {
	fs := afero.NewMemMapFs()
	flag := connectivity.NewFlag(online)
	opts = append([]Option{WithFs(fs)}, opts...)
	return New(store, sub, flag, opts...), flag, fs
}

func TestDrainEmptyQueue(t *testing.T) {
	q, _, _ := newTestQueue(NewMemoryStore(), &fakeSubmitter{}, true)

	res, err := q.Drain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
}

func TestDrainOfflineDoesNotTouchStore(t *testing.T) {
	store := &spyStore{}
	sub := &fakeSubmitter{}
	q, _, fs := newTestQueue(store, sub, false)

	_, err := q.Enqueue(context.Background(), newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)
	loads, saves := store.loads, store.saves

	res, err := q.Drain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
	assert.Equal(t, loads, store.loads)
	assert.Equal(t, saves, store.saves)
	assert.Empty(t, sub.submitted())
}

func TestDrainSendsInEnqueueOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true)
	ctx := context.Background()

	types := []model.PunchType{model.PunchEntry, model.PunchBreakStart, model.PunchBreakEnd}
	for _, typ := range types {
		_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", typ))
		require.NoError(t, err)
	}

	res, err := q.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 3}, res)
	calls := sub.submitted()
	require.Len(t, calls, 3)
	for i, typ := range types {
		assert.Equal(t, typ, calls[i].Type)
	}
	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDrainAbandonsAfterMaxAttempts(t *testing.T) {
	sub := &fakeSubmitter{fail: func(model.Punch) error { return errors.New("503") }}
	dead := &recordingDeadLetter{}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true, WithDeadLetter(dead))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", model.PunchExit))
	require.NoError(t, err)

	for i := 1; i < MaxAttempts; i++ {
		res, err := q.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, DrainResult{Failed: 1}, res)

		entries, err := q.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, i, entries[0].AttemptCount)
	}

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Failed: 1, Abandoned: 1}, res)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, sub.submitted(), MaxAttempts)
	require.Len(t, dead.entries, 1)
	assert.Equal(t, MaxAttempts, dead.entries[0].AttemptCount)

	res, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
}

func TestDrainMissingSelfieSkipsNetwork(t *testing.T) {
	sub := &fakeSubmitter{}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true)
	ctx := context.Background()

	p := newPunch(fs, "emp-1", model.PunchEntry)
	_, err := q.Enqueue(ctx, p)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(p.SelfieRef))

	for i := 0; i < MaxAttempts; i++ {
		_, err := q.Drain(ctx)
		require.NoError(t, err)
	}

	assert.Empty(t, sub.submitted())
	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDrainRejectedIsAbandonedImmediately(t *testing.T) {
	sub := &fakeSubmitter{fail: func(p model.Punch) error {
		if p.Type == model.PunchEntry {
			return fmt.Errorf("%w: already punched today", ErrRejected)
		}
		return nil
	}}
	dead := &recordingDeadLetter{}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true, WithDeadLetter(dead))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, newPunch(fs, "emp-1", model.PunchExit))
	require.NoError(t, err)

	res, err := q.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, DrainResult{Sent: 1, Failed: 1, Abandoned: 1}, res)
	require.Len(t, dead.reasons, 1)
	assert.Contains(t, dead.reasons[0], "already punched today")
}

func TestDrainTimeoutCountsAsFailure(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true, WithSubmitTimeout(10*time.Millisecond))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)

	res, err := q.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, DrainResult{Failed: 1}, res)
	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].AttemptCount)
}

func TestDrainIsNotReentrant(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)

	first := make(chan DrainResult)
	go func() {
		res, _ := q.Drain(ctx)
		first <- res
	}()
	require.Eventually(t, func() bool { return len(sub.submitted()) == 1 }, time.Second, time.Millisecond)

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)

	close(sub.block)
	assert.Equal(t, DrainResult{Sent: 1}, <-first)
	assert.Len(t, sub.submitted(), 1)
}

func TestDrainCanceledLeavesEntry(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true)

	_, err := q.Enqueue(context.Background(), newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].AttemptCount)
}

func TestEnqueueKicks(t *testing.T) {
	q, _, fs := newTestQueue(NewMemoryStore(), &fakeSubmitter{}, false)

	id, err := q.Enqueue(context.Background(), newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// a second enqueue must not block on the full kick buffer
	_, err = q.Enqueue(context.Background(), newPunch(fs, "emp-2", model.PunchEntry))
	require.NoError(t, err)

	select {
	case <-q.Kicks():
	default:
		t.Fatal("expected a drain kick after enqueue")
	}
}
