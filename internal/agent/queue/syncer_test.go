package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ponto.service/internal/core/model"
)

func runSyncer(t *testing.T, s *Syncer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestSyncerDrainsOnReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	sub := &fakeSubmitter{}
	q, flag, fs := newTestQueue(NewMemoryStore(), sub, false)
	stop := runSyncer(t, NewSyncer(q, time.Hour))
	defer stop()
	ctx := context.Background()

	types := []model.PunchType{model.PunchEntry, model.PunchBreakStart, model.PunchBreakEnd}
	for _, typ := range types {
		_, err := q.Enqueue(ctx, newPunch(fs, "emp-1", typ))
		require.NoError(t, err)
	}

	// kicks while offline are no-ops
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.submitted())

	flag.Set(true)

	require.Eventually(t, func() bool {
		n, err := q.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)

	calls := sub.submitted()
	require.Len(t, calls, 3)
	for i, typ := range types {
		assert.Equal(t, typ, calls[i].Type)
	}
}

func TestSyncerDrainsAfterEnqueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	sub := &fakeSubmitter{}
	q, _, fs := newTestQueue(NewMemoryStore(), sub, true)
	stop := runSyncer(t, NewSyncer(q, time.Hour))
	defer stop()

	_, err := q.Enqueue(context.Background(), newPunch(fs, "emp-1", model.PunchEntry))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sub.submitted()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSyncerDrainsLeftoversOnStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	sub := &fakeSubmitter{}
	store := NewMemoryStore()
	q, _, fs := newTestQueue(store, sub, true)

	// seeded directly, so no enqueue kick is pending
	require.NoError(t, store.Save(context.Background(), []Entry{{QueueID: "seed", Punch: newPunch(fs, "emp-1", model.PunchExit)}}))

	stop := runSyncer(t, NewSyncer(q, 10*time.Millisecond))
	defer stop()

	require.Eventually(t, func() bool { return len(sub.submitted()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSyncerDrainsOnInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	sub := &fakeSubmitter{}
	store := NewMemoryStore()
	q, _, fs := newTestQueue(store, sub, true)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []Entry{{QueueID: "first", Punch: newPunch(fs, "emp-1", model.PunchEntry)}}))

	stop := runSyncer(t, NewSyncer(q, 20*time.Millisecond))
	defer stop()

	// the startup drain empties the queue; draining an empty queue never writes
	require.Eventually(t, func() bool {
		n, err := q.PendingCount(ctx)
		return err == nil && n == 0 && len(sub.submitted()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// written behind the queue's back: no kick, no reconnect, only the ticker
	require.NoError(t, store.Save(ctx, []Entry{{QueueID: "late", Punch: newPunch(fs, "emp-1", model.PunchExit)}}))

	require.Eventually(t, func() bool { return len(sub.submitted()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.PunchExit, sub.submitted()[1].Type)
}
