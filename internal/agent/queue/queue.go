// Package queue keeps punches that could not be confirmed by the server and
// resubmits them when the API is reachable again.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"ponto.service/internal/agent/connectivity"
	"ponto.service/internal/core/model"
)

const (
	// MaxAttempts is how many failed sends an entry survives.
	MaxAttempts = 5

	// StoreKey is the key the queue array is persisted under.
	StoreKey = "@ponto_queue"

	DefaultSubmitTimeout = 30 * time.Second
)

// ErrRejected marks a submit failure the server will never accept, such
// as a duplicate punch. Submitters wrap it.
var ErrRejected = errors.New("punch rejected by server")

var errMissingSelfie = errors.New("selfie file no longer exists")

// Entry is a punch waiting for server confirmation.
type Entry struct {
	QueueID      string      `json:"queueId"`
	Punch        model.Punch `json:"punch"`
	AttemptCount int         `json:"attemptCount"`
	EnqueuedAt   time.Time   `json:"enqueuedAt"`
}

// Store persists the whole queue as one value.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// DeadLetter receives entries the queue gave up on.
type DeadLetter interface {
	RecordAbandoned(ctx context.Context, entry Entry, reason string) error
}

// Submitter sends one punch to the API.
type Submitter interface {
	Submit(ctx context.Context, punch model.Punch) error
}

// DrainResult counts what one drain did. Abandoned entries are also
// counted as Failed.
type DrainResult struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

type Queue struct {
	store         Store
	submitter     Submitter
	network       connectivity.Checker
	fs            afero.Fs
	deadLetter    DeadLetter
	submitTimeout time.Duration
	now           func() time.Time

	// mu serializes read-modify-write cycles on the store.
	mu       sync.Mutex
	draining atomic.Bool
	kicks    chan struct{}
}

type Option func(*Queue)

func WithDeadLetter(d DeadLetter) Option {
	return func(q *Queue) { q.deadLetter = d }
}

func WithSubmitTimeout(d time.Duration) Option {
	return func(q *Queue) { q.submitTimeout = d }
}

// WithFs sets the filesystem selfie paths are checked against.
func WithFs(fs afero.Fs) Option {
	return func(q *Queue) { q.fs = fs }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New builds a queue. It is meant to be created once at startup and shared
// with the Syncer that drains it.
func New(store Store, submitter Submitter, network connectivity.Checker, opts ...Option) *Queue {
	q := &Queue{
		store:         store,
		submitter:     submitter,
		network:       network,
		fs:            afero.NewOsFs(),
		submitTimeout: DefaultSubmitTimeout,
		now:           time.Now,
		kicks:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue persists the punch and asks the syncer for a drain without
// waiting for it.
func (q *Queue) Enqueue(ctx context.Context, punch model.Punch) (string, error) {
	entry := Entry{
		QueueID:    uuid.NewString(),
		Punch:      punch,
		EnqueuedAt: q.now().UTC(),
	}

	err := q.mutate(ctx, func(entries []Entry) []Entry {
		return append(entries, entry)
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue punch: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("queue_id", entry.QueueID).
		Str("employee_id", punch.EmployeeID).
		Str("punch_type", string(punch.Type)).
		Msg("Punch queued for later submission")

	q.kick()
	return entry.QueueID, nil
}

// Kicks fires after every Enqueue. At most one signal is buffered.
func (q *Queue) Kicks() <-chan struct{} {
	return q.kicks
}

func (q *Queue) kick() {
	select {
	case q.kicks <- struct{}{}:
	default:
	}
}

// List returns the queued entries, oldest first.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Load(ctx)
}

// PendingCount is for display only.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Drain submits queued entries in order, one at a time. Without
// connectivity, or while another drain runs, it does nothing.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	if !q.network.Connected() {
		return res, nil
	}
	if !q.draining.CompareAndSwap(false, true) {
		log.Ctx(ctx).Debug().Msg("Drain already in progress, skipping")
		return res, nil
	}
	defer q.draining.Store(false)

	entries, err := q.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load queue: %w", err)
	}

	for _, entry := range entries {
		if !q.network.Connected() {
			log.Ctx(ctx).Info().Msg("Connectivity lost, stopping drain")
			break
		}

		sendErr := q.send(ctx, entry)
		if ctx.Err() != nil {
			// Shutting down; the entry stays as it was.
			return res, ctx.Err()
		}

		if err := q.settle(ctx, entry, sendErr, &res); err != nil {
			return res, err
		}
	}

	if res.Sent > 0 || res.Failed > 0 {
		log.Ctx(ctx).Info().
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Int("abandoned", res.Abandoned).
			Msg("Queue drained")
	}
	return res, nil
}

func (q *Queue) send(ctx context.Context, entry Entry) error {
	if entry.Punch.SelfieRef != "" {
		exists, err := afero.Exists(q.fs, entry.Punch.SelfieRef)
		if err != nil || !exists {
			return errMissingSelfie
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, q.submitTimeout)
	defer cancel()
	return q.submitter.Submit(sendCtx, entry.Punch)
}

// settle applies the outcome of one send to the stored queue.
func (q *Queue) settle(ctx context.Context, entry Entry, sendErr error, res *DrainResult) error {
	logger := log.Ctx(ctx).With().Str("queue_id", entry.QueueID).Logger()

	if sendErr == nil {
		res.Sent++
		return q.remove(ctx, entry.QueueID)
	}

	res.Failed++
	entry.AttemptCount++

	reason := ""
	switch {
	case errors.Is(sendErr, ErrRejected):
		reason = sendErr.Error()
	case entry.AttemptCount >= MaxAttempts:
		reason = fmt.Sprintf("gave up after %d attempts: %v", entry.AttemptCount, sendErr)
	}

	if reason == "" {
		logger.Warn().Err(sendErr).Int("attempt", entry.AttemptCount).Msg("Punch submission failed, will retry")
		return q.mutate(ctx, func(entries []Entry) []Entry {
			for i := range entries {
				if entries[i].QueueID == entry.QueueID {
					entries[i].AttemptCount = entry.AttemptCount
				}
			}
			return entries
		})
	}

	res.Abandoned++
	logger.Error().
		Err(sendErr).
		Str("employee_id", entry.Punch.EmployeeID).
		Str("punch_type", string(entry.Punch.Type)).
		Time("punch_time", entry.Punch.Timestamp).
		Int("attempts", entry.AttemptCount).
		Msg("Punch abandoned; it will not be submitted again")

	if q.deadLetter != nil {
		if err := q.deadLetter.RecordAbandoned(ctx, entry, reason); err != nil {
			logger.Error().Err(err).Msg("Failed to record abandoned punch")
		}
	}
	return q.remove(ctx, entry.QueueID)
}

func (q *Queue) remove(ctx context.Context, queueID string) error {
	return q.mutate(ctx, func(entries []Entry) []Entry {
		out := entries[:0]
		for _, e := range entries {
			if e.QueueID != queueID {
				out = append(out, e)
			}
		}
		return out
	})
}

func (q *Queue) mutate(ctx context.Context, fn func([]Entry) []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Load(ctx)
	if err != nil {
		return err
	}
	return q.store.Save(ctx, fn(entries))
}
