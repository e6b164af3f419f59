package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSyncInterval is how often the syncer drains without a trigger.
const DefaultSyncInterval = 5 * time.Second

// Syncer drives Drain on a timer, on reconnects and after every enqueue.
type Syncer struct {
	queue    *Queue
	interval time.Duration
}

func NewSyncer(q *Queue, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{queue: q, interval: interval}
}

// Run blocks until ctx is canceled. Leftovers from a previous run are
// drained on start.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	changes := s.queue.network.Changes()
	online := s.queue.network.Connected()

	log.Info().Dur("interval", s.interval).Bool("connected", online).Msg("Punch syncer started")
	s.drain(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Punch syncer shutting down...")
			return
		case <-ticker.C:
			s.drain(ctx, "interval")
		case <-s.queue.Kicks():
			s.drain(ctx, "enqueue")
		case connected, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if connected && !online {
				s.drain(ctx, "reconnect")
			}
			online = connected
		}
	}
}

func (s *Syncer) drain(ctx context.Context, trigger string) {
	if _, err := s.queue.Drain(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("trigger", trigger).Msg("Queue drain failed")
	}
}
