package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const sweepTimeout = 30 * time.Second

// StaleSessionEnder ends sessions that have been ongoing since before cutoff.
type StaleSessionEnder interface {
	EndStale(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepJob periodically ends sessions left accepted or active for longer than
// maxAge, e.g. after both parties closed the meeting without pressing end.
type SweepJob struct {
	sessions StaleSessionEnder
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	stopped  chan struct{}
}

func NewSweepJob(sessions StaleSessionEnder, maxAge, interval time.Duration) *SweepJob {
	return &SweepJob{
		sessions: sessions,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("maxAge", j.maxAge).
		Msg("session sweep job started")
}

// Stop waits for an in-flight sweep to finish.
func (j *SweepJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("session sweep job stopped")
}

func (j *SweepJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cutoff := j.now().Add(-j.maxAge)
	count, err := j.sessions.EndStale(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Int("count", count).Msg("failed to sweep stale sessions")
		return count
	}
	if count > 0 {
		log.Info().Int("count", count).Time("cutoff", cutoff).Msg("ended stale sessions")
	}
	return count
}
