package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/model"
)

// DefaultInterval is the delay between status refreshes.
const DefaultInterval = 5 * time.Second

// ErrPollerRunning is returned when Run is called on a poller that is
// already running.
var ErrPollerRunning = errors.New("poller already running")

// Snapshot is the tracked set after a refresh.
type Snapshot struct {
	Repositories []model.TrackedRepository
	Err          error // refresh failure; Repositories holds the last good state
	Done         bool  // every repository is terminal, polling has stopped
	At           time.Time
}

// Poller refreshes the tracker while any repository is being analysed.
// One refresh at most is in flight: the timer is armed again only after the
// previous refresh settles.
type Poller struct {
	tracker  *Tracker
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	updates chan Snapshot
}

// NewPoller returns a Poller. interval <= 0 selects DefaultInterval.
func NewPoller(t *Tracker, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		tracker:  t,
		interval: interval,
		logger:   logger,
		updates:  make(chan Snapshot, 1),
	}
}

// Updates delivers snapshots. Only the latest unread snapshot is kept.
func (p *Poller) Updates() <-chan Snapshot { return p.updates }

// Running reports whether Run is active.
func (p *Poller) Running() bool { return p.running.Load() }

// Run polls until every repository is terminal (nil), ctx is cancelled
// (ctx.Err()) or the server rejects the credential (the auth error).
// Other refresh failures are published and polling continues.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPollerRunning
	}
	defer p.running.Store(false)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	if !p.tracker.HasActive() {
		p.publish(Snapshot{Repositories: p.tracker.Repositories(), Done: true})
		return nil
	}
	p.logger.Debug("polling started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("polling cancelled")
			return ctx.Err()
		case <-timer.C:
		}

		repos, err := p.tracker.ListRepositories(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.publish(Snapshot{Repositories: p.tracker.Repositories(), Err: err})
			if errors.Is(err, api.ErrAuth) {
				p.logger.Info("polling stopped: credential rejected")
				return err
			}
			p.logger.Warn("status refresh failed", zap.Error(err))
			timer.Reset(p.interval)
			continue
		}

		done := !p.tracker.HasActive()
		p.publish(Snapshot{Repositories: repos, Done: done})
		if done {
			p.logger.Debug("polling finished: all repositories terminal")
			return nil
		}
		timer.Reset(p.interval)
	}
}

func (p *Poller) publish(s Snapshot) {
	s.At = time.Now()
	for {
		select {
		case p.updates <- s:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}
