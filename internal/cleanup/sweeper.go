package cleanup

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultExpiredInterval  = 24 * time.Hour
	DefaultRevokedInterval  = 7 * 24 * time.Hour
	DefaultRevokedRetention = 30 * 24 * time.Hour
)

type Ledger interface {
	DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error)
	DeleteRevokedRefreshBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs two independent background jobs against the refresh ledger:
// expired rows are deleted daily, revoked rows are deleted weekly once
// older than the retention window. Both jobs are idempotent; a failed run
// is logged and simply waits for its next tick.
type Sweeper struct {
	Ledger Ledger
	Logger *slog.Logger

	ExpiredInterval  time.Duration
	RevokedInterval  time.Duration
	RevokedRetention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(ledger Ledger, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		Ledger:           ledger,
		Logger:           logger,
		ExpiredInterval:  DefaultExpiredInterval,
		RevokedInterval:  DefaultRevokedInterval,
		RevokedRetention: DefaultRevokedRetention,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	s.Logger.Info("cleanup sweeper started",
		"expired_interval", s.ExpiredInterval,
		"revoked_interval", s.RevokedInterval)
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("cleanup sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	expired := time.NewTicker(s.ExpiredInterval)
	defer expired.Stop()
	revoked := time.NewTicker(s.RevokedInterval)
	defer revoked.Stop()

	s.SweepExpired(context.Background())
	s.SweepRevoked(context.Background())

	for {
		select {
		case <-expired.C:
			s.SweepExpired(context.Background())
		case <-revoked.C:
			s.SweepRevoked(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) SweepExpired(ctx context.Context) {
	n, err := s.Ledger.DeleteExpiredRefresh(ctx, time.Now())
	if err != nil {
		s.Logger.Error("expired token cleanup failed", "error", err)
		return
	}
	s.Logger.Info("expired token cleanup completed", "deleted", n)
}

func (s *Sweeper) SweepRevoked(ctx context.Context) {
	cutoff := time.Now().Add(-s.RevokedRetention)
	n, err := s.Ledger.DeleteRevokedRefreshBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("revoked token cleanup failed", "error", err)
		return
	}
	s.Logger.Info("revoked token cleanup completed", "deleted", n)
}
