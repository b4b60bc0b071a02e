package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts idle sessions from a Store.
type Sweeper struct {
	store    Store
	maxAge   time.Duration
	interval time.Duration
	log      *zap.Logger
}

func NewSweeper(store Store, maxAge, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{store: store, maxAge: maxAge, interval: interval, log: log}
}

// Run blocks until ctx is canceled. Start it on its own goroutine.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.store.CleanupExpired(ctx, w.maxAge)
			if err != nil {
				w.log.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.log.Info("expired sessions swept", zap.Int("count", n))
			}
		}
	}
}
